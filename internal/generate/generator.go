// Package generate renders self-contained extraction programs from the
// investigation, pagination and selector artifacts.
package generate

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"go/format"
	"strings"
	"text/template"
	"time"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/selector"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// MaxPages bounds every generated pagination loop
const MaxPages = 500

// Errors returned for incomplete inputs
var (
	ErrNoEndpoint  = errors.New("api strategy requires a discovered endpoint")
	ErrNoSelectors = errors.New("browser strategy requires an item container selector")
)

// Input is everything a program is generated from
type Input struct {
	Name          string // defaults to the target's source name
	TargetURL     string
	Version       int // defaults to 1
	Investigation *model.InvestigationReport
	Selectors     *model.DOMSelectorMap
	Pagination    *model.PaginationStrategy
}

// drivers maps pagination types onto browser pagination drivers
var drivers = map[model.PaginationType]string{
	model.PaginationInfiniteScroll: "scroll",
	model.PaginationAPI:            "scroll",
	model.PaginationLoadMore:       "click",
	model.PaginationTraditional:    "next",
	model.PaginationNone:           "single",
}

type fieldData struct {
	Present      bool
	PrimaryCall  string
	FallbackCall string
	EmptyCheck   string
	Zero         string
}

type programData struct {
	Name           string
	Strategy       model.Strategy
	PaginationType model.PaginationType
	Version        int
	SourceURL      string
	MaxPages       int

	// browser mode
	Driver       string
	ItemSelector string
	LoadMore     string
	Next         string
	WaitMS       int
	Title        fieldData
	Price        fieldData
	Images       fieldData
	Description  fieldData
	URL          fieldData

	// api mode
	Endpoint  string
	PageParam string
	Platform  runkit.Platform
	Mapper    string
}

// Generate renders a program. It does no I/O and identical inputs produce
// byte-identical source.
func Generate(in Input) (*model.ExtractionProgram, error) {
	data, err := buildData(in)
	if err != nil {
		return nil, err
	}

	name := "browser.go.tmpl"
	if data.Strategy == model.StrategyAPI {
		name = "api.go.tmpl"
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated program: %w", err)
	}

	program := &model.ExtractionProgram{
		Name:           data.Name,
		Version:        data.Version,
		Strategy:       data.Strategy,
		PaginationType: data.PaginationType,
		Source:         src,
		Digest:         Digest(src),
		MetadataTemplate: model.RunMetadata{
			ScrapingSession: model.ScrapingSession{
				SourceURL:      in.TargetURL,
				SourceName:     data.Name,
				Method:         string(data.Strategy),
				ProgramVersion: data.Version,
			},
			PaginationInfo: model.PaginationInfo{
				Type: string(data.PaginationType),
			},
		},
	}
	if in.Investigation != nil {
		program.Platform = in.Investigation.PlatformDetected
	}
	if in.Pagination != nil {
		program.MetadataTemplate.PaginationInfo.ItemsPerPage = in.Pagination.ItemsPerPage
	}
	if in.Selectors != nil {
		program.MetadataTemplate.ItemsSummary.DeclaredTotal = in.Selectors.TotalItemsFound
	}
	return program, nil
}

// Digest is the hex SHA-256 of program source
func Digest(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// FileName is the on-disk name of a program version
func FileName(name string, version int) string {
	return fmt.Sprintf("%s_v%d.go", name, version)
}

func buildData(in Input) (*programData, error) {
	data := &programData{
		Name:      in.Name,
		Version:   in.Version,
		SourceURL: in.TargetURL,
		MaxPages:  MaxPages,
		Strategy:  model.StrategyBrowser,
	}
	if data.Name == "" {
		data.Name = runkit.SourceName(in.TargetURL)
	}
	if data.Version <= 0 {
		data.Version = 1
	}
	if in.Investigation != nil && in.Investigation.RecommendedStrategy != "" {
		data.Strategy = in.Investigation.RecommendedStrategy
	}

	if data.Strategy == model.StrategyAPI {
		return data, apiData(data, in)
	}
	return data, browserData(data, in)
}

func apiData(data *programData, in Input) error {
	ep := in.Investigation.BestEndpoint()
	if ep == nil {
		return ErrNoEndpoint
	}
	data.Endpoint = ep.URL
	data.PaginationType = model.PaginationAPI
	data.PageParam = "page"
	if p := in.Pagination; p != nil && p.PageParameter != "" && !strings.HasPrefix(p.PageParameter, "/") {
		data.PageParam = p.PageParameter
	}

	data.Platform = runkit.PlatformFor(in.Investigation.PlatformDetected)
	mapper, err := runkit.MapperName(data.Platform)
	if err != nil {
		return err
	}
	data.Mapper = mapper
	return nil
}

func browserData(data *programData, in Input) error {
	if in.Selectors == nil || in.Selectors.ItemContainerSelector == "" {
		return ErrNoSelectors
	}
	data.ItemSelector = in.Selectors.ItemContainerSelector

	data.PaginationType = model.PaginationNone
	data.WaitMS = int(model.DefaultConfig().Pagination.SettleDelay / time.Millisecond)
	if p := in.Pagination; p != nil {
		if p.Type != "" {
			data.PaginationType = p.Type
		}
		data.LoadMore = p.Selectors.LoadMoreButton
		data.Next = p.Selectors.NextButton
		if p.WaitTimeMS > 0 {
			data.WaitMS = p.WaitTimeMS
		}
	}
	data.Driver = drivers[data.PaginationType]
	switch {
	case data.Driver == "":
		return fmt.Errorf("unknown pagination type %q", data.PaginationType)
	case data.Driver == "click" && data.LoadMore == "":
		data.Driver = "single"
	case data.Driver == "next" && data.Next == "":
		data.Driver = "single"
	}

	fields := in.Selectors.FieldSelectors
	data.Title = textField(fields, model.FieldTitle)
	data.Description = textField(fields, model.FieldDescription)
	data.Price = priceField(fields)
	data.Images = linkField(fields, model.FieldImages, "Images", "len(v) == 0", "nil")
	data.URL = linkField(fields, model.FieldURL, "Link", `v == ""`, `""`)
	return nil
}

func textField(fields map[string]model.FieldSelector, name string) fieldData {
	fs, ok := fields[name]
	if !ok || fs.Primary == "" {
		return fieldData{Zero: `""`}
	}
	return fieldData{
		Present:      true,
		PrimaryCall:  fmt.Sprintf("runkit.Text(s, %q)", fs.Primary),
		FallbackCall: fmt.Sprintf("runkit.Text(s, %q)", fallbackOf(fs, name)),
		EmptyCheck:   `v == ""`,
		Zero:         `""`,
	}
}

func priceField(fields map[string]model.FieldSelector) fieldData {
	fs, ok := fields[model.FieldPrice]
	if !ok || fs.Primary == "" {
		return fieldData{Zero: "nil"}
	}
	call := func(sel string) string {
		if fs.ExtractionMode == model.ModeAttribute && fs.Attribute != "" {
			return fmt.Sprintf("runkit.PriceAttr(s, %q, %q)", sel, fs.Attribute)
		}
		return fmt.Sprintf("runkit.PriceText(s, %q)", sel)
	}
	return fieldData{
		Present:      true,
		PrimaryCall:  call(fs.Primary),
		FallbackCall: call(fallbackOf(fs, model.FieldPrice)),
		EmptyCheck:   "v == nil",
		Zero:         "nil",
	}
}

func linkField(fields map[string]model.FieldSelector, name, fn, emptyCheck, zero string) fieldData {
	fs, ok := fields[name]
	if !ok || fs.Primary == "" {
		return fieldData{Zero: zero}
	}
	return fieldData{
		Present:      true,
		PrimaryCall:  fmt.Sprintf("runkit.%s(s, %q, sourceURL)", fn, fs.Primary),
		FallbackCall: fmt.Sprintf("runkit.%s(s, %q, sourceURL)", fn, fallbackOf(fs, name)),
		EmptyCheck:   emptyCheck,
		Zero:         zero,
	}
}

func fallbackOf(fs model.FieldSelector, field string) string {
	if fs.Fallback != "" && fs.Fallback != fs.Primary {
		return fs.Fallback
	}
	return selector.DeriveFallback(fs.Primary, field)
}
