package generate

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ppiankov/sitescout/internal/model"
)

const headerPrefix = "// sitescout:program "

var headerPattern = regexp.MustCompile(`^// sitescout:program name=(\S+) strategy=(\S+) pagination=(\S+) version=(\d+)$`)

// Header is the identity line every generated program starts with
type Header struct {
	Name           string
	Strategy       model.Strategy
	PaginationType model.PaginationType
	Version        int
}

// String renders the header line without a trailing newline
func (h Header) String() string {
	return fmt.Sprintf("%sname=%s strategy=%s pagination=%s version=%d",
		headerPrefix, h.Name, h.Strategy, h.PaginationType, h.Version)
}

// ParseHeader reads the header from the first line of program source
func ParseHeader(src []byte) (Header, error) {
	sc := bufio.NewScanner(bytes.NewReader(src))
	if !sc.Scan() {
		return Header{}, fmt.Errorf("empty program source")
	}
	m := headerPattern.FindStringSubmatch(sc.Text())
	if m == nil {
		return Header{}, fmt.Errorf("missing sitescout:program header")
	}
	version, err := strconv.Atoi(m[4])
	if err != nil {
		return Header{}, fmt.Errorf("header version: %w", err)
	}
	return Header{
		Name:           m[1],
		Strategy:       model.Strategy(m[2]),
		PaginationType: model.PaginationType(m[3]),
		Version:        version,
	}, nil
}

// ReplaceHeader swaps the first line of src for h
func ReplaceHeader(src []byte, h Header) ([]byte, error) {
	if _, err := ParseHeader(src); err != nil {
		return nil, err
	}
	nl := bytes.IndexByte(src, '\n')
	if nl < 0 {
		nl = len(src)
	}
	rest := src[nl:]
	out := make([]byte, 0, len(src)+8)
	out = append(out, h.String()...)
	return append(out, rest...), nil
}

// Program rebuilds the program record for on-disk source
func Program(src []byte) (*model.ExtractionProgram, error) {
	h, err := ParseHeader(src)
	if err != nil {
		return nil, err
	}
	return &model.ExtractionProgram{
		Name:           h.Name,
		Version:        h.Version,
		Strategy:       h.Strategy,
		PaginationType: h.PaginationType,
		Source:         src,
		Digest:         Digest(src),
	}, nil
}
