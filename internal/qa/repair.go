package qa

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/generate"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/selector"
)

// Transform is one whitelisted structural rewrite of a program's syntax tree
type Transform interface {
	Kind() model.TransformKind
	Field() string
	// Apply rewrites f in place; false means nothing in f matched
	Apply(f *dst.File) (bool, error)
}

// CountGuard conjoins every unguarded stop condition in paginate with
// sess.Count() >= Declared
type CountGuard struct {
	Declared int
}

func (g *CountGuard) Kind() model.TransformKind { return model.TransformCountGuard }
func (g *CountGuard) Field() string             { return "" }

func (g *CountGuard) Apply(f *dst.File) (bool, error) {
	if g.Declared <= 0 {
		return false, errors.New("no declared total to guard against")
	}
	fn := findFunc(f, paginateFunc)
	if fn == nil || fn.Body == nil {
		return false, nil
	}

	applied := false
	dst.Inspect(fn.Body, func(n dst.Node) bool {
		ifs, ok := n.(*dst.IfStmt)
		if !ok || !dstBreaks(ifs.Body) || !dstGuardable(ifs.Cond) {
			return true
		}
		cond := ifs.Cond
		if be, ok := cond.(*dst.BinaryExpr); ok && be.Op == token.LOR {
			cond = &dst.ParenExpr{X: cond}
		}
		ifs.Cond = &dst.BinaryExpr{X: cond, Op: token.LAND, Y: countAtLeast(g.Declared)}
		applied = true
		return true
	})
	return applied, nil
}

// FallbackSelector turns a single-lookup extraction function into a
// primary-then-fallback lookup
type FallbackSelector struct {
	FieldName string
}

func (t *FallbackSelector) Kind() model.TransformKind { return model.TransformFallback }
func (t *FallbackSelector) Field() string             { return t.FieldName }

func (t *FallbackSelector) Apply(f *dst.File) (bool, error) {
	name, ok := extractFuncs[t.FieldName]
	if !ok {
		return false, fmt.Errorf("unknown field %q", t.FieldName)
	}
	fn := findFunc(f, name)
	if fn == nil || fn.Body == nil || len(fn.Body.List) != 1 {
		return false, nil
	}
	ret, ok := fn.Body.List[0].(*dst.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return false, nil
	}
	call, ok := ret.Results[0].(*dst.CallExpr)
	if !ok {
		return false, nil
	}
	primary, ok := lookupSelector(call)
	if !ok {
		return false, nil
	}
	if fn.Type.Results == nil || len(fn.Type.Results.List) != 1 {
		return false, nil
	}
	empty := emptyCheck(fn.Type.Results.List[0].Type)
	if empty == nil {
		return false, fmt.Errorf("%s: unsupported result type", name)
	}

	fallback := dst.Clone(call).(*dst.CallExpr)
	fallback.Args[1] = &dst.BasicLit{
		Kind:  token.STRING,
		Value: strconv.Quote(selector.DeriveFallback(primary, t.FieldName)),
	}
	fn.Body.List = []dst.Stmt{
		&dst.AssignStmt{Lhs: []dst.Expr{dst.NewIdent("v")}, Tok: token.DEFINE, Rhs: []dst.Expr{call}},
		&dst.IfStmt{
			Cond: empty,
			Body: &dst.BlockStmt{List: []dst.Stmt{
				&dst.AssignStmt{Lhs: []dst.Expr{dst.NewIdent("v")}, Tok: token.ASSIGN, Rhs: []dst.Expr{fallback}},
			}},
		},
		&dst.ReturnStmt{Results: []dst.Expr{dst.NewIdent("v")}},
	}
	return true, nil
}

// TransformsFor selects the transforms that address the given causes
func TransformsFor(causes []model.RootCause, declared int) []Transform {
	var out []Transform
	seen := make(map[string]bool)
	for _, c := range causes {
		key := c.Issue + "/" + c.Field
		if seen[key] {
			continue
		}
		seen[key] = true
		switch c.Issue {
		case model.IssuePaginationEndCondition:
			out = append(out, &CountGuard{Declared: declared})
		case model.IssueMissingFallbackSelector:
			out = append(out, &FallbackSelector{FieldName: c.Field})
		}
	}
	return out
}

// Repairer applies transforms to a program file and writes the next version
// beside it. The original file is never modified.
type Repairer struct {
	logger *zap.Logger
}

// NewRepairer creates a repairer
func NewRepairer(logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{logger: logger}
}

// Repair runs transforms over the program at path. Errors are recorded in the
// outcome, never returned.
func (r *Repairer) Repair(path string, transforms []Transform) *model.RepairOutcome {
	outcome := &model.RepairOutcome{OriginalProgram: path}
	if len(transforms) == 0 {
		return outcome
	}
	outcome.Attempted = true

	src, err := os.ReadFile(path)
	if err != nil {
		outcome.Error = fmt.Sprintf("read program %s: %v", path, err)
		return outcome
	}
	header, err := generate.ParseHeader(src)
	if err != nil {
		outcome.Error = fmt.Sprintf("%s: %v", path, err)
		return outcome
	}

	out, results, err := applyTransforms(src, transforms)
	outcome.Transforms = results
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if out == nil {
		return outcome
	}

	header.Version++
	out, err = bumpVersion(out, header)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	target := filepath.Join(filepath.Dir(path), generate.FileName(header.Name, header.Version))
	if err := writeExclusive(target, out); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.RepairedProgram = target
	outcome.Version = header.Version
	r.logger.Info("program repaired",
		zap.String("original", path),
		zap.String("repaired", target),
		zap.Int("version", header.Version))
	return outcome
}

// applyTransforms runs each transform against the latest accepted source.
// A transform whose output does not parse is rejected and the source before
// it is kept. The returned source is nil when nothing was applied.
func applyTransforms(src []byte, transforms []Transform) ([]byte, []model.TransformResult, error) {
	current := src
	applied := false
	results := make([]model.TransformResult, 0, len(transforms))

	for _, t := range transforms {
		res := model.TransformResult{Kind: t.Kind(), Field: t.Field()}

		f, err := decorator.Parse(current)
		if err != nil {
			return nil, results, fmt.Errorf("parse program: %w", err)
		}
		ok, err := t.Apply(f)
		switch {
		case err != nil:
			res.Status = model.TransformRejected
			res.Error = err.Error()
		case !ok:
			res.Status = model.TransformNotApplicable
		default:
			next, err := render(f, t.Kind())
			if err != nil {
				res.Status = model.TransformRejected
				res.Error = err.Error()
				break
			}
			current = next
			applied = true
			res.Status = model.TransformApplied
		}
		results = append(results, res)
	}

	if !applied {
		return nil, results, nil
	}
	return current, results, nil
}

// render prints f and proves the result parses
func render(f *dst.File, kind model.TransformKind) ([]byte, error) {
	var buf bytes.Buffer
	if err := decorator.Fprint(&buf, f); err != nil {
		return nil, &model.RepairParseError{Transform: kind, Err: err}
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "", buf.Bytes(), parser.ParseComments); err != nil {
		return nil, &model.RepairParseError{Transform: kind, Err: err}
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, &model.RepairParseError{Transform: kind, Err: err}
	}
	return out, nil
}

// bumpVersion rewrites the header line and the programVersion constant
func bumpVersion(src []byte, h generate.Header) ([]byte, error) {
	f, err := decorator.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse repaired program: %w", err)
	}
	for i, d := range f.Decs.Start {
		if _, err := generate.ParseHeader([]byte(d)); err == nil {
			f.Decs.Start[i] = h.String()
		}
	}
	for _, decl := range f.Decls {
		gen, ok := decl.(*dst.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*dst.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if name.Name == "programVersion" && i < len(vs.Values) {
					vs.Values[i] = &dst.BasicLit{Kind: token.INT, Value: strconv.Itoa(h.Version)}
				}
			}
		}
	}
	out, err := render(f, "")
	if err != nil {
		return nil, err
	}
	got, err := generate.ParseHeader(out)
	if err != nil || got.Version != h.Version {
		return nil, fmt.Errorf("repaired program header not updated")
	}
	return out, nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("write repaired program: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write repaired program: %w", err)
	}
	return f.Close()
}

func findFunc(f *dst.File, name string) *dst.FuncDecl {
	for _, decl := range f.Decls {
		if fn, ok := decl.(*dst.FuncDecl); ok && fn.Name.Name == name && fn.Recv == nil {
			return fn
		}
	}
	return nil
}

func dstBreaks(body *dst.BlockStmt) bool {
	for _, stmt := range body.List {
		if br, ok := stmt.(*dst.BranchStmt); ok && br.Tok == token.BREAK && br.Label == nil {
			return true
		}
	}
	return false
}

func dstGuardable(cond dst.Expr) bool {
	guardable := true
	dst.Inspect(cond, func(n dst.Node) bool {
		switch x := n.(type) {
		case *dst.Ident:
			if x.Name == "err" {
				guardable = false
			}
		case *dst.SelectorExpr:
			if id, ok := x.X.(*dst.Ident); ok && id.Name == "sess" && x.Sel.Name == "Count" {
				guardable = false
			}
		}
		return guardable
	})
	return guardable
}

func countAtLeast(n int) dst.Expr {
	return &dst.BinaryExpr{
		X: &dst.CallExpr{Fun: &dst.SelectorExpr{
			X:   dst.NewIdent("sess"),
			Sel: dst.NewIdent("Count"),
		}},
		Op: token.GEQ,
		Y:  &dst.BasicLit{Kind: token.INT, Value: strconv.Itoa(n)},
	}
}

// lookupSelector returns the selector of runkit.X(s, "selector", ...)
func lookupSelector(call *dst.CallExpr) (string, bool) {
	sel, ok := call.Fun.(*dst.SelectorExpr)
	if !ok {
		return "", false
	}
	if pkg, ok := sel.X.(*dst.Ident); !ok || pkg.Name != "runkit" || len(call.Args) < 2 {
		return "", false
	}
	lit, ok := call.Args[1].(*dst.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	v, err := strconv.Unquote(lit.Value)
	return v, err == nil
}

func emptyCheck(result dst.Expr) dst.Expr {
	v := dst.NewIdent("v")
	switch t := result.(type) {
	case *dst.Ident:
		if t.Name == "string" {
			return &dst.BinaryExpr{X: v, Op: token.EQL, Y: &dst.BasicLit{Kind: token.STRING, Value: `""`}}
		}
	case *dst.StarExpr:
		return &dst.BinaryExpr{X: v, Op: token.EQL, Y: dst.NewIdent("nil")}
	case *dst.ArrayType:
		return &dst.BinaryExpr{
			X:  &dst.CallExpr{Fun: dst.NewIdent("len"), Args: []dst.Expr{v}},
			Op: token.EQL,
			Y:  &dst.BasicLit{Kind: token.INT, Value: "0"},
		}
	}
	return nil
}
