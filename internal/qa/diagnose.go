package qa

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/ppiankov/sitescout/internal/model"
)

// extractFuncs names the per-field extraction function of browser programs
var extractFuncs = map[string]string{
	model.FieldTitle:       "extractTitle",
	model.FieldPrice:       "extractPrice",
	model.FieldImages:      "extractImageURLs",
	model.FieldDescription: "extractDescription",
	model.FieldURL:         "extractURL",
}

const paginateFunc = "paginate"

// Diagnose maps failed checks onto root causes. src is the program that
// produced the output; without it only file-level causes are reported.
func Diagnose(checks map[string]model.CheckResult, name string, src []byte) []model.RootCause {
	var prog *program
	if len(src) > 0 {
		prog, _ = parseProgram(name, src)
	}

	var causes []model.RootCause
	if c, ok := checks[model.CheckItemCount]; ok && c.Status == model.StatusFail {
		causes = append(causes, diagnoseItemCount(c, prog)...)
	}
	if c, ok := checks[model.CheckCompleteness]; ok && c.Status == model.StatusFail {
		causes = append(causes, diagnoseCompleteness(c, prog)...)
	}
	if c, ok := checks[model.CheckFileRefs]; ok && c.Status == model.StatusFail {
		causes = append(causes, model.RootCause{
			Issue:          model.IssueFileReferenceMismatch,
			Description:    "items and metadata files do not reference each other",
			Recommendation: "re-run the program; do not rename output files",
		})
	}
	if c, ok := checks[model.CheckTimestamps]; ok && c.Status == model.StatusFail {
		causes = append(causes, model.RootCause{
			Issue:          model.IssueTimestampDrift,
			Description:    fmt.Sprintf("%v item(s) scraped outside the session window", c.Details["items_outside_window"]),
			Recommendation: "check that items are stamped during the run and the system clock is stable",
		})
	}
	return causes
}

func diagnoseItemCount(c model.CheckResult, prog *program) []model.RootCause {
	if c.Details["direction"] == DirectionSurplus {
		return []model.RootCause{{
			Issue:          model.IssueDuplicateItems,
			Description:    fmt.Sprintf("program wrote %v items but declared %v", c.Details["actual"], c.Details["declared"]),
			Recommendation: "check item identity; the same item may be collected on several pages",
		}}
	}
	if prog == nil {
		return nil
	}

	pos, ok := prog.unguardedBreak()
	if !ok {
		return nil
	}
	return []model.RootCause{{
		Issue:          model.IssuePaginationEndCondition,
		Description:    fmt.Sprintf("pagination stopped after %v of %v items; its stop condition has no item-count guard", c.Details["actual"], c.Details["declared"]),
		Recommendation: "guard the stop condition with sess.Count() >= declared total",
		Location:       pos,
	}}
}

func diagnoseCompleteness(c model.CheckResult, prog *program) []model.RootCause {
	failed := stringsOf(c.Details["failed_fields"])
	causes := make([]model.RootCause, 0, len(failed))
	for _, field := range failed {
		if prog != nil {
			if pos, ok := prog.missingFallback(field); ok {
				causes = append(causes, model.RootCause{
					Issue:          model.IssueMissingFallbackSelector,
					Field:          field,
					Description:    fmt.Sprintf("%s has no fallback lookup", extractFuncs[field]),
					Recommendation: fmt.Sprintf("add a fallback selector for %s", field),
					Location:       pos,
				})
				continue
			}
		}
		causes = append(causes, model.RootCause{
			Issue:          model.IssueSelectorAccuracy,
			Field:          field,
			Description:    fmt.Sprintf("declared and actual %s completeness disagree", field),
			Recommendation: "re-run selector synthesis against the current page",
		})
	}
	return causes
}

// program is a parsed generated program
type program struct {
	fset *token.FileSet
	file *ast.File
}

func parseProgram(name string, src []byte) (*program, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	return &program{fset: fset, file: f}, nil
}

func (p *program) funcDecl(name string) *ast.FuncDecl {
	for _, decl := range p.file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name && fn.Recv == nil {
			return fn
		}
	}
	return nil
}

func (p *program) position(n ast.Node) string {
	pos := p.fset.Position(n.Pos())
	return fmt.Sprintf("%s:%d", pos.Filename, pos.Line)
}

// unguardedBreak finds the first stop condition in paginate that the repair
// transform would guard
func (p *program) unguardedBreak() (string, bool) {
	fn := p.funcDecl(paginateFunc)
	if fn == nil || fn.Body == nil {
		return "", false
	}
	var found ast.Node
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if ifs, ok := n.(*ast.IfStmt); ok && breaks(ifs.Body) && guardable(ifs.Cond) {
			found = ifs
			return false
		}
		return true
	})
	if found == nil {
		return "", false
	}
	return p.position(found), true
}

// missingFallback reports whether a field's extraction function performs a
// single selector lookup
func (p *program) missingFallback(field string) (string, bool) {
	fn := p.funcDecl(extractFuncs[field])
	if fn == nil || fn.Body == nil {
		return "", false
	}
	lookups := 0
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok && selectorLookup(call) {
			lookups++
		}
		return true
	})
	if lookups != 1 {
		return "", false
	}
	return p.position(fn), true
}

func breaks(body *ast.BlockStmt) bool {
	for _, stmt := range body.List {
		if br, ok := stmt.(*ast.BranchStmt); ok && br.Tok == token.BREAK && br.Label == nil {
			return true
		}
	}
	return false
}

// guardable is true for an end condition: no count guard yet and no error test
func guardable(cond ast.Expr) bool {
	guardable := true
	ast.Inspect(cond, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.Ident:
			if x.Name == "err" {
				guardable = false
			}
		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); ok && id.Name == "sess" && x.Sel.Name == "Count" {
				guardable = false
			}
		}
		return guardable
	})
	return guardable
}

// selectorLookup matches runkit.X(s, "selector", ...)
func selectorLookup(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	if pkg, ok := sel.X.(*ast.Ident); !ok || pkg.Name != "runkit" {
		return false
	}
	if len(call.Args) < 2 {
		return false
	}
	lit, ok := call.Args[1].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return false
	}
	_, err := strconv.Unquote(lit.Value)
	return err == nil
}

// stringsOf accepts in-memory details and details decoded from JSON
func stringsOf(v interface{}) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
