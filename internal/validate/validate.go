// Package validate statically checks Lua scripts against an allowlist
// before anything runs.
package validate

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/bridge"
)

// ChunkName is the source name used in parse and runtime errors.
const ChunkName = "script"

// Validator walks a script's syntax tree and reports every construct the
// allowlist does not permit. It holds no per-call state.
type Validator struct {
	allow   *allowlist.AllowList
	catalog *bridge.Catalog
}

// Option configures a Validator.
type Option func(*Validator)

// WithCatalog enables warnings for undocumented bridge commands.
func WithCatalog(c *bridge.Catalog) Option {
	return func(v *Validator) { v.catalog = c }
}

// New creates a Validator for al.
func New(al *allowlist.AllowList, opts ...Option) *Validator {
	v := &Validator{allow: al}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks source. It never executes anything and is idempotent.
func (v *Validator) Validate(source string) Result {
	res, _ := v.Analyze(source)
	return res
}

// Analyze checks source and also returns the compiled chunk, which is nil
// when the source does not parse or compile. Callers run exactly the proto
// that was checked.
func (v *Validator) Analyze(source string) (Result, *lua.FunctionProto) {
	chunk, err := parse.Parse(strings.NewReader(source), ChunkName)
	if err != nil {
		viol := syntaxViolation(err)
		return Result{
			Valid:      false,
			Errors:     []string{viol.String()},
			Warnings:   []string{},
			Violations: []Violation{viol},
		}, nil
	}

	proto, err := lua.Compile(chunk, ChunkName)
	if err != nil {
		viol := compileViolation(err)
		return Result{
			Valid:      false,
			Errors:     []string{viol.String()},
			Warnings:   []string{},
			Violations: []Violation{viol},
		}, nil
	}

	w := &walker{allow: v.allow, catalog: v.catalog}
	w.stmts(chunk)

	res := Result{
		Valid:      len(w.violations) == 0,
		Errors:     make([]string, 0, len(w.violations)),
		Warnings:   w.warnings,
		Violations: w.violations,
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	for _, viol := range w.violations {
		res.Errors = append(res.Errors, viol.String())
	}
	return res, proto
}

func syntaxViolation(err error) Violation {
	var perr *parse.Error
	if errors.As(err, &perr) {
		msg := perr.Message
		if perr.Token != "" {
			msg = fmt.Sprintf("%s near '%s'", msg, perr.Token)
		}
		return Violation{
			Kind:    KindSyntaxError,
			Message: msg,
			Line:    perr.Pos.Line,
			Column:  perr.Pos.Column,
		}
	}
	return Violation{Kind: KindSyntaxError, Message: strings.TrimSpace(err.Error())}
}

func compileViolation(err error) Violation {
	var cerr *lua.CompileError
	if errors.As(err, &cerr) {
		return Violation{Kind: KindSyntaxError, Message: cerr.Message, Line: cerr.Line}
	}
	return Violation{Kind: KindSyntaxError, Message: err.Error()}
}

type walker struct {
	allow      *allowlist.AllowList
	catalog    *bridge.Catalog
	violations []Violation
	warnings   []string
}

func (w *walker) report(kind Kind, line int, format string, args ...any) {
	w.violations = append(w.violations, Violation{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	})
}

func (w *walker) warn(line int, format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf("line %d: ", line)+fmt.Sprintf(format, args...))
}

func (w *walker) stmts(list []ast.Stmt) {
	for _, s := range list {
		w.stmt(s)
	}
}

func (w *walker) exprs(list []ast.Expr) {
	for _, e := range list {
		w.expr(e)
	}
}

func (w *walker) stmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		w.exprs(st.Lhs)
		w.exprs(st.Rhs)
	case *ast.LocalAssignStmt:
		w.exprs(st.Exprs)
	case *ast.FuncCallStmt:
		w.expr(st.Expr)
	case *ast.DoBlockStmt:
		w.stmts(st.Stmts)
	case *ast.WhileStmt:
		w.expr(st.Condition)
		w.stmts(st.Stmts)
	case *ast.RepeatStmt:
		w.stmts(st.Stmts)
		w.expr(st.Condition)
	case *ast.IfStmt:
		w.expr(st.Condition)
		w.stmts(st.Then)
		w.stmts(st.Else)
	case *ast.NumberForStmt:
		w.expr(st.Init)
		w.expr(st.Limit)
		if st.Step != nil {
			w.expr(st.Step)
		}
		w.stmts(st.Stmts)
	case *ast.GenericForStmt:
		w.exprs(st.Exprs)
		w.stmts(st.Stmts)
	case *ast.FuncDefStmt:
		if st.Name != nil {
			if st.Name.Func != nil {
				w.expr(st.Name.Func)
			}
			if st.Name.Receiver != nil {
				w.expr(st.Name.Receiver)
			}
			if st.Name.Method != "" {
				w.attribute(st.Name.Method, st.Line())
			}
		}
		if st.Func != nil {
			w.stmts(st.Func.Stmts)
		}
	case *ast.ReturnStmt:
		w.exprs(st.Exprs)
	case *ast.BreakStmt, *ast.LabelStmt, *ast.GotoStmt:
	default:
		w.report(KindSyntaxError, s.Line(), "unsupported statement %T", s)
	}
}

func (w *walker) expr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.TrueExpr, *ast.FalseExpr, *ast.NilExpr, *ast.NumberExpr,
		*ast.StringExpr, *ast.Comma3Expr:
	case *ast.IdentExpr:
		w.ident(ex.Value, ex.Line())
	case *ast.AttrGetExpr:
		w.expr(ex.Object)
		if key, ok := constString(ex.Key); ok {
			w.attribute(key, ex.Line())
		} else {
			w.expr(ex.Key)
		}
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			if f.Key != nil {
				if key, ok := constString(f.Key); ok {
					w.attribute(key, ex.Line())
				} else {
					w.expr(f.Key)
				}
			}
			w.expr(f.Value)
		}
	case *ast.FuncCallExpr:
		w.call(ex)
	case *ast.LogicalOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.RelationalOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.StringConcatOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.ArithmeticOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.UnaryMinusOpExpr:
		w.expr(ex.Expr)
	case *ast.UnaryNotOpExpr:
		w.expr(ex.Expr)
	case *ast.UnaryLenOpExpr:
		w.expr(ex.Expr)
	case *ast.FunctionExpr:
		w.stmts(ex.Stmts)
	default:
		w.report(KindSyntaxError, e.Line(), "unsupported expression %T", e)
	}
}

func (w *walker) call(ex *ast.FuncCallExpr) {
	if id, ok := ex.Func.(*ast.IdentExpr); ok && id.Value == "require" {
		w.require(ex)
		w.exprs(ex.Args)
		return
	}

	if ex.Func != nil {
		w.expr(ex.Func)
	}
	if ex.Receiver != nil {
		w.expr(ex.Receiver)
	}
	if ex.Method != "" {
		w.attribute(ex.Method, ex.Line())
	}
	w.exprs(ex.Args)
	w.command(ex)
}

func (w *walker) require(ex *ast.FuncCallExpr) {
	line := ex.Line()
	if !w.allow.BuiltinAllowed("require") {
		w.report(KindForbiddenImport, line, "imports are disabled (require)")
		return
	}
	if len(ex.Args) != 1 {
		w.report(KindForbiddenImport, line, "require takes exactly one module name")
		return
	}
	name, ok := constString(ex.Args[0])
	if !ok {
		w.report(KindForbiddenImport, line, "dynamic import: require needs a literal module name")
		return
	}
	root, _, _ := strings.Cut(name, ".")
	if !w.allow.ModuleAllowed(root) {
		w.report(KindForbiddenImport, line, "forbidden import %q", name)
	}
}

func (w *walker) ident(name string, line int) {
	switch {
	case w.allow.ModuleForbidden(name):
		w.report(KindForbiddenImport, line, "forbidden module %q", name)
	case w.allow.BuiltinForbidden(name):
		w.report(KindForbiddenBuiltin, line, "forbidden builtin %q", name)
	}
}

func (w *walker) attribute(name string, line int) {
	if ok, pattern := w.allow.AttributeForbidden(name); ok {
		w.report(KindForbiddenAttribute, line, "forbidden attribute %q (matches %q)", name, pattern)
	}
}

// command warns on NS.METHOD calls the catalog does not document.
func (w *walker) command(ex *ast.FuncCallExpr) {
	if w.catalog == nil {
		return
	}
	var ns, method string
	switch {
	case ex.Receiver != nil && ex.Method != "":
		id, ok := ex.Receiver.(*ast.IdentExpr)
		if !ok {
			return
		}
		ns, method = id.Value, ex.Method
	default:
		attr, ok := ex.Func.(*ast.AttrGetExpr)
		if !ok {
			return
		}
		id, ok := attr.Object.(*ast.IdentExpr)
		if !ok {
			return
		}
		key, ok := constString(attr.Key)
		if !ok {
			return
		}
		ns, method = id.Value, key
	}
	if w.catalog.IsNamespace(ns) && !w.catalog.Has(ns+"."+method) {
		w.warn(ex.Line(), "unknown command %s.%s", ns, method)
	}
}

// constString folds string literals and concatenations of them.
func constString(e ast.Expr) (string, bool) {
	switch ex := e.(type) {
	case *ast.StringExpr:
		return ex.Value, true
	case *ast.StringConcatOpExpr:
		l, ok := constString(ex.Lhs)
		if !ok {
			return "", false
		}
		r, ok := constString(ex.Rhs)
		if !ok {
			return "", false
		}
		return l + r, true
	}
	return "", false
}
