package sema

import (
	"fmt"
	"strings"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/traits"
	"vais/internal/types"
	"vais/internal/unify"
)

func (tc *typeChecker) call(id ast.ExprID, e *ast.Expr, expected types.TypeID) types.TypeID {
	callee := tc.inferExpr(e.X)
	if ce := tc.mod.Expr(e.X); ce != nil && ce.Kind == ast.ExprName && ce.Ref.Kind == ast.RefItem {
		tc.callees[id] = ce.Ref.Item
	}
	ct, tt := tc.resolved(callee)
	switch tt.Kind {
	case types.KindFn:
		tc.expectReturn(expected, tt.Elem)
		tc.args(e, tt.Elems, "function")
		return tt.Elem
	case types.KindVar:
		params := make([]types.TypeID, len(e.Args))
		for i, a := range e.Args {
			params[i] = tc.inferExpr(a)
		}
		ret := tc.fresh(e.Span)
		tc.unifyAt(e.Span, ct, tc.in.Fn(params, ret))
		return ret
	case types.KindError:
	default:
		diag.ReportError(tc.rep, diag.NotCallable, e.Span,
			fmt.Sprintf("expected function, found `%s`", tc.typeString(callee))).Emit()
	}
	for _, a := range e.Args {
		tc.inferExpr(a)
	}
	return tc.b.Error
}

// expectReturn pushes the expected type of a call into its return type so
// that generic arguments can be inferred from the context. A failed
// attempt leaves no trace; the caller's check reports it.
func (tc *typeChecker) expectReturn(expected, ret types.TypeID) {
	if expected == types.NoTypeID || !tc.in.HasVars(tc.subst.Apply(ret)) {
		return
	}
	snap := tc.subst.Snapshot()
	if err := tc.subst.Coerce(expected, ret); err != nil {
		tc.subst.Rollback(snap)
	}
}

func (tc *typeChecker) args(e *ast.Expr, params []types.TypeID, what string) {
	if len(e.Args) != len(params) {
		diag.ReportError(tc.rep, diag.ArgCount, e.Span,
			fmt.Sprintf("this %s takes %d %s but %d %s supplied",
				what, len(params), plural(len(params), "argument"), len(e.Args), wasWere(len(e.Args)))).Emit()
	}
	for i, a := range e.Args {
		if i < len(params) {
			tc.checkExpr(a, params[i])
		} else {
			tc.inferExpr(a)
		}
	}
}

func (tc *typeChecker) methodCall(id ast.ExprID, e *ast.Expr, expected types.TypeID) types.TypeID {
	recv := tc.inferExpr(e.X)
	name := tc.mod.Name(e.Name)
	ref, err := tc.s.Traits.ResolveMethod(tc.subst, recv, name)
	if err != nil {
		tc.reportMethod(err, e, recv, name)
		for _, a := range e.Args {
			tc.inferExpr(a)
		}
		return tc.b.Error
	}
	fs := tc.s.Sigs.Fns[ref.Method]
	if fs == nil {
		diag.ReportError(tc.rep, diag.InternalError, e.Span,
			fmt.Sprintf("method `%s` has no signature", name)).Emit()
		return tc.b.Error
	}
	if fs.Receiver == ast.RecvNone {
		diag.ReportError(tc.rep, diag.UnresolvedMethod, e.Span,
			fmt.Sprintf("`%s` is an associated function, not a method", name)).
			WithNote(tc.mod.Item(ref.Method).Span, "defined here").Emit()
		return tc.b.Error
	}

	m := make(map[unify.ParamKey]types.TypeID, len(ref.Subst)+len(fs.Generics))
	for k, v := range ref.Subst {
		m[k] = v
	}
	own := make([]types.TypeID, len(fs.Generics))
	for i, k := range fs.Generics {
		own[i] = tc.fresh(e.Span)
		m[k] = own[i]
	}
	if len(e.TypeArgs) > 0 {
		if len(e.TypeArgs) != len(own) {
			diag.ReportError(tc.rep, diag.ArgCount, e.Span,
				fmt.Sprintf("method `%s` takes %d type arguments but %d were supplied", name, len(own), len(e.TypeArgs))).Emit()
		} else {
			for i, ta := range e.TypeArgs {
				tc.unifyAt(e.Span, own[i], tc.in.EraseRegions(tc.lower.Lower(ta)))
			}
		}
	}
	tc.methods[id] = ref
	if sc, ok := tc.s.Sigs.Scheme(ref.Method); ok && len(sc.Params) > 0 {
		vars := make([]types.TypeID, 0, len(sc.Params))
		for _, p := range sc.Params {
			if v, ok := m[p]; ok {
				vars = append(vars, v)
			}
		}
		if len(vars) == len(sc.Params) {
			tc.insts = append(tc.insts, pendingInst{expr: id, item: ref.Method, vars: vars})
		}
	}
	tc.requireBounds(fs.Generics, m, e)

	params := make([]types.TypeID, len(fs.Params))
	for i, p := range fs.Params {
		params[i] = tc.subst.Subst(tc.in.EraseRegions(p), m)
	}
	ret := tc.subst.Subst(tc.in.EraseRegions(fs.Ret), m)
	tc.expectReturn(expected, ret)
	tc.args(e, params, "method")
	return ret
}

func (tc *typeChecker) reportMethod(err error, e *ast.Expr, recv types.TypeID, name string) {
	switch me := err.(type) {
	case *traits.UnresolvedMethodError:
		b := diag.ReportError(tc.rep, diag.UnresolvedMethod, e.Span,
			fmt.Sprintf("no method named `%s` found for `%s`", name, tc.typeString(recv)))
		for _, tr := range me.Hidden {
			b = b.WithNote(tc.mod.Item(tr).Span,
				fmt.Sprintf("trait `%s` provides `%s` but is not in scope", tc.mod.ItemName(tr), name))
		}
		suggestName(b, name, me.Available).Emit()
	case *traits.AmbiguousMethodError:
		b := diag.ReportError(tc.rep, diag.AmbiguousMethod, e.Span,
			fmt.Sprintf("multiple applicable items named `%s` for `%s`", name, tc.typeString(recv)))
		for i, c := range me.Candidates {
			sp := tc.mod.Item(c.Method).Span
			what := "inherent impl"
			if c.Trait.IsValid() {
				what = "impl of `" + tc.mod.ItemName(c.Trait) + "`"
			}
			if c.Impl != nil {
				sp = c.Impl.Span
				what += " for `" + tc.s.printer().String(c.Impl.Target) + "`"
			}
			b = b.WithNote(sp, fmt.Sprintf("candidate #%d is defined in an %s", i+1, what))
		}
		b.Emit()
	case *traits.UnknownReceiverError:
		diag.ReportError(tc.rep, diag.CannotInfer, tc.span(e.X),
			fmt.Sprintf("type annotations needed: the receiver type must be known to call `%s`", name)).Emit()
	default:
		tc.reportUnify(err, e.Span)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

// joinList renders "a", "a and b", "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
