package sema

import (
	"errors"
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/source"
	"vais/internal/traits"
	"vais/internal/types"
	"vais/internal/unify"
)

// coerceAt checks that a value of type found may be used where expected is
// required, reporting at the expression. Besides plain unification it
// allows `!` anywhere, `&mut T` as `&T` and the unsizing `&T` to
// `&dyn Trait`.
func (tc *typeChecker) coerceAt(id ast.ExprID, expected, found types.TypeID) bool {
	if ok, handled := tc.unsize(id, expected, found); handled {
		return ok
	}
	if err := tc.subst.Coerce(expected, found); err != nil {
		tc.reportUnify(err, tc.span(id))
		return false
	}
	return true
}

// unsize handles `&T` flowing into `&dyn Trait`. handled is false when the
// pair is not an unsizing at all. A literal pointee such as `&5` is checked
// in finish, once the literal has its final type.
func (tc *typeChecker) unsize(id ast.ExprID, expected, found types.TypeID) (ok, handled bool) {
	_, et := tc.resolved(expected)
	_, ft := tc.resolved(found)
	if et.Kind != types.KindRef || ft.Kind != types.KindRef {
		return false, false
	}
	_, dyn := tc.resolved(et.Elem)
	data, dt := tc.resolved(ft.Elem)
	if dyn.Kind != types.KindDyn || dt.Kind == types.KindDyn || dt.Kind == types.KindError {
		return false, false
	}
	literal := false
	if dt.Kind == types.KindVar {
		if kind, _ := tc.subst.KindOf(data); kind == unify.VarGeneral {
			return false, false
		}
		literal = true
	}
	sp := tc.span(id)
	if et.Mutable && !ft.Mutable {
		tc.reportUnify(&unify.MismatchError{Expected: expected, Found: found, Mutability: true}, sp)
		return false, true
	}
	cast := pendingUnsize{expr: id, expected: expected, data: data, trait: ast.ItemID(dyn.Def), args: dyn.Elems, span: sp}
	if literal && !tc.finished {
		tc.unsizes = append(tc.unsizes, cast)
		return true, true
	}
	return tc.castToDyn(cast), true
}

// castToDyn builds the object for one unsizing and reports why it cannot
// be built.
func (tc *typeChecker) castToDyn(c pendingUnsize) bool {
	dv, err := tc.s.Traits.Unsize(tc.subst, c.data, c.trait, c.args)
	if err == nil {
		tc.unsized[c.expr] = dv
		return true
	}
	var nos *traits.NotObjectSafeError
	var ub *traits.UnsatisfiedBoundError
	switch {
	case errors.As(err, &nos):
		b := diag.ReportError(tc.rep, diag.NotObjectSafe, c.span,
			fmt.Sprintf("the trait `%s` cannot be made into an object", tc.mod.ItemName(c.trait)))
		for _, v := range nos.Violations {
			b = b.WithNote(v.Span, "...because "+v.Reason)
		}
		b.Emit()
	case errors.As(err, &ub):
		diag.ReportError(tc.rep, diag.UnsatisfiedBound, c.span,
			fmt.Sprintf("the trait bound `%s: %s` is not satisfied", tc.typeString(c.data), tc.mod.ItemName(c.trait))).
			WithNote(c.span, fmt.Sprintf("required for the cast to `%s`", tc.typeString(c.expected))).Emit()
	default:
		tc.reportUnify(err, c.span)
	}
	return false
}

func (tc *typeChecker) unifyAt(sp source.Span, a, b types.TypeID) bool {
	if err := tc.subst.Unify(a, b); err != nil {
		tc.reportUnify(err, sp)
		return false
	}
	return true
}

func (tc *typeChecker) reportUnify(err error, sp source.Span) {
	var mm *unify.MismatchError
	var inf *unify.InfiniteTypeError
	switch {
	case errors.As(err, &mm):
		if tc.isError(mm.Expected) || tc.isError(mm.Found) {
			return
		}
		if mm.Mutability {
			diag.ReportError(tc.rep, diag.TypeMismatch, sp,
				fmt.Sprintf("types differ in mutability: expected `%s`, found `%s`",
					tc.typeString(mm.Expected), tc.typeString(mm.Found))).Emit()
			return
		}
		b := diag.ReportError(tc.rep, diag.TypeMismatch, sp,
			fmt.Sprintf("mismatched types: expected `%s`, found `%s`",
				tc.typeString(mm.Expected), tc.typeString(mm.Found)))
		if mm.InnerExpected != types.NoTypeID && (mm.InnerExpected != mm.Expected || mm.InnerFound != mm.Found) {
			b = b.WithNote(sp, fmt.Sprintf("`%s` is not `%s`",
				tc.typeString(mm.InnerFound), tc.typeString(mm.InnerExpected)))
		}
		b.Emit()
	case errors.As(err, &inf):
		diag.ReportError(tc.rep, diag.InfiniteType, sp,
			fmt.Sprintf("cannot construct the infinite type `%s = %s`",
				tc.typeString(inf.Var), tc.printer().String(inf.Type))).Emit()
	default:
		diag.ReportError(tc.rep, diag.InternalError, sp, err.Error()).Emit()
	}
}
