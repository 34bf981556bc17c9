package sema

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/source"
	"vais/internal/types"
	"vais/internal/unify"
)

// bindMode is the default binding mode while walking a pattern. Matching a
// non-reference pattern against a reference switches it to by-reference.
type bindMode struct {
	byRef bool
	mut   bool
}

func (tc *typeChecker) match(id ast.ExprID, e *ast.Expr, expected types.TypeID) types.TypeID {
	scrut := tc.inferExpr(e.X)
	result := expected
	if result == types.NoTypeID {
		result = tc.fresh(e.Span)
	}
	valued := false
	for _, arm := range e.Arms {
		tc.env.Push()
		tc.pattern(arm.Pat, scrut, bindMode{})
		if arm.Guard.IsValid() {
			tc.checkExpr(arm.Guard, tc.b.Bool)
		}
		if !tc.isNever(tc.checkExpr(arm.Body, result)) {
			valued = true
		}
		tc.env.Pop()
	}
	tc.matches = append(tc.matches, id)
	if !valued && expected == types.NoTypeID {
		return tc.b.Never
	}
	return result
}

// peel strips references off t for a non-binding pattern, adjusting the
// binding mode. `&mut` keeps a mutable mode only while every layer is
// mutable.
func (tc *typeChecker) peel(t types.TypeID, mode bindMode) (types.TypeID, bindMode) {
	r, tt := tc.resolved(t)
	for tt.Kind == types.KindRef {
		if !mode.byRef {
			mode = bindMode{byRef: true, mut: tt.Mutable}
		} else {
			mode.mut = mode.mut && tt.Mutable
		}
		r, tt = tc.resolved(tt.Elem)
	}
	return r, mode
}

func (tc *typeChecker) pattern(pid ast.PatID, t types.TypeID, mode bindMode) {
	p := tc.mod.Pat(pid)
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.PatWild:
	case ast.PatBind:
		bt := t
		if mode.byRef {
			bt = tc.in.Ref(t, mode.mut)
		}
		tc.declare(p.Local, bt)
		if len(p.Subs) > 0 {
			tc.pattern(p.Subs[0], t, mode)
		}
	case ast.PatLit:
		t, _ = tc.peel(t, mode)
		tc.unifyAt(p.Span, t, tc.patLit(p))
	case ast.PatRange:
		t, _ = tc.peel(t, mode)
		lt := tc.subst.Fresh(unify.VarInt, p.Span)
		if p.Lit == ast.LitChar {
			lt = tc.b.Char
		}
		tc.unifyAt(p.Span, t, lt)
		if p.Lo > p.Hi {
			diag.ReportError(tc.rep, diag.TypeMismatch, p.Span,
				fmt.Sprintf("lower range bound %d is greater than the upper bound %d", p.Lo, p.Hi)).Emit()
		}
	case ast.PatTuple:
		t, mode = tc.peel(t, mode)
		tc.tuplePat(p, t, mode)
	case ast.PatVariant:
		t, mode = tc.peel(t, mode)
		tc.variantPat(p, t, mode)
	case ast.PatStruct:
		t, mode = tc.peel(t, mode)
		tc.structPat(p, t, mode)
	case ast.PatOr:
		for _, s := range p.Subs {
			tc.pattern(s, t, mode)
		}
	default:
		diag.ReportError(tc.rep, diag.InternalError, p.Span, fmt.Sprintf("unexpected pattern kind %d", p.Kind)).Emit()
	}
}

func (tc *typeChecker) patLit(p *ast.Pattern) types.TypeID {
	switch p.Lit {
	case ast.LitInt:
		return tc.subst.Fresh(unify.VarInt, p.Span)
	case ast.LitFloat:
		return tc.subst.Fresh(unify.VarFloat, p.Span)
	case ast.LitStr:
		return tc.b.Str
	case ast.LitBool:
		return tc.b.Bool
	case ast.LitChar:
		return tc.b.Char
	case ast.LitUnit:
		return tc.b.Unit
	}
	return tc.b.Error
}

func (tc *typeChecker) tuplePat(p *ast.Pattern, t types.TypeID, mode bindMode) {
	_, tt := tc.resolved(t)
	switch tt.Kind {
	case types.KindTuple:
		if len(tt.Elems) != len(p.Subs) {
			tc.patArity(p.Span, "tuple", len(tt.Elems), len(p.Subs))
			tc.errorPats(p.Subs)
			return
		}
		for i, s := range p.Subs {
			tc.pattern(s, tt.Elems[i], mode)
		}
		return
	case types.KindPrim:
		if tt.Prim == types.PrimUnit && len(p.Subs) == 0 {
			return
		}
	case types.KindError:
		tc.errorPats(p.Subs)
		return
	}
	elems := make([]types.TypeID, len(p.Subs))
	for i := range elems {
		elems[i] = tc.fresh(p.Span)
	}
	tc.unifyAt(p.Span, t, tc.in.Tuple(elems...))
	for i, s := range p.Subs {
		tc.pattern(s, elems[i], mode)
	}
}

func (tc *typeChecker) variantPat(p *ast.Pattern, t types.TypeID, mode bindMode) {
	inst := tc.instance(p.Item)
	if !tc.unifyAt(p.Span, t, inst) {
		tc.errorPats(p.Subs)
		return
	}
	fields, ok := tc.s.Sigs.VariantFields(tc.subst.Apply(inst), p.Variant)
	if !ok {
		diag.ReportError(tc.rep, diag.InternalError, p.Span, "pattern does not name an enum variant").Emit()
		tc.errorPats(p.Subs)
		return
	}
	if len(fields) != len(p.Subs) {
		name := tc.mod.ItemName(p.Item)
		if it := tc.mod.Item(p.Item); it != nil && int(p.Variant) < len(it.Variants) {
			name += "::" + tc.mod.Name(it.Variants[p.Variant].Name)
		}
		tc.patArity(p.Span, "variant `"+name+"`", len(fields), len(p.Subs))
		tc.errorPats(p.Subs)
		return
	}
	for i, s := range p.Subs {
		tc.pattern(s, tc.in.EraseRegions(fields[i]), mode)
	}
}

func (tc *typeChecker) structPat(p *ast.Pattern, t types.TypeID, mode bindMode) {
	inst := tc.instance(p.Item)
	if !tc.unifyAt(p.Span, t, inst) {
		for _, f := range p.Fields {
			tc.errorPats([]ast.PatID{f.Pat})
		}
		return
	}
	inst = tc.subst.Apply(inst)
	seen := make(map[source.StringID]bool, len(p.Fields))
	for _, f := range p.Fields {
		ft, _, ok := tc.s.Sigs.FieldType(inst, f.Name)
		if !ok || seen[f.Name] {
			msg := fmt.Sprintf("struct `%s` has no field named `%s`", tc.mod.ItemName(p.Item), tc.mod.Name(f.Name))
			if ok {
				msg = fmt.Sprintf("field `%s` bound more than once", tc.mod.Name(f.Name))
			}
			b := diag.ReportError(tc.rep, diag.NoSuchField, tc.patSpan(f.Pat, p.Span), msg)
			if !ok {
				b = suggestName(b, tc.mod.Name(f.Name), tc.fieldNames(p.Item))
			}
			b.Emit()
			tc.errorPats([]ast.PatID{f.Pat})
			continue
		}
		seen[f.Name] = true
		tc.pattern(f.Pat, tc.in.EraseRegions(ft), mode)
	}
	if p.Rest {
		return
	}
	adt := tc.s.Sigs.Adts[p.Item]
	if adt == nil {
		return
	}
	var missing []string
	for _, n := range adt.Names {
		if !seen[n] {
			missing = append(missing, "`"+tc.mod.Name(n)+"`")
		}
	}
	if len(missing) > 0 {
		b := diag.ReportError(tc.rep, diag.NoSuchField, p.Span,
			fmt.Sprintf("pattern does not mention %s %s", plural(len(missing), "field"), joinList(missing)))
		if p.Span.End > p.Span.Start {
			// before the closing brace
			at := source.Span{File: p.Span.File, Start: p.Span.End - 1, End: p.Span.End - 1}
			b = b.WithFix("ignore the remaining fields", diag.FixEdit{Span: at, NewText: ", .."})
		}
		b.Emit()
	}
}

func (tc *typeChecker) patArity(sp source.Span, what string, want, got int) {
	diag.ReportError(tc.rep, diag.ArgCount, sp,
		fmt.Sprintf("this pattern has %d %s, but the %s has %d", got, plural(got, "field"), what, want)).Emit()
}

// errorPats walks sub-patterns against the error type so their bindings
// still get declared.
func (tc *typeChecker) errorPats(ps []ast.PatID) {
	for _, s := range ps {
		tc.pattern(s, tc.b.Error, bindMode{})
	}
}

func (tc *typeChecker) patSpan(id ast.PatID, fallback source.Span) source.Span {
	if p := tc.mod.Pat(id); p != nil {
		return p.Span
	}
	return fallback
}
