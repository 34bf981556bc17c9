package sema

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/types"
	"vais/internal/unify"
)

// checkExpr types id against expected and reports a mismatch at id.
// Compound expressions push expected into their branches, so a mismatch is
// reported at the innermost expression that produced the wrong type.
func (tc *typeChecker) checkExpr(id ast.ExprID, expected types.TypeID) types.TypeID {
	t := tc.expr(id, expected)
	if expected != types.NoTypeID && t != expected {
		tc.coerceAt(id, expected, t)
	}
	return t
}

// inferExpr types id without an expectation.
func (tc *typeChecker) inferExpr(id ast.ExprID) types.TypeID {
	return tc.expr(id, types.NoTypeID)
}

func (tc *typeChecker) expr(id ast.ExprID, expected types.TypeID) types.TypeID {
	e := tc.mod.Expr(id)
	if e == nil {
		return tc.b.Error
	}
	var t types.TypeID
	switch e.Kind {
	case ast.ExprLit:
		t = tc.literal(e.Lit, e)
	case ast.ExprName:
		t = tc.name(id, e)
	case ast.ExprCall:
		t = tc.call(id, e, expected)
	case ast.ExprMethodCall:
		t = tc.methodCall(id, e, expected)
	case ast.ExprField:
		t = tc.field(e)
	case ast.ExprTupleIndex:
		t = tc.tupleIndex(e)
	case ast.ExprIndex:
		t = tc.index(e)
	case ast.ExprBinary:
		t = tc.binary(e)
	case ast.ExprUnary:
		t = tc.unary(e)
	case ast.ExprRef:
		t = tc.ref(e, expected)
	case ast.ExprDeref:
		t = tc.deref(e)
	case ast.ExprAssign:
		pt := tc.inferExpr(e.X)
		tc.checkExpr(e.Y, pt)
		t = tc.b.Unit
	case ast.ExprBlock:
		t = tc.block(e, expected)
	case ast.ExprIf:
		t = tc.ifExpr(e, expected)
	case ast.ExprWhile:
		tc.checkExpr(e.X, tc.b.Bool)
		tc.loops = append(tc.loops, loopFrame{})
		tc.checkExpr(e.Then, tc.b.Unit)
		tc.loops = tc.loops[:len(tc.loops)-1]
		t = tc.b.Unit
	case ast.ExprLoop:
		t = tc.loop(e, expected)
	case ast.ExprMatch:
		t = tc.match(id, e, expected)
	case ast.ExprTuple:
		t = tc.tuple(e, expected)
	case ast.ExprArray:
		t = tc.array(e, expected)
	case ast.ExprStruct:
		t = tc.structLit(e, expected)
	case ast.ExprReturn:
		if e.X.IsValid() {
			tc.checkExpr(e.X, tc.ret)
		} else {
			tc.coerceAt(id, tc.ret, tc.b.Unit)
		}
		t = tc.b.Never
	case ast.ExprBreak:
		tc.breakExpr(id, e)
		t = tc.b.Never
	case ast.ExprContinue:
		if len(tc.loops) == 0 {
			diag.ReportError(tc.rep, diag.TypeMismatch, e.Span, "`continue` outside of a loop").Emit()
		}
		t = tc.b.Never
	default:
		diag.ReportError(tc.rep, diag.InternalError, e.Span, fmt.Sprintf("unexpected expression kind %d", e.Kind)).Emit()
		t = tc.b.Error
	}
	return tc.record(id, t)
}

func (tc *typeChecker) literal(kind ast.LitKind, e *ast.Expr) types.TypeID {
	switch kind {
	case ast.LitInt:
		return tc.subst.Fresh(unify.VarInt, e.Span)
	case ast.LitFloat:
		return tc.subst.Fresh(unify.VarFloat, e.Span)
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

func (tc *typeChecker) name(id ast.ExprID, e *ast.Expr) types.TypeID {
	switch e.Ref.Kind {
	case ast.RefLocal:
		if t, ok := tc.localType(e.Ref.Local); ok {
			return t
		}
		diag.ReportError(tc.rep, diag.InternalError, e.Span,
			fmt.Sprintf("local `%s` used before its declaration", tc.mod.LocalName(e.Ref.Local))).Emit()
	case ast.RefItem:
		return tc.itemValue(id, e)
	case ast.RefVariant:
		inst := tc.instance(e.Ref.Item)
		fields, ok := tc.s.Sigs.VariantFields(inst, e.Ref.Variant)
		if !ok {
			diag.ReportError(tc.rep, diag.InternalError, e.Span, "variant reference does not name an enum variant").Emit()
			return tc.b.Error
		}
		if len(fields) == 0 {
			return inst
		}
		for i, f := range fields {
			fields[i] = tc.in.EraseRegions(f)
		}
		return tc.in.Fn(fields, inst)
	}
	return tc.b.Error
}

// instance makes a fresh instance of a generic struct or enum.
func (tc *typeChecker) instance(item ast.ItemID) types.TypeID {
	it := tc.mod.Item(item)
	if it == nil {
		return tc.b.Error
	}
	args := make([]types.TypeID, len(it.Generics))
	for i := range args {
		args[i] = tc.fresh(it.Span)
	}
	return tc.in.Named(uint32(item), args...)
}

func (tc *typeChecker) itemValue(id ast.ExprID, e *ast.Expr) types.TypeID {
	item := e.Ref.Item
	it := tc.mod.Item(item)
	if it == nil {
		return tc.b.Error
	}
	switch it.Kind {
	case ast.ItemFn:
		sc, ok := tc.s.Sigs.Scheme(item)
		if !ok {
			return tc.b.Error
		}
		t, vars := tc.subst.Instantiate(sc, e.Span)
		own := len(tc.s.Sigs.Fns[item].Generics)
		if len(e.TypeArgs) > 0 {
			if len(e.TypeArgs) != own {
				diag.ReportError(tc.rep, diag.ArgCount, e.Span,
					fmt.Sprintf("function `%s` takes %d type arguments but %d were supplied",
						tc.mod.ItemName(item), own, len(e.TypeArgs))).Emit()
			} else {
				for i, ta := range e.TypeArgs {
					tc.unifyAt(e.Span, vars[i], tc.in.EraseRegions(tc.lower.Lower(ta)))
				}
			}
		}
		if len(vars) > 0 {
			tc.insts = append(tc.insts, pendingInst{expr: id, item: item, vars: vars})
			tc.requireBounds(sc.Params, tc.paramMap(sc.Params, vars), e)
		}
		return t
	case ast.ItemStruct:
		if len(it.Fields) == 0 {
			return tc.instance(item)
		}
	}
	diag.ReportError(tc.rep, diag.TypeMismatch, e.Span,
		fmt.Sprintf("expected value, found %s `%s`", it.Kind, tc.mod.ItemName(item))).Emit()
	return tc.b.Error
}

func (tc *typeChecker) paramMap(params []unify.ParamKey, vars []types.TypeID) map[unify.ParamKey]types.TypeID {
	m := make(map[unify.ParamKey]types.TypeID, len(params))
	for i, p := range params {
		if i < len(vars) {
			m[p] = vars[i]
		}
	}
	return m
}

// requireBounds queues the declared bounds of params, instantiated with m,
// to be checked once the body is solved.
func (tc *typeChecker) requireBounds(params []unify.ParamKey, m map[unify.ParamKey]types.TypeID, e *ast.Expr) {
	for _, p := range params {
		t, ok := m[p]
		if !ok {
			continue
		}
		for _, b := range tc.s.Sigs.Bounds(p) {
			args := make([]types.TypeID, len(b.Args))
			for i, a := range b.Args {
				args[i] = tc.subst.Subst(tc.in.EraseRegions(a), m)
			}
			b.Args = args
			tc.obligs = append(tc.obligs, obligation{ty: t, bound: b, span: e.Span})
		}
	}
}

func (tc *typeChecker) autoderef(t types.TypeID) (types.TypeID, types.Type) {
	r, tt := tc.resolved(t)
	for tt.Kind == types.KindRef {
		r, tt = tc.resolved(tt.Elem)
	}
	return r, tt
}

func (tc *typeChecker) field(e *ast.Expr) types.TypeID {
	base := tc.inferExpr(e.X)
	t, tt := tc.autoderef(base)
	name := tc.mod.Name(e.Name)
	switch tt.Kind {
	case types.KindError:
		return tc.b.Error
	case types.KindVar:
		diag.ReportError(tc.rep, diag.CannotInfer, e.Span,
			fmt.Sprintf("type annotations needed: the type must be known to access field `%s`", name)).Emit()
		return tc.b.Error
	case types.KindNamed:
		if ft, _, ok := tc.s.Sigs.FieldType(t, e.Name); ok {
			return tc.in.EraseRegions(ft)
		}
	}
	b := diag.ReportError(tc.rep, diag.NoSuchField, e.Span,
		fmt.Sprintf("no field `%s` on type `%s`", name, tc.typeString(base)))
	if tt.Kind == types.KindNamed {
		b = suggestName(b, name, tc.fieldNames(ast.ItemID(tt.Def)))
	}
	b.Emit()
	return tc.b.Error
}

// fieldNames lists the named fields of a struct, in declaration order.
func (tc *typeChecker) fieldNames(item ast.ItemID) []string {
	adt := tc.s.Sigs.Adts[item]
	if adt == nil {
		return nil
	}
	out := make([]string, 0, len(adt.Names))
	for _, n := range adt.Names {
		out = append(out, tc.mod.Name(n))
	}
	return out
}

// suggestName adds a "did you mean" help when a close spelling exists.
func suggestName(b *diag.ReportBuilder, name string, candidates []string) *diag.ReportBuilder {
	if alt, ok := diag.SimilarName(name, candidates); ok {
		b = b.WithFix(fmt.Sprintf("did you mean `%s`?", alt))
	}
	return b
}

func (tc *typeChecker) tupleIndex(e *ast.Expr) types.TypeID {
	base := tc.inferExpr(e.X)
	_, tt := tc.autoderef(base)
	switch tt.Kind {
	case types.KindError:
		return tc.b.Error
	case types.KindTuple:
		if int(e.Index) < len(tt.Elems) {
			return tt.Elems[e.Index]
		}
	case types.KindVar:
		diag.ReportError(tc.rep, diag.CannotInfer, e.Span,
			"type annotations needed: the type must be known to access a tuple field").Emit()
		return tc.b.Error
	}
	diag.ReportError(tc.rep, diag.NoSuchField, e.Span,
		fmt.Sprintf("no field `%d` on type `%s`", e.Index, tc.typeString(base))).Emit()
	return tc.b.Error
}

func (tc *typeChecker) index(e *ast.Expr) types.TypeID {
	base := tc.inferExpr(e.X)
	tc.checkExpr(e.Y, tc.subst.Fresh(unify.VarInt, tc.span(e.Y)))
	_, tt := tc.autoderef(base)
	switch tt.Kind {
	case types.KindArray:
		return tt.Elem
	case types.KindError:
		return tc.b.Error
	case types.KindVar:
		diag.ReportError(tc.rep, diag.CannotInfer, e.Span,
			"type annotations needed: the type must be known to index into it").Emit()
		return tc.b.Error
	}
	diag.ReportError(tc.rep, diag.NotIndexable, e.Span,
		fmt.Sprintf("cannot index into a value of type `%s`", tc.typeString(base))).Emit()
	return tc.b.Error
}

func (tc *typeChecker) binary(e *ast.Expr) types.TypeID {
	if e.Op.IsLogical() {
		tc.checkExpr(e.X, tc.b.Bool)
		tc.checkExpr(e.Y, tc.b.Bool)
		return tc.b.Bool
	}
	lt := tc.inferExpr(e.X)
	tc.checkExpr(e.Y, lt)
	if !tc.operandOK(e.Op, lt) {
		diag.ReportError(tc.rep, diag.BadOperand, e.Span,
			fmt.Sprintf("cannot apply binary operator `%s` to type `%s`", e.Op, tc.typeString(lt))).Emit()
		if e.Op.IsComparison() {
			return tc.b.Bool
		}
		return tc.b.Error
	}
	if e.Op.IsComparison() {
		return tc.b.Bool
	}
	return lt
}

// operandOK reports whether op accepts operands of type t. Open variables
// are accepted; literal classes are checked by their class.
func (tc *typeChecker) operandOK(op ast.BinaryOp, t types.TypeID) bool {
	_, tt := tc.resolved(t)
	numeric, integer, ordered := false, false, false
	switch tt.Kind {
	case types.KindError:
		return true
	case types.KindVar:
		kind, _ := tc.subst.KindOf(t)
		if kind == unify.VarGeneral {
			return true
		}
		numeric, integer, ordered = true, kind == unify.VarInt, true
	case types.KindPrim:
		numeric = tt.Prim.IsNumeric()
		integer = tt.Prim.IsInteger()
		ordered = numeric || tt.Prim == types.PrimChar || tt.Prim == types.PrimStr
	}
	switch op {
	case ast.OpEq, ast.OpNe:
		return tt.Kind != types.KindFn
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return ordered
	case ast.OpBitAnd, ast.OpBitOr:
		return integer || (tt.Kind == types.KindPrim && tt.Prim == types.PrimBool)
	}
	return numeric
}

func (tc *typeChecker) unary(e *ast.Expr) types.TypeID {
	t := tc.inferExpr(e.X)
	_, tt := tc.resolved(t)
	ok := true
	switch tt.Kind {
	case types.KindPrim:
		if e.UnOp == ast.OpNeg {
			ok = tt.Prim.IsSigned() || tt.Prim.IsFloat()
		} else {
			ok = tt.Prim == types.PrimBool || tt.Prim.IsInteger()
		}
	case types.KindVar:
		if kind, _ := tc.subst.KindOf(t); kind == unify.VarFloat && e.UnOp == ast.OpNot {
			ok = false
		}
	case types.KindError:
	default:
		ok = false
	}
	if !ok {
		op := "-"
		if e.UnOp == ast.OpNot {
			op = "!"
		}
		diag.ReportError(tc.rep, diag.BadOperand, e.Span,
			fmt.Sprintf("cannot apply unary operator `%s` to type `%s`", op, tc.typeString(t))).Emit()
		return tc.b.Error
	}
	return t
}

func (tc *typeChecker) ref(e *ast.Expr, expected types.TypeID) types.TypeID {
	inner := types.NoTypeID
	if expected != types.NoTypeID {
		if _, et := tc.resolved(expected); et.Kind == types.KindRef {
			if _, ed := tc.resolved(et.Elem); ed.Kind != types.KindDyn {
				inner = tc.checkExpr(e.X, et.Elem)
			}
		}
	}
	if inner == types.NoTypeID {
		inner = tc.inferExpr(e.X)
	}
	return tc.in.Ref(inner, e.Mut)
}

func (tc *typeChecker) deref(e *ast.Expr) types.TypeID {
	t := tc.inferExpr(e.X)
	_, tt := tc.resolved(t)
	switch tt.Kind {
	case types.KindRef:
		return tt.Elem
	case types.KindError:
		return tc.b.Error
	case types.KindVar:
		diag.ReportError(tc.rep, diag.CannotInfer, e.Span,
			"type annotations needed: the type must be known to dereference it").Emit()
		return tc.b.Error
	}
	diag.ReportError(tc.rep, diag.BadOperand, e.Span,
		fmt.Sprintf("type `%s` cannot be dereferenced", tc.typeString(t))).Emit()
	return tc.b.Error
}

func (tc *typeChecker) block(e *ast.Expr, expected types.TypeID) types.TypeID {
	tc.env.Push()
	defer tc.env.Pop()
	diverges := false
	for _, sid := range e.Stmts {
		if tc.stmt(sid) {
			diverges = true
		}
	}
	if e.Tail.IsValid() {
		if expected != types.NoTypeID {
			tc.checkExpr(e.Tail, expected)
			return expected
		}
		return tc.inferExpr(e.Tail)
	}
	if diverges {
		return tc.b.Never
	}
	return tc.b.Unit
}

// stmt checks one statement and reports whether it never completes.
func (tc *typeChecker) stmt(sid ast.StmtID) bool {
	st := tc.mod.Stmt(sid)
	if st == nil {
		return false
	}
	switch st.Kind {
	case ast.StmtLet:
		t := types.NoTypeID
		if st.Type.IsValid() {
			t = tc.in.EraseRegions(tc.lower.Lower(st.Type))
		}
		diverges := false
		switch {
		case st.Expr.IsValid() && t != types.NoTypeID:
			diverges = tc.isNever(tc.checkExpr(st.Expr, t))
		case st.Expr.IsValid():
			t = tc.inferExpr(st.Expr)
			diverges = tc.isNever(t)
		case t == types.NoTypeID:
			t = tc.fresh(st.Span)
		}
		tc.declare(st.Local, t)
		return diverges
	case ast.StmtExpr:
		return tc.isNever(tc.inferExpr(st.Expr))
	}
	return false
}

func (tc *typeChecker) ifExpr(e *ast.Expr, expected types.TypeID) types.TypeID {
	tc.checkExpr(e.X, tc.b.Bool)
	if !e.Else.IsValid() {
		tc.checkExpr(e.Then, tc.b.Unit)
		return tc.b.Unit
	}
	if expected != types.NoTypeID {
		tc.checkExpr(e.Then, expected)
		tc.checkExpr(e.Else, expected)
		return expected
	}
	then := tc.inferExpr(e.Then)
	if tc.isNever(then) {
		return tc.inferExpr(e.Else)
	}
	tc.checkExpr(e.Else, then)
	return then
}

func (tc *typeChecker) loop(e *ast.Expr, expected types.TypeID) types.TypeID {
	result := expected
	if result == types.NoTypeID {
		result = tc.fresh(e.Span)
	}
	tc.loops = append(tc.loops, loopFrame{result: result, valued: true})
	tc.checkExpr(e.Then, tc.b.Unit)
	frame := tc.loops[len(tc.loops)-1]
	tc.loops = tc.loops[:len(tc.loops)-1]
	if frame.breaks == 0 {
		return tc.b.Never
	}
	return result
}

func (tc *typeChecker) breakExpr(id ast.ExprID, e *ast.Expr) {
	if len(tc.loops) == 0 {
		diag.ReportError(tc.rep, diag.TypeMismatch, e.Span, "`break` outside of a loop").Emit()
		if e.X.IsValid() {
			tc.inferExpr(e.X)
		}
		return
	}
	top := &tc.loops[len(tc.loops)-1]
	top.breaks++
	switch {
	case !top.valued && e.X.IsValid():
		diag.ReportError(tc.rep, diag.TypeMismatch, e.Span, "`break` with a value is only allowed in `loop`").Emit()
		tc.inferExpr(e.X)
	case e.X.IsValid():
		tc.checkExpr(e.X, top.result)
	case top.valued:
		tc.coerceAt(id, top.result, tc.b.Unit)
	}
}

func (tc *typeChecker) tuple(e *ast.Expr, expected types.TypeID) types.TypeID {
	var want []types.TypeID
	if expected != types.NoTypeID {
		if _, et := tc.resolved(expected); et.Kind == types.KindTuple && len(et.Elems) == len(e.Args) {
			want = et.Elems
		}
	}
	elems := make([]types.TypeID, len(e.Args))
	for i, a := range e.Args {
		if want != nil {
			elems[i] = tc.checkExpr(a, want[i])
		} else {
			elems[i] = tc.inferExpr(a)
		}
	}
	return tc.in.Tuple(elems...)
}

func (tc *typeChecker) array(e *ast.Expr, expected types.TypeID) types.TypeID {
	n := int64(len(e.Args))
	elem := types.NoTypeID
	if expected != types.NoTypeID {
		if _, et := tc.resolved(expected); et.Kind == types.KindArray {
			elem = et.Elem
			if et.Len == types.DynamicLen {
				n = types.DynamicLen
			}
		}
	}
	if elem == types.NoTypeID {
		elem = tc.fresh(e.Span)
	}
	for _, a := range e.Args {
		tc.checkExpr(a, elem)
	}
	return tc.in.Array(elem, n)
}

func (tc *typeChecker) structLit(e *ast.Expr, expected types.TypeID) types.TypeID {
	it := tc.mod.Item(e.Item)
	if it == nil || it.Kind != ast.ItemStruct {
		diag.ReportError(tc.rep, diag.TypeMismatch, e.Span,
			fmt.Sprintf("`%s` is not a struct", tc.mod.ItemName(e.Item))).Emit()
		for _, f := range e.Fields {
			tc.inferExpr(f.Value)
		}
		return tc.b.Error
	}
	inst := tc.instance(e.Item)
	if expected != types.NoTypeID {
		if _, et := tc.resolved(expected); et.Kind == types.KindNamed && ast.ItemID(et.Def) == e.Item {
			_ = tc.subst.Unify(inst, expected)
		}
	}
	seen := make(map[string]struct{}, len(e.Fields))
	for _, f := range e.Fields {
		name := tc.mod.Name(f.Name)
		ft, _, ok := tc.s.Sigs.FieldType(inst, f.Name)
		if !ok {
			b := diag.ReportError(tc.rep, diag.NoSuchField, f.Span,
				fmt.Sprintf("struct `%s` has no field named `%s`", tc.mod.ItemName(e.Item), name))
			suggestName(b, name, tc.fieldNames(e.Item)).Emit()
			tc.inferExpr(f.Value)
			continue
		}
		if _, dup := seen[name]; dup {
			diag.ReportError(tc.rep, diag.NoSuchField, f.Span,
				fmt.Sprintf("field `%s` specified more than once", name)).Emit()
		}
		seen[name] = struct{}{}
		tc.checkExpr(f.Value, tc.in.EraseRegions(ft))
	}
	var missing []string
	for _, fd := range it.Fields {
		if _, ok := seen[tc.mod.Name(fd.Name)]; !ok {
			missing = append(missing, "`"+tc.mod.Name(fd.Name)+"`")
		}
	}
	if len(missing) > 0 {
		diag.ReportError(tc.rep, diag.NoSuchField, e.Span,
			fmt.Sprintf("missing fields %s in initializer of `%s`", joinList(missing), tc.mod.ItemName(e.Item))).Emit()
	}
	return inst
}
