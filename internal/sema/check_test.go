package sema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/types"
)

func check(t *testing.T, b *ast.Builder, opts Options) (*TypedModule, *diag.Bag) {
	t.Helper()
	tm, bag := CheckModule(context.Background(), b.Module(), opts)
	require.NotNil(t, tm)
	require.NotNil(t, bag)
	return tm, bag
}

func item(t *testing.T, b *ast.Builder, name string) ast.ItemID {
	t.Helper()
	id, ok := b.Module().FindItem(name)
	require.True(t, ok, "no item %q", name)
	return id
}

func TestGenericFunctionIsInstantiatedPerCall(t *testing.T) {
	b := ast.NewBuilder("identity.vais")
	id := b.DeclFn("identity")
	T := b.Generic(id, "T")
	x := b.Local("x", false)
	b.SetFn(id, ast.FnDecl{Params: []ast.Param{b.Param(x, T)}, Ret: T, Body: b.Block(b.Var(x))})

	a := b.Local("a", false)
	s := b.Local("s", false)
	callA := b.Call(b.ItemRef(id), b.Int("5"))
	callS := b.Call(b.ItemRef(id), b.Str("hi"))
	main := b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(a, b.Prim("i64"), callA),
		b.Let(s, ast.NoTypeID, callS),
	)})

	tm, bag := check(t, b, Options{})
	require.False(t, bag.HasErrors(), "codes: %v", bag.Codes())

	bi := tm.Types.Builtins()
	require.Len(t, tm.Instantiations, 2)
	assert.Equal(t, []types.TypeID{bi.I64}, tm.Instantiations[0].Args)
	assert.Equal(t, []types.TypeID{bi.Str}, tm.Instantiations[1].Args)
	assert.Equal(t, id, tm.Instantiations[1].Item)

	body := tm.Body(main)
	require.NotNil(t, body)
	assert.Equal(t, bi.I64, body.LocalType(a))
	assert.Equal(t, bi.Str, body.LocalType(s))
	assert.Equal(t, bi.Str, tm.ExprType(callS))
	assert.Equal(t, id, body.Callees[callA])
}

func TestMovedStringCannotBeUsedAgain(t *testing.T) {
	b := ast.NewBuilder("move.vais")
	p := b.Local("p", false)
	consume := b.Fn("consume", ast.FnDecl{Params: []ast.Param{b.Param(p, b.Prim("str"))}, Body: b.Block(ast.NoExprID)})
	s := b.Local("s", false)
	second := b.Var(s)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(s, ast.NoTypeID, b.Str("hi")),
		b.ExprStmt(b.Call(b.ItemRef(consume), b.Var(s))),
		b.ExprStmt(b.Call(b.ItemRef(consume), second)),
	)})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.UseAfterMove, d.Code)
	assert.Equal(t, b.Module().Expr(second).Span, d.Primary)
}

func TestSharedBorrowWhileMutableBorrowIsLive(t *testing.T) {
	b := ast.NewBuilder("borrow.vais")
	x := b.Local("x", true)
	r := b.Local("r", false)
	s := b.Local("s", false)
	shared := b.Ref(b.Var(x))
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, ast.NoTypeID, b.Int("1")),
		b.Let(r, ast.NoTypeID, b.RefMut(b.Var(x))),
		b.Let(s, ast.NoTypeID, shared),
		b.ExprStmt(b.Assign(b.Deref(b.Var(r)), b.Int("2"))),
	)})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	assert.Equal(t, diag.BorrowConflict, bag.Items()[0].Code)
	assert.Equal(t, b.Module().Expr(shared).Span, bag.Items()[0].Primary)

	bi := tm.Types.Builtins()
	body := tm.Body(item(t, b, "main"))
	require.NotNil(t, body)
	assert.Equal(t, tm.Types.Ref(bi.I64, true), body.LocalType(r))
	require.NotNil(t, body.Borrows)
	assert.Len(t, body.Borrows.Loans, 2)
}

func TestBorrowCheckCanBeSkipped(t *testing.T) {
	b := ast.NewBuilder("borrow.vais")
	x := b.Local("x", true)
	r := b.Local("r", false)
	s := b.Local("s", false)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, ast.NoTypeID, b.Int("1")),
		b.Let(r, ast.NoTypeID, b.RefMut(b.Var(x))),
		b.Let(s, ast.NoTypeID, b.Ref(b.Var(x))),
		b.ExprStmt(b.Assign(b.Deref(b.Var(r)), b.Int("2"))),
	)})

	tm, bag := check(t, b, Options{SkipBorrowck: true})
	assert.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	assert.Nil(t, tm.Body(item(t, b, "main")).Borrows)
}

func option(b *ast.Builder) (enum ast.ItemID, some, none uint32) {
	enum = b.Enum("Option")
	T := b.Generic(enum, "T")
	some = b.AddVariant(enum, "Some", T)
	none = b.AddVariant(enum, "None")
	return enum, some, none
}

func TestMissingVariantIsReported(t *testing.T) {
	b := ast.NewBuilder("match.vais")
	opt, some, _ := option(b)
	o := b.Local("o", false)
	v := b.Local("v", false)
	m := b.Match(b.Var(o), b.Arm(b.PVariant(opt, some, b.PBind(v)), ast.NoExprID, b.Var(v)))
	b.Fn("unwrap", ast.FnDecl{
		Params: []ast.Param{b.Param(o, b.NamedT(opt, b.Prim("i64")))},
		Ret:    b.Prim("i64"),
		Body:   b.Block(m),
	})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.NonExhaustiveMatch, d.Code)
	assert.Contains(t, d.Message, "`None`")
	assert.Equal(t, tm.Types.Builtins().I64, tm.ExprType(m))
}

func TestMatchThroughReferenceBindsByReference(t *testing.T) {
	b := ast.NewBuilder("match.vais")
	opt, some, none := option(b)
	o := b.Local("o", false)
	v := b.Local("v", false)
	m := b.Match(b.Var(o),
		b.Arm(b.PVariant(opt, some, b.PBind(v)), ast.NoExprID, b.Deref(b.Var(v))),
		b.Arm(b.PVariant(opt, none), ast.NoExprID, b.Int("0")),
	)
	fn := b.Fn("get", ast.FnDecl{
		Params: []ast.Param{b.Param(o, b.RefT(false, b.NamedT(opt, b.Prim("i64"))))},
		Ret:    b.Prim("i64"),
		Body:   b.Block(m),
	})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	bi := tm.Types.Builtins()
	assert.Equal(t, tm.Types.Ref(bi.I64, false), tm.Body(fn).LocalType(v))
}

func TestMutualRecursionChecks(t *testing.T) {
	b := ast.NewBuilder("parity.vais")
	even := b.DeclFn("even")
	odd := b.DeclFn("odd")
	for _, pair := range [][2]ast.ItemID{{even, odd}, {odd, even}} {
		n := b.Local("n", false)
		base := b.Bool(pair[0] == even)
		rec := b.Call(b.ItemRef(pair[1]), b.Binary(ast.OpSub, b.Var(n), b.Int("1")))
		b.SetFn(pair[0], ast.FnDecl{
			Params: []ast.Param{b.Param(n, b.Prim("u32"))},
			Ret:    b.Prim("bool"),
			Body:   b.Block(b.If(b.Binary(ast.OpEq, b.Var(n), b.Int("0")), base, rec)),
		})
	}

	tm, bag := check(t, b, Options{})
	assert.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	assert.Len(t, tm.Bodies, 2)
	assert.Empty(t, tm.Instantiations)
}

func TestMismatchIsReportedAtTheInnermostExpression(t *testing.T) {
	b := ast.NewBuilder("mismatch.vais")
	c := b.Local("c", false)
	bad := b.Str("no")
	b.Fn("pick", ast.FnDecl{
		Params: []ast.Param{b.Param(c, b.Prim("bool"))},
		Ret:    b.Prim("i64"),
		Body:   b.Block(b.If(b.Var(c), b.Int("1"), bad)),
	})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.TypeMismatch, d.Code)
	assert.Equal(t, "mismatched types: expected `i64`, found `str`", d.Message)
	assert.Equal(t, b.Module().Expr(bad).Span, d.Primary)
}

func TestUnconstrainedVariableCannotBeInferred(t *testing.T) {
	b := ast.NewBuilder("infer.vais")
	x := b.Local("x", false)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID, b.Let(x, ast.NoTypeID, ast.NoExprID))})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Count(diag.CannotInfer), "codes: %v", bag.Codes())
	bi := tm.Types.Builtins()
	assert.Equal(t, bi.Error, tm.Body(item(t, b, "main")).LocalType(x))
}

func counter(b *ast.Builder) (st ast.ItemID, self ast.TypeID) {
	st = b.Struct("Counter")
	b.AddField(st, "n", b.Prim("i64"))
	return st, b.NamedT(st)
}

func TestInherentMethodCall(t *testing.T) {
	b := ast.NewBuilder("method.vais")
	st, target := counter(b)
	impl := b.Impl(ast.Bound{}, target)
	self := b.Local("self", false)
	get := b.Method(impl, "get", ast.FnDecl{
		Receiver:  ast.RecvRef,
		SelfLocal: self,
		Ret:       b.Prim("i64"),
		Body:      b.Block(b.Field(b.Var(self), "n")),
	})
	c := b.Local("c", false)
	call := b.MethodCall(b.Var(c), "get")
	main := b.Fn("main", ast.FnDecl{
		Ret: b.Prim("i64"),
		Body: b.Block(call,
			b.Let(c, ast.NoTypeID, b.StructLit(st, b.FieldInit("n", b.Int("1"))))),
	})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	body := tm.Body(main)
	require.Contains(t, body.Methods, call)
	assert.Equal(t, get, body.Methods[call].Method)
	assert.Equal(t, ast.RecvRef, body.Receiver(call))
	assert.Equal(t, tm.Types.Builtins().I64, body.ExprType(call))
}

func TestAmbiguousTraitMethods(t *testing.T) {
	b := ast.NewBuilder("ambiguous.vais")
	_, target := counter(b)
	var traits []ast.ItemID
	for _, name := range []string{"Named", "Labeled"} {
		tr := b.Trait(name)
		decl := b.Local("self", false)
		b.TraitMethod(tr, "name", ast.FnDecl{Receiver: ast.RecvRef, SelfLocal: decl, Ret: b.Prim("str")})
		impl := b.Impl(b.BoundOf(tr), target)
		self := b.Local("self", false)
		b.Method(impl, "name", ast.FnDecl{Receiver: ast.RecvRef, SelfLocal: self, Ret: b.Prim("str"), Body: b.Block(b.Str(name))})
		traits = append(traits, tr)
	}
	b.VisibleTraits(traits...)
	c := b.Local("c", false)
	call := b.MethodCall(b.Var(c), "name")
	b.Fn("show", ast.FnDecl{Params: []ast.Param{b.Param(c, target)}, Body: b.Block(ast.NoExprID, b.ExprStmt(call))})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Count(diag.AmbiguousMethod), "codes: %v", bag.Codes())
	for _, d := range bag.Items() {
		if d.Code == diag.AmbiguousMethod {
			assert.Equal(t, b.Module().Expr(call).Span, d.Primary)
			assert.Len(t, d.Notes, 2)
		}
	}
}

func TestUnknownMethodNamesTheReceiver(t *testing.T) {
	b := ast.NewBuilder("method.vais")
	_, target := counter(b)
	c := b.Local("c", false)
	b.Fn("f", ast.FnDecl{Params: []ast.Param{b.Param(c, target)}, Body: b.Block(ast.NoExprID, b.ExprStmt(b.MethodCall(b.Var(c), "reset")))})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	assert.Equal(t, diag.UnresolvedMethod, bag.Items()[0].Code)
	assert.Equal(t, "no method named `reset` found for `Counter`", bag.Items()[0].Message)
}

func TestParallelCheckingIsDeterministic(t *testing.T) {
	build := func() *ast.Builder {
		b := ast.NewBuilder("many.vais")
		for i := 0; i < 24; i++ {
			x := b.Local("x", false)
			y := b.Local("y", false)
			body := b.Block(ast.NoExprID,
				b.Let(x, ast.NoTypeID, b.Str("moved")),
				b.Let(y, ast.NoTypeID, b.Var(x)),
				b.ExprStmt(b.Var(x)),
				b.ExprStmt(b.Binary(ast.OpAdd, b.Int("1"), b.Bool(true))),
			)
			b.Fn("f", ast.FnDecl{Body: body})
		}
		return b
	}
	_, serial := check(t, build(), Options{Jobs: 1})
	_, parallel := check(t, build(), Options{Jobs: 8})
	require.Equal(t, serial.Len(), parallel.Len())
	assert.Equal(t, serial.Items(), parallel.Items())
	assert.Equal(t, 24, serial.Count(diag.UseAfterMove))
}

// show declares `trait Show { fn show(&self) -> str; }`.
func show(b *ast.Builder) ast.ItemID {
	tr := b.Trait("Show")
	b.TraitMethod(tr, "show", ast.FnDecl{Receiver: ast.RecvRef, SelfLocal: b.Local("self", false), Ret: b.Prim("str")})
	return tr
}

func showFor(b *ast.Builder, im ast.ItemID) {
	self := b.Local("self", false)
	b.Method(im, "show", ast.FnDecl{Receiver: ast.RecvRef, SelfLocal: self, Ret: b.Prim("str"), Body: b.Block(b.Str("v"))})
}

func TestIntegerLiteralCoercesToDyn(t *testing.T) {
	b := ast.NewBuilder("dyn.vais")
	tr := show(b)
	showFor(b, b.Impl(b.BoundOf(tr), b.Prim("i64")))
	x := b.Local("x", false)
	ref := b.Ref(b.Int("5"))
	main := b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, b.RefT(false, b.DynT(tr)), ref))})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	bi := tm.Types.Builtins()
	body := tm.Body(main)
	require.Contains(t, body.Unsized, ref)
	assert.Equal(t, bi.I64, body.Unsized[ref].Data)
	assert.NotNil(t, body.Unsized[ref].Table)
	assert.Equal(t, tm.Types.Ref(bi.I64, false), body.ExprType(ref))
}

func TestUnsizedDataHasNoVariables(t *testing.T) {
	b := ast.NewBuilder("dyn.vais")
	tr := show(b)
	im := b.DeclImpl(b.BoundOf(tr))
	b.SetImplTarget(im, b.TupleT(b.Generic(im, "T")))
	showFor(b, im)
	x := b.Local("x", false)
	ref := b.Ref(b.Tuple(b.Int("5")))
	main := b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, b.RefT(false, b.DynT(tr)), ref))})

	tm, bag := check(t, b, Options{})
	require.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	body := tm.Body(main)
	require.Len(t, body.Unsized, 1)
	for id, dv := range body.Unsized {
		assert.False(t, tm.Types.HasVars(dv.Data), "expr %d: %v", id, dv.Data)
	}
	assert.Equal(t, tm.Types.Tuple(tm.Types.Builtins().I64), body.Unsized[ref].Data)
}

func TestObjectSafetyIsCheckedAtTheCast(t *testing.T) {
	b := ast.NewBuilder("dyn.vais")
	tr := b.Trait("Consume")
	b.TraitMethod(tr, "consume", ast.FnDecl{Receiver: ast.RecvValue, SelfLocal: b.Local("self", false)})
	im := b.Impl(b.BoundOf(tr), b.Prim("i64"))
	b.Method(im, "consume", ast.FnDecl{Receiver: ast.RecvValue, SelfLocal: b.Local("self", false), Body: b.Block(ast.NoExprID)})
	x := b.Local("x", false)
	ref := b.Ref(b.Int("5"))
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, b.RefT(false, b.DynT(tr)), ref))})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.NotObjectSafe, d.Code)
	assert.Equal(t, b.Module().Expr(ref).Span, d.Primary)
	require.Len(t, d.Notes, 1)
	assert.Equal(t, "...because method `consume` takes `self` by value", d.Notes[0].Msg)
}

func TestOpenLiteralPrintsItsClass(t *testing.T) {
	b := ast.NewBuilder("lit.vais")
	x := b.Local("x", false)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID, b.Let(x, b.Prim("bool"), b.Int("5")))})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	assert.Equal(t, "mismatched types: expected `bool`, found `{integer}`", bag.Items()[0].Message)
}

func fixTitles(d diag.Diagnostic) []string {
	out := make([]string, 0, len(d.Fixes))
	for _, f := range d.Fixes {
		out = append(out, f.Title)
	}
	return out
}

func TestUnknownFieldSuggestsClosestName(t *testing.T) {
	b := ast.NewBuilder("field.vais")
	rect := b.Struct("Rect")
	b.AddField(rect, "width", b.Prim("i64"))
	b.AddField(rect, "height", b.Prim("i64"))
	r := b.Local("r", false)
	b.Fn("area", ast.FnDecl{
		Params: []ast.Param{b.Param(r, b.NamedT(rect))},
		Ret:    b.Prim("i64"),
		Body:   b.Block(b.Field(b.Var(r), "widht")),
	})
	b.Fn("make", ast.FnDecl{
		Ret: b.NamedT(rect),
		Body: b.Block(b.StructLit(rect,
			b.FieldInit("width", b.Int("1")),
			b.FieldInit("hieght", b.Int("2")))),
	})

	_, bag := check(t, b, Options{})
	got := make(map[string][]string)
	for _, d := range bag.Items() {
		if d.Code == diag.NoSuchField {
			got[d.Message] = fixTitles(d)
		}
	}
	assert.Equal(t, []string{"did you mean `width`?"}, got["no field `widht` on type `Rect`"])
	assert.Equal(t, []string{"did you mean `height`?"}, got["struct `Rect` has no field named `hieght`"])
	assert.Empty(t, got["missing fields `height` in initializer of `Rect`"])
}

func TestUnknownMethodSuggestsClosestName(t *testing.T) {
	b := ast.NewBuilder("method.vais")
	_, target := counter(b)
	impl := b.Impl(ast.Bound{}, target)
	self := b.Local("self", false)
	b.Method(impl, "reset", ast.FnDecl{Receiver: ast.RecvRefMut, SelfLocal: self, Body: b.Block(ast.NoExprID)})
	c := b.Local("c", true)
	b.Fn("f", ast.FnDecl{Params: []ast.Param{b.Param(c, target)}, Body: b.Block(ast.NoExprID, b.ExprStmt(b.MethodCall(b.Var(c), "rest")))})

	_, bag := check(t, b, Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.UnresolvedMethod, d.Code)
	assert.Equal(t, []string{"did you mean `reset`?"}, fixTitles(d))
}
