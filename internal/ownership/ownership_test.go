package ownership

import (
	"testing"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/types"
)

type fakeTypes struct {
	CopyOracle
	locals map[ast.LocalID]types.TypeID
	exprs  map[ast.ExprID]types.TypeID
	recv   map[ast.ExprID]ast.ReceiverKind
}

func newFake(b *ast.Builder) *fakeTypes {
	return &fakeTypes{
		CopyOracle: CopyOracle{In: types.NewInterner(), Mod: b.Module()},
		locals:     make(map[ast.LocalID]types.TypeID),
		exprs:      make(map[ast.ExprID]types.TypeID),
		recv:       make(map[ast.ExprID]ast.ReceiverKind),
	}
}

func (f *fakeTypes) ExprType(id ast.ExprID) types.TypeID {
	if t, ok := f.exprs[id]; ok {
		return t
	}
	e := f.Mod.Expr(id)
	switch {
	case e.Kind == ast.ExprName && e.Ref.Kind == ast.RefLocal:
		return f.locals[e.Ref.Local]
	case e.Kind == ast.ExprLit && e.Lit == ast.LitStr:
		return f.In.Builtins().Str
	case e.Kind == ast.ExprRef:
		return f.In.Ref(f.ExprType(e.X), e.Mut)
	}
	return f.In.Builtins().Unit
}

func (f *fakeTypes) LocalType(id ast.LocalID) types.TypeID   { return f.locals[id] }
func (f *fakeTypes) Receiver(id ast.ExprID) ast.ReceiverKind { return f.recv[id] }

type body struct {
	b  *ast.Builder
	ty *fakeTypes
}

func newBody() *body {
	b := ast.NewBuilder("own.vais")
	return &body{b: b, ty: newFake(b)}
}

func (bd *body) local(name string, mut bool, t types.TypeID) ast.LocalID {
	l := bd.b.Local(name, mut)
	bd.ty.locals[l] = t
	return l
}

func (bd *body) check(t *testing.T, params []ast.Param, tail ast.ExprID, stmts ...ast.StmtID) (*diag.Bag, *Facts) {
	t.Helper()
	fn := bd.b.Fn("f", ast.FnDecl{Params: params, Body: bd.b.Block(tail, stmts...)})
	bag := diag.NewBag(0)
	facts := Check(bd.b.Module(), bd.ty.In, fn, bd.ty, diag.BagReporter{Bag: bag})
	return bag, facts
}

func TestUseAfterMoveOfString(t *testing.T) {
	bd := newBody()
	str := bd.ty.In.Builtins().Str
	s := bd.local("s", false, str)
	x := bd.local("t", false, str)
	y := bd.local("u", false, str)
	first := bd.b.Var(s)
	second := bd.b.Var(s)
	bag, facts := bd.check(t, nil, ast.NoExprID,
		bd.b.Let(s, ast.NoTypeID, bd.b.Str("hi")),
		bd.b.Let(x, ast.NoTypeID, first),
		bd.b.Let(y, ast.NoTypeID, second),
	)
	if bag.Len() != 1 || bag.Count(diag.UseAfterMove) != 1 {
		t.Fatalf("want one UseAfterMove, got %v", bag.Codes())
	}
	d := bag.Items()[0]
	if d.Primary != bd.b.Module().Expr(second).Span {
		t.Fatalf("primary must be the second use, got %v", d.Primary)
	}
	if len(d.Notes) != 1 || d.Notes[0].Span != bd.b.Module().Expr(first).Span {
		t.Fatalf("note must point at the move, got %+v", d.Notes)
	}
	if !facts.IsMove(first) || facts.IsMove(second) {
		t.Fatalf("facts must record exactly the first move: %+v", facts.Moves)
	}
}

func TestCopyValuesDoNotMove(t *testing.T) {
	bd := newBody()
	i64 := bd.ty.In.Builtins().I64
	a := bd.local("a", false, i64)
	b := bd.local("b", false, i64)
	c := bd.local("c", false, bd.ty.In.Tuple(i64, i64))
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(a, bd.b.Prim("i64")), bd.b.Param(c, bd.b.TupleT())}, bd.b.Var(c),
		bd.b.Let(b, ast.NoTypeID, bd.b.Var(a)),
		bd.b.ExprStmt(bd.b.Var(a)),
		bd.b.ExprStmt(bd.b.Var(c)),
	)
	if bag.Len() != 0 {
		t.Fatalf("copy types must not move: %v", bag.Codes())
	}
}

func TestMoveInOneBranchIsMoveAfterJoin(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	s := bd.local("s", false, bi.Str)
	c := bd.local("c", false, bi.Bool)
	x := bd.local("t", false, bi.Str)
	then := bd.b.Block(ast.NoExprID, bd.b.Let(x, ast.NoTypeID, bd.b.Var(s)))
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(s, bd.b.Prim("str")), bd.b.Param(c, bd.b.Prim("bool"))}, bd.b.Var(s),
		bd.b.ExprStmt(bd.b.If(bd.b.Var(c), then, ast.NoExprID)),
	)
	if bag.Count(diag.UseAfterMove) != 1 {
		t.Fatalf("maybe-moved value must be treated as moved, got %v", bag.Codes())
	}
}

func TestDivergingBranchDoesNotPoisonJoin(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	s := bd.local("s", false, bi.Str)
	c := bd.local("c", false, bi.Bool)
	x := bd.local("t", false, bi.Str)
	then := bd.b.Block(bd.b.Return(ast.NoExprID), bd.b.Let(x, ast.NoTypeID, bd.b.Var(s)))
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(s, bd.b.Prim("str")), bd.b.Param(c, bd.b.Prim("bool"))}, bd.b.Var(s),
		bd.b.ExprStmt(bd.b.If(bd.b.Var(c), then, ast.NoExprID)),
	)
	if bag.Len() != 0 {
		t.Fatalf("a branch that returns must not count at the join: %v", bag.Codes())
	}
}

func TestReassignmentRestoresOwnership(t *testing.T) {
	bd := newBody()
	str := bd.ty.In.Builtins().Str
	s := bd.local("s", true, str)
	x := bd.local("t", false, str)
	y := bd.local("u", false, str)
	bag, _ := bd.check(t, nil, ast.NoExprID,
		bd.b.Let(s, ast.NoTypeID, bd.b.Str("a")),
		bd.b.Let(x, ast.NoTypeID, bd.b.Var(s)),
		bd.b.ExprStmt(bd.b.Assign(bd.b.Var(s), bd.b.Str("b"))),
		bd.b.Let(y, ast.NoTypeID, bd.b.Var(s)),
	)
	if bag.Len() != 0 {
		t.Fatalf("assignment must make the binding usable again: %v", bag.Codes())
	}
}

func TestImmutableAssignment(t *testing.T) {
	bd := newBody()
	i64 := bd.ty.In.Builtins().I64
	v := bd.local("v", false, i64)
	late := bd.local("late", false, i64)
	bag, _ := bd.check(t, nil, ast.NoExprID,
		bd.b.Let(v, ast.NoTypeID, bd.b.Int("1")),
		bd.b.ExprStmt(bd.b.Assign(bd.b.Var(v), bd.b.Int("2"))),
		bd.b.Let(late, ast.NoTypeID, ast.NoExprID),
		bd.b.ExprStmt(bd.b.Assign(bd.b.Var(late), bd.b.Int("3"))),
	)
	if bag.Len() != 1 || bag.Count(diag.ImmutableAssign) != 1 {
		t.Fatalf("want one ImmutableAssign (deferred init is allowed), got %v", bag.Codes())
	}
}

func TestUseOfUninitialized(t *testing.T) {
	bd := newBody()
	i64 := bd.ty.In.Builtins().I64
	v := bd.local("v", false, i64)
	bag, _ := bd.check(t, nil, bd.b.Var(v),
		bd.b.Let(v, ast.NoTypeID, ast.NoExprID),
	)
	if bag.Count(diag.UseAfterMove) != 1 {
		t.Fatalf("reading an unassigned binding must be reported, got %v", bag.Codes())
	}
}

func TestMoveInsideLoopReportedOnce(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	s := bd.local("s", false, bi.Str)
	c := bd.local("c", false, bi.Bool)
	x := bd.local("t", false, bi.Str)
	loopBody := bd.b.Block(ast.NoExprID, bd.b.Let(x, ast.NoTypeID, bd.b.Var(s)))
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(s, bd.b.Prim("str")), bd.b.Param(c, bd.b.Prim("bool"))}, ast.NoExprID,
		bd.b.ExprStmt(bd.b.While(bd.b.Var(c), loopBody)),
	)
	if bag.Len() != 1 || bag.Count(diag.UseAfterMove) != 1 {
		t.Fatalf("move in a previous iteration must be reported once, got %v", bag.Codes())
	}
}

func TestLoopWithBreakAfterMove(t *testing.T) {
	bd := newBody()
	str := bd.ty.In.Builtins().Str
	s := bd.local("s", false, str)
	x := bd.local("t", false, str)
	loopBody := bd.b.Block(bd.b.Break(ast.NoExprID), bd.b.Let(x, ast.NoTypeID, bd.b.Var(s)))
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(s, bd.b.Prim("str"))}, ast.NoExprID,
		bd.b.ExprStmt(bd.b.Loop(loopBody)),
	)
	if bag.Len() != 0 {
		t.Fatalf("the back edge is never taken, got %v", bag.Codes())
	}
}

func TestPartialMove(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	pair := bd.b.Struct("Pair")
	bd.b.AddField(pair, "a", bd.b.Prim("str"))
	bd.b.AddField(pair, "b", bd.b.Prim("str"))
	pt := bd.ty.In.Named(uint32(pair))
	p := bd.local("p", false, pt)
	x := bd.local("x", false, bi.Str)
	y := bd.local("y", false, bi.Str)
	again := bd.local("again", false, bi.Str)
	whole := bd.local("whole", false, pt)

	fa := bd.b.Field(bd.b.Var(p), "a")
	fb := bd.b.Field(bd.b.Var(p), "b")
	fa2 := bd.b.Field(bd.b.Var(p), "a")
	for _, f := range []ast.ExprID{fa, fb, fa2} {
		bd.ty.exprs[f] = bi.Str
	}
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(p, bd.b.NamedT(pair))}, ast.NoExprID,
		bd.b.Let(x, ast.NoTypeID, fa),
		bd.b.Let(y, ast.NoTypeID, fb),
		bd.b.Let(again, ast.NoTypeID, fa2),
		bd.b.Let(whole, ast.NoTypeID, bd.b.Var(p)),
	)
	if bag.Count(diag.UseAfterMove) != 1 || bag.Count(diag.UseAfterPartialMove) != 1 || bag.Len() != 2 {
		t.Fatalf("want one UseAfterMove (p.a again) and one UseAfterPartialMove (p), got %v", bag.Codes())
	}
}

func TestMutBorrowOfImmutable(t *testing.T) {
	bd := newBody()
	i64 := bd.ty.In.Builtins().I64
	v := bd.local("v", false, i64)
	w := bd.local("w", true, i64)
	okBorrow := bd.b.RefMut(bd.b.Var(w))
	bag, facts := bd.check(t, nil, ast.NoExprID,
		bd.b.Let(v, ast.NoTypeID, bd.b.Int("1")),
		bd.b.Let(w, ast.NoTypeID, bd.b.Int("1")),
		bd.b.ExprStmt(bd.b.RefMut(bd.b.Var(v))),
		bd.b.ExprStmt(okBorrow),
	)
	if bag.Len() != 1 || bag.Count(diag.MutBorrowOfImmutable) != 1 {
		t.Fatalf("want one MutBorrowOfImmutable, got %v", bag.Codes())
	}
	if br, ok := facts.Borrows[okBorrow]; !ok || !br.Mut || br.Local != w {
		t.Fatalf("mutable borrow of w must be recorded: %+v", facts.Borrows)
	}
}

func TestMoveOutOfReference(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	r := bd.local("r", false, bd.ty.In.Ref(bi.Str, false))
	x := bd.local("x", false, bi.Str)
	deref := bd.b.Deref(bd.b.Var(r))
	bd.ty.exprs[deref] = bi.Str
	bag, _ := bd.check(t, []ast.Param{bd.b.Param(r, bd.b.RefT(false, bd.b.Prim("str")))}, ast.NoExprID,
		bd.b.Let(x, ast.NoTypeID, deref),
	)
	if bag.Count(diag.MoveOutOfBorrow) != 1 {
		t.Fatalf("moving out of a reference must be rejected, got %v", bag.Codes())
	}
}

func TestMethodReceiverModes(t *testing.T) {
	bd := newBody()
	bi := bd.ty.In.Builtins()
	s := bd.local("s", false, bi.Str)
	byRef := bd.b.MethodCall(bd.b.Var(s), "len")
	byVal := bd.b.MethodCall(bd.b.Var(s), "into_bytes")
	after := bd.b.MethodCall(bd.b.Var(s), "len")
	bd.ty.recv[byRef] = ast.RecvRef
	bd.ty.recv[byVal] = ast.RecvValue
	bd.ty.recv[after] = ast.RecvRef
	bag, facts := bd.check(t, []ast.Param{bd.b.Param(s, bd.b.Prim("str"))}, ast.NoExprID,
		bd.b.ExprStmt(byRef), bd.b.ExprStmt(byVal), bd.b.ExprStmt(after),
	)
	if bag.Len() != 1 || bag.Count(diag.BorrowAfterMove) != 1 {
		t.Fatalf("autoref after a by-value receiver must be a borrow of a moved value, got %v", bag.Codes())
	}
	if br, ok := facts.Borrows[byRef]; !ok || !br.Autoref {
		t.Fatalf("autoref borrow must be recorded: %+v", facts.Borrows)
	}
}
