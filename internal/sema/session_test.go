package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/scope"
	"vais/internal/types"
)

func TestInferExprDefaultsLiterals(t *testing.T) {
	b := ast.NewBuilder("repl.vais")
	e := b.Binary(ast.OpAdd, b.Int("1"), b.Int("2"))
	sess, bag := NewSession(b.Module(), Options{})
	require.Equal(t, 0, bag.Len())

	ty, diags := sess.InferExpr(e, types.NoTypeID, nil)
	assert.Empty(t, diags)
	assert.Equal(t, sess.In.Builtins().I64, ty)
}

func TestInferExprUsesEnvironment(t *testing.T) {
	b := ast.NewBuilder("repl.vais")
	x := b.Local("x", false)
	e := b.Tuple(b.Var(x), b.Float("1.5"))
	sess, _ := NewSession(b.Module(), Options{})
	bi := sess.In.Builtins()

	env := scope.NewStack()
	env.Push()
	env.Declare(scope.Binding{Local: x, Name: "x", Type: bi.Str})
	depth := env.Depth()

	ty, diags := sess.InferExpr(e, types.NoTypeID, env)
	assert.Empty(t, diags)
	assert.Equal(t, sess.In.Tuple(bi.Str, bi.F64), ty)
	assert.Equal(t, depth, env.Depth())
}

func TestInferExprAgainstExpected(t *testing.T) {
	b := ast.NewBuilder("repl.vais")
	e := b.Str("text")
	sess, _ := NewSession(b.Module(), Options{})
	bi := sess.In.Builtins()

	ty, diags := sess.InferExpr(e, bi.Bool, nil)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.TypeMismatch, diags[0].Code)
	assert.Equal(t, bi.Str, ty)

	_, diags = sess.InferExpr(b.Int("7"), bi.U8, nil)
	assert.Empty(t, diags)
}

func TestTypeOfItems(t *testing.T) {
	b := ast.NewBuilder("items.vais")
	opt, _, _ := option(b)
	id := b.DeclFn("identity")
	T := b.Generic(id, "T")
	x := b.Local("x", false)
	b.SetFn(id, ast.FnDecl{Params: []ast.Param{b.Param(x, T)}, Ret: T, Body: b.Block(b.Var(x))})
	tr := b.Trait("Show")

	sess, bag := NewSession(b.Module(), Options{})
	require.Equal(t, 0, bag.Len(), "codes: %v", bag.Codes())
	p := sess.printer()

	assert.Equal(t, "fn(T) -> T", p.String(sess.TypeOf(id)))
	assert.Equal(t, "Option<T>", p.String(sess.TypeOf(opt)))
	assert.Equal(t, "dyn Show", p.String(sess.TypeOf(tr)))
	assert.Equal(t, sess.In.Builtins().Error, sess.TypeOf(ast.ItemID(9999)))
}

func TestMissingLifetimeIsReportedOncePerSignature(t *testing.T) {
	b := ast.NewBuilder("elide.vais")
	a := b.Local("a", false)
	c := b.Local("c", false)
	str := b.Prim("str")
	b.Fn("longest", ast.FnDecl{
		Params: []ast.Param{b.Param(a, b.RefT(false, str)), b.Param(c, b.RefT(false, str))},
		Ret:    b.RefT(false, str),
	})

	sess, bag := NewSession(b.Module(), Options{})
	require.Equal(t, 1, bag.Len(), "codes: %v", bag.Codes())
	d := bag.Items()[0]
	assert.Equal(t, diag.MissingLifetime, d.Code)
	assert.Len(t, d.Notes, 1)
	_, ok := sess.Elided(item(t, b, "longest"))
	assert.False(t, ok)
	assert.NotEmpty(t, sess.ID)
}
