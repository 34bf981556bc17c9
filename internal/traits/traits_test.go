package traits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/sig"
	"vais/internal/types"
	"vais/internal/unify"
)

type fixture struct {
	b   *ast.Builder
	in  *types.Interner
	bag *diag.Bag
	reg *Registry
}

func (f *fixture) build() {
	f.in = types.NewInterner()
	f.bag = diag.NewBag(0)
	rep := diag.BagReporter{Bag: f.bag}
	f.reg = Build(sig.Collect(f.b.Module(), f.in, rep), rep)
}

func (f *fixture) subst() *unify.Substitution { return unify.NewSubstitution(f.in) }

func refSelf(b *ast.Builder, ret ast.TypeID) ast.FnDecl {
	return ast.FnDecl{Receiver: ast.RecvRef, SelfLocal: b.Local("self", false), Ret: ret}
}

// showTrait declares `trait Show { fn show(&self) -> str; }`.
func showTrait(b *ast.Builder) ast.ItemID {
	show := b.Trait("Show")
	b.TraitMethod(show, "show", refSelf(b, b.Prim("str")))
	return show
}

func implShow(b *ast.Builder, show ast.ItemID, target ast.TypeID) ast.ItemID {
	im := b.Impl(b.BoundOf(show), target)
	b.Method(im, "show", refSelf(b, b.Prim("str")))
	return im
}

func blanket(b *ast.Builder, trait ast.ItemID, bounds ...ast.Bound) ast.ItemID {
	im := b.DeclImpl(b.BoundOf(trait))
	tp := b.Generic(im, "T", bounds...)
	b.SetImplTarget(im, tp)
	b.Method(im, "show", refSelf(b, b.Prim("str")))
	return im
}

func TestDuplicateImplConflicts(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	implShow(f.b, show, f.b.Prim("i32"))
	implShow(f.b, show, f.b.Prim("i32"))
	implShow(f.b, show, f.b.Prim("bool"))
	f.build()
	assert.Equal(t, 1, f.bag.Count(diag.ConflictingImpls))
}

func TestBlanketImplNeedsDefaultToOverlap(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	blanket(f.b, show)
	implShow(f.b, show, f.b.Prim("i32"))
	f.build()
	require.Equal(t, 1, f.bag.Count(diag.ConflictingImpls))

	g := &fixture{b: ast.NewBuilder("m.vais")}
	show = showTrait(g.b)
	general := blanket(g.b, show)
	g.b.MarkDefault(general)
	concrete := implShow(g.b, show, g.b.Prim("i32"))
	g.build()
	require.Zero(t, g.bag.Len(), "%v", g.bag.Items())

	bi := g.in.Builtins()
	ref, err := g.reg.ResolveMethod(g.subst(), bi.I32, "show")
	require.NoError(t, err)
	assert.Equal(t, MethodTraitImpl, ref.Kind)
	assert.Equal(t, concrete, ref.Impl.ID, "the concrete impl must win over the default blanket")

	ref, err = g.reg.ResolveMethod(g.subst(), bi.Bool, "show")
	require.NoError(t, err)
	assert.Equal(t, general, ref.Impl.ID)
	assert.Equal(t, bi.Bool, ref.Subst[unify.ParamKey{Owner: uint32(general), Index: 0}])
}

func TestNegativeBoundsKeepImplsApart(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	display := f.b.Trait("Display")
	withDisplay := blanket(f.b, show, f.b.BoundOf(display))
	withoutDisplay := blanket(f.b, show)
	f.b.NegBound(withoutDisplay, 0, display)
	f.b.Impl(f.b.BoundOf(display), f.b.Prim("i32"))
	f.build()
	require.Zero(t, f.bag.Count(diag.ConflictingImpls), "%v", f.bag.Items())

	bi := f.in.Builtins()
	ref, err := f.reg.ResolveMethod(f.subst(), bi.I32, "show")
	require.NoError(t, err)
	assert.Equal(t, withDisplay, ref.Impl.ID)
	ref, err = f.reg.ResolveMethod(f.subst(), bi.Char, "show")
	require.NoError(t, err)
	assert.Equal(t, withoutDisplay, ref.Impl.ID)
}

func TestInherentBeforeTraitAndAutoderef(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	point := f.b.Struct("Point")
	show := showTrait(f.b)
	implShow(f.b, show, f.b.NamedT(point))
	inh := f.b.Impl(ast.Bound{}, f.b.NamedT(point))
	own := f.b.Method(inh, "show", refSelf(f.b, f.b.Prim("str")))
	f.build()
	require.Zero(t, f.bag.Len(), "%v", f.bag.Items())

	pt := f.in.Named(uint32(point))
	recv := f.in.Ref(f.in.Ref(pt, false), true)
	ref, err := f.reg.ResolveMethod(f.subst(), recv, "show")
	require.NoError(t, err)
	assert.Equal(t, MethodInherent, ref.Kind)
	assert.Equal(t, own, ref.Method)
	assert.Equal(t, 2, ref.Derefs)
	assert.Equal(t, pt, ref.Recv)
}

func TestInvisibleTraitIsHidden(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	other := f.b.Trait("Other")
	implShow(f.b, show, f.b.Prim("i32"))
	f.b.VisibleTraits(other)
	f.build()

	_, err := f.reg.ResolveMethod(f.subst(), f.in.Builtins().I32, "show")
	var unres *UnresolvedMethodError
	require.ErrorAs(t, err, &unres)
	assert.Equal(t, []ast.ItemID{show}, unres.Hidden)
}

func TestAmbiguousAcrossTraits(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	a := showTrait(f.b)
	bt := f.b.Trait("Render")
	f.b.TraitMethod(bt, "show", refSelf(f.b, f.b.Prim("str")))
	implShow(f.b, a, f.b.Prim("i32"))
	implShow(f.b, bt, f.b.Prim("i32"))
	f.build()

	_, err := f.reg.ResolveMethod(f.subst(), f.in.Builtins().I32, "show")
	var amb *AmbiguousMethodError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)
}

func TestUnknownReceiver(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	showTrait(f.b)
	f.build()
	s := f.subst()
	_, err := f.reg.ResolveMethod(s, s.Fresh(unify.VarGeneral, f.b.Module().Item(1).Span), "show")
	var unk *UnknownReceiverError
	require.ErrorAs(t, err, &unk)
}

func TestBoundOnParameter(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	fn := f.b.DeclFn("print")
	f.b.Generic(fn, "T", f.b.BoundOf(show))
	f.build()

	p := f.in.Param(uint32(fn), 0)
	ref, err := f.reg.ResolveMethod(f.subst(), f.in.Ref(p, false), "show")
	require.NoError(t, err)
	assert.Equal(t, MethodBound, ref.Kind)
	assert.Equal(t, show, ref.Trait)
	require.NoError(t, f.reg.Satisfies(f.subst(), p, sig.Bound{Trait: show}))
}

func TestSatisfiesThroughGenericImpl(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	vec := f.b.Struct("Vec")
	f.b.Generic(vec, "T")
	implShow(f.b, show, f.b.Prim("i32"))
	im := f.b.DeclImpl(f.b.BoundOf(show))
	tp := f.b.Generic(im, "T", f.b.BoundOf(show))
	f.b.SetImplTarget(im, f.b.NamedT(vec, tp))
	f.b.Method(im, "show", refSelf(f.b, f.b.Prim("str")))
	f.build()
	require.Zero(t, f.bag.Len(), "%v", f.bag.Items())

	bi := f.in.Builtins()
	require.NoError(t, f.reg.Satisfies(f.subst(), f.in.Named(uint32(vec), bi.I32), sig.Bound{Trait: show}))
	require.NoError(t, f.reg.Satisfies(f.subst(), f.in.Named(uint32(vec), f.in.Named(uint32(vec), bi.I32)), sig.Bound{Trait: show}))

	err := f.reg.Satisfies(f.subst(), f.in.Named(uint32(vec), bi.Bool), sig.Bound{Trait: show})
	var ub *UnsatisfiedBoundError
	require.ErrorAs(t, err, &ub)
	assert.Equal(t, show, ub.Trait)
}

func TestMissingAndUnknownMethods(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	im := f.b.Impl(f.b.BoundOf(show), f.b.Prim("i32"))
	f.b.Method(im, "display", refSelf(f.b, f.b.Prim("str")))
	f.build()
	assert.Equal(t, 1, f.bag.Count(diag.MissingTraitMethod))
	assert.Equal(t, 1, f.bag.Count(diag.UnknownTraitMethod))
	for _, d := range f.bag.Items() {
		assert.Empty(t, d.Fixes, "%s: `display` is too far from `show`", d.Code)
	}
}

func TestMisspelledImplMethodSuggestsTraitMethod(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	im := f.b.Impl(f.b.BoundOf(show), f.b.Prim("i32"))
	f.b.Method(im, "shwo", refSelf(f.b, f.b.Prim("str")))
	f.build()
	require.Equal(t, 1, f.bag.Count(diag.UnknownTraitMethod))
	for _, d := range f.bag.Items() {
		if d.Code == diag.UnknownTraitMethod {
			require.Len(t, d.Fixes, 1)
			assert.Equal(t, "did you mean `show`?", d.Fixes[0].Title)
		}
	}
}

func TestUnresolvedMethodListsAvailable(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	implShow(f.b, show, f.b.Prim("i32"))
	inh := f.b.Impl(ast.Bound{}, f.b.Prim("i32"))
	f.b.Method(inh, "abs", refSelf(f.b, f.b.Prim("i32")))
	f.build()
	require.Equal(t, 0, f.bag.Len(), "codes: %v", f.bag.Codes())

	bi := f.in.Builtins()
	_, err := f.reg.ResolveMethod(f.subst(), f.in.Ref(bi.I32, false), "sho")
	var ue *UnresolvedMethodError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"abs", "show"}, ue.Available)
}

func TestSignatureMismatchReported(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	show := showTrait(f.b)
	im := f.b.Impl(f.b.BoundOf(show), f.b.Prim("i32"))
	f.b.Method(im, "show", refSelf(f.b, f.b.Prim("i64")))
	f.build()
	assert.Equal(t, 1, f.bag.Count(diag.TypeMismatch), "%v", f.bag.Items())
}

func TestObjectSafetyAndVTables(t *testing.T) {
	f := &fixture{b: ast.NewBuilder("m.vais")}
	shape := f.b.Trait("Shape")
	f.b.TraitMethod(shape, "area", refSelf(f.b, f.b.Prim("f64")))
	named := f.b.TraitMethod(shape, "name", refSelf(f.b, f.b.Prim("str")))
	f.b.Module().Item(named).Fn.Body = f.b.Str("shape")

	cl := f.b.Trait("Dup")
	f.b.TraitMethod(cl, "dup", refSelf(f.b, f.b.SelfT()))
	f.b.TraitMethod(cl, "make", ast.FnDecl{Ret: f.b.SelfT()})

	sq := f.b.Struct("Square")
	im := f.b.Impl(f.b.BoundOf(shape), f.b.NamedT(sq))
	area := f.b.Method(im, "area", refSelf(f.b, f.b.Prim("f64")))
	f.build()
	require.Zero(t, f.bag.Len(), "%v", f.bag.Items())

	assert.Empty(t, f.reg.ObjectSafe(shape))
	v := f.reg.ObjectSafe(cl)
	require.Len(t, v, 3, "dup returns Self; make has no receiver and returns Self")

	vts := f.reg.VTables()
	require.Len(t, vts, 1)
	require.Len(t, vts[0].Slots, 2)
	assert.Equal(t, area, vts[0].Slots[0].Method)
	assert.True(t, vts[0].Slots[1].Default)
	idx, _, ok := vts[0].Slot("name")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	dv, err := f.reg.Unsize(f.subst(), f.in.Named(uint32(sq)), shape, nil)
	require.NoError(t, err)
	assert.Same(t, vts[0], dv.Table)

	_, err = f.reg.Unsize(f.subst(), f.in.Builtins().I32, cl, nil)
	var nos *NotObjectSafeError
	require.ErrorAs(t, err, &nos)
}
