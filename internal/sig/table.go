package sig

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/source"
	"vais/internal/types"
	"vais/internal/unify"
)

// Bound is a lowered trait bound: the bounded type must implement Trait
// with Args.
type Bound struct {
	Trait ast.ItemID
	Args  []types.TypeID
	Span  source.Span
}

// FnSig is the lowered signature of a function or method. Types may carry
// named regions; bodies see them erased.
type FnSig struct {
	Item     ast.ItemID
	Owner    ast.ItemID // impl or trait; NoItemID for free functions
	Receiver ast.ReceiverKind
	Self     types.TypeID // NoTypeID for free functions
	Recv     types.TypeID // type of the receiver parameter, NoTypeID if none
	Params   []types.TypeID
	Ret      types.TypeID
	Generics []unify.ParamKey // the function's own type parameters

	Lifetimes  int
	ParamSpans []source.Span
	RetSpan    source.Span
	HasBody    bool
}

// Inputs lists the receiver type (if any) followed by the parameters.
func (f *FnSig) Inputs() []types.TypeID {
	if f.Recv == types.NoTypeID {
		return f.Params
	}
	out := make([]types.TypeID, 0, len(f.Params)+1)
	out = append(out, f.Recv)
	return append(out, f.Params...)
}

// AdtSig holds the field types of a struct or the variant payloads of an enum,
// expressed over the item's own type parameters.
type AdtSig struct {
	Item     ast.ItemID
	Fields   []types.TypeID
	Names    []source.StringID
	Variants [][]types.TypeID
	Generics int
}

type ImplSig struct {
	Item      ast.ItemID
	Trait     ast.ItemID // NoItemID for inherent impls
	TraitArgs []types.TypeID
	Target    types.TypeID
	Generics  []unify.ParamKey
	Default   bool
	Span      source.Span
}

// Table is the read-only result of the signature pre-pass. Body checkers
// share it without locking.
type Table struct {
	In  *types.Interner
	Mod *ast.Module

	Fns   map[ast.ItemID]*FnSig
	Adts  map[ast.ItemID]*AdtSig
	Impls map[ast.ItemID]*ImplSig

	bounds map[unify.ParamKey][]Bound
	negs   map[unify.ParamKey][]ast.ItemID
}

// Collect lowers every item signature of mod. Items are visited in
// allocation order, so impls and types are lowered before the functions
// that mention them only by handle; lowering never needs another item's
// lowered form.
func Collect(mod *ast.Module, in *types.Interner, rep diag.Reporter) *Table {
	t := &Table{
		In:     in,
		Mod:    mod,
		Fns:    make(map[ast.ItemID]*FnSig),
		Adts:   make(map[ast.ItemID]*AdtSig),
		Impls:  make(map[ast.ItemID]*ImplSig),
		bounds: make(map[unify.ParamKey][]Bound),
		negs:   make(map[unify.ParamKey][]ast.ItemID),
	}
	ids := mod.ItemIDs()
	for _, id := range ids {
		it := mod.Item(id)
		switch it.Kind {
		case ast.ItemStruct, ast.ItemEnum:
			t.collectAdt(id, it, rep)
		case ast.ItemImpl:
			t.collectImpl(id, it, rep)
		}
	}
	for _, id := range ids {
		it := mod.Item(id)
		if it.Kind == ast.ItemFn {
			t.collectFn(id, it, rep)
		}
	}
	for _, id := range ids {
		t.collectBounds(id, mod.Item(id), rep)
	}
	return t
}

// GenericKeys lists the type parameters declared by item.
func GenericKeys(mod *ast.Module, item ast.ItemID) []unify.ParamKey {
	it := mod.Item(item)
	if it == nil || len(it.Generics) == 0 {
		return nil
	}
	out := make([]unify.ParamKey, len(it.Generics))
	for i := range it.Generics {
		out[i] = unify.ParamKey{Owner: uint32(item), Index: uint32(i)} // #nosec G115
	}
	return out
}

// SelfType is what `Self` means inside owner.
func (t *Table) SelfType(owner ast.ItemID) types.TypeID {
	it := t.Mod.Item(owner)
	if it == nil {
		return types.NoTypeID
	}
	switch it.Kind {
	case ast.ItemImpl:
		if is := t.Impls[owner]; is != nil {
			return is.Target
		}
	case ast.ItemTrait:
		return t.In.Param(uint32(owner), types.SelfIndex)
	case ast.ItemStruct, ast.ItemEnum:
		return t.In.Named(uint32(owner), t.paramArgs(owner)...)
	}
	return types.NoTypeID
}

func (t *Table) paramArgs(item ast.ItemID) []types.TypeID {
	keys := GenericKeys(t.Mod, item)
	if len(keys) == 0 {
		return nil
	}
	out := make([]types.TypeID, len(keys))
	for i, k := range keys {
		out[i] = t.In.Param(k.Owner, k.Index)
	}
	return out
}

func (t *Table) lowerer(self types.TypeID, lifetimes []source.StringID, rep diag.Reporter) *Lowerer {
	return &Lowerer{Mod: t.Mod, In: t.In, Self: self, Lifetimes: lifetimes, Reporter: rep}
}

func (t *Table) collectAdt(id ast.ItemID, it *ast.Item, rep diag.Reporter) {
	l := t.lowerer(t.SelfType(id), nil, rep)
	a := &AdtSig{Item: id, Generics: len(it.Generics)}
	for _, f := range it.Fields {
		a.Fields = append(a.Fields, l.Lower(f.Type))
		a.Names = append(a.Names, f.Name)
	}
	for _, v := range it.Variants {
		a.Variants = append(a.Variants, l.lowerList(v.Fields))
	}
	t.Adts[id] = a
}

func (t *Table) collectImpl(id ast.ItemID, it *ast.Item, rep diag.Reporter) {
	l := t.lowerer(types.NoTypeID, nil, rep)
	target := l.Lower(it.Target)
	if target == types.NoTypeID {
		target = t.In.Builtins().Error
	}
	l.Self = target
	t.Impls[id] = &ImplSig{
		Item:      id,
		Trait:     it.Trait.Trait,
		TraitArgs: l.lowerList(it.Trait.Args),
		Target:    target,
		Generics:  GenericKeys(t.Mod, id),
		Default:   it.Default,
		Span:      it.Span,
	}
}

func (t *Table) collectFn(id ast.ItemID, it *ast.Item, rep diag.Reporter) {
	fn := &it.Fn
	self := types.NoTypeID
	if it.Owner.IsValid() {
		self = t.SelfType(it.Owner)
	}
	l := t.lowerer(self, fn.Lifetimes, rep)
	s := &FnSig{
		Item:      id,
		Owner:     it.Owner,
		Receiver:  fn.Receiver,
		Self:      self,
		Generics:  GenericKeys(t.Mod, id),
		Lifetimes: len(fn.Lifetimes),
		HasBody:   fn.Body.IsValid(),
	}
	switch fn.Receiver {
	case ast.RecvValue:
		s.Recv = self
	case ast.RecvRef, ast.RecvRefMut:
		region := types.RegionErased
		if fn.RecvLife != source.NoStringID {
			region = l.region(fn.RecvLife, it.Span)
		}
		s.Recv = t.In.Intern(types.MakeRefIn(region, self, fn.Receiver == ast.RecvRefMut))
	}
	if fn.Receiver != ast.RecvNone && self == types.NoTypeID {
		diag.ReportError(rep, diag.TypeMismatch, it.Span,
			fmt.Sprintf("`self` receiver on free function %s", t.Mod.ItemName(id))).Emit()
		s.Recv = t.In.Builtins().Error
	}
	for _, p := range fn.Params {
		pt := l.Lower(p.Type)
		if pt == types.NoTypeID {
			pt = t.In.Builtins().Error
		}
		s.Params = append(s.Params, pt)
		s.ParamSpans = append(s.ParamSpans, p.Span)
	}
	s.Ret = l.Lower(fn.Ret)
	if s.Ret == types.NoTypeID {
		s.Ret = t.In.Builtins().Unit
	} else if te := t.Mod.Type(fn.Ret); te != nil {
		s.RetSpan = te.Span
	}
	t.Fns[id] = s
}

func (t *Table) collectBounds(id ast.ItemID, it *ast.Item, rep diag.Reporter) {
	if len(it.Generics) == 0 {
		return
	}
	self := types.NoTypeID
	switch {
	case it.Kind == ast.ItemFn && it.Owner.IsValid():
		self = t.SelfType(it.Owner)
	case it.Kind != ast.ItemFn:
		self = t.SelfType(id)
	}
	l := t.lowerer(self, nil, rep)
	for i, g := range it.Generics {
		key := unify.ParamKey{Owner: uint32(id), Index: uint32(i)} // #nosec G115
		for _, b := range g.Bounds {
			t.bounds[key] = append(t.bounds[key], Bound{Trait: b.Trait, Args: l.lowerList(b.Args), Span: b.Span})
		}
		if len(g.NegBounds) > 0 {
			t.negs[key] = append(t.negs[key], g.NegBounds...)
		}
	}
}

// Bounds returns the declared trait bounds of a type parameter.
func (t *Table) Bounds(k unify.ParamKey) []Bound { return t.bounds[k] }

// NegBounds returns the `!Trait` bounds of a type parameter.
func (t *Table) NegBounds(k unify.ParamKey) []ast.ItemID { return t.negs[k] }

// Scheme quantifies a function type over the function's own parameters and,
// for methods, its impl's parameters.
func (t *Table) Scheme(item ast.ItemID) (unify.Scheme, bool) {
	fs := t.Fns[item]
	if fs == nil {
		return unify.Scheme{}, false
	}
	params := append([]unify.ParamKey(nil), fs.Generics...)
	if is := t.Impls[fs.Owner]; is != nil {
		params = append(params, is.Generics...)
	}
	return unify.Scheme{Params: params, Type: t.In.EraseRegions(t.In.Fn(fs.Inputs(), fs.Ret))}, true
}

// FieldType looks up a struct field of the instance adt and substitutes
// the instance's type arguments.
func (t *Table) FieldType(adt types.TypeID, name source.StringID) (types.TypeID, int, bool) {
	ty, ok := t.In.Lookup(adt)
	if !ok || ty.Kind != types.KindNamed {
		return types.NoTypeID, -1, false
	}
	a := t.Adts[ast.ItemID(ty.Def)]
	if a == nil {
		return types.NoTypeID, -1, false
	}
	for i, n := range a.Names {
		if n == name {
			return t.In.SubstParams(a.Fields[i], ty.Def, ty.Elems), i, true
		}
	}
	return types.NoTypeID, -1, false
}

// VariantFields returns the payload types of variant idx of the enum
// instance, substituted with the instance's type arguments.
func (t *Table) VariantFields(enum types.TypeID, idx uint32) ([]types.TypeID, bool) {
	ty, ok := t.In.Lookup(enum)
	if !ok || ty.Kind != types.KindNamed {
		return nil, false
	}
	a := t.Adts[ast.ItemID(ty.Def)]
	if a == nil || int(idx) >= len(a.Variants) {
		return nil, false
	}
	out := make([]types.TypeID, len(a.Variants[idx]))
	for i, f := range a.Variants[idx] {
		out[i] = t.In.SubstParams(f, ty.Def, ty.Elems)
	}
	return out, true
}

// ItemName implements types.Names.
func (t *Table) ItemName(def uint32) string {
	return t.Mod.ItemName(ast.ItemID(def))
}

// ParamName implements types.Names.
func (t *Table) ParamName(owner, index uint32) string {
	if index == types.SelfIndex {
		return "Self"
	}
	it := t.Mod.Item(ast.ItemID(owner))
	if it == nil || int(index) >= len(it.Generics) {
		return fmt.Sprintf("T%d", index)
	}
	return t.Mod.Name(it.Generics[index].Name)
}

// Printer renders types with this module's names.
func (t *Table) Printer() types.Printer {
	return types.Printer{In: t.In, Names: t}
}
