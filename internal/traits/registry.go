package traits

import (
	"fmt"
	"sort"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/sig"
	"vais/internal/source"
	"vais/internal/types"
	"vais/internal/unify"
)

// maxBoundDepth limits recursive bound checking through generic impls.
const maxBoundDepth = 16

type Trait struct {
	ID       ast.ItemID
	Methods  map[string]ast.ItemID
	Order    []ast.ItemID
	Generics int
	Span     source.Span
}

func (t *Trait) methodNames() []string {
	names := make([]string, 0, len(t.Methods))
	for name := range t.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Impl is one registered impl block.
type Impl struct {
	ID        ast.ItemID
	Trait     ast.ItemID // NoItemID for inherent impls
	TraitArgs []types.TypeID
	Target    types.TypeID
	Generics  []unify.ParamKey
	Methods   map[string]ast.ItemID
	Default   bool
	Span      source.Span
}

func (im *Impl) Inherent() bool { return !im.Trait.IsValid() }

// Blanket reports whether the impl targets a bare type parameter.
func (im *Impl) Blanket(in *types.Interner) bool {
	return in.Kind(im.Target) == types.KindParam
}

// Registry holds every trait and impl of a module. It is built once by
// Build and only read afterwards, so body checkers share it freely.
type Registry struct {
	in  *types.Interner
	tab *sig.Table
	mod *ast.Module

	traits   map[ast.ItemID]*Trait
	order    []ast.ItemID // traits in item order
	impls    []*Impl
	byID     map[ast.ItemID]*Impl
	byTrait  map[ast.ItemID][]*Impl
	inherent []*Impl
	safety   map[ast.ItemID][]SafetyViolation
	vtables  map[ast.ItemID]*VTable
}

// Build registers all traits and impls, checks impls against their traits
// and runs the coherence check.
func Build(tab *sig.Table, rep diag.Reporter) *Registry {
	r := &Registry{
		in:      tab.In,
		tab:     tab,
		mod:     tab.Mod,
		traits:  make(map[ast.ItemID]*Trait),
		byID:    make(map[ast.ItemID]*Impl),
		byTrait: make(map[ast.ItemID][]*Impl),
		safety:  make(map[ast.ItemID][]SafetyViolation),
		vtables: make(map[ast.ItemID]*VTable),
	}
	for _, id := range r.mod.ItemIDs() {
		it := r.mod.Item(id)
		switch it.Kind {
		case ast.ItemTrait:
			r.addTrait(id, it)
		case ast.ItemImpl:
			r.addImpl(id, it)
		}
	}
	for _, im := range r.impls {
		if !im.Inherent() {
			r.checkImplItems(im, rep)
		}
	}
	r.checkCoherence(rep)
	for _, id := range r.order {
		r.safety[id] = r.computeSafety(id)
	}
	for _, im := range r.impls {
		if !im.Inherent() && len(r.safety[im.Trait]) == 0 {
			r.vtables[im.ID] = r.buildVTable(im)
		}
	}
	return r
}

func (r *Registry) methodMap(ids []ast.ItemID) map[string]ast.ItemID {
	out := make(map[string]ast.ItemID, len(ids))
	for _, m := range ids {
		name := r.mod.ItemName(m)
		if _, dup := out[name]; !dup {
			out[name] = m
		}
	}
	return out
}

func (r *Registry) addTrait(id ast.ItemID, it *ast.Item) {
	r.traits[id] = &Trait{
		ID:       id,
		Methods:  r.methodMap(it.Methods),
		Order:    append([]ast.ItemID(nil), it.Methods...),
		Generics: len(it.Generics),
		Span:     it.Span,
	}
	r.order = append(r.order, id)
}

func (r *Registry) addImpl(id ast.ItemID, it *ast.Item) {
	is := r.tab.Impls[id]
	if is == nil {
		return
	}
	im := &Impl{
		ID:       id,
		Trait:    is.Trait,
		Target:   r.in.EraseRegions(is.Target),
		Generics: is.Generics,
		Methods:  r.methodMap(it.Methods),
		Default:  is.Default,
		Span:     is.Span,
	}
	for _, a := range is.TraitArgs {
		im.TraitArgs = append(im.TraitArgs, r.in.EraseRegions(a))
	}
	r.impls = append(r.impls, im)
	r.byID[id] = im
	if im.Inherent() {
		r.inherent = append(r.inherent, im)
	} else {
		r.byTrait[im.Trait] = append(r.byTrait[im.Trait], im)
	}
}

func (r *Registry) Trait(id ast.ItemID) *Trait { return r.traits[id] }
func (r *Registry) Impl(id ast.ItemID) *Impl   { return r.byID[id] }
func (r *Registry) Impls() []*Impl             { return r.impls }
func (r *Registry) Table() *sig.Table          { return r.tab }

// ImplsOf lists the impls of trait in item order.
func (r *Registry) ImplsOf(trait ast.ItemID) []*Impl { return r.byTrait[trait] }

// TraitMethod finds a method declared by trait.
func (r *Registry) TraitMethod(trait ast.ItemID, name string) (ast.ItemID, bool) {
	tr := r.traits[trait]
	if tr == nil {
		return ast.NoItemID, false
	}
	m, ok := tr.Methods[name]
	return m, ok
}

// traitSubst maps a trait's Self and parameters to concrete arguments.
func traitSubst(trait ast.ItemID, self types.TypeID, args []types.TypeID) map[unify.ParamKey]types.TypeID {
	m := make(map[unify.ParamKey]types.TypeID, len(args)+1)
	m[unify.ParamKey{Owner: uint32(trait), Index: types.SelfIndex}] = self
	for i, a := range args {
		m[unify.ParamKey{Owner: uint32(trait), Index: uint32(i)}] = a // #nosec G115
	}
	return m
}

func substParams(in *types.Interner, id types.TypeID, m map[unify.ParamKey]types.TypeID) types.TypeID {
	if len(m) == 0 {
		return id
	}
	return in.Map(id, func(_ types.TypeID, t types.Type) (types.TypeID, bool) {
		if t.Kind != types.KindParam {
			return types.NoTypeID, false
		}
		v, ok := m[unify.ParamKey{Owner: t.Def, Index: t.Index}]
		return v, ok
	})
}

// checkImplItems reports missing and unknown methods and signature
// mismatches of a trait impl.
func (r *Registry) checkImplItems(im *Impl, rep diag.Reporter) {
	tr := r.traits[im.Trait]
	if tr == nil {
		diag.ReportError(rep, diag.InternalError, im.Span, "impl names an item that is not a trait").Emit()
		return
	}
	var missing []string
	for _, m := range tr.Order {
		name := r.mod.ItemName(m)
		if _, ok := im.Methods[name]; ok {
			continue
		}
		if !r.mod.Item(m).Fn.Body.IsValid() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		b := diag.ReportError(rep, diag.MissingTraitMethod, im.Span,
			fmt.Sprintf("not all trait items implemented, missing: %s", joinQuoted(missing)))
		b.WithNote(tr.Span, "trait declared here").Emit()
	}

	subst := traitSubst(im.Trait, im.Target, im.TraitArgs)
	names := make([]string, 0, len(im.Methods))
	for name := range im.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := im.Methods[name]
		decl, ok := tr.Methods[name]
		if !ok {
			b := diag.ReportError(rep, diag.UnknownTraitMethod, r.mod.Item(m).Span,
				fmt.Sprintf("method %q is not a member of trait %s", name, r.mod.ItemName(im.Trait)))
			if alt, ok := diag.SimilarName(name, tr.methodNames()); ok {
				b = b.WithFix(fmt.Sprintf("did you mean `%s`?", alt))
			}
			b.Emit()
			continue
		}
		r.compareSignatures(m, decl, subst, rep)
	}
}

func (r *Registry) compareSignatures(implFn, traitFn ast.ItemID, subst map[unify.ParamKey]types.TypeID, rep diag.Reporter) {
	got, want := r.tab.Fns[implFn], r.tab.Fns[traitFn]
	if got == nil || want == nil {
		return
	}
	sp := r.mod.Item(implFn).Span
	if got.Receiver != want.Receiver || len(got.Params) != len(want.Params) || len(got.Generics) != len(want.Generics) {
		diag.ReportError(rep, diag.TypeMismatch, sp,
			fmt.Sprintf("method %q has an incompatible signature for the trait", r.mod.ItemName(implFn))).
			WithNote(r.mod.Item(traitFn).Span, "trait method declared here").Emit()
		return
	}
	if len(want.Generics) > 0 {
		own := make(map[unify.ParamKey]types.TypeID, len(subst)+len(want.Generics))
		for k, v := range subst {
			own[k] = v
		}
		// собственные параметры сопоставляются по позиции
		for i, k := range want.Generics {
			own[k] = r.in.Param(got.Generics[i].Owner, got.Generics[i].Index)
		}
		subst = own
	}
	pr := r.tab.Printer()
	check := func(g, w types.TypeID) bool {
		exp := r.in.EraseRegions(substParams(r.in, w, subst))
		if exp == r.in.EraseRegions(g) {
			return true
		}
		diag.ReportError(rep, diag.TypeMismatch, sp,
			fmt.Sprintf("method %q: expected %s, found %s", r.mod.ItemName(implFn), pr.String(exp), pr.String(r.in.EraseRegions(g)))).
			WithNote(r.mod.Item(traitFn).Span, "trait method declared here").Emit()
		return false
	}
	for i := range want.Params {
		if !check(got.Params[i], want.Params[i]) {
			return
		}
	}
	check(got.Ret, want.Ret)
}

func joinQuoted(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += "`" + n + "`"
	}
	return out
}
