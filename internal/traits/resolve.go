package traits

import (
	"sort"

	"vais/internal/ast"
	"vais/internal/types"
	"vais/internal/unify"
)

// maxAutoderef bounds the receiver dereference chain.
const maxAutoderef = 8

type MethodKind uint8

const (
	MethodInherent  MethodKind = iota + 1
	MethodTraitImpl            // via an impl of a visible trait
	MethodBound                // via a bound on a type parameter
	MethodDyn                  // through a trait object's vtable
)

func (k MethodKind) String() string {
	switch k {
	case MethodInherent:
		return "inherent"
	case MethodTraitImpl:
		return "trait impl"
	case MethodBound:
		return "bound"
	case MethodDyn:
		return "dyn"
	}
	return "method"
}

// MethodRef is a resolved method call target.
type MethodRef struct {
	Kind MethodKind
	// Method is the fn item whose signature applies: the impl's method, or
	// the trait's declaration for bounds, dyn and default bodies.
	Method ast.ItemID
	Trait  ast.ItemID
	Impl   *Impl
	// Recv is the receiver type after Derefs automatic dereferences.
	Recv   types.TypeID
	Derefs int
	// Subst maps the impl's and trait's parameters (Self included) to the
	// types chosen for this call.
	Subst map[unify.ParamKey]types.TypeID
}

type candidate struct {
	ref  MethodRef
	args []types.TypeID // trait arguments for impl candidates
}

// ResolveMethod finds the method name for a receiver of type recv.
// Lookup walks the autoderef chain; at each step inherent methods win over
// trait methods, bounds on parameters and dyn tables come next, and impls
// of visible traits last. Among impls the most specific non-default one
// is chosen. Variables in s are bound only for the chosen candidate.
func (r *Registry) ResolveMethod(s *unify.Substitution, recv types.TypeID, name string) (MethodRef, error) {
	t := s.Resolve(recv)
	var hidden []ast.ItemID
	for derefs := 0; derefs <= maxAutoderef; derefs++ {
		tt, ok := r.in.Lookup(t)
		if !ok {
			break
		}
		if tt.Kind == types.KindVar {
			if derefs == 0 {
				return MethodRef{}, &UnknownReceiverError{Name: name}
			}
			break
		}
		if tt.Kind == types.KindError {
			return MethodRef{}, &UnresolvedMethodError{Recv: t, Name: name}
		}
		cands, hid := r.candidates(s, t, tt, name)
		hidden = append(hidden, hid...)
		if len(cands) > 0 {
			ref, err := r.choose(s, t, name, cands)
			if err != nil {
				return MethodRef{}, err
			}
			ref.Derefs = derefs
			return ref, nil
		}
		if tt.Kind != types.KindRef {
			break
		}
		t = s.Resolve(tt.Elem)
	}
	return MethodRef{}, &UnresolvedMethodError{
		Recv:      s.Apply(recv),
		Name:      name,
		Hidden:    dedupItems(hidden),
		Available: r.methodNames(s, recv),
	}
}

// methodNames lists every method callable on recv through the same
// autoderef chain ResolveMethod walks.
func (r *Registry) methodNames(s *unify.Substitution, recv types.TypeID) []string {
	seen := make(map[string]struct{})
	addTrait := func(tr ast.ItemID) {
		if d := r.traits[tr]; d != nil {
			for name := range d.Methods {
				seen[name] = struct{}{}
			}
		}
	}
	t := s.Resolve(recv)
	for derefs := 0; derefs <= maxAutoderef; derefs++ {
		tt, ok := r.in.Lookup(t)
		if !ok || tt.Kind == types.KindVar || tt.Kind == types.KindError {
			break
		}
		for _, im := range r.inherent {
			if r.probeImpl(s, im, t) {
				for name := range im.Methods {
					seen[name] = struct{}{}
				}
			}
		}
		switch tt.Kind {
		case types.KindDyn:
			addTrait(ast.ItemID(tt.Def))
		case types.KindParam:
			if tt.Index == types.SelfIndex {
				addTrait(ast.ItemID(tt.Def))
			}
			for _, b := range r.tab.Bounds(unify.ParamKey{Owner: tt.Def, Index: tt.Index}) {
				addTrait(b.Trait)
			}
		}
		for _, tr := range r.order {
			if !r.mod.TraitVisible(tr) {
				continue
			}
			for _, im := range r.byTrait[tr] {
				if r.probeImpl(s, im, t) {
					addTrait(tr)
					break
				}
			}
		}
		if tt.Kind != types.KindRef {
			break
		}
		t = s.Resolve(tt.Elem)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) candidates(s *unify.Substitution, t types.TypeID, tt types.Type, name string) ([]candidate, []ast.ItemID) {
	var out []candidate
	for _, im := range r.inherent {
		m, ok := im.Methods[name]
		if !ok {
			continue
		}
		if r.probeImpl(s, im, t) {
			out = append(out, candidate{ref: MethodRef{Kind: MethodInherent, Method: m, Impl: im, Recv: t}})
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	switch tt.Kind {
	case types.KindParam:
		out = r.boundCandidates(tt, t, name)
		if len(out) > 0 {
			return out, nil
		}
	case types.KindDyn:
		if m, ok := r.TraitMethod(ast.ItemID(tt.Def), name); ok {
			ref := MethodRef{Kind: MethodDyn, Method: m, Trait: ast.ItemID(tt.Def), Recv: t,
				Subst: traitSubst(ast.ItemID(tt.Def), t, tt.Elems)}
			return []candidate{{ref: ref}}, nil
		}
	}

	var hidden []ast.ItemID
	for _, tr := range r.order {
		decl, ok := r.traits[tr].Methods[name]
		if !ok {
			continue
		}
		visible := r.mod.TraitVisible(tr)
		for _, im := range r.byTrait[tr] {
			if !r.probeImpl(s, im, t) {
				continue
			}
			if !visible {
				hidden = append(hidden, tr)
				continue
			}
			m := decl
			if own, ok := im.Methods[name]; ok {
				m = own
			}
			out = append(out, candidate{ref: MethodRef{Kind: MethodTraitImpl, Method: m, Trait: tr, Impl: im, Recv: t}})
		}
	}
	return out, hidden
}

func (r *Registry) boundCandidates(tt types.Type, t types.TypeID, name string) []candidate {
	var out []candidate
	if tt.Index == types.SelfIndex {
		tr := ast.ItemID(tt.Def)
		if m, ok := r.TraitMethod(tr, name); ok {
			var own []types.TypeID
			if d := r.traits[tr]; d != nil {
				for i := 0; i < d.Generics; i++ {
					own = append(own, r.in.Param(uint32(tr), uint32(i))) // #nosec G115
				}
			}
			out = append(out, candidate{ref: MethodRef{Kind: MethodBound, Method: m, Trait: tr, Recv: t, Subst: traitSubst(tr, t, own)}})
		}
		return out
	}
	for _, b := range r.tab.Bounds(unify.ParamKey{Owner: tt.Def, Index: tt.Index}) {
		m, ok := r.TraitMethod(b.Trait, name)
		if !ok {
			continue
		}
		args := make([]types.TypeID, len(b.Args))
		for i, a := range b.Args {
			args[i] = r.in.EraseRegions(a)
		}
		out = append(out, candidate{ref: MethodRef{Kind: MethodBound, Method: m, Trait: b.Trait, Recv: t, Subst: traitSubst(b.Trait, t, args)}})
	}
	return out
}

func (r *Registry) probeImpl(s *unify.Substitution, im *Impl, t types.TypeID) bool {
	return s.Probe(func() error {
		_, err := r.matchImpl(s, im, t, nil, 0)
		return err
	}) == nil
}

func (r *Registry) choose(s *unify.Substitution, t types.TypeID, name string, cands []candidate) (MethodRef, error) {
	if len(cands) > 1 {
		cands = r.rank(cands)
	}
	if len(cands) > 1 {
		refs := make([]MethodRef, len(cands))
		for i, c := range cands {
			refs[i] = c.ref
		}
		return MethodRef{}, &AmbiguousMethodError{Name: name, Candidates: refs}
	}
	ref := cands[0].ref
	if ref.Impl == nil {
		return ref, nil
	}
	inst, err := r.matchImpl(s, ref.Impl, t, nil, 0)
	if err != nil {
		return MethodRef{}, err
	}
	ref.Subst = inst.subst
	if !ref.Impl.Inherent() {
		for k, v := range traitSubst(ref.Impl.Trait, t, inst.traitArgs) {
			ref.Subst[k] = v
		}
	}
	for k, v := range ref.Subst {
		ref.Subst[k] = s.Apply(v)
	}
	return ref, nil
}

// rank drops candidates beaten by another impl candidate.
func (r *Registry) rank(cands []candidate) []candidate {
	var out []candidate
	for _, c := range cands {
		beaten := false
		for _, d := range cands {
			if d.ref.Impl == nil || c.ref.Impl == nil || d.ref.Impl == c.ref.Impl {
				continue
			}
			if d.ref.Trait == c.ref.Trait && r.beats(d.ref.Impl, c.ref.Impl) {
				beaten = true
				break
			}
		}
		if !beaten {
			out = append(out, c)
		}
	}
	return out
}

func dedupItems(ids []ast.ItemID) []ast.ItemID {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[ast.ItemID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
