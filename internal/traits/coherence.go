package traits

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/sig"
	"vais/internal/source"
	"vais/internal/types"
	"vais/internal/unify"
)

// implInst is an impl with its type parameters replaced by fresh variables.
type implInst struct {
	target    types.TypeID
	traitArgs []types.TypeID
	vars      []types.TypeID
	subst     map[unify.ParamKey]types.TypeID
}

func (r *Registry) instantiateImpl(s *unify.Substitution, im *Impl) implInst {
	inst := implInst{subst: make(map[unify.ParamKey]types.TypeID, len(im.Generics))}
	for _, k := range im.Generics {
		v := s.Fresh(unify.VarGeneral, im.Span)
		inst.vars = append(inst.vars, v)
		inst.subst[k] = v
	}
	inst.target = s.Subst(im.Target, inst.subst)
	for _, a := range im.TraitArgs {
		inst.traitArgs = append(inst.traitArgs, s.Subst(a, inst.subst))
	}
	return inst
}

func (r *Registry) checkCoherence(rep diag.Reporter) {
	for _, tr := range r.order {
		impls := r.byTrait[tr]
		for j := 1; j < len(impls); j++ {
			for i := 0; i < j; i++ {
				a, b := impls[i], impls[j]
				if !r.overlap(a, b) {
					continue
				}
				if a.Default != b.Default {
					continue // ровно один переопределяемый
				}
				diag.ReportError(rep, diag.ConflictingImpls, b.Span,
					fmt.Sprintf("conflicting implementations of trait %s for %s",
						r.mod.ItemName(tr), r.tab.Printer().String(b.Target))).
					WithNote(a.Span, "first implementation here").Emit()
			}
		}
	}
	// inherent impls may overlap but must not define the same method twice
	for j := 1; j < len(r.inherent); j++ {
		for i := 0; i < j; i++ {
			a, b := r.inherent[i], r.inherent[j]
			if !r.overlap(a, b) {
				continue
			}
			for _, m := range b.Methods {
				name := r.mod.ItemName(m)
				prev, dup := a.Methods[name]
				if !dup {
					continue
				}
				diag.ReportError(rep, diag.ConflictingImpls, r.mod.Item(m).Span,
					fmt.Sprintf("duplicate definitions with name %q", name)).
					WithNote(r.mod.Item(prev).Span, "other definition here").Emit()
			}
		}
	}
}

// overlap reports whether some type could match both impls.
func (r *Registry) overlap(a, b *Impl) bool {
	s := unify.NewSubstitution(r.in)
	ia := r.instantiateImpl(s, a)
	ib := r.instantiateImpl(s, b)
	if s.Unify(ia.target, ib.target) != nil {
		return false
	}
	for i := range ia.traitArgs {
		if i < len(ib.traitArgs) && s.Unify(ia.traitArgs[i], ib.traitArgs[i]) != nil {
			return false
		}
	}
	return !r.negDisjoint(s, a, ia, b, ib) && !r.negDisjoint(s, b, ib, a, ia)
}

// negDisjoint reports whether a negative bound of x rules out the common
// instance: either the unified type is known to implement the excluded
// trait, or the other impl requires that trait of the same type.
func (r *Registry) negDisjoint(s *unify.Substitution, x *Impl, ix implInst, y *Impl, iy implInst) bool {
	for k, key := range x.Generics {
		negs := r.tab.NegBounds(key)
		if len(negs) == 0 {
			continue
		}
		got := s.Apply(ix.vars[k])
		for _, neg := range negs {
			if !r.in.HasVars(got) && r.implements(got, neg, 0) {
				return true
			}
			for g, ykey := range y.Generics {
				if s.Apply(iy.vars[g]) != got {
					continue
				}
				for _, pb := range r.tab.Bounds(ykey) {
					if pb.Trait == neg {
						return true
					}
				}
			}
		}
	}
	return false
}

// implements is a closed-world query on a type without variables.
func (r *Registry) implements(t types.TypeID, trait ast.ItemID, depth int) bool {
	s := unify.NewSubstitution(r.in)
	var args []types.TypeID
	if tr := r.traits[trait]; tr != nil {
		for i := 0; i < tr.Generics; i++ {
			args = append(args, s.Fresh(unify.VarGeneral, source.NoSpan))
		}
	}
	return r.satisfies(s, t, sig.Bound{Trait: trait, Args: args}, depth)
}

// moreSpecific reports whether every instance of a is an instance of b but
// not the other way round.
func (r *Registry) moreSpecific(a, b *Impl) bool {
	return r.covers(b, a) && !r.covers(a, b)
}

// covers reports whether general matches every instance of special. The
// parameters of special stay rigid.
func (r *Registry) covers(general, special *Impl) bool {
	s := unify.NewSubstitution(r.in)
	ig := r.instantiateImpl(s, general)
	if s.Unify(ig.target, special.Target) != nil {
		return false
	}
	for i := range ig.traitArgs {
		if i < len(special.TraitArgs) && s.Unify(ig.traitArgs[i], special.TraitArgs[i]) != nil {
			return false
		}
	}
	return true
}

// matchImpl unifies the impl's target with t (and trait arguments with args
// when given) and checks the impl's own bounds.
func (r *Registry) matchImpl(s *unify.Substitution, im *Impl, t types.TypeID, args []types.TypeID, depth int) (implInst, error) {
	inst := r.instantiateImpl(s, im)
	if err := s.Unify(inst.target, t); err != nil {
		return inst, err
	}
	for i := range args {
		if i < len(inst.traitArgs) {
			if err := s.Unify(inst.traitArgs[i], args[i]); err != nil {
				return inst, err
			}
		}
	}
	for k, key := range im.Generics {
		for _, pb := range r.tab.Bounds(key) {
			b := sig.Bound{Trait: pb.Trait, Span: pb.Span}
			for _, a := range pb.Args {
				b.Args = append(b.Args, s.Subst(r.in.EraseRegions(a), inst.subst))
			}
			if !r.satisfies(s, inst.vars[k], b, depth+1) {
				return inst, &UnsatisfiedBoundError{Type: s.Apply(inst.vars[k]), Trait: pb.Trait}
			}
		}
		for _, neg := range r.tab.NegBounds(key) {
			got := s.Apply(inst.vars[k])
			if !r.in.HasVars(got) && r.implements(got, neg, depth+1) {
				return inst, &UnsatisfiedBoundError{Type: got, Trait: neg}
			}
		}
	}
	return inst, nil
}

// Satisfies checks that t implements b, binding variables in b.Args (and
// in t) when exactly one way to satisfy the bound exists.
func (r *Registry) Satisfies(s *unify.Substitution, t types.TypeID, b sig.Bound) error {
	if r.satisfies(s, t, b, 0) {
		return nil
	}
	args := make([]types.TypeID, len(b.Args))
	for i, a := range b.Args {
		args[i] = s.Apply(a)
	}
	return &UnsatisfiedBoundError{Type: s.Apply(t), Trait: b.Trait, Args: args}
}

func (r *Registry) satisfies(s *unify.Substitution, t types.TypeID, b sig.Bound, depth int) bool {
	if depth > maxBoundDepth {
		return false
	}
	t = s.Resolve(t)
	tt, ok := r.in.Lookup(t)
	if !ok {
		return false
	}
	unifyArgs := func(have []types.TypeID) error {
		for i := range b.Args {
			if i >= len(have) {
				break
			}
			if err := s.Unify(have[i], b.Args[i]); err != nil {
				return err
			}
		}
		return nil
	}
	switch tt.Kind {
	case types.KindError:
		return true
	case types.KindParam:
		if tt.Index == types.SelfIndex && ast.ItemID(tt.Def) == b.Trait {
			tr := r.traits[b.Trait]
			if tr == nil {
				return false
			}
			own := make([]types.TypeID, tr.Generics)
			for i := range own {
				own[i] = r.in.Param(uint32(b.Trait), uint32(i)) // #nosec G115
			}
			return unifyArgs(own) == nil
		}
		for _, pb := range r.tab.Bounds(unify.ParamKey{Owner: tt.Def, Index: tt.Index}) {
			if pb.Trait != b.Trait {
				continue
			}
			have := make([]types.TypeID, len(pb.Args))
			for i, a := range pb.Args {
				have[i] = r.in.EraseRegions(a)
			}
			if s.Probe(func() error { return unifyArgs(have) }) == nil {
				return unifyArgs(have) == nil
			}
		}
		return false
	case types.KindDyn:
		if ast.ItemID(tt.Def) == b.Trait {
			return unifyArgs(tt.Elems) == nil
		}
	}

	var matches []*Impl
	for _, im := range r.byTrait[b.Trait] {
		err := s.Probe(func() error {
			_, err := r.matchImpl(s, im, t, b.Args, depth)
			return err
		})
		if err == nil {
			matches = append(matches, im)
		}
	}
	switch len(matches) {
	case 0:
		return false
	case 1:
		_, err := r.matchImpl(s, matches[0], t, b.Args, depth)
		return err == nil
	}
	best := r.mostSpecific(matches)
	if best != nil && !r.in.HasVars(s.Apply(t)) {
		_, err := r.matchImpl(s, best, t, b.Args, depth)
		return err == nil
	}
	// несколько кандидатов при неизвестном типе: решит вызывающая сторона
	return true
}

// mostSpecific picks the single impl no other impl beats, or nil.
func (r *Registry) mostSpecific(impls []*Impl) *Impl {
	var best []*Impl
	for _, c := range impls {
		beaten := false
		for _, d := range impls {
			if d != c && r.beats(d, c) {
				beaten = true
				break
			}
		}
		if !beaten {
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0]
	}
	return nil
}

// beats orders impls: concrete over blanket, then non-default over default.
func (r *Registry) beats(d, c *Impl) bool {
	if r.moreSpecific(d, c) {
		return true
	}
	if r.moreSpecific(c, d) {
		return false
	}
	return !d.Default && c.Default
}
