package traits

import (
	"vais/internal/ast"
	"vais/internal/sig"
	"vais/internal/source"
	"vais/internal/types"
	"vais/internal/unify"
)

// SafetyViolation explains why a trait method prevents `dyn Trait`.
type SafetyViolation struct {
	Method ast.ItemID
	Reason string
	Span   source.Span
}

// ObjectSafe returns the reasons trait cannot be used as a trait object;
// an empty result means it can.
func (r *Registry) ObjectSafe(trait ast.ItemID) []SafetyViolation {
	return r.safety[trait]
}

func (r *Registry) computeSafety(trait ast.ItemID) []SafetyViolation {
	tr := r.traits[trait]
	if tr == nil {
		return nil
	}
	self := r.in.Param(uint32(trait), types.SelfIndex)
	mentionsSelf := func(id types.TypeID) bool {
		return r.in.Contains(id, func(cur types.TypeID, _ types.Type) bool { return cur == self })
	}
	var out []SafetyViolation
	for _, m := range tr.Order {
		fs := r.tab.Fns[m]
		if fs == nil {
			continue
		}
		sp := r.mod.Item(m).Span
		add := func(reason string) {
			out = append(out, SafetyViolation{Method: m, Reason: reason, Span: sp})
		}
		switch fs.Receiver {
		case ast.RecvNone:
			add("associated function `" + r.mod.ItemName(m) + "` has no `self` receiver")
		case ast.RecvValue:
			add("method `" + r.mod.ItemName(m) + "` takes `self` by value")
		}
		if len(fs.Generics) > 0 {
			add("method `" + r.mod.ItemName(m) + "` has generic type parameters")
		}
		for _, p := range fs.Params {
			if mentionsSelf(p) {
				add("method `" + r.mod.ItemName(m) + "` references `Self` in its parameters")
				break
			}
		}
		if mentionsSelf(fs.Ret) {
			add("method `" + r.mod.ItemName(m) + "` returns `Self`")
		}
	}
	return out
}

// Slot is one vtable entry. Method is NoItemID when the impl lacks a
// required method (already reported by Build).
type Slot struct {
	Name    string
	Method  ast.ItemID
	Default bool // trait's default body
}

// VTable is the dispatch table of one (trait, impl) pair. Slots follow
// the trait's declaration order.
type VTable struct {
	Trait ast.ItemID
	Impl  *Impl
	Slots []Slot
}

// Slot returns the entry for the named method.
func (vt *VTable) Slot(name string) (int, Slot, bool) {
	for i, s := range vt.Slots {
		if s.Name == name {
			return i, s, true
		}
	}
	return -1, Slot{}, false
}

// DynValue describes a trait object: the erased data type and the table
// its calls go through.
type DynValue struct {
	Data  types.TypeID
	Table *VTable
}

func (r *Registry) buildVTable(im *Impl) *VTable {
	tr := r.traits[im.Trait]
	vt := &VTable{Trait: im.Trait, Impl: im}
	if tr == nil {
		return vt
	}
	for _, m := range tr.Order {
		name := r.mod.ItemName(m)
		slot := Slot{Name: name}
		if own, ok := im.Methods[name]; ok {
			slot.Method = own
		} else if r.mod.Item(m).Fn.Body.IsValid() {
			slot.Method = m
			slot.Default = true
		}
		vt.Slots = append(vt.Slots, slot)
	}
	return vt
}

// VTables lists all dispatch tables in impl order.
func (r *Registry) VTables() []*VTable {
	out := make([]*VTable, 0, len(r.vtables))
	for _, im := range r.impls {
		if vt := r.vtables[im.ID]; vt != nil {
			out = append(out, vt)
		}
	}
	return out
}

// Unsize checks the coercion of a value of type data into `dyn trait<args>`
// and returns the table the object will use.
func (r *Registry) Unsize(s *unify.Substitution, data types.TypeID, trait ast.ItemID, args []types.TypeID) (DynValue, error) {
	if v := r.safety[trait]; len(v) > 0 {
		return DynValue{}, &NotObjectSafeError{Trait: trait, Violations: v}
	}
	data = s.Resolve(data)
	if tt, ok := r.in.Lookup(data); ok && tt.Kind == types.KindDyn && ast.ItemID(tt.Def) == trait {
		return DynValue{Data: data}, nil
	}
	if err := r.Satisfies(s, data, sig.Bound{Trait: trait, Args: args}); err != nil {
		return DynValue{}, err
	}
	var matches []*Impl
	for _, im := range r.byTrait[trait] {
		if s.Probe(func() error {
			_, err := r.matchImpl(s, im, data, args, 0)
			return err
		}) == nil {
			matches = append(matches, im)
		}
	}
	var chosen *Impl
	switch len(matches) {
	case 0:
		// параметр с ограничением: таблица станет известна при мономорфизации
		return DynValue{Data: s.Apply(data)}, nil
	case 1:
		chosen = matches[0]
	default:
		chosen = r.mostSpecific(matches)
	}
	if chosen == nil {
		return DynValue{Data: s.Apply(data)}, nil
	}
	return DynValue{Data: s.Apply(data), Table: r.vtables[chosen.ID]}, nil
}
