package unify

import (
	"fmt"

	"fortio.org/safecast"

	"vais/internal/source"
	"vais/internal/types"
)

// VarKind restricts what a variable may be bound to.
type VarKind uint8

const (
	VarGeneral VarKind = iota
	VarInt             // integer literal, defaults to i64
	VarFloat           // float literal, defaults to f64
)

func (k VarKind) String() string {
	switch k {
	case VarInt:
		return "{integer}"
	case VarFloat:
		return "{float}"
	}
	return "_"
}

// Substitution is a union-find over the type variables of one body. Roots
// carry the bound type, if any. Bindings are acyclic: bind runs an occurs
// check first. There is no path compression so that every mutation can be
// recorded on the trail and undone by Rollback.
type Substitution struct {
	in     *types.Interner
	parent []uint32
	size   []uint32
	bound  []types.TypeID
	kind   []VarKind
	origin []source.Span
	trail  []undo
}

type undoOp uint8

const (
	undoBind undoOp = iota + 1
	undoUnion
)

type undo struct {
	op       undoOp
	v        uint32 // bound root, or the root that was attached
	into     uint32 // union: new root
	prevKind VarKind
}

// Snapshot marks a point that Rollback can return to.
type Snapshot struct {
	trail int
	vars  int
}

func NewSubstitution(in *types.Interner) *Substitution {
	return &Substitution{in: in}
}

func (s *Substitution) Interner() *types.Interner { return s.in }

// Fresh creates a new unbound variable.
func (s *Substitution) Fresh(kind VarKind, origin source.Span) types.TypeID {
	n, err := safecast.Conv[uint32](len(s.parent))
	if err != nil {
		panic(fmt.Errorf("type variable overflow: %w", err))
	}
	s.parent = append(s.parent, n)
	s.size = append(s.size, 1)
	s.bound = append(s.bound, types.NoTypeID)
	s.kind = append(s.kind, kind)
	s.origin = append(s.origin, origin)
	return s.in.Var(n)
}

// Vars reports how many variables were created.
func (s *Substitution) Vars() int { return len(s.parent) }

func (s *Substitution) find(v uint32) uint32 {
	for s.parent[v] != v {
		v = s.parent[v]
	}
	return v
}

func (s *Substitution) varOf(id types.TypeID) (uint32, bool) {
	t, ok := s.in.Lookup(id)
	if !ok || t.Kind != types.KindVar || int(t.Index) >= len(s.parent) {
		return 0, false
	}
	return t.Index, true
}

// Resolve follows variable bindings at the top level only.
func (s *Substitution) Resolve(id types.TypeID) types.TypeID {
	for {
		v, ok := s.varOf(id)
		if !ok {
			return id
		}
		root := s.find(v)
		if s.bound[root] == types.NoTypeID {
			return s.in.Var(root)
		}
		id = s.bound[root]
	}
}

// Apply resolves every variable inside id. Unbound variables are replaced by
// their root so equal classes print and compare equal.
func (s *Substitution) Apply(id types.TypeID) types.TypeID {
	return s.in.Map(id, func(cur types.TypeID, t types.Type) (types.TypeID, bool) {
		if t.Kind != types.KindVar {
			return types.NoTypeID, false
		}
		r := s.Resolve(cur)
		if _, isVar := s.varOf(r); isVar {
			return r, true
		}
		return s.Apply(r), true
	})
}

// KindOf returns the kind of the class of an unbound variable.
func (s *Substitution) KindOf(id types.TypeID) (VarKind, bool) {
	v, ok := s.varOf(s.Resolve(id))
	if !ok {
		return VarGeneral, false
	}
	return s.kind[s.find(v)], true
}

// Origin is the span that created the variable behind id.
func (s *Substitution) Origin(id types.TypeID) source.Span {
	v, ok := s.varOf(id)
	if !ok {
		return source.Span{}
	}
	return s.origin[v]
}

// Snapshot records the current state for trial unification.
func (s *Substitution) Snapshot() Snapshot {
	return Snapshot{trail: len(s.trail), vars: len(s.parent)}
}

// Rollback undoes every bind, union and variable created since snap.
func (s *Substitution) Rollback(snap Snapshot) {
	for i := len(s.trail) - 1; i >= snap.trail; i-- {
		u := s.trail[i]
		switch u.op {
		case undoBind:
			s.bound[u.v] = types.NoTypeID
		case undoUnion:
			s.parent[u.v] = u.v
			s.size[u.into] -= s.size[u.v]
			s.kind[u.into] = u.prevKind
		}
	}
	s.trail = s.trail[:snap.trail]
	s.parent = s.parent[:snap.vars]
	s.size = s.size[:snap.vars]
	s.bound = s.bound[:snap.vars]
	s.kind = s.kind[:snap.vars]
	s.origin = s.origin[:snap.vars]
}

// Probe runs f and rolls back whatever it did, returning f's error.
func (s *Substitution) Probe(f func() error) error {
	snap := s.Snapshot()
	defer s.Rollback(snap)
	return f()
}

func (s *Substitution) bindRoot(root uint32, t types.TypeID) {
	s.bound[root] = t
	s.trail = append(s.trail, undo{op: undoBind, v: root})
}

func (s *Substitution) union(a, b uint32, kind VarKind) {
	if s.size[a] < s.size[b] {
		a, b = b, a
	}
	s.trail = append(s.trail, undo{op: undoUnion, v: b, into: a, prevKind: s.kind[a]})
	s.parent[b] = a
	s.size[a] += s.size[b]
	s.kind[a] = kind
}

// occurs reports whether root appears inside t after applying bindings.
func (s *Substitution) occurs(root uint32, t types.TypeID) bool {
	return s.in.Contains(s.Apply(t), func(_ types.TypeID, tt types.Type) bool {
		return tt.Kind == types.KindVar && int(tt.Index) < len(s.parent) && s.find(tt.Index) == root
	})
}

// Unresolved lists the distinct unbound variables left in id.
func (s *Substitution) Unresolved(id types.TypeID) []types.TypeID {
	var out []types.TypeID
	seen := map[types.TypeID]struct{}{}
	s.in.Contains(s.Apply(id), func(cur types.TypeID, t types.Type) bool {
		if t.Kind == types.KindVar {
			if _, ok := seen[cur]; !ok {
				seen[cur] = struct{}{}
				out = append(out, cur)
			}
		}
		return false
	})
	return out
}

// DefaultLiterals binds every unbound integer literal class to i64 and every
// float literal class to f64. It returns how many classes were defaulted.
func (s *Substitution) DefaultLiterals() int {
	b := s.in.Builtins()
	n := 0
	for v := range s.parent {
		root := uint32(v) // #nosec G115 -- bounded by Fresh
		if s.parent[root] != root || s.bound[root] != types.NoTypeID {
			continue
		}
		switch s.kind[root] {
		case VarInt:
			s.bindRoot(root, b.I64)
			n++
		case VarFloat:
			s.bindRoot(root, b.F64)
			n++
		}
	}
	return n
}
