package unify

import (
	"vais/internal/source"
	"vais/internal/types"
)

// MismatchError reports two types that cannot be made equal. Expected and
// Found are the outermost types of the failed call; Inner* name the
// components that actually disagreed.
type MismatchError struct {
	Expected, Found           types.TypeID
	InnerExpected, InnerFound types.TypeID
	Mutability                bool // references differ only in mutability
}

func (e *MismatchError) Error() string {
	if e.Mutability {
		return "types differ in mutability"
	}
	return "mismatched types"
}

// InfiniteTypeError reports a binding that would make a type contain itself.
type InfiniteTypeError struct {
	Var, Type types.TypeID
}

func (e *InfiniteTypeError) Error() string { return "infinite type" }

// Unify makes a and b equal under s. It is symmetric: the order of the
// arguments only affects which side an error calls "expected". Regions on
// references are ignored; mutability must match exactly. The error sentinel
// unifies with everything.
func (s *Substitution) Unify(a, b types.TypeID) error {
	err := s.unify(a, b)
	if m, ok := err.(*MismatchError); ok {
		m.Expected, m.Found = s.Apply(a), s.Apply(b)
	}
	return err
}

// Unify is the package-level form of Substitution.Unify.
func Unify(s *Substitution, a, b types.TypeID) error {
	return s.Unify(a, b)
}

func (s *Substitution) mismatch(a, b types.TypeID) *MismatchError {
	return &MismatchError{InnerExpected: s.Apply(a), InnerFound: s.Apply(b)}
}

func (s *Substitution) unify(a, b types.TypeID) error {
	a, b = s.Resolve(a), s.Resolve(b)
	if a == b {
		return nil
	}
	ta, oka := s.in.Lookup(a)
	tb, okb := s.in.Lookup(b)
	if !oka || !okb {
		return s.mismatch(a, b)
	}
	va, aVar := s.varOf(a)
	vb, bVar := s.varOf(b)
	if ta.Kind == types.KindError || tb.Kind == types.KindError {
		// ошибка поглощает переменную, чтобы не плодить CannotInfer
		switch {
		case aVar && !bVar:
			s.bindRoot(s.find(va), b)
		case bVar && !aVar:
			s.bindRoot(s.find(vb), a)
		}
		return nil
	}
	switch {
	case aVar && bVar:
		return s.unionVars(s.find(va), s.find(vb), a, b)
	case aVar:
		return s.bindVar(s.find(va), a, b, tb)
	case bVar:
		return s.bindVar(s.find(vb), b, a, ta)
	}

	if ta.Kind != tb.Kind {
		return s.mismatch(a, b)
	}
	switch ta.Kind {
	case types.KindNamed, types.KindDyn:
		if ta.Def != tb.Def || len(ta.Elems) != len(tb.Elems) {
			return s.mismatch(a, b)
		}
		return s.unifyLists(ta.Elems, tb.Elems)
	case types.KindRef:
		if ta.Mutable != tb.Mutable {
			m := s.mismatch(a, b)
			m.Mutability = true
			return m
		}
		return s.unify(ta.Elem, tb.Elem)
	case types.KindFn:
		if len(ta.Elems) != len(tb.Elems) {
			return s.mismatch(a, b)
		}
		if err := s.unifyLists(ta.Elems, tb.Elems); err != nil {
			return err
		}
		return s.unify(ta.Elem, tb.Elem)
	case types.KindTuple:
		if len(ta.Elems) != len(tb.Elems) {
			return s.mismatch(a, b)
		}
		return s.unifyLists(ta.Elems, tb.Elems)
	case types.KindArray:
		if ta.Len != tb.Len {
			return s.mismatch(a, b)
		}
		return s.unify(ta.Elem, tb.Elem)
	}
	// prims and params are equal only by identity, checked above
	return s.mismatch(a, b)
}

func (s *Substitution) unifyLists(as, bs []types.TypeID) error {
	for i := range as {
		if err := s.unify(as[i], bs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Substitution) unionVars(ra, rb uint32, a, b types.TypeID) error {
	if ra == rb {
		return nil
	}
	ka, kb := s.kind[ra], s.kind[rb]
	kind := ka
	switch {
	case ka == kb:
	case ka == VarGeneral:
		kind = kb
	case kb == VarGeneral:
	default:
		return s.mismatch(a, b)
	}
	s.union(ra, rb, kind)
	return nil
}

func (s *Substitution) bindVar(root uint32, v, t types.TypeID, tt types.Type) error {
	switch s.kind[root] {
	case VarInt:
		if tt.Kind != types.KindPrim || !tt.Prim.IsInteger() {
			return s.mismatch(v, t)
		}
	case VarFloat:
		if tt.Kind != types.KindPrim || !tt.Prim.IsFloat() {
			return s.mismatch(v, t)
		}
	}
	if s.occurs(root, t) {
		return &InfiniteTypeError{Var: s.in.Var(root), Type: s.Apply(t)}
	}
	s.bindRoot(root, t)
	return nil
}

// Coerce checks a value of type found at a site that expects expected.
// Beyond Unify it accepts `!` anywhere and `&mut T` where `&T` is expected.
func (s *Substitution) Coerce(expected, found types.TypeID) error {
	e, f := s.Resolve(expected), s.Resolve(found)
	te, _ := s.in.Lookup(e)
	tf, _ := s.in.Lookup(f)
	if tf.Kind == types.KindPrim && tf.Prim == types.PrimNever {
		return nil
	}
	if te.Kind == types.KindRef && tf.Kind == types.KindRef && !te.Mutable && tf.Mutable {
		if err := s.unify(te.Elem, tf.Elem); err != nil {
			if m, ok := err.(*MismatchError); ok {
				m.Expected, m.Found = s.Apply(expected), s.Apply(found)
			}
			return err
		}
		return nil
	}
	return s.Unify(expected, found)
}

// ParamKey names one generic parameter: index Index of item Owner.
type ParamKey struct {
	Owner, Index uint32
}

// Scheme is a generic signature: Type mentions the quantified Params.
type Scheme struct {
	Params []ParamKey
	Type   types.TypeID
}

// Instantiate replaces each quantified parameter with a fresh variable and
// returns the instantiated type along with the variables in Params order.
func (s *Substitution) Instantiate(sc Scheme, origin source.Span) (types.TypeID, []types.TypeID) {
	if len(sc.Params) == 0 {
		return sc.Type, nil
	}
	vars := make([]types.TypeID, len(sc.Params))
	lookup := make(map[ParamKey]types.TypeID, len(sc.Params))
	for i, p := range sc.Params {
		vars[i] = s.Fresh(VarGeneral, origin)
		lookup[p] = vars[i]
	}
	return s.Subst(sc.Type, lookup), vars
}

// Subst replaces generic parameters found in m.
func (s *Substitution) Subst(id types.TypeID, m map[ParamKey]types.TypeID) types.TypeID {
	if len(m) == 0 {
		return id
	}
	return s.in.Map(id, func(_ types.TypeID, t types.Type) (types.TypeID, bool) {
		if t.Kind != types.KindParam {
			return types.NoTypeID, false
		}
		if v, ok := m[ParamKey{Owner: t.Def, Index: t.Index}]; ok {
			return v, true
		}
		return types.NoTypeID, false
	})
}
