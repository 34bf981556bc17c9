package types

// Children returns the direct component types of t in a fixed order.
func (t Type) Children() []TypeID {
	switch t.Kind {
	case KindRef, KindArray:
		return []TypeID{t.Elem}
	case KindFn:
		out := make([]TypeID, 0, len(t.Elems)+1)
		out = append(out, t.Elems...)
		return append(out, t.Elem)
	case KindNamed, KindTuple, KindDyn:
		return t.Elems
	}
	return nil
}

// Contains reports whether pred holds for id or any type nested in it.
func (in *Interner) Contains(id TypeID, pred func(TypeID, Type) bool) bool {
	stack := []TypeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t, ok := in.Lookup(cur)
		if !ok {
			continue
		}
		if pred(cur, t) {
			return true
		}
		stack = append(stack, t.Children()...)
	}
	return false
}

// HasVars reports whether an inference variable is reachable from id.
func (in *Interner) HasVars(id TypeID) bool {
	return in.Contains(id, func(_ TypeID, t Type) bool { return t.Kind == KindVar })
}

// HasError reports whether the error sentinel is reachable from id.
func (in *Interner) HasError(id TypeID) bool {
	return in.Contains(id, func(_ TypeID, t Type) bool { return t.Kind == KindError })
}

// HasRefs reports whether id holds a reference anywhere.
func (in *Interner) HasRefs(id TypeID) bool {
	return in.Contains(id, func(_ TypeID, t Type) bool { return t.Kind == KindRef })
}

// Map rebuilds id bottom-up. f is consulted first for every node; when it
// returns ok the node is replaced and its children are not visited.
func (in *Interner) Map(id TypeID, f func(TypeID, Type) (TypeID, bool)) TypeID {
	t, ok := in.Lookup(id)
	if !ok {
		return id
	}
	if repl, ok := f(id, t); ok {
		return repl
	}
	switch t.Kind {
	case KindRef, KindArray:
		elem := in.Map(t.Elem, f)
		if elem == t.Elem {
			return id
		}
		t.Elem = elem
		return in.Intern(t)
	case KindFn, KindNamed, KindTuple, KindDyn:
		changed := false
		elems := make([]TypeID, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = in.Map(e, f)
			changed = changed || elems[i] != e
		}
		ret := t.Elem
		if t.Kind == KindFn {
			ret = in.Map(t.Elem, f)
			changed = changed || ret != t.Elem
		}
		if !changed {
			return id
		}
		t.Elems, t.Elem = elems, ret
		return in.Intern(t)
	}
	return id
}

// SubstParams replaces generic parameters of owner (by index) with args.
// Indices outside args are left alone.
func (in *Interner) SubstParams(id TypeID, owner uint32, args []TypeID) TypeID {
	if len(args) == 0 {
		return id
	}
	return in.Map(id, func(_ TypeID, t Type) (TypeID, bool) {
		if t.Kind == KindParam && t.Def == owner && int(t.Index) < len(args) {
			return args[t.Index], true
		}
		return NoTypeID, false
	})
}

// EraseRegions drops lifetime information from every reference.
func (in *Interner) EraseRegions(id TypeID) TypeID {
	return in.Map(id, func(_ TypeID, t Type) (TypeID, bool) {
		if t.Kind == KindRef && t.Region != RegionErased {
			return in.Ref(in.EraseRegions(t.Elem), t.Mutable), true
		}
		return NoTypeID, false
	})
}
