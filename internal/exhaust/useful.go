package exhaust

import (
	"sort"

	"vais/internal/types"
)

// row is one line of the pattern matrix.
type row []Pat

type checker struct {
	info TypeInfo
}

// expandOr replaces rows whose head is an or-pattern by one row per
// alternative.
func expandOr(rows []row) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 || r[0].Kind != Or {
			out = append(out, r)
			continue
		}
		alts := make([]row, 0, len(r[0].Subs))
		for _, a := range r[0].Subs {
			nr := make(row, 0, len(r))
			nr = append(nr, a)
			alts = append(alts, append(nr, r[1:]...))
		}
		out = append(out, expandOr(alts)...)
	}
	return out
}

type interval struct{ lo, hi int64 }

// split cuts [lo, hi] at the boundaries of the given ranges so that every
// piece lies either inside or outside each of them.
func split(lo, hi int64, ranges []interval) []interval {
	cuts := []int64{lo}
	for _, r := range ranges {
		if r.hi < lo || r.lo > hi {
			continue
		}
		if r.lo > lo {
			cuts = append(cuts, r.lo)
		}
		if r.hi < hi {
			cuts = append(cuts, r.hi+1)
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	out := make([]interval, 0, len(cuts))
	for i, c := range cuts {
		if i > 0 && c == cuts[i-1] {
			continue
		}
		out = append(out, interval{lo: c, hi: hi})
		if n := len(out); n > 1 {
			out[n-2].hi = c - 1
		}
	}
	return out
}

func headRanges(rows []row) []interval {
	var out []interval
	for _, r := range rows {
		if r[0].Kind == Range {
			out = append(out, interval{r[0].Lo, r[0].Hi})
		}
	}
	return out
}

func covered(seg interval, ranges []interval) bool {
	for _, r := range ranges {
		if r.lo <= seg.lo && seg.hi <= r.hi {
			return true
		}
	}
	return false
}

// specialize keeps the rows that match constructor k, replacing their head
// by its sub-patterns.
func specialize(rows []row, k Pat, arity int) []row {
	var out []row
	for _, r := range rows {
		h := r[0]
		var subs []Pat
		switch {
		case h.Kind == Wild:
			subs = wilds(arity)
		case k.Kind == Ctor && h.Kind == Ctor && h.Ctor == k.Ctor:
			subs = make([]Pat, arity)
			copy(subs, h.Subs)
		case k.Kind == Range && h.Kind == Range && h.Lo <= k.Lo && k.Hi <= h.Hi:
		case k.Kind == Lit && h.Kind == Lit && h.Lit == k.Lit:
		default:
			continue
		}
		nr := make(row, 0, len(subs)+len(r)-1)
		nr = append(nr, subs...)
		out = append(out, append(nr, r[1:]...))
	}
	return out
}

// defaults keeps the rows with a wildcard head, dropping the head.
func defaults(rows []row, all bool) []row {
	var out []row
	for _, r := range rows {
		if all || r[0].Kind == Wild {
			out = append(out, r[1:])
		}
	}
	return out
}

// useful reports whether v matches a value that no row matches and returns
// such a value as a witness.
func (c *checker) useful(rows []row, v row, tys []types.TypeID) (row, bool) {
	if len(v) == 0 {
		return row{}, len(rows) == 0
	}
	rows = expandOr(rows)
	head := v[0]
	if head.Kind == Or {
		for _, alt := range head.Subs {
			nv := append(row{alt}, v[1:]...)
			if w, ok := c.useful(rows, nv, tys); ok {
				return w, true
			}
		}
		return nil, false
	}

	shape := c.info.Shape(tys[0])
	if shape.Kind == ShapeUnknown {
		w, ok := c.useful(defaults(rows, true), v[1:], tys[1:])
		if !ok {
			return nil, false
		}
		return append(row{{}}, w...), true
	}

	switch head.Kind {
	case Ctor, Lit:
		return c.tryCtor(rows, v, tys, shape, head)
	case Range:
		for _, seg := range split(head.Lo, head.Hi, headRanges(rows)) {
			if w, ok := c.tryCtor(rows, v, tys, shape, Pat{Kind: Range, Lo: seg.lo, Hi: seg.hi}); ok {
				return w, true
			}
		}
		return nil, false
	}

	ctors, complete := c.signature(shape, rows)
	if complete {
		for _, k := range ctors {
			if w, ok := c.tryCtor(rows, v, tys, shape, k); ok {
				return w, true
			}
		}
		return nil, false
	}
	w, ok := c.useful(defaults(rows, false), v[1:], tys[1:])
	if !ok {
		return nil, false
	}
	return append(row{c.missing(shape, rows)}, w...), true
}

// tryCtor checks usefulness under constructor k. A wildcard head is
// expanded to k with wildcard fields.
func (c *checker) tryCtor(rows []row, v row, tys []types.TypeID, shape Shape, k Pat) (row, bool) {
	arity := 0
	var fts []types.TypeID
	if k.Kind == Ctor {
		arity = shape.arity(k.Ctor)
		fts = shape.fieldTypes(k.Ctor)
	}
	subs := wilds(arity)
	if v[0].Kind == Ctor {
		copy(subs, v[0].Subs)
	}
	nv := make(row, 0, arity+len(v)-1)
	nv = append(append(nv, subs...), v[1:]...)
	ntys := make([]types.TypeID, 0, arity+len(tys)-1)
	ntys = append(append(ntys, fts...), tys[1:]...)

	w, ok := c.useful(specialize(rows, k, arity), nv, ntys)
	if !ok {
		return nil, false
	}
	built := k
	if k.Kind == Ctor {
		built.Subs = append([]Pat(nil), w[:arity]...)
	}
	return append(row{built}, w[arity:]...), true
}

// signature lists the constructors to try for a wildcard head and reports
// whether the heads of rows mention all of them.
func (c *checker) signature(shape Shape, rows []row) ([]Pat, bool) {
	switch shape.Kind {
	case ShapeProduct:
		return []Pat{{Kind: Ctor}}, true
	case ShapeBool, ShapeEnum:
		n := 2
		if shape.Kind == ShapeEnum {
			n = len(shape.Ctors)
		}
		seen := make([]bool, n)
		for _, r := range rows {
			if r[0].Kind == Ctor && r[0].Ctor < n {
				seen[r[0].Ctor] = true
			}
		}
		ctors := make([]Pat, 0, n)
		complete := true
		for i := 0; i < n; i++ {
			ctors = append(ctors, Pat{Kind: Ctor, Ctor: i})
			complete = complete && seen[i]
		}
		return ctors, complete
	case ShapeInt:
		ranges := headRanges(rows)
		segs := split(shape.Lo, shape.Hi, ranges)
		ctors := make([]Pat, 0, len(segs))
		complete := true
		for _, s := range segs {
			ctors = append(ctors, Pat{Kind: Range, Lo: s.lo, Hi: s.hi})
			complete = complete && covered(s, ranges)
		}
		return ctors, complete
	}
	return nil, false
}

// missing picks a constructor absent from the heads of rows. When no row
// names a constructor in this column any value is missing and `_` is shown.
func (c *checker) missing(shape Shape, rows []row) Pat {
	named := false
	for _, r := range rows {
		if r[0].Kind != Wild {
			named = true
			break
		}
	}
	if !named {
		return Pat{}
	}
	ctors, _ := c.signature(shape, rows)
	switch shape.Kind {
	case ShapeBool, ShapeEnum:
		for _, k := range ctors {
			used := false
			for _, r := range rows {
				if r[0].Kind == Ctor && r[0].Ctor == k.Ctor {
					used = true
					break
				}
			}
			if !used {
				k.Subs = wilds(shape.arity(k.Ctor))
				return k
			}
		}
	case ShapeInt:
		ranges := headRanges(rows)
		for _, k := range ctors {
			if !covered(interval{k.Lo, k.Hi}, ranges) {
				return k
			}
		}
	}
	return Pat{}
}
