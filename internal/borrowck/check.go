package borrowck

import (
	"fmt"
	"strings"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/ownership"
	"vais/internal/types"
)

// Region is the set of points where a loan may be live, ascending.
type Region []int

func (r Region) Contains(point int) bool { return has(r, point) }

// Overlaps reports whether the two regions share a point.
func (r Region) Overlaps(o Region) bool { return intersects(r, o) }

// Result is what the borrow checker computed for one body.
type Result struct {
	CFG      *CFG
	Liveness *Liveness
	Loans    []*Loan
}

// Check builds the CFG of fn, computes liveness and loan regions and
// reports conflicting borrows, writes and moves of borrowed places, and
// references to locals that escape through the return value.
func Check(mod *ast.Module, in *types.Interner, fn ast.ItemID, body Body, facts *ownership.Facts, rep diag.Reporter) *Result {
	c := BuildCFG(mod, in, fn, body, facts)
	lv := ComputeLiveness(c)
	computeRegions(c, lv)
	ck := &checker{mod: mod, cfg: c, rep: diag.NewDedupReporter(rep)}
	ck.loanConflicts()
	ck.accessConflicts()
	ck.escapes()
	return &Result{CFG: c, Liveness: lv, Loans: c.Loans}
}

// computeRegions grows each loan forward from its creation point through
// the points where something holding the reference is live on entry.
func computeRegions(c *CFG, lv *Liveness) {
	for _, l := range c.Loans {
		holders := c.Holders(l.Temp)
		pts := []int{l.Point}
		seen := map[int]bool{l.Point: true}
		queue := append([]int(nil), c.Succ(l.Point)...)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if seen[q] {
				continue
			}
			seen[q] = true
			if !intersects(lv.In[q], holders) {
				continue
			}
			pts = append(pts, q)
			queue = append(queue, c.Succ(q)...)
		}
		l.Region = Region(sortedSet(pts))
	}
}

type checker struct {
	mod *ast.Module
	cfg *CFG
	rep diag.Reporter
}

func (ck *checker) describe(p Place) string {
	name := ck.mod.LocalName(p.Local)
	if p.Path == "" {
		return name
	}
	segs := strings.Split(p.Path, ".")
	for i, s := range segs {
		switch s {
		case "*":
			if i == len(segs)-1 {
				name = "*" + name
			}
		case "[]":
			name += "[..]"
		default:
			name += "." + s
		}
	}
	return name
}

// lastUse finds the latest point of the region where a holder of l is
// read, for the "later used here" note.
func (ck *checker) lastUse(l *Loan) (int, bool) {
	holders := ck.cfg.Holders(l.Temp)
	for i := len(l.Region) - 1; i >= 0; i-- {
		q := l.Region[i]
		if q == l.Point {
			continue
		}
		if intersects(sortedSet(ck.cfg.Event(q).Uses), holders) {
			return q, true
		}
	}
	return 0, false
}

// loanConflicts reports each pair of overlapping loans, at least one of
// them unique, whose regions intersect. The later loan is blamed.
func (ck *checker) loanConflicts() {
	loans := ck.cfg.Loans
	for i, a := range loans {
		for _, b := range loans[i+1:] {
			if !a.Mut && !b.Mut {
				continue
			}
			if !a.Place.Overlaps(b.Place) || !a.Region.Overlaps(b.Region) {
				continue
			}
			first, second := a, b
			if b.Point < a.Point {
				first, second = b, a
			}
			ck.reportPair(first, second)
		}
	}
}

func (ck *checker) reportPair(first, second *Loan) {
	what := ck.describe(second.Place)
	var msg, firstNote string
	switch {
	case first.Mut && second.Mut:
		msg = fmt.Sprintf("cannot borrow `%s` as mutable more than once at a time", what)
		firstNote = "first mutable borrow occurs here"
	case second.Mut:
		msg = fmt.Sprintf("cannot borrow `%s` as mutable because it is also borrowed as immutable", what)
		firstNote = "immutable borrow occurs here"
	default:
		msg = fmt.Sprintf("cannot borrow `%s` as immutable because it is also borrowed as mutable", what)
		firstNote = "mutable borrow occurs here"
	}
	b := diag.ReportError(ck.rep, diag.BorrowConflict, second.Span, msg).WithNote(first.Span, firstNote)
	if q, ok := ck.lastUse(first); ok && q > second.Point {
		b = b.WithNote(ck.cfg.Event(q).Span, "first borrow later used here")
	}
	b.Emit()
}

func (ck *checker) accessConflicts() {
	for q := 0; q < ck.cfg.NumPoints(); q++ {
		ev := ck.cfg.Event(q)
		if ev.Kind != EvAccess {
			continue
		}
		for _, l := range ck.cfg.Loans {
			if l.Point == q || !l.Region.Contains(q) || !l.Place.Overlaps(ev.Place) {
				continue
			}
			what := ck.describe(ev.Place)
			borrowed := fmt.Sprintf("`%s` is borrowed here", ck.describe(l.Place))
			switch ev.Access {
			case AccessWrite:
				diag.ReportError(ck.rep, diag.AssignWhileBorrowed, ev.Span,
					fmt.Sprintf("cannot assign to `%s` because it is borrowed", what)).
					WithNote(l.Span, borrowed).Emit()
			case AccessMove:
				diag.ReportError(ck.rep, diag.MoveWhileBorrowed, ev.Span,
					fmt.Sprintf("cannot move out of `%s` because it is borrowed", what)).
					WithNote(l.Span, borrowed).Emit()
			case AccessRead:
				if !l.Mut {
					continue
				}
				diag.ReportError(ck.rep, diag.BorrowConflict, ev.Span,
					fmt.Sprintf("cannot use `%s` because it was mutably borrowed", what)).
					WithNote(l.Span, borrowed).Emit()
			}
		}
	}
}

// escapes reports loans of locals reachable from a returned value.
func (ck *checker) escapes() {
	for q := 0; q < ck.cfg.NumPoints(); q++ {
		ev := ck.cfg.Event(q)
		if ev.Kind != EvReturn || len(ev.Uses) == 0 {
			continue
		}
		uses := sortedSet(ev.Uses)
		for _, l := range ck.cfg.Loans {
			if l.Place.ThroughRef() || !intersects(ck.cfg.Holders(l.Temp), uses) {
				continue
			}
			diag.ReportError(ck.rep, diag.ReturnLocalRef, ev.Span,
				fmt.Sprintf("cannot return a reference to local `%s`", ck.describe(l.Place))).
				WithNote(l.Span, "borrowed here").Emit()
		}
	}
}
