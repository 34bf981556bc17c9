package ownership

import (
	"sort"

	"vais/internal/ast"
	"vais/internal/source"
)

// Move records an expression that moves a place out.
type Move struct {
	Expr  ast.ExprID
	Local ast.LocalID
	Path  string
	Span  source.Span
}

// Borrow records an expression that creates a reference to a place.
// Autoref borrows come from method receivers.
type Borrow struct {
	Expr    ast.ExprID
	Local   ast.LocalID
	Path    string
	Mut     bool
	Autoref bool
	Span    source.Span
}

// Facts is what the borrow checker needs from the ownership pass.
type Facts struct {
	Moves   map[ast.ExprID]Move
	Borrows map[ast.ExprID]Borrow
}

func newFacts() *Facts {
	return &Facts{
		Moves:   make(map[ast.ExprID]Move),
		Borrows: make(map[ast.ExprID]Borrow),
	}
}

// IsMove reports whether e moves its value out of a place.
func (f *Facts) IsMove(e ast.ExprID) bool {
	if f == nil {
		return false
	}
	_, ok := f.Moves[e]
	return ok
}

// SortedMoves lists moves in expression order.
func (f *Facts) SortedMoves() []Move {
	out := make([]Move, 0, len(f.Moves))
	for _, m := range f.Moves {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expr < out[j].Expr })
	return out
}

// SortedBorrows lists borrows in expression order.
func (f *Facts) SortedBorrows() []Borrow {
	out := make([]Borrow, 0, len(f.Borrows))
	for _, b := range f.Borrows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expr < out[j].Expr })
	return out
}
