package borrowck

import (
	"strings"

	"vais/internal/ast"
	"vais/internal/source"
)

// Place is a path rooted at a local. Path segments are field names or
// tuple indexes; "*" marks a dereference.
type Place struct {
	Local ast.LocalID
	Path  string
}

func isPrefix(a, b string) bool {
	return a == "" || a == b || strings.HasPrefix(b, a+".")
}

// Overlaps reports whether the two places may denote intersecting memory:
// one path is a prefix of the other.
func (p Place) Overlaps(q Place) bool {
	return p.Local == q.Local && (isPrefix(p.Path, q.Path) || isPrefix(q.Path, p.Path))
}

// ThroughRef reports whether the place is reached through a dereference.
func (p Place) ThroughRef() bool {
	return p.Path == "*" || strings.HasPrefix(p.Path, "*.") || strings.Contains(p.Path, ".*")
}

func (p Place) child(seg string) Place {
	if p.Path == "" {
		p.Path = seg
	} else {
		p.Path += "." + seg
	}
	return p
}

type EventKind uint8

const (
	EvNop EventKind = iota
	EvAccess
	EvBorrow
	EvDef    // value flows into Defs
	EvUse    // operands consumed by an operator or call
	EvReturn // value leaves the function
)

type AccessKind uint8

const (
	AccessRead AccessKind = iota + 1
	AccessWrite
	AccessMove
)

func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessMove:
		return "move"
	}
	return "access"
}

// Event is what happens at one program point. Uses and Defs drive
// liveness; Place and Access drive conflict detection.
type Event struct {
	Kind   EventKind
	Expr   ast.ExprID
	Span   source.Span
	Place  Place
	Access AccessKind
	Loan   int // EvBorrow: index into CFG.Loans
	Uses   []int
	Defs   []int
}

type BlockID int

type Block struct {
	ID     BlockID
	Events []Event
	Succs  []BlockID
	Preds  []BlockID
}

// Point addresses one event.
type Point struct {
	Block BlockID
	Index int
}

// VarInfo describes a dataflow variable: a local or a temporary holding an
// intermediate value.
type VarInfo struct {
	Local ast.LocalID // NoLocalID for temporaries
	Name  string
	Span  source.Span
}

// Loan is one borrow expression.
type Loan struct {
	ID     int
	Place  Place
	Mut    bool
	Expr   ast.ExprID
	Span   source.Span
	At     Point
	Point  int // global id of At
	Temp   int // var that receives the reference
	Region Region
}

// CFG is the control flow graph of one body. Every block holds at least
// one event, so every block has points.
type CFG struct {
	Blocks []*Block
	Entry  BlockID
	Exit   BlockID
	Vars   []VarInfo
	Loans  []*Loan

	flows  [][]int // flows[v]: vars that may receive v's value
	base   []int   // global id of each block's first point
	points []Point
}

func (c *CFG) NumPoints() int { return len(c.points) }

func (c *CFG) PointID(p Point) int { return c.base[p.Block] + p.Index }

func (c *CFG) Point(id int) Point { return c.points[id] }

// Event returns the event at global point id.
func (c *CFG) Event(id int) *Event {
	p := c.points[id]
	return &c.Blocks[p.Block].Events[p.Index]
}

// Succ lists the points that may execute right after id.
func (c *CFG) Succ(id int) []int {
	p := c.points[id]
	b := c.Blocks[p.Block]
	if p.Index+1 < len(b.Events) {
		return []int{id + 1}
	}
	out := make([]int, 0, len(b.Succs))
	for _, s := range b.Succs {
		out = append(out, c.base[s])
	}
	return out
}

// Holders returns the vars that may carry a value derived from v,
// v included, in ascending order.
func (c *CFG) Holders(v int) []int {
	seen := make([]bool, len(c.Vars))
	stack := []int{v}
	seen[v] = true
	var out []int
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		for _, w := range c.flows[cur] {
			if !seen[w] {
				seen[w] = true
				stack = append(stack, w)
			}
		}
	}
	return sortedSet(out)
}

func (c *CFG) finish() {
	for _, b := range c.Blocks {
		if len(b.Events) == 0 {
			b.Events = append(b.Events, Event{Kind: EvNop})
		}
		for _, s := range b.Succs {
			c.Blocks[s].Preds = append(c.Blocks[s].Preds, b.ID)
		}
	}
	c.base = make([]int, len(c.Blocks))
	for _, b := range c.Blocks {
		c.base[b.ID] = len(c.points)
		for i := range b.Events {
			c.points = append(c.points, Point{Block: b.ID, Index: i})
		}
	}
	for _, l := range c.Loans {
		l.Point = c.PointID(l.At)
	}
}
