package scope

import (
	"sort"

	"github.com/benbjohnson/immutable"

	"vais/internal/ast"
	"vais/internal/source"
	"vais/internal/types"
)

// Binding is one local in scope.
type Binding struct {
	Local    ast.LocalID
	Name     string
	Type     types.TypeID
	Mutable  bool
	Declared source.Span
	State    MoveState
}

type localHasher struct{}

func (localHasher) Hash(k ast.LocalID) uint32   { return uint32(k) * 2654435761 }
func (localHasher) Equal(a, b ast.LocalID) bool { return a == b }

type frame = *immutable.Map[ast.LocalID, Binding]

func newFrame() frame {
	return immutable.NewMap[ast.LocalID, Binding](localHasher{})
}

// Stack is a chain of lexical frames. Frames are persistent maps, so a
// Snapshot is a shallow copy of the frame list and branches can be explored
// independently and merged afterwards.
type Stack struct {
	frames []frame
}

// Snapshot is a saved Stack; it stays valid however the Stack changes.
type Snapshot struct {
	frames []frame
}

func NewStack() *Stack {
	return &Stack{frames: []frame{newFrame()}}
}

func (s *Stack) Push() {
	s.frames = append(s.frames, newFrame())
}

// Pop drops the innermost frame; the outermost one is never removed.
func (s *Stack) Pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *Stack) Depth() int { return len(s.frames) }

// Declare binds b in the innermost frame, shadowing outer bindings of the
// same local.
func (s *Stack) Declare(b Binding) {
	top := len(s.frames) - 1
	s.frames[top] = s.frames[top].Set(b.Local, b)
}

func (s *Stack) find(id ast.LocalID) (int, Binding, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if b, ok := s.frames[i].Get(id); ok {
			return i, b, true
		}
	}
	return -1, Binding{}, false
}

// Lookup returns the innermost binding of id.
func (s *Stack) Lookup(id ast.LocalID) (Binding, bool) {
	_, b, ok := s.find(id)
	return b, ok
}

// Update applies f to the binding of id in the frame that declares it.
func (s *Stack) Update(id ast.LocalID, f func(*Binding)) bool {
	i, b, ok := s.find(id)
	if !ok {
		return false
	}
	f(&b)
	s.frames[i] = s.frames[i].Set(id, b)
	return true
}

// SetState replaces the move state of id.
func (s *Stack) SetState(id ast.LocalID, st MoveState) bool {
	return s.Update(id, func(b *Binding) { b.State = st })
}

// SetType records the (possibly refined) type of id.
func (s *Stack) SetType(id ast.LocalID, t types.TypeID) bool {
	return s.Update(id, func(b *Binding) { b.Type = t })
}

func (s *Stack) Snapshot() Snapshot {
	return Snapshot{frames: append([]frame(nil), s.frames...)}
}

func (s *Stack) Restore(snap Snapshot) {
	s.frames = append(s.frames[:0:0], snap.frames...)
}

// Merge sets the state of every binding visible in base to the join of its
// states in the given branch snapshots. Locals declared inside a branch are
// not visible in base and are dropped.
func (s *Stack) Merge(base Snapshot, branches ...Snapshot) {
	s.Restore(base)
	if len(branches) == 0 {
		return
	}
	for i, fr := range base.frames {
		itr := fr.Iterator()
		for !itr.Done() {
			id, b, _ := itr.Next()
			st, first := MoveState{}, true
			for _, br := range branches {
				if i >= len(br.frames) {
					continue
				}
				bb, ok := br.frames[i].Get(id)
				if !ok {
					continue
				}
				if first {
					st, first = bb.State, false
					continue
				}
				st = Join(st, bb.State)
			}
			if first {
				continue
			}
			b.State = st
			s.frames[i] = s.frames[i].Set(id, b)
		}
	}
}

// Bindings lists the visible bindings ordered by local id.
func (s *Stack) Bindings() []Binding {
	seen := make(map[ast.LocalID]struct{})
	var out []Binding
	for i := len(s.frames) - 1; i >= 0; i-- {
		itr := s.frames[i].Iterator()
		for !itr.Done() {
			id, b, _ := itr.Next()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, b)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Local < out[b].Local })
	return out
}
