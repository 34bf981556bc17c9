package scope

import (
	"testing"

	"vais/internal/ast"
	"vais/internal/source"
)

func sp(n uint32) source.Span { return source.Span{Start: n, End: n + 1} }

func TestShadowingAndPop(t *testing.T) {
	s := NewStack()
	s.Declare(Binding{Local: 1, Name: "x"})
	s.Push()
	s.Declare(Binding{Local: 2, Name: "y"})
	if _, ok := s.Lookup(1); !ok {
		t.Fatal("outer binding must be visible in inner frame")
	}
	s.Pop()
	if _, ok := s.Lookup(2); ok {
		t.Fatal("inner binding must disappear with its frame")
	}
	s.Pop()
	if s.Depth() != 1 {
		t.Fatalf("root frame must survive Pop, depth=%d", s.Depth())
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewStack()
	s.Declare(Binding{Local: 1, Name: "x"})
	snap := s.Snapshot()
	s.SetState(1, MoveState{Kind: Moved, MovedAt: sp(4)})
	s.Restore(snap)
	b, _ := s.Lookup(1)
	if b.State.Kind != Owned {
		t.Fatalf("restore must bring back the owned state, got %s", b.State.Kind)
	}
}

func TestMergeMovedOnOneBranch(t *testing.T) {
	s := NewStack()
	s.Declare(Binding{Local: 1, Name: "x"})
	s.Declare(Binding{Local: 2, Name: "y"})
	base := s.Snapshot()

	s.SetState(1, MoveState{Kind: Moved, MovedAt: sp(10)})
	then := s.Snapshot()

	s.Restore(base)
	s.Push()
	s.Declare(Binding{Local: 3, Name: "tmp"})
	s.SetState(2, MoveState{}.WithFieldMoved("a", sp(20)))
	s.Pop()
	els := s.Snapshot()

	s.Merge(base, then, els)
	x, _ := s.Lookup(1)
	if x.State.Kind != Moved || x.State.MovedAt != sp(10) {
		t.Fatalf("x must be moved after the join, got %+v", x.State)
	}
	y, _ := s.Lookup(2)
	if y.State.Kind != PartiallyMoved {
		t.Fatalf("y must be partially moved, got %s", y.State.Kind)
	}
	if _, ok := s.Lookup(ast.LocalID(3)); ok {
		t.Fatal("branch-local binding leaked into the join")
	}
}

func TestFieldPaths(t *testing.T) {
	st := MoveState{}.WithFieldMoved("b", sp(1)).WithFieldMoved("a.x", sp(2))
	if st.Fields[0] != "a.x" || st.Fields[1] != "b" {
		t.Fatalf("fields must stay sorted: %v", st.Fields)
	}
	cases := []struct {
		path  string
		moved bool
	}{
		{"a.x", true},
		{"a", true}, // child moved
		{"a.x.y", true},
		{"a.y", false},
		{"c", false},
	}
	for _, c := range cases {
		if _, got := st.MovedField(c.path); got != c.moved {
			t.Errorf("MovedField(%q) = %v, want %v", c.path, got, c.moved)
		}
	}
	if again := st.WithFieldMoved("a.x", sp(9)); len(again.Fields) != 2 {
		t.Fatalf("moving the same field twice must not duplicate it: %v", again.Fields)
	}
}

func TestBindingsOrdered(t *testing.T) {
	s := NewStack()
	s.Declare(Binding{Local: 5})
	s.Push()
	s.Declare(Binding{Local: 2})
	got := s.Bindings()
	if len(got) != 2 || got[0].Local != 2 || got[1].Local != 5 {
		t.Fatalf("unexpected bindings: %+v", got)
	}
}

func TestFieldRestored(t *testing.T) {
	st := MoveState{}.WithFieldMoved("a", sp(1)).WithFieldMoved("b.c", sp(2))
	st = st.WithFieldRestored("b")
	if len(st.Fields) != 1 || st.Fields[0] != "a" {
		t.Fatalf("restoring b must drop b.c: %v", st.Fields)
	}
	if st = st.WithFieldRestored("a"); st.Kind != Owned {
		t.Fatalf("restoring the last field must make the value owned again, got %s", st.Kind)
	}
}

func TestJoinUninitDominates(t *testing.T) {
	got := Join(MoveState{}, MoveState{Kind: Uninit})
	if got.Kind != Uninit {
		t.Fatalf("a value unassigned on one path stays unassigned, got %s", got.Kind)
	}
}
