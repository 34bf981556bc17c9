package scope

import (
	"sort"
	"strings"

	"vais/internal/source"
)

type StateKind uint8

const (
	Owned StateKind = iota
	Moved
	PartiallyMoved
	Borrowed
	Uninit // declared by `let x;` and not yet assigned on every path
)

func (k StateKind) String() string {
	switch k {
	case Owned:
		return "owned"
	case Moved:
		return "moved"
	case PartiallyMoved:
		return "partially moved"
	case Borrowed:
		return "borrowed"
	case Uninit:
		return "uninitialized"
	}
	return "state"
}

type BorrowKind uint8

const (
	Shared BorrowKind = iota + 1
	Unique
)

func (k BorrowKind) String() string {
	if k == Unique {
		return "mutable"
	}
	return "shared"
}

// MoveState is what the ownership tracker knows about a binding at one
// program point. Fields holds dotted paths ("a", "a.b", "0") moved out of
// a partially moved value, sorted; FieldSpans runs parallel to it.
type MoveState struct {
	Kind       StateKind
	MovedAt    source.Span
	Fields     []string
	FieldSpans []source.Span
	BorrowKind BorrowKind
	BorrowSpan source.Span
}

// IsMoved reports whether the whole value or some part of it is gone.
func (s MoveState) IsMoved() bool {
	return s.Kind == Moved || s.Kind == PartiallyMoved || s.Kind == Uninit
}

// WithFieldMoved returns a copy with path recorded as moved. Moving a
// field whose parent path is already gone leaves the state unchanged.
func (s MoveState) WithFieldMoved(path string, at source.Span) MoveState {
	if s.Kind == Moved || s.Kind == Uninit {
		return s
	}
	if _, ok := s.MovedField(path); ok {
		return s
	}
	out := MoveState{Kind: PartiallyMoved, MovedAt: s.MovedAt}
	if s.Kind == Owned || s.Kind == Borrowed {
		out.MovedAt = at
	}
	idx := sort.SearchStrings(s.Fields, path)
	out.Fields = make([]string, 0, len(s.Fields)+1)
	out.FieldSpans = make([]source.Span, 0, len(s.Fields)+1)
	out.Fields = append(append(append(out.Fields, s.Fields[:idx]...), path), s.Fields[idx:]...)
	out.FieldSpans = append(append(append(out.FieldSpans, s.FieldSpans[:idx]...), at), s.FieldSpans[idx:]...)
	return out
}

// MovedField reports whether path, one of its parents or one of its
// children was moved out, returning the move site.
func (s MoveState) MovedField(path string) (source.Span, bool) {
	if s.Kind == Moved || s.Kind == Uninit {
		return s.MovedAt, true
	}
	if path == "" && len(s.Fields) > 0 {
		return s.FieldSpans[0], true
	}
	for i, f := range s.Fields {
		if f == path || strings.HasPrefix(path, f+".") || strings.HasPrefix(f, path+".") {
			return s.FieldSpans[i], true
		}
	}
	return source.Span{}, false
}

// WithFieldRestored drops path and everything below it from the moved
// fields after the path is assigned again.
func (s MoveState) WithFieldRestored(path string) MoveState {
	if s.Kind != PartiallyMoved {
		return s
	}
	out := MoveState{Kind: PartiallyMoved, MovedAt: s.MovedAt}
	for i, f := range s.Fields {
		if f == path || strings.HasPrefix(f, path+".") {
			continue
		}
		out.Fields = append(out.Fields, f)
		out.FieldSpans = append(out.FieldSpans, s.FieldSpans[i])
	}
	if len(out.Fields) == 0 {
		return MoveState{}
	}
	return out
}

// Join merges the states of two converging paths. A value moved on either
// path is treated as moved; partial moves union their fields.
func Join(a, b MoveState) MoveState {
	switch {
	case a.Kind == Moved:
		return a
	case b.Kind == Moved:
		return b
	case a.Kind == Uninit:
		return a
	case b.Kind == Uninit:
		return b
	case a.Kind == PartiallyMoved && b.Kind == PartiallyMoved:
		out := a
		for i, f := range b.Fields {
			out = out.WithFieldMoved(f, b.FieldSpans[i])
		}
		return out
	case a.Kind == PartiallyMoved:
		return a
	case b.Kind == PartiallyMoved:
		return b
	case a.Kind == Borrowed && b.Kind == Borrowed && b.BorrowKind == Unique:
		return b
	case a.Kind == Borrowed:
		return a
	}
	return b
}
