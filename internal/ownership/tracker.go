package ownership

import (
	"fmt"
	"strconv"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/scope"
	"vais/internal/source"
	"vais/internal/types"
)

// Types is the solved typing of one body.
type Types interface {
	ExprType(ast.ExprID) types.TypeID
	LocalType(ast.LocalID) types.TypeID
	// Receiver is how a resolved method call takes its receiver.
	Receiver(call ast.ExprID) ast.ReceiverKind
	IsCopy(types.TypeID) bool
}

type loopCtx struct {
	breaks    []scope.Snapshot
	continues []scope.Snapshot
}

type tracker struct {
	mod   *ast.Module
	in    *types.Interner
	ty    Types
	rep   diag.Reporter
	stack *scope.Stack
	facts *Facts
	dead  bool
	loops []*loopCtx
}

// Check walks the body of fn once, left to right, and reports moves of
// moved values, assignments to immutable bindings and mutable borrows of
// immutable bindings. Loop bodies are walked a second time from the state
// at the back edge; repeated reports are dropped.
func Check(mod *ast.Module, in *types.Interner, fn ast.ItemID, ty Types, rep diag.Reporter) *Facts {
	t := &tracker{
		mod:   mod,
		in:    in,
		ty:    ty,
		rep:   diag.NewDedupReporter(rep),
		stack: scope.NewStack(),
		facts: newFacts(),
	}
	it := mod.Item(fn)
	if it == nil || !it.Fn.Body.IsValid() {
		return t.facts
	}
	if it.Fn.Receiver != ast.RecvNone && it.Fn.SelfLocal.IsValid() {
		t.declare(it.Fn.SelfLocal, scope.MoveState{})
	}
	for _, p := range it.Fn.Params {
		t.declare(p.Local, scope.MoveState{})
	}
	t.consume(it.Fn.Body)
	return t.facts
}

func (t *tracker) declare(id ast.LocalID, st scope.MoveState) {
	l := t.mod.Local(id)
	if l == nil {
		return
	}
	t.stack.Declare(scope.Binding{
		Local:    id,
		Name:     t.mod.Name(l.Name),
		Type:     t.ty.LocalType(id),
		Mutable:  l.Mutable,
		Declared: l.Span,
		State:    st,
	})
}

// place is a path rooted at a local. Owned is the part of the path the
// local owns; anything below a dereference or an index is not tracked.
type place struct {
	local  ast.LocalID
	owned  string
	deref  bool
	refMut bool // mutability of the outermost dereferenced reference
	index  bool
}

func (p place) extend(seg string) place {
	if p.deref || p.index {
		return p
	}
	if p.owned == "" {
		p.owned = seg
	} else {
		p.owned += "." + seg
	}
	return p
}

func (t *tracker) refType(e ast.ExprID) (types.Type, bool) {
	tt, ok := t.in.Lookup(t.ty.ExprType(e))
	return tt, ok && tt.Kind == types.KindRef
}

func (t *tracker) throughRef(p place, e ast.ExprID) place {
	if p.deref {
		return p
	}
	if rt, ok := t.refType(e); ok {
		p.deref = true
		p.refMut = rt.Mutable
	}
	return p
}

func (t *tracker) placeOf(id ast.ExprID) (place, bool) {
	e := t.mod.Expr(id)
	if e == nil {
		return place{}, false
	}
	switch e.Kind {
	case ast.ExprName:
		if e.Ref.Kind == ast.RefLocal {
			return place{local: e.Ref.Local}, true
		}
	case ast.ExprField, ast.ExprTupleIndex:
		p, ok := t.placeOf(e.X)
		if !ok {
			return p, false
		}
		p = t.throughRef(p, e.X)
		if e.Kind == ast.ExprField {
			return p.extend(t.mod.Name(e.Name)), true
		}
		return p.extend(strconv.FormatUint(uint64(e.Index), 10)), true
	case ast.ExprDeref:
		p, ok := t.placeOf(e.X)
		if !ok {
			return p, false
		}
		return t.throughRef(p, e.X), true
	case ast.ExprIndex:
		p, ok := t.placeOf(e.X)
		if !ok {
			return p, false
		}
		p = t.throughRef(p, e.X)
		p.index = true
		return p, true
	}
	return place{}, false
}

// placeOperands evaluates the index expressions inside a place.
func (t *tracker) placeOperands(id ast.ExprID) {
	e := t.mod.Expr(id)
	switch e.Kind {
	case ast.ExprField, ast.ExprTupleIndex, ast.ExprDeref:
		t.placeOperands(e.X)
	case ast.ExprIndex:
		t.placeOperands(e.X)
		t.consume(e.Y)
	}
}

func (t *tracker) describe(p place) string {
	name := t.mod.LocalName(p.local)
	if p.owned != "" {
		return name + "." + p.owned
	}
	return name
}

// checkUse reports reads of moved or uninitialized places. It returns false
// when something was reported.
func (t *tracker) checkUse(p place, sp source.Span, borrowing bool) bool {
	b, ok := t.stack.Lookup(p.local)
	if !ok {
		return true
	}
	st := b.State
	verb := "use"
	code := diag.UseAfterMove
	if borrowing {
		verb, code = "borrow", diag.BorrowAfterMove
	}
	switch st.Kind {
	case scope.Uninit:
		diag.ReportError(t.rep, diag.UseAfterMove, sp,
			fmt.Sprintf("%s of possibly-uninitialized `%s`", verb, b.Name)).
			WithNote(b.Declared, "binding declared here without an initializer").Emit()
		return false
	case scope.Moved:
		diag.ReportError(t.rep, code, sp, fmt.Sprintf("%s of moved value `%s`", verb, t.describe(p))).
			WithNote(st.MovedAt, "value moved here").Emit()
		return false
	case scope.PartiallyMoved:
		at, moved := st.MovedField(p.owned)
		if !moved {
			return true
		}
		if p.owned == "" && !borrowing {
			code = diag.UseAfterPartialMove
		}
		msg := fmt.Sprintf("%s of moved value `%s`", verb, t.describe(p))
		if p.owned == "" {
			msg = fmt.Sprintf("%s of partially moved value `%s`", verb, b.Name)
		}
		diag.ReportError(t.rep, code, sp, msg).WithNote(at, "value partially moved here").Emit()
		return false
	}
	return true
}

func (t *tracker) move(id ast.ExprID, p place, sp source.Span) {
	switch {
	case p.deref:
		diag.ReportError(t.rep, diag.MoveOutOfBorrow, sp,
			fmt.Sprintf("cannot move out of `%s` which is behind a reference", t.describe(p))).Emit()
		return
	case p.index:
		diag.ReportError(t.rep, diag.MoveOutOfBorrow, sp,
			fmt.Sprintf("cannot move out of an index of `%s`", t.describe(p))).Emit()
		return
	}
	if !t.checkUse(p, sp, false) {
		return
	}
	t.stack.Update(p.local, func(b *scope.Binding) {
		if p.owned == "" {
			b.State = scope.MoveState{Kind: scope.Moved, MovedAt: sp}
			return
		}
		b.State = b.State.WithFieldMoved(p.owned, sp)
	})
	t.facts.Moves[id] = Move{Expr: id, Local: p.local, Path: p.owned, Span: sp}
}

// consume evaluates id for its value: non-copy places are moved.
func (t *tracker) consume(id ast.ExprID) {
	if !id.IsValid() {
		return
	}
	p, ok := t.placeOf(id)
	if !ok {
		t.walk(id)
		return
	}
	t.placeOperands(id)
	sp := t.mod.Expr(id).Span
	if t.ty.IsCopy(t.ty.ExprType(id)) {
		t.checkUse(p, sp, false)
		return
	}
	t.move(id, p, sp)
}

// read evaluates id without taking ownership.
func (t *tracker) read(id ast.ExprID) {
	if !id.IsValid() {
		return
	}
	p, ok := t.placeOf(id)
	if !ok {
		t.walk(id)
		return
	}
	t.placeOperands(id)
	t.checkUse(p, t.mod.Expr(id).Span, false)
}

func (t *tracker) borrow(id, x ast.ExprID, mut, autoref bool, sp source.Span) {
	p, ok := t.placeOf(x)
	if !ok {
		t.walk(x)
		return
	}
	t.placeOperands(x)
	if !t.checkUse(p, sp, true) {
		return
	}
	b, _ := t.stack.Lookup(p.local)
	if mut {
		switch {
		case p.deref && !p.refMut:
			diag.ReportError(t.rep, diag.MutBorrowOfImmutable, sp,
				fmt.Sprintf("cannot borrow `%s` as mutable, as it is behind a `&` reference", t.describe(p))).Emit()
			return
		case !p.deref && !b.Mutable:
			diag.ReportError(t.rep, diag.MutBorrowOfImmutable, sp,
				fmt.Sprintf("cannot borrow `%s` as mutable, as it is not declared as mutable", t.describe(p))).
				WithNote(b.Declared, "consider changing this to be mutable").Emit()
			return
		}
	}
	t.facts.Borrows[id] = Borrow{Expr: id, Local: p.local, Path: p.owned, Mut: mut, Autoref: autoref, Span: sp}
	if p.deref {
		return
	}
	kind := scope.Shared
	if mut {
		kind = scope.Unique
	}
	t.stack.Update(p.local, func(b *scope.Binding) {
		if b.State.Kind == scope.Owned || b.State.Kind == scope.Borrowed {
			b.State = scope.MoveState{Kind: scope.Borrowed, BorrowKind: kind, BorrowSpan: sp}
		}
	})
}

func (t *tracker) assign(target ast.ExprID, sp source.Span) {
	p, ok := t.placeOf(target)
	if !ok {
		t.walk(target)
		return
	}
	t.placeOperands(target)
	b, found := t.stack.Lookup(p.local)
	if !found {
		return
	}
	switch {
	case p.deref:
		if !p.refMut {
			diag.ReportError(t.rep, diag.ImmutableAssign, sp,
				fmt.Sprintf("cannot assign to `%s`, which is behind a `&` reference", t.describe(p))).Emit()
			return
		}
		t.checkUse(place{local: p.local, owned: p.owned}, sp, false)
		return
	case p.index:
		if !b.Mutable {
			diag.ReportError(t.rep, diag.ImmutableAssign, sp,
				fmt.Sprintf("cannot assign to an element of `%s`, as it is not declared as mutable", t.describe(p))).
				WithNote(b.Declared, "consider changing this to be mutable").Emit()
			return
		}
		t.checkUse(place{local: p.local, owned: p.owned}, sp, false)
		return
	}

	if p.owned == "" {
		if b.State.Kind != scope.Uninit && !b.Mutable {
			diag.ReportError(t.rep, diag.ImmutableAssign, sp,
				fmt.Sprintf("cannot assign twice to immutable variable `%s`", b.Name)).
				WithNote(b.Declared, "first assignment here").Emit()
			return
		}
		t.stack.SetState(p.local, scope.MoveState{})
		return
	}
	if !b.Mutable {
		diag.ReportError(t.rep, diag.ImmutableAssign, sp,
			fmt.Sprintf("cannot assign to `%s`, as `%s` is not declared as mutable", t.describe(p), b.Name)).
			WithNote(b.Declared, "consider changing this to be mutable").Emit()
		return
	}
	if b.State.Kind == scope.Moved || b.State.Kind == scope.Uninit {
		diag.ReportError(t.rep, diag.UseAfterMove, sp,
			fmt.Sprintf("assign to part of moved value `%s`", b.Name)).
			WithNote(b.State.MovedAt, "value moved here").Emit()
		return
	}
	t.stack.SetState(p.local, b.State.WithFieldRestored(p.owned))
}
