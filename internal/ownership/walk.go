package ownership

import (
	"vais/internal/ast"
	"vais/internal/scope"
	"vais/internal/types"
)

func (t *tracker) walk(id ast.ExprID) {
	if !id.IsValid() {
		return
	}
	e := t.mod.Expr(id)
	switch e.Kind {
	case ast.ExprLit, ast.ExprName:
	case ast.ExprField, ast.ExprTupleIndex:
		t.consume(e.X)
	case ast.ExprIndex:
		t.read(e.X)
		t.consume(e.Y)
	case ast.ExprDeref:
		t.read(e.X)
	case ast.ExprCall:
		t.read(e.X)
		for _, a := range e.Args {
			t.consume(a)
		}
	case ast.ExprMethodCall:
		t.receiver(id, e)
		for _, a := range e.Args {
			t.consume(a)
		}
	case ast.ExprBinary:
		t.binary(e)
	case ast.ExprUnary:
		t.consume(e.X)
	case ast.ExprRef:
		t.borrow(id, e.X, e.Mut, false, e.Span)
	case ast.ExprAssign:
		t.consume(e.Y)
		t.assign(e.X, e.Span)
	case ast.ExprBlock:
		t.block(e)
	case ast.ExprIf:
		t.ifExpr(e)
	case ast.ExprWhile, ast.ExprLoop:
		t.loop(e)
	case ast.ExprMatch:
		t.match(e)
	case ast.ExprTuple, ast.ExprArray:
		for _, a := range e.Args {
			t.consume(a)
		}
	case ast.ExprStruct:
		for _, f := range e.Fields {
			t.consume(f.Value)
		}
	case ast.ExprReturn:
		t.consume(e.X)
		t.dead = true
	case ast.ExprBreak:
		t.consume(e.X)
		if n := len(t.loops); n > 0 {
			ctx := t.loops[n-1]
			ctx.breaks = append(ctx.breaks, t.stack.Snapshot())
		}
		t.dead = true
	case ast.ExprContinue:
		if n := len(t.loops); n > 0 {
			ctx := t.loops[n-1]
			ctx.continues = append(ctx.continues, t.stack.Snapshot())
		}
		t.dead = true
	}
}

func (t *tracker) receiver(id ast.ExprID, e *ast.Expr) {
	_, isRef := t.refType(e.X)
	switch t.ty.Receiver(id) {
	case ast.RecvValue:
		t.consume(e.X)
	case ast.RecvRef, ast.RecvRefMut:
		if isRef {
			t.read(e.X)
			return
		}
		t.borrow(id, e.X, t.ty.Receiver(id) == ast.RecvRefMut, true, t.mod.Expr(e.X).Span)
	default:
		t.read(e.X)
	}
}

func (t *tracker) binary(e *ast.Expr) {
	switch {
	case e.Op.IsComparison():
		t.read(e.X)
		t.read(e.Y)
	case e.Op.IsLogical():
		t.consume(e.X)
		base := t.stack.Snapshot()
		dead := t.dead
		t.consume(e.Y)
		// правый операнд выполняется не всегда
		t.join(base, dead, branch{t.stack.Snapshot(), t.dead}, branch{base, dead})
	default:
		t.consume(e.X)
		t.consume(e.Y)
	}
}

func (t *tracker) block(e *ast.Expr) {
	t.stack.Push()
	for _, sid := range e.Stmts {
		t.stmt(sid)
	}
	t.consume(e.Tail)
	t.stack.Pop()
}

func (t *tracker) stmt(sid ast.StmtID) {
	st := t.mod.Stmt(sid)
	if st == nil {
		return
	}
	switch st.Kind {
	case ast.StmtLet:
		if st.Expr.IsValid() {
			t.consume(st.Expr)
			t.declare(st.Local, scope.MoveState{})
			return
		}
		t.declare(st.Local, scope.MoveState{Kind: scope.Uninit})
	case ast.StmtExpr:
		t.consume(st.Expr)
	}
}

type branch struct {
	snap scope.Snapshot
	dead bool
}

// join continues after a fork with the merged state of the branches that
// fall through. When none does, the code after the fork is unreachable.
func (t *tracker) join(base scope.Snapshot, deadBefore bool, branches ...branch) {
	live := make([]scope.Snapshot, 0, len(branches))
	for _, b := range branches {
		if !b.dead {
			live = append(live, b.snap)
		}
	}
	if len(live) == 0 {
		if len(branches) > 0 {
			t.stack.Restore(branches[0].snap)
		}
		t.dead = true
		return
	}
	t.stack.Merge(base, live...)
	t.dead = deadBefore
}

func (t *tracker) ifExpr(e *ast.Expr) {
	t.consume(e.X)
	base := t.stack.Snapshot()
	deadBefore := t.dead

	t.consume(e.Then)
	then := branch{t.stack.Snapshot(), t.dead}

	t.stack.Restore(base)
	t.dead = deadBefore
	els := branch{base, deadBefore}
	if e.Else.IsValid() {
		t.consume(e.Else)
		els = branch{t.stack.Snapshot(), t.dead}
	}
	t.join(base, deadBefore, then, els)
}

func (t *tracker) loop(e *ast.Expr) {
	ctx := &loopCtx{}
	t.loops = append(t.loops, ctx)
	defer func() { t.loops = t.loops[:len(t.loops)-1] }()

	base := t.stack.Snapshot()
	deadBefore := t.dead
	var exit branch
	for pass := 0; pass < 2; pass++ {
		entry := t.stack.Snapshot()
		if e.Kind == ast.ExprWhile {
			t.consume(e.X)
			exit = branch{t.stack.Snapshot(), t.dead}
		}
		t.consume(e.Then)
		back := []scope.Snapshot{entry}
		if !t.dead {
			back = append(back, t.stack.Snapshot())
		}
		back = append(back, ctx.continues...)
		ctx.continues = nil
		t.stack.Merge(base, back...)
		t.dead = deadBefore
	}

	exits := make([]branch, 0, len(ctx.breaks)+1)
	if e.Kind == ast.ExprWhile {
		exits = append(exits, exit)
	}
	for _, b := range ctx.breaks {
		exits = append(exits, branch{b, false})
	}
	if len(exits) == 0 {
		// loop без break не завершается
		t.dead = true
		return
	}
	t.join(base, deadBefore, exits...)
}

func (t *tracker) match(e *ast.Expr) {
	if t.bindsByValue(e.Arms) {
		t.consume(e.X)
	} else {
		t.read(e.X)
	}
	base := t.stack.Snapshot()
	deadBefore := t.dead
	arms := make([]branch, 0, len(e.Arms))
	for _, arm := range e.Arms {
		t.stack.Restore(base)
		t.dead = deadBefore
		t.stack.Push()
		t.declarePattern(arm.Pat)
		t.consume(arm.Guard)
		t.consume(arm.Body)
		t.stack.Pop()
		arms = append(arms, branch{t.stack.Snapshot(), t.dead})
	}
	t.stack.Restore(base)
	if len(arms) == 0 {
		t.dead = true
		return
	}
	t.join(base, deadBefore, arms...)
}

func (t *tracker) bindsByValue(arms []ast.MatchArm) bool {
	found := false
	for _, arm := range arms {
		t.patternLocals(arm.Pat, func(l ast.LocalID) {
			if ty := t.ty.LocalType(l); ty != types.NoTypeID && !t.ty.IsCopy(ty) {
				found = true
			}
		})
	}
	return found
}

func (t *tracker) declarePattern(pid ast.PatID) {
	t.patternLocals(pid, func(l ast.LocalID) { t.declare(l, scope.MoveState{}) })
}

func (t *tracker) patternLocals(pid ast.PatID, f func(ast.LocalID)) {
	if !pid.IsValid() {
		return
	}
	p := t.mod.Pat(pid)
	switch p.Kind {
	case ast.PatBind:
		f(p.Local)
		for _, s := range p.Subs {
			t.patternLocals(s, f)
		}
	case ast.PatTuple, ast.PatVariant:
		for _, s := range p.Subs {
			t.patternLocals(s, f)
		}
	case ast.PatOr:
		// все альтернативы связывают одни и те же имена
		if len(p.Subs) > 0 {
			t.patternLocals(p.Subs[0], f)
		}
	case ast.PatStruct:
		for _, fp := range p.Fields {
			t.patternLocals(fp.Pat, f)
		}
	}
}
