package borrowck

import (
	"strconv"

	"vais/internal/ast"
	"vais/internal/ownership"
	"vais/internal/source"
	"vais/internal/types"
)

// Body is the solved typing of one body as the borrow checker sees it.
type Body interface {
	ownership.Types
	// ResultSources lists the argument positions of a call whose
	// references may be returned by it. For method calls the receiver is
	// position 0. ok is false when every argument may flow.
	ResultSources(call ast.ExprID) (positions []int, ok bool)
}

type loopTargets struct {
	head, exit BlockID
	result     int // var receiving break values
}

type lowerer struct {
	mod   *ast.Module
	in    *types.Interner
	body  Body
	facts *ownership.Facts
	cfg   *CFG
	cur   BlockID
	vars  map[ast.LocalID]int
	loops []loopTargets
	// returns lists the global points of return events after finish.
	returns []Point
}

// BuildCFG lowers the body of fn. Moves are classified with facts from
// the ownership pass; a nil facts treats every consumed place as a read.
func BuildCFG(mod *ast.Module, in *types.Interner, fn ast.ItemID, body Body, facts *ownership.Facts) *CFG {
	l := &lowerer{
		mod:   mod,
		in:    in,
		body:  body,
		facts: facts,
		cfg:   &CFG{},
		vars:  make(map[ast.LocalID]int),
	}
	l.cfg.Entry = l.newBlock()
	l.cfg.Exit = l.newBlock()
	l.cur = l.cfg.Entry

	it := mod.Item(fn)
	if it != nil && it.Fn.Body.IsValid() {
		var params []int
		if it.Fn.Receiver != ast.RecvNone && it.Fn.SelfLocal.IsValid() {
			params = append(params, l.varOf(it.Fn.SelfLocal))
		}
		for _, p := range it.Fn.Params {
			params = append(params, l.varOf(p.Local))
		}
		l.emit(Event{Kind: EvDef, Span: it.Span, Defs: params})
		bodyExpr := mod.Expr(it.Fn.Body)
		srcs := l.value(it.Fn.Body)
		l.emit(Event{Kind: EvReturn, Expr: it.Fn.Body, Span: bodyExpr.Span, Uses: srcs})
	}
	l.goTo(l.cfg.Exit)
	l.cfg.finish()
	return l.cfg
}

func (l *lowerer) newBlock() BlockID {
	id := BlockID(len(l.cfg.Blocks))
	l.cfg.Blocks = append(l.cfg.Blocks, &Block{ID: id})
	return id
}

func (l *lowerer) edge(from, to BlockID) {
	l.cfg.Blocks[from].Succs = append(l.cfg.Blocks[from].Succs, to)
}

// goTo ends the current block with a jump to target.
func (l *lowerer) goTo(target BlockID) {
	if l.cur != target {
		l.edge(l.cur, target)
	}
}

// detach starts a fresh block with no predecessors; code after a jump
// lands there.
func (l *lowerer) detach() { l.cur = l.newBlock() }

func (l *lowerer) emit(ev Event) Point {
	b := l.cfg.Blocks[l.cur]
	b.Events = append(b.Events, ev)
	return Point{Block: l.cur, Index: len(b.Events) - 1}
}

func (l *lowerer) varOf(local ast.LocalID) int {
	if v, ok := l.vars[local]; ok {
		return v
	}
	v := len(l.cfg.Vars)
	var sp source.Span
	if loc := l.mod.Local(local); loc != nil {
		sp = loc.Span
	}
	l.cfg.Vars = append(l.cfg.Vars, VarInfo{Local: local, Name: l.mod.LocalName(local), Span: sp})
	l.cfg.flows = append(l.cfg.flows, nil)
	l.vars[local] = v
	return v
}

func (l *lowerer) temp(sp source.Span) int {
	v := len(l.cfg.Vars)
	l.cfg.Vars = append(l.cfg.Vars, VarInfo{Local: ast.NoLocalID, Name: "_" + strconv.Itoa(v), Span: sp})
	l.cfg.flows = append(l.cfg.flows, nil)
	return v
}

func (l *lowerer) flow(to int, from []int) {
	for _, f := range from {
		if f != to {
			l.cfg.flows[f] = append(l.cfg.flows[f], to)
		}
	}
}

func (l *lowerer) carries(e ast.ExprID) bool {
	ty := l.body.ExprType(e)
	return ty != types.NoTypeID && l.in.HasRefs(ty)
}

// define emits a definition of a fresh temp fed by srcs and returns it.
func (l *lowerer) define(e ast.ExprID, srcs []int) []int {
	x := l.mod.Expr(e)
	if len(srcs) == 0 || !l.carries(e) {
		if len(srcs) > 0 {
			l.emit(Event{Kind: EvUse, Expr: e, Span: x.Span, Uses: srcs})
		}
		return nil
	}
	t := l.temp(x.Span)
	l.emit(Event{Kind: EvDef, Expr: e, Span: x.Span, Uses: srcs, Defs: []int{t}})
	l.flow(t, srcs)
	return []int{t}
}

func (l *lowerer) isRef(e ast.ExprID) (types.Type, bool) {
	tt, ok := l.in.Lookup(l.body.ExprType(e))
	return tt, ok && tt.Kind == types.KindRef
}

// placeOf maps a place expression to its Place. Field access through a
// reference-typed operand adds the implicit dereference.
func (l *lowerer) placeOf(id ast.ExprID) (Place, bool) {
	e := l.mod.Expr(id)
	if e == nil {
		return Place{}, false
	}
	switch e.Kind {
	case ast.ExprName:
		if e.Ref.Kind == ast.RefLocal {
			return Place{Local: e.Ref.Local}, true
		}
	case ast.ExprField, ast.ExprTupleIndex, ast.ExprIndex:
		p, ok := l.placeOf(e.X)
		if !ok {
			return p, false
		}
		if _, ref := l.isRef(e.X); ref {
			p = p.child("*")
		}
		switch e.Kind {
		case ast.ExprField:
			return p.child(l.mod.Name(e.Name)), true
		case ast.ExprTupleIndex:
			return p.child(strconv.FormatUint(uint64(e.Index), 10)), true
		}
		return p.child("[]"), true
	case ast.ExprDeref:
		p, ok := l.placeOf(e.X)
		if !ok {
			return p, false
		}
		return p.child("*"), true
	}
	return Place{}, false
}

func (l *lowerer) placeOperands(id ast.ExprID) {
	e := l.mod.Expr(id)
	switch e.Kind {
	case ast.ExprField, ast.ExprTupleIndex, ast.ExprDeref:
		l.placeOperands(e.X)
	case ast.ExprIndex:
		l.placeOperands(e.X)
		l.value(e.Y)
	}
}

// access evaluates a place for its value.
func (l *lowerer) access(id ast.ExprID, p Place, kind AccessKind) []int {
	l.placeOperands(id)
	root := l.varOf(p.Local)
	e := l.mod.Expr(id)
	l.emit(Event{Kind: EvAccess, Expr: id, Span: e.Span, Place: p, Access: kind, Uses: []int{root}})
	if !l.carries(id) {
		return nil
	}
	return []int{root}
}

func (l *lowerer) borrow(id, x ast.ExprID, mut bool, sp source.Span) []int {
	p, ok := l.placeOf(x)
	if !ok {
		srcs := l.value(x)
		return l.define(id, srcs)
	}
	l.placeOperands(x)
	root := l.varOf(p.Local)
	t := l.temp(sp)
	loan := &Loan{ID: len(l.cfg.Loans), Place: p, Mut: mut, Expr: id, Span: sp, Temp: t}
	loan.At = l.emit(Event{Kind: EvBorrow, Expr: id, Span: sp, Place: p, Loan: loan.ID, Uses: []int{root}, Defs: []int{t}})
	l.cfg.Loans = append(l.cfg.Loans, loan)
	// the loan region holds while anything derived from the reference does
	l.flow(t, []int{root})
	return []int{t}
}

// value lowers id and returns the vars that may hold references carried
// by its result.
func (l *lowerer) value(id ast.ExprID) []int {
	if !id.IsValid() {
		return nil
	}
	e := l.mod.Expr(id)
	if p, ok := l.placeOf(id); ok {
		kind := AccessRead
		if l.facts != nil && l.facts.IsMove(id) {
			kind = AccessMove
		}
		return l.access(id, p, kind)
	}
	switch e.Kind {
	case ast.ExprLit, ast.ExprName:
		return nil
	case ast.ExprContinue:
		if n := len(l.loops); n > 0 {
			l.goTo(l.loops[n-1].head)
		}
		l.detach()
		return nil
	case ast.ExprField, ast.ExprTupleIndex, ast.ExprDeref:
		return l.define(id, l.value(e.X))
	case ast.ExprIndex:
		srcs := l.value(e.X)
		l.use(e.Y, l.value(e.Y))
		return l.define(id, srcs)
	case ast.ExprRef:
		return l.borrow(id, e.X, e.Mut, e.Span)
	case ast.ExprCall:
		l.use(e.X, l.value(e.X))
		args := make([][]int, len(e.Args))
		for i, a := range e.Args {
			args[i] = l.value(a)
		}
		return l.call(id, args)
	case ast.ExprMethodCall:
		// arguments first: the receiver's autoref is activated at the call
		args := make([][]int, len(e.Args)+1)
		for i, a := range e.Args {
			args[i+1] = l.value(a)
		}
		args[0] = l.receiver(id, e)
		return l.call(id, args)
	case ast.ExprBinary:
		if e.Op.IsLogical() {
			l.use(e.X, l.value(e.X))
			fork := l.cur
			join := l.newBlock()
			l.edge(fork, join)
			l.cur = l.newBlock()
			l.edge(fork, l.cur)
			l.use(e.Y, l.value(e.Y))
			l.goTo(join)
			l.cur = join
			return nil
		}
		srcs := append(l.value(e.X), l.value(e.Y)...)
		l.use(id, srcs)
		return nil
	case ast.ExprUnary:
		l.use(id, l.value(e.X))
		return nil
	case ast.ExprAssign:
		l.assign(id, e)
		return nil
	case ast.ExprBlock:
		for _, sid := range e.Stmts {
			l.stmt(sid)
		}
		return l.value(e.Tail)
	case ast.ExprIf:
		return l.ifExpr(id, e)
	case ast.ExprWhile, ast.ExprLoop:
		return l.loop(id, e)
	case ast.ExprMatch:
		return l.match(id, e)
	case ast.ExprTuple, ast.ExprArray:
		var srcs []int
		for _, a := range e.Args {
			srcs = append(srcs, l.value(a)...)
		}
		return l.define(id, srcs)
	case ast.ExprStruct:
		var srcs []int
		for _, f := range e.Fields {
			srcs = append(srcs, l.value(f.Value)...)
		}
		return l.define(id, srcs)
	case ast.ExprReturn:
		srcs := l.value(e.X)
		l.emit(Event{Kind: EvReturn, Expr: id, Span: e.Span, Uses: srcs})
		l.goTo(l.cfg.Exit)
		l.detach()
		return nil
	case ast.ExprBreak:
		srcs := l.value(e.X)
		if n := len(l.loops); n > 0 {
			lt := l.loops[n-1]
			if len(srcs) > 0 {
				l.emit(Event{Kind: EvDef, Expr: id, Span: e.Span, Uses: srcs, Defs: []int{lt.result}})
				l.flow(lt.result, srcs)
			}
			l.goTo(lt.exit)
		}
		l.detach()
		return nil
	}
	return nil
}

func (l *lowerer) use(id ast.ExprID, srcs []int) {
	if len(srcs) == 0 {
		return
	}
	l.emit(Event{Kind: EvUse, Expr: id, Span: l.mod.Expr(id).Span, Uses: srcs})
}

func (l *lowerer) receiver(call ast.ExprID, e *ast.Expr) []int {
	_, isRef := l.isRef(e.X)
	switch l.body.Receiver(call) {
	case ast.RecvRef, ast.RecvRefMut:
		if !isRef {
			return l.borrow(call, e.X, l.body.Receiver(call) == ast.RecvRefMut, l.mod.Expr(e.X).Span)
		}
	}
	return l.value(e.X)
}

// call emits the call point. The result is fed by the arguments its
// signature lets through.
func (l *lowerer) call(id ast.ExprID, args [][]int) []int {
	var all []int
	for _, a := range args {
		all = append(all, a...)
	}
	e := l.mod.Expr(id)
	if !l.carries(id) {
		l.use(id, all)
		return nil
	}
	srcs := all
	if pos, ok := l.body.ResultSources(id); ok {
		srcs = nil
		for _, p := range pos {
			if p >= 0 && p < len(args) {
				srcs = append(srcs, args[p]...)
			}
		}
	}
	t := l.temp(e.Span)
	l.emit(Event{Kind: EvDef, Expr: id, Span: e.Span, Uses: all, Defs: []int{t}})
	l.flow(t, srcs)
	return []int{t}
}

func (l *lowerer) assign(id ast.ExprID, e *ast.Expr) {
	srcs := l.value(e.Y)
	p, ok := l.placeOf(e.X)
	if !ok {
		l.use(id, append(srcs, l.value(e.X)...))
		return
	}
	l.placeOperands(e.X)
	root := l.varOf(p.Local)
	ev := Event{Kind: EvAccess, Expr: id, Span: e.Span, Place: p, Access: AccessWrite, Uses: srcs}
	if p.Path == "" {
		ev.Defs = []int{root}
	} else {
		ev.Uses = append(ev.Uses, root)
	}
	l.emit(ev)
	l.flow(root, srcs)
}

func (l *lowerer) stmt(sid ast.StmtID) {
	st := l.mod.Stmt(sid)
	if st == nil {
		return
	}
	switch st.Kind {
	case ast.StmtLet:
		v := l.varOf(st.Local)
		if !st.Expr.IsValid() {
			return
		}
		srcs := l.value(st.Expr)
		l.emit(Event{Kind: EvDef, Span: st.Span, Uses: srcs, Defs: []int{v}})
		l.flow(v, srcs)
	case ast.StmtExpr:
		l.use(st.Expr, l.value(st.Expr))
	}
}

// branchInto lowers x in a new block entered from fork; its value is
// stored in result and control falls through to join.
func (l *lowerer) branchInto(fork, join BlockID, x ast.ExprID, result int) {
	l.cur = l.newBlock()
	l.edge(fork, l.cur)
	if srcs := l.value(x); len(srcs) > 0 {
		l.emit(Event{Kind: EvDef, Expr: x, Span: l.mod.Expr(x).Span, Uses: srcs, Defs: []int{result}})
		l.flow(result, srcs)
	}
	l.goTo(join)
}

func (l *lowerer) ifExpr(id ast.ExprID, e *ast.Expr) []int {
	l.use(e.X, l.value(e.X))
	fork := l.cur
	join := l.newBlock()
	result := l.temp(e.Span)
	l.branchInto(fork, join, e.Then, result)
	if e.Else.IsValid() {
		l.branchInto(fork, join, e.Else, result)
	} else {
		l.edge(fork, join)
	}
	l.cur = join
	if !l.carries(id) {
		return nil
	}
	return []int{result}
}

func (l *lowerer) loop(id ast.ExprID, e *ast.Expr) []int {
	head := l.newBlock()
	exit := l.newBlock()
	result := l.temp(e.Span)
	l.goTo(head)
	l.cur = head
	if e.Kind == ast.ExprWhile {
		l.use(e.X, l.value(e.X))
		l.edge(l.cur, exit)
		body := l.newBlock()
		l.edge(l.cur, body)
		l.cur = body
	}
	l.loops = append(l.loops, loopTargets{head: head, exit: exit, result: result})
	l.use(e.Then, l.value(e.Then))
	l.loops = l.loops[:len(l.loops)-1]
	l.edge(l.cur, head)
	l.cur = exit
	if !l.carries(id) {
		return nil
	}
	return []int{result}
}

func (l *lowerer) match(id ast.ExprID, e *ast.Expr) []int {
	scrut := l.value(e.X)
	fork := l.cur
	join := l.newBlock()
	result := l.temp(e.Span)
	// блок, из которого продолжаем при ложном guard
	pending := BlockID(-1)
	for _, arm := range e.Arms {
		l.cur = l.newBlock()
		l.edge(fork, l.cur)
		if pending >= 0 {
			l.edge(pending, l.cur)
			pending = -1
		}
		var binds []int
		l.patternLocals(arm.Pat, func(loc ast.LocalID) { binds = append(binds, l.varOf(loc)) })
		if len(binds) > 0 {
			l.emit(Event{Kind: EvDef, Span: arm.Span, Uses: scrut, Defs: binds})
			for _, b := range binds {
				l.flow(b, scrut)
			}
		}
		if arm.Guard.IsValid() {
			l.use(arm.Guard, l.value(arm.Guard))
			pending = l.cur
			body := l.newBlock()
			l.edge(l.cur, body)
			l.cur = body
		}
		if srcs := l.value(arm.Body); len(srcs) > 0 {
			l.emit(Event{Kind: EvDef, Expr: arm.Body, Span: arm.Span, Uses: srcs, Defs: []int{result}})
			l.flow(result, srcs)
		}
		l.goTo(join)
	}
	if pending >= 0 {
		l.edge(pending, join)
	}
	if len(e.Arms) == 0 {
		l.detach()
		return nil
	}
	l.cur = join
	if !l.carries(id) {
		return nil
	}
	return []int{result}
}

func (l *lowerer) patternLocals(pid ast.PatID, f func(ast.LocalID)) {
	if !pid.IsValid() {
		return
	}
	p := l.mod.Pat(pid)
	switch p.Kind {
	case ast.PatBind:
		f(p.Local)
		for _, s := range p.Subs {
			l.patternLocals(s, f)
		}
	case ast.PatTuple, ast.PatVariant:
		for _, s := range p.Subs {
			l.patternLocals(s, f)
		}
	case ast.PatOr:
		if len(p.Subs) > 0 {
			l.patternLocals(p.Subs[0], f)
		}
	case ast.PatStruct:
		for _, fp := range p.Fields {
			l.patternLocals(fp.Pat, f)
		}
	}
}
