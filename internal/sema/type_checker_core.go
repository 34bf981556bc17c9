package sema

import (
	"fmt"
	"sort"
	"strings"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/scope"
	"vais/internal/sig"
	"vais/internal/source"
	"vais/internal/traits"
	"vais/internal/types"
	"vais/internal/unify"
)

// obligation is a trait bound that must hold once the body is solved.
type obligation struct {
	ty    types.TypeID
	bound sig.Bound
	span  source.Span
}

type loopFrame struct {
	result types.TypeID // NoTypeID for while loops
	breaks int
	valued bool
}

// pendingUnsize is a `&T` to `&dyn Trait` cast whose pointee is still a
// literal class.
type pendingUnsize struct {
	expr     ast.ExprID
	expected types.TypeID
	data     types.TypeID
	trait    ast.ItemID
	args     []types.TypeID
	span     source.Span
}

type pendingInst struct {
	expr ast.ExprID
	item ast.ItemID
	vars []types.TypeID
}

// typeChecker infers one body. It owns its substitution and environment and
// only reads the session.
type typeChecker struct {
	s     *Session
	mod   *ast.Module
	in    *types.Interner
	b     types.Builtins
	fn    ast.ItemID
	sig   *sig.FnSig
	subst *unify.Substitution
	rep   diag.Reporter
	env   *scope.Stack
	lower *sig.Lowerer

	ret   types.TypeID
	loops []loopFrame

	exprs    map[ast.ExprID]types.TypeID
	locals   map[ast.LocalID]types.TypeID
	methods  map[ast.ExprID]traits.MethodRef
	callees  map[ast.ExprID]ast.ItemID
	unsized  map[ast.ExprID]traits.DynValue
	insts    []pendingInst
	unsizes  []pendingUnsize
	obligs   []obligation
	matches  []ast.ExprID
	finished bool
}

func newBodyChecker(s *Session, fn ast.ItemID, rep diag.Reporter, env *scope.Stack) *typeChecker {
	if env == nil {
		env = scope.NewStack()
	}
	tc := &typeChecker{
		s:       s,
		mod:     s.Mod,
		in:      s.In,
		b:       s.In.Builtins(),
		fn:      fn,
		sig:     s.Sigs.Fns[fn],
		subst:   s.newSubst(),
		rep:     rep,
		env:     env,
		exprs:   make(map[ast.ExprID]types.TypeID),
		locals:  make(map[ast.LocalID]types.TypeID),
		methods: make(map[ast.ExprID]traits.MethodRef),
		callees: make(map[ast.ExprID]ast.ItemID),
		unsized: make(map[ast.ExprID]traits.DynValue),
	}
	self := types.NoTypeID
	var lifetimes []source.StringID
	if tc.sig != nil {
		self = tc.sig.Self
	}
	if it := s.Mod.Item(fn); it != nil {
		lifetimes = it.Fn.Lifetimes
	}
	tc.lower = &sig.Lowerer{
		Mod:       s.Mod,
		In:        s.In,
		Self:      self,
		Lifetimes: lifetimes,
		Reporter:  rep,
		Infer: func(sp source.Span) types.TypeID {
			return tc.subst.Fresh(unify.VarGeneral, sp)
		},
	}
	return tc
}

// run checks the body of tc.fn against its signature.
func (tc *typeChecker) run() {
	it := tc.mod.Item(tc.fn)
	if it == nil || tc.sig == nil || !it.Fn.Body.IsValid() {
		return
	}
	erase := tc.in.EraseRegions
	tc.ret = erase(tc.sig.Ret)
	if it.Fn.Receiver != ast.RecvNone && it.Fn.SelfLocal.IsValid() {
		tc.declare(it.Fn.SelfLocal, erase(tc.sig.Recv))
	}
	for i, p := range it.Fn.Params {
		if i < len(tc.sig.Params) {
			tc.declare(p.Local, erase(tc.sig.Params[i]))
		}
	}
	tc.checkExpr(it.Fn.Body, tc.ret)
	tc.finish()
}

func (tc *typeChecker) declare(id ast.LocalID, t types.TypeID) {
	l := tc.mod.Local(id)
	if l == nil {
		return
	}
	tc.locals[id] = t
	tc.env.Declare(scope.Binding{
		Local:    id,
		Name:     tc.mod.Name(l.Name),
		Type:     t,
		Mutable:  l.Mutable,
		Declared: l.Span,
	})
}

func (tc *typeChecker) localType(id ast.LocalID) (types.TypeID, bool) {
	if b, ok := tc.env.Lookup(id); ok {
		return b.Type, true
	}
	t, ok := tc.locals[id]
	return t, ok
}

func (tc *typeChecker) record(id ast.ExprID, t types.TypeID) types.TypeID {
	tc.exprs[id] = t
	return t
}

func (tc *typeChecker) span(id ast.ExprID) source.Span {
	if e := tc.mod.Expr(id); e != nil {
		return e.Span
	}
	return source.Span{}
}

func (tc *typeChecker) fresh(sp source.Span) types.TypeID {
	return tc.subst.Fresh(unify.VarGeneral, sp)
}

// resolved is the top-level shape of t under the current substitution.
func (tc *typeChecker) resolved(t types.TypeID) (types.TypeID, types.Type) {
	r := tc.subst.Resolve(t)
	tt, _ := tc.in.Lookup(r)
	return r, tt
}

func (tc *typeChecker) isError(t types.TypeID) bool {
	_, tt := tc.resolved(t)
	return tt.Kind == types.KindError
}

func (tc *typeChecker) isNever(t types.TypeID) bool {
	_, tt := tc.resolved(t)
	return tt.Kind == types.KindPrim && tt.Prim == types.PrimNever
}

func (tc *typeChecker) typeString(t types.TypeID) string {
	return tc.printer().String(tc.subst.Apply(t))
}

// printer spells open literal classes as `{integer}` and `{float}`.
func (tc *typeChecker) printer() types.Printer {
	p := tc.s.printer()
	p.Var = func(id types.TypeID) string {
		if kind, ok := tc.subst.KindOf(id); ok {
			return kind.String()
		}
		return ""
	}
	return p
}

// finish defaults literal classes, checks deferred bounds and turns every
// variable that is still open into the error type, reporting it once.
func (tc *typeChecker) finish() {
	if tc.finished {
		return
	}
	tc.finished = true
	tc.subst.DefaultLiterals()
	for _, c := range tc.unsizes {
		tc.castToDyn(c)
	}
	for _, ob := range tc.obligs {
		tc.discharge(ob)
	}

	reported := make(map[types.TypeID]struct{})
	closeVars := func(t types.TypeID, sp source.Span) {
		for _, v := range tc.subst.Unresolved(t) {
			root := tc.subst.Resolve(v)
			if _, seen := reported[root]; !seen {
				reported[root] = struct{}{}
				at := tc.subst.Origin(root)
				if at.Empty() {
					at = sp
				}
				diag.ReportError(tc.rep, diag.CannotInfer, at, "type annotations needed").
					WithNote(sp, fmt.Sprintf("type must be known at this point: `%s`", tc.typeString(t))).Emit()
			}
			_ = tc.subst.Unify(v, tc.b.Error)
		}
	}
	ids := make([]ast.ExprID, 0, len(tc.exprs))
	for id := range tc.exprs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		closeVars(tc.exprs[id], tc.span(id))
	}
	for id, t := range tc.locals {
		if l := tc.mod.Local(id); l != nil {
			closeVars(t, l.Span)
		}
	}
}

func (tc *typeChecker) discharge(ob obligation) {
	err := tc.s.Traits.Satisfies(tc.subst, ob.ty, ob.bound)
	if err == nil {
		return
	}
	ue, ok := err.(*traits.UnsatisfiedBoundError)
	if !ok {
		tc.reportUnify(err, ob.span)
		return
	}
	trait := tc.mod.ItemName(ue.Trait)
	if len(ue.Args) > 0 {
		trait = strings.TrimPrefix(tc.s.printer().String(tc.in.Dyn(uint32(ue.Trait), ue.Args...)), "dyn ")
	}
	b := diag.ReportError(tc.rep, diag.UnsatisfiedBound, ob.span,
		fmt.Sprintf("the trait bound `%s: %s` is not satisfied", tc.typeString(ue.Type), trait))
	if !ob.bound.Span.Empty() {
		b = b.WithNote(ob.bound.Span, "required by this bound")
	}
	b.Emit()
}

// result freezes the solved types of the body.
func (tc *typeChecker) result() *BodyTypes {
	bt := &BodyTypes{
		Fn:      tc.fn,
		Exprs:   make(map[ast.ExprID]types.TypeID, len(tc.exprs)),
		Locals:  make(map[ast.LocalID]types.TypeID, len(tc.locals)),
		Methods: tc.methods,
		Callees: tc.callees,
		Unsized: make(map[ast.ExprID]traits.DynValue, len(tc.unsized)),
		sess:    tc.s,
	}
	for id, t := range tc.exprs {
		bt.Exprs[id] = tc.subst.Apply(t)
	}
	for id, t := range tc.locals {
		bt.Locals[id] = tc.subst.Apply(t)
	}
	for id, dv := range tc.unsized {
		dv.Data = tc.subst.Apply(dv.Data)
		bt.Unsized[id] = dv
	}
	for id, ref := range tc.methods {
		for k, v := range ref.Subst {
			ref.Subst[k] = tc.subst.Apply(v)
		}
		ref.Recv = tc.subst.Apply(ref.Recv)
		tc.methods[id] = ref
	}
	for _, p := range tc.insts {
		args := make([]types.TypeID, len(p.vars))
		for i, v := range p.vars {
			args[i] = tc.subst.Apply(v)
		}
		bt.Instantiations = append(bt.Instantiations, Instantiation{Expr: p.expr, Item: p.item, Args: args})
	}
	return bt
}

// checkMatches runs exhaustiveness over the recorded matches once their
// scrutinee types are final.
func (tc *typeChecker) checkMatches() {
	for _, m := range tc.matches {
		e := tc.mod.Expr(m)
		scrut := tc.subst.Apply(tc.exprs[e.X])
		checkMatch(tc.s, m, scrut, tc.rep)
	}
}
