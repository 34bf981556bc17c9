package sema

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"vais/internal/ast"
	"vais/internal/borrowck"
	"vais/internal/diag"
	"vais/internal/observ"
	"vais/internal/source"
	"vais/internal/trace"
	"vais/internal/traits"
	"vais/internal/types"
)

// Options configure a semantic pass over a module.
type Options struct {
	// Jobs bounds the number of bodies checked at once; <= 0 uses GOMAXPROCS.
	Jobs int
	// MaxDiagnostics caps the merged bag; <= 0 means no limit.
	MaxDiagnostics int
	// Types is shared with the caller when set, so types can be compared
	// across modules.
	Types  *types.Interner
	Tracer trace.Tracer
	Timer  *observ.Timer
	// SkipBorrowck stops after ownership tracking.
	SkipBorrowck bool
}

func (o Options) withDefaults() Options {
	if o.Jobs <= 0 {
		o.Jobs = runtime.GOMAXPROCS(0)
	}
	if o.Tracer == nil {
		o.Tracer = trace.Nop
	}
	return o
}

// Instantiation records the type arguments chosen for one use of a
// generic function, for monomorphization.
type Instantiation struct {
	Expr ast.ExprID
	Item ast.ItemID
	Args []types.TypeID
}

// TypedModule stores semantic artefacts produced by the checker. No type in
// it mentions an inference variable.
type TypedModule struct {
	Session        *Session
	Mod            *ast.Module
	Types          *types.Interner
	Bodies         map[ast.ItemID]*BodyTypes
	Instantiations []Instantiation
	VTables        []*traits.VTable

	exprOwner map[ast.ExprID]ast.ItemID
}

// ExprType returns the solved type of an expression inside any body.
func (tm *TypedModule) ExprType(id ast.ExprID) types.TypeID {
	if b := tm.Bodies[tm.exprOwner[id]]; b != nil {
		return b.ExprType(id)
	}
	return types.NoTypeID
}

// Body returns the typing of fn, or nil if it has no body.
func (tm *TypedModule) Body(fn ast.ItemID) *BodyTypes {
	return tm.Bodies[fn]
}

// CheckModule type-checks every body of mod and runs ownership and borrow
// checking over them. Both results are always returned; callers decide
// from bag.HasErrors whether the module may be lowered further.
func CheckModule(ctx context.Context, mod *ast.Module, opts Options) (*TypedModule, *diag.Bag) {
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	opts = opts.withDefaults()
	tr := opts.Tracer
	root := trace.Begin(tr, trace.ScopeModule, "check "+mod.Path, trace.CurrentSpan(ctx))

	collect := trace.Begin(tr, trace.ScopePass, "collect", root.ID())
	done := opts.Timer.Track("collect")
	sess, bag := NewSession(mod, opts)
	done(fmt.Sprintf("%d signatures", len(sess.Sigs.Fns)))
	collect.WithExtra("impls", fmt.Sprint(len(sess.Traits.Impls()))).End("")
	root.WithExtra("session", sess.ID)

	tm := &TypedModule{
		Session:   sess,
		Mod:       mod,
		Types:     sess.In,
		Bodies:    make(map[ast.ItemID]*BodyTypes),
		VTables:   sess.Traits.VTables(),
		exprOwner: make(map[ast.ExprID]ast.ItemID),
	}

	bodies := mod.Bodies()
	results := make([]*BodyTypes, len(bodies))
	bags := make([]*diag.Bag, len(bodies))

	pass := trace.Begin(tr, trace.ScopePass, "bodies", root.ID())
	done = opts.Timer.Track("bodies")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, fn := range bodies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], bags[i] = sess.checkBody(fn, pass.ID())
			return nil
		})
	}
	err := g.Wait()
	done(fmt.Sprintf("%d bodies", len(bodies)))
	pass.End("")

	for i, fn := range bodies {
		if bags[i] != nil {
			bag.Merge(bags[i])
		}
		bt := results[i]
		if bt == nil {
			continue
		}
		tm.Bodies[fn] = bt
		for e := range bt.Exprs {
			tm.exprOwner[e] = fn
		}
		tm.Instantiations = append(tm.Instantiations, bt.Instantiations...)
	}
	if err != nil {
		diag.ReportError(diag.BagReporter{Bag: bag}, diag.InternalError, source.Span{File: mod.File},
			fmt.Sprintf("checking interrupted: %v", err)).Emit()
	}
	bag.Sort()
	root.WithExtra("diagnostics", fmt.Sprint(bag.Len())).End("")
	return tm, bag
}

// checkBody runs inference, exhaustiveness, ownership and borrow checking
// for one function. A panic is turned into an InternalError for that body
// only.
func (s *Session) checkBody(fn ast.ItemID, parent uint64) (bt *BodyTypes, bag *diag.Bag) {
	bag = diag.NewBag(s.opts.MaxDiagnostics)
	rep := diag.BagReporter{Bag: bag}
	it := s.Mod.Item(fn)
	sp := trace.Begin(s.opts.Tracer, trace.ScopeModule, s.Mod.ItemName(fn), parent)
	defer func() {
		if r := recover(); r != nil {
			diag.ReportError(rep, diag.InternalError, it.Span,
				fmt.Sprintf("internal error while checking `%s`: %v", s.Mod.ItemName(fn), r)).
				WithNote(it.Span, firstFrames(debug.Stack())).Emit()
			bt = nil
			sp.End("panic")
		}
	}()

	infer := trace.Begin(s.opts.Tracer, trace.ScopeNode, "infer", sp.ID())
	c := newBodyChecker(s, fn, rep, nil)
	c.run()
	bt = c.result()
	infer.WithExtra("vars", fmt.Sprint(c.subst.Vars())).End("")

	c.checkMatches()

	own := trace.Begin(s.opts.Tracer, trace.ScopeNode, "ownership", sp.ID())
	bt.Facts = runOwnership(s, fn, bt, rep)
	own.End("")

	if !s.opts.SkipBorrowck {
		bc := trace.Begin(s.opts.Tracer, trace.ScopeNode, "borrowck", sp.ID())
		bt.Borrows = borrowck.Check(s.Mod, s.In, fn, bt, bt.Facts, rep)
		bc.WithExtra("loans", fmt.Sprint(len(bt.Borrows.Loans))).End("")
	}
	sp.End("")
	return bt, bag
}

// firstFrames keeps the panic site and a few callers.
func firstFrames(stack []byte) string {
	const keep = 12
	lines := 0
	for i, c := range stack {
		if c != '\n' {
			continue
		}
		lines++
		if lines == keep {
			return string(stack[:i])
		}
	}
	return string(stack)
}
