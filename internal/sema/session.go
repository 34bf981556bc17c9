package sema

import (
	"github.com/google/uuid"

	"vais/internal/ast"
	"vais/internal/borrowck"
	"vais/internal/diag"
	"vais/internal/ownership"
	"vais/internal/scope"
	"vais/internal/sig"
	"vais/internal/traits"
	"vais/internal/types"
	"vais/internal/unify"
)

// Session holds everything the signature pre-pass produced for one module.
// After NewSession returns nothing in it changes, so any number of body
// checkers may read it at once.
type Session struct {
	ID     string
	Mod    *ast.Module
	In     *types.Interner
	Sigs   *sig.Table
	Traits *traits.Registry

	elided map[ast.ItemID]borrowck.ElidedSig
	copy   ownership.CopyOracle
	shapes shapeInfo
	opts   Options
}

// NewSession runs the serial pre-pass: signatures, trait registry with
// coherence and object safety, and lifetime elision for every function.
func NewSession(mod *ast.Module, opts Options) (*Session, *diag.Bag) {
	opts = opts.withDefaults()
	in := opts.Types
	if in == nil {
		in = types.NewInterner()
	}
	bag := diag.NewBag(opts.MaxDiagnostics)
	rep := diag.BagReporter{Bag: bag}

	s := &Session{
		ID:     uuid.NewString(),
		Mod:    mod,
		In:     in,
		elided: make(map[ast.ItemID]borrowck.ElidedSig),
		copy:   ownership.CopyOracle{In: in, Mod: mod},
		opts:   opts,
	}
	s.Sigs = sig.Collect(mod, in, rep)
	s.Traits = traits.Build(s.Sigs, rep)
	s.shapes = shapeInfo{s: s}
	for _, id := range mod.ItemIDs() {
		fs := s.Sigs.Fns[id]
		if fs == nil {
			continue
		}
		es, err := borrowck.Elide(in, fs)
		if err != nil {
			s.reportElision(rep, fs, err)
			continue
		}
		s.elided[id] = es
	}
	return s, bag
}

func (s *Session) reportElision(rep diag.Reporter, fs *sig.FnSig, err error) {
	sp := fs.RetSpan
	if sp.Empty() {
		sp = s.Mod.Item(fs.Item).Span
	}
	b := diag.ReportError(rep, diag.MissingLifetime, sp, err.Error())
	if ml, ok := err.(*borrowck.MissingLifetimeError); ok && ml.Regions > 1 {
		b = b.WithNote(s.Mod.Item(fs.Item).Span,
			"the signature does not say which input the returned reference borrows from")
	}
	b.Emit()
}

// Elided returns the signature of fn with all lifetimes spelled out.
func (s *Session) Elided(fn ast.ItemID) (borrowck.ElidedSig, bool) {
	es, ok := s.elided[fn]
	return es, ok
}

// TypeOf returns the declared type of an item: the function type of a fn
// (regions erased, generics as parameters), the generic instance of a
// struct or enum, the target of an impl and `dyn Trait` for a trait.
func (s *Session) TypeOf(item ast.ItemID) types.TypeID {
	it := s.Mod.Item(item)
	if it == nil {
		return s.In.Builtins().Error
	}
	switch it.Kind {
	case ast.ItemFn:
		if sc, ok := s.Sigs.Scheme(item); ok {
			return sc.Type
		}
	case ast.ItemStruct, ast.ItemEnum:
		return s.Sigs.SelfType(item)
	case ast.ItemImpl:
		if is := s.Sigs.Impls[item]; is != nil {
			return s.In.EraseRegions(is.Target)
		}
	case ast.ItemTrait:
		args := make([]types.TypeID, len(it.Generics))
		for i, k := range sig.GenericKeys(s.Mod, item) {
			args[i] = s.In.Param(k.Owner, k.Index)
		}
		return s.In.Dyn(uint32(item), args...)
	}
	return s.In.Builtins().Error
}

// InferExpr types a detached expression against expected (NoTypeID to
// infer freely) with the bindings of env in scope. Literal classes are
// defaulted; the result carries no variables. env is left as it was.
func (s *Session) InferExpr(expr ast.ExprID, expected types.TypeID, env *scope.Stack) (types.TypeID, []diag.Diagnostic) {
	if env == nil {
		env = scope.NewStack()
	}
	snap := env.Snapshot()
	defer env.Restore(snap)

	bag := diag.NewBag(s.opts.MaxDiagnostics)
	c := newBodyChecker(s, ast.NoItemID, diag.BagReporter{Bag: bag}, env)
	c.ret = s.In.Builtins().Error
	var ty types.TypeID
	if expected == types.NoTypeID {
		ty = c.inferExpr(expr)
	} else {
		ty = c.checkExpr(expr, expected)
	}
	c.finish()
	ty = c.subst.Apply(ty)
	c.checkMatches()
	bag.Sort()
	return ty, bag.Items()
}

func (s *Session) printer() types.Printer {
	return s.Sigs.Printer()
}

// Fresh substitutions are per body; the helper keeps the interner wiring in
// one place.
func (s *Session) newSubst() *unify.Substitution {
	return unify.NewSubstitution(s.In)
}
