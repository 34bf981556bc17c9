package sema

import (
	"vais/internal/ast"
	"vais/internal/borrowck"
	"vais/internal/diag"
	"vais/internal/ownership"
	"vais/internal/traits"
	"vais/internal/types"
)

// BodyTypes is the solved typing of one function body together with what
// the ownership and borrow passes derived from it.
type BodyTypes struct {
	Fn      ast.ItemID
	Exprs   map[ast.ExprID]types.TypeID
	Locals  map[ast.LocalID]types.TypeID
	Methods map[ast.ExprID]traits.MethodRef

	// Callees maps calls of a named function to that function.
	Callees map[ast.ExprID]ast.ItemID

	// Unsized holds the expressions coerced from `&T` to `&dyn Trait`.
	Unsized map[ast.ExprID]traits.DynValue

	Instantiations []Instantiation
	Facts          *ownership.Facts
	Borrows        *borrowck.Result

	sess *Session
}

// ExprType returns the type of id, or the error type if id was not checked.
func (bt *BodyTypes) ExprType(id ast.ExprID) types.TypeID {
	if t, ok := bt.Exprs[id]; ok {
		return t
	}
	return bt.sess.In.Builtins().Error
}

func (bt *BodyTypes) LocalType(id ast.LocalID) types.TypeID {
	if t, ok := bt.Locals[id]; ok {
		return t
	}
	return bt.sess.In.Builtins().Error
}

func (bt *BodyTypes) Receiver(call ast.ExprID) ast.ReceiverKind {
	ref, ok := bt.Methods[call]
	if !ok {
		return ast.RecvNone
	}
	if fs := bt.sess.Sigs.Fns[ref.Method]; fs != nil {
		return fs.Receiver
	}
	return ast.RecvNone
}

func (bt *BodyTypes) IsCopy(t types.TypeID) bool {
	return bt.sess.copy.IsCopy(t)
}

// ResultSources reports which arguments of a call the returned reference
// may borrow from, going by the callee's elided signature.
func (bt *BodyTypes) ResultSources(call ast.ExprID) ([]int, bool) {
	fn := ast.NoItemID
	if ref, ok := bt.Methods[call]; ok {
		fn = ref.Method
	} else if c, ok := bt.Callees[call]; ok {
		fn = c
	}
	if !fn.IsValid() {
		return nil, false
	}
	es, ok := bt.sess.Elided(fn)
	if !ok {
		return nil, false
	}
	return es.OutputSources(bt.sess.In), true
}

func runOwnership(s *Session, fn ast.ItemID, bt *BodyTypes, rep diag.Reporter) *ownership.Facts {
	return ownership.Check(s.Mod, s.In, fn, bt, rep)
}
