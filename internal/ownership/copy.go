package ownership

import (
	"vais/internal/ast"
	"vais/internal/types"
)

// CopyOracle decides which types are duplicated instead of moved.
// Scalars, references, function values and items marked copy are copy;
// tuples and arrays are copy when their elements are. str, other named
// types, type parameters and trait objects move.
type CopyOracle struct {
	In  *types.Interner
	Mod *ast.Module
}

func (c CopyOracle) IsCopy(id types.TypeID) bool {
	t, ok := c.In.Lookup(id)
	if !ok {
		return true
	}
	switch t.Kind {
	case types.KindPrim:
		return t.Prim != types.PrimStr
	case types.KindRef, types.KindFn, types.KindError, types.KindVar:
		return true
	case types.KindTuple:
		for _, e := range t.Elems {
			if !c.IsCopy(e) {
				return false
			}
		}
		return true
	case types.KindArray:
		return t.Len != types.DynamicLen && c.IsCopy(t.Elem)
	case types.KindNamed:
		it := c.Mod.Item(ast.ItemID(t.Def))
		if it == nil || !it.Copy {
			return false
		}
		for _, a := range t.Elems {
			if !c.IsCopy(a) {
				return false
			}
		}
		return true
	}
	return false
}
