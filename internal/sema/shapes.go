package sema

import (
	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/exhaust"
	"vais/internal/types"
)

// shapeInfo describes types to the exhaustiveness checker. References are
// seen through, as patterns match through them.
type shapeInfo struct {
	s *Session
}

func (si shapeInfo) Shape(ty types.TypeID) exhaust.Shape {
	in := si.s.In
	t, ok := in.Lookup(ty)
	for ok && t.Kind == types.KindRef {
		t, ok = in.Lookup(t.Elem)
	}
	if !ok {
		return exhaust.Shape{Kind: exhaust.ShapeUnknown}
	}
	switch t.Kind {
	case types.KindPrim:
		switch {
		case t.Prim == types.PrimBool:
			return exhaust.Shape{Kind: exhaust.ShapeBool}
		case t.Prim == types.PrimUnit:
			return exhaust.Shape{Kind: exhaust.ShapeProduct, Fields: [][]types.TypeID{nil}}
		case t.Prim == types.PrimNever:
			return exhaust.Shape{Kind: exhaust.ShapeEnum}
		case t.Prim == types.PrimU64:
			return exhaust.Uint64Shape()
		case t.Prim.IsInteger():
			lo, hi, _ := t.Prim.IntRange()
			return exhaust.Shape{Kind: exhaust.ShapeInt, Lo: lo, Hi: hi}
		}
		return exhaust.Shape{Kind: exhaust.ShapeOpaque}
	case types.KindTuple:
		return exhaust.Shape{Kind: exhaust.ShapeProduct, Fields: [][]types.TypeID{t.Elems}}
	case types.KindNamed:
		return si.named(t)
	case types.KindVar, types.KindError, types.KindInvalid:
		return exhaust.Shape{Kind: exhaust.ShapeUnknown}
	}
	return exhaust.Shape{Kind: exhaust.ShapeOpaque}
}

func (si shapeInfo) named(t types.Type) exhaust.Shape {
	mod, in := si.s.Mod, si.s.In
	item := ast.ItemID(t.Def)
	it := mod.Item(item)
	adt := si.s.Sigs.Adts[item]
	if it == nil || adt == nil {
		return exhaust.Shape{Kind: exhaust.ShapeUnknown}
	}
	inst := in.Intern(t)
	switch it.Kind {
	case ast.ItemStruct:
		sh := exhaust.Shape{
			Kind:       exhaust.ShapeProduct,
			Name:       mod.Name(it.Name),
			FieldNames: make([]string, len(adt.Names)),
			Fields:     [][]types.TypeID{make([]types.TypeID, len(adt.Fields))},
		}
		for i, n := range adt.Names {
			sh.FieldNames[i] = mod.Name(n)
		}
		for i, f := range adt.Fields {
			sh.Fields[0][i] = in.EraseRegions(in.SubstParams(f, t.Def, t.Elems))
		}
		return sh
	case ast.ItemEnum:
		sh := exhaust.Shape{
			Kind:   exhaust.ShapeEnum,
			Name:   mod.Name(it.Name),
			Ctors:  make([]string, len(it.Variants)),
			Fields: make([][]types.TypeID, len(it.Variants)),
		}
		for i, v := range it.Variants {
			sh.Ctors[i] = mod.Name(v.Name)
			fs, _ := si.s.Sigs.VariantFields(inst, uint32(i))
			for j := range fs {
				fs[j] = in.EraseRegions(fs[j])
			}
			sh.Fields[i] = fs
		}
		return sh
	}
	return exhaust.Shape{Kind: exhaust.ShapeOpaque}
}

func checkMatch(s *Session, m ast.ExprID, scrut types.TypeID, rep diag.Reporter) exhaust.Result {
	return exhaust.CheckMatch(s.Mod, s.shapes, scrut, m, rep)
}
