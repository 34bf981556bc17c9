package ast

import "vais/internal/source"

type TypeKind uint8

const (
	TypePrim TypeKind = iota + 1 // Name is the primitive spelling
	TypeNamed
	TypeParam // generic parameter: Item is the owner, Index its position
	TypeRef
	TypeTuple
	TypeArray
	TypeFn
	TypeDyn
	TypeSelf
	TypeInfer // `_`
)

// DynamicLen marks an array type written without a length.
const DynamicLen int64 = -1

type TypeExpr struct {
	Kind TypeKind `msgpack:"kind"`
	Span source.Span

	Name     source.StringID `msgpack:"name,omitempty"`
	Item     ItemID          `msgpack:"item,omitempty"`
	Index    uint32          `msgpack:"index,omitempty"`
	Args     []TypeID        `msgpack:"args,omitempty"` // generic args, tuple elems, fn params
	Elem     TypeID          `msgpack:"elem,omitempty"` // ref/array elem, fn return
	Mut      bool            `msgpack:"mut,omitempty"`
	Lifetime source.StringID `msgpack:"life,omitempty"`
	Len      int64           `msgpack:"len,omitempty"`
}
