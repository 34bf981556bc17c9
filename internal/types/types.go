package types

import "fmt"

// TypeID is a handle to an interned type. Structurally equal types share one.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

type Kind uint8

const (
	KindInvalid Kind = iota
	KindPrim
	KindNamed // struct or enum instance: Def + Elems as generic args
	KindRef   // Elem, Mutable, Region
	KindFn    // Elems params, Elem return
	KindTuple // Elems
	KindArray // Elem, Len
	KindVar   // inference variable Index
	KindParam // generic parameter Index of item Def
	KindDyn   // trait object of trait Def with Elems args
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindPrim:
		return "prim"
	case KindNamed:
		return "named"
	case KindRef:
		return "ref"
	case KindFn:
		return "fn"
	case KindTuple:
		return "tuple"
	case KindArray:
		return "array"
	case KindVar:
		return "var"
	case KindParam:
		return "param"
	case KindDyn:
		return "dyn"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

type Prim uint8

const (
	PrimNone Prim = iota
	PrimBool
	PrimChar
	PrimStr
	PrimUnit
	PrimNever
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimF32
	PrimF64
)

var primNames = [...]string{
	PrimNone:  "<none>",
	PrimBool:  "bool",
	PrimChar:  "char",
	PrimStr:   "str",
	PrimUnit:  "()",
	PrimNever: "!",
	PrimI8:    "i8",
	PrimI16:   "i16",
	PrimI32:   "i32",
	PrimI64:   "i64",
	PrimU8:    "u8",
	PrimU16:   "u16",
	PrimU32:   "u32",
	PrimU64:   "u64",
	PrimF32:   "f32",
	PrimF64:   "f64",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "<prim?>"
}

// PrimByName maps a source spelling to a primitive.
func PrimByName(name string) (Prim, bool) {
	switch name {
	case "unit":
		return PrimUnit, true
	case "never":
		return PrimNever, true
	case "string":
		return PrimStr, true
	}
	for p := PrimBool; p <= PrimF64; p++ {
		if primNames[p] == name {
			return p, true
		}
	}
	return PrimNone, false
}

func (p Prim) IsInteger() bool { return p >= PrimI8 && p <= PrimU64 }
func (p Prim) IsSigned() bool  { return p >= PrimI8 && p <= PrimI64 }
func (p Prim) IsFloat() bool   { return p == PrimF32 || p == PrimF64 }
func (p Prim) IsNumeric() bool { return p.IsInteger() || p.IsFloat() }

// IntRange returns the inclusive value range of an integer primitive. ok is
// false for u64, whose upper half does not fit int64, and for non-integers.
func (p Prim) IntRange() (lo, hi int64, ok bool) {
	switch p {
	case PrimI8:
		return -1 << 7, 1<<7 - 1, true
	case PrimI16:
		return -1 << 15, 1<<15 - 1, true
	case PrimI32:
		return -1 << 31, 1<<31 - 1, true
	case PrimI64:
		return -1 << 63, 1<<63 - 1, true
	case PrimU8:
		return 0, 1<<8 - 1, true
	case PrimU16:
		return 0, 1<<16 - 1, true
	case PrimU32:
		return 0, 1<<32 - 1, true
	}
	return 0, 0, false
}

// Region names a lifetime inside one signature. Bodies use RegionErased:
// unification ignores regions and the borrow checker computes its own.
type Region uint32

const (
	RegionErased Region = 0
	RegionStatic Region = 1
	// RegionFirstNamed is the first id handed to named or elided lifetimes.
	RegionFirstNamed Region = 2
)

// DynamicLen marks arrays without a compile-time length.
const DynamicLen int64 = -1

// SelfIndex is the Param index used for `Self` inside a trait.
const SelfIndex uint32 = 0xFFFF

// Type is a structural descriptor. Only the fields that belong to Kind are
// set; the rest stay zero so that equal types produce equal keys.
type Type struct {
	Kind    Kind
	Prim    Prim
	Def     uint32 // named item, param owner or dyn trait
	Index   uint32 // var id or param index
	Region  Region
	Mutable bool
	Len     int64
	Elem    TypeID
	Elems   []TypeID
}

func MakeNamed(def uint32, args ...TypeID) Type {
	return Type{Kind: KindNamed, Def: def, Elems: args}
}

func MakeRef(inner TypeID, mutable bool) Type {
	return Type{Kind: KindRef, Elem: inner, Mutable: mutable}
}

func MakeRefIn(region Region, inner TypeID, mutable bool) Type {
	return Type{Kind: KindRef, Elem: inner, Mutable: mutable, Region: region}
}

func MakeFn(params []TypeID, ret TypeID) Type {
	return Type{Kind: KindFn, Elems: params, Elem: ret}
}

func MakeTuple(elems ...TypeID) Type {
	return Type{Kind: KindTuple, Elems: elems}
}

func MakeArray(elem TypeID, n int64) Type {
	return Type{Kind: KindArray, Elem: elem, Len: n}
}

func MakeVar(id uint32) Type {
	return Type{Kind: KindVar, Index: id}
}

func MakeParam(owner, index uint32) Type {
	return Type{Kind: KindParam, Def: owner, Index: index}
}

func MakeDyn(trait uint32, args ...TypeID) Type {
	return Type{Kind: KindDyn, Def: trait, Elems: args}
}
