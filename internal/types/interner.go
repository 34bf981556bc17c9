package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"fortio.org/safecast"
)

const (
	shardBits  = 4
	shardCount = 1 << shardBits
	shardMask  = shardCount - 1
)

// Builtins stores TypeIDs for the primitive types and the error sentinel.
type Builtins struct {
	Bool, Char, Str, Unit, Never TypeID
	I8, I16, I32, I64           TypeID
	U8, U16, U32, U64           TypeID
	F32, F64                    TypeID
	Error                       TypeID
}

// Interner deduplicates type descriptors. It is the one structure that
// parallel body checkers share, so it is striped: a descriptor's key picks
// a shard and only that shard is locked. A TypeID encodes the shard in its
// low bits and the 1-based slot above them.
type Interner struct {
	shards   [shardCount]shard
	builtins Builtins
}

type shard struct {
	mu    sync.RWMutex
	index map[typeKey]TypeID
	types []Type
}

type typeKey struct {
	Kind    Kind
	Prim    Prim
	Def     uint32
	Index   uint32
	Region  Region
	Mutable bool
	Len     int64
	Elem    TypeID
	Elems   string // packed little-endian TypeIDs
}

func NewInterner() *Interner {
	in := &Interner{}
	for i := range in.shards {
		in.shards[i].index = make(map[typeKey]TypeID, 32)
	}
	b := &in.builtins
	b.Bool = in.Prim(PrimBool)
	b.Char = in.Prim(PrimChar)
	b.Str = in.Prim(PrimStr)
	b.Unit = in.Prim(PrimUnit)
	b.Never = in.Prim(PrimNever)
	b.I8, b.I16, b.I32, b.I64 = in.Prim(PrimI8), in.Prim(PrimI16), in.Prim(PrimI32), in.Prim(PrimI64)
	b.U8, b.U16, b.U32, b.U64 = in.Prim(PrimU8), in.Prim(PrimU16), in.Prim(PrimU32), in.Prim(PrimU64)
	b.F32, b.F64 = in.Prim(PrimF32), in.Prim(PrimF64)
	b.Error = in.Intern(Type{Kind: KindError})
	return in
}

func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Prim interns a primitive.
func (in *Interner) Prim(p Prim) TypeID {
	return in.Intern(Type{Kind: KindPrim, Prim: p})
}

func keyOf(t Type) typeKey {
	k := typeKey{
		Kind:    t.Kind,
		Prim:    t.Prim,
		Def:     t.Def,
		Index:   t.Index,
		Region:  t.Region,
		Mutable: t.Mutable,
		Len:     t.Len,
		Elem:    t.Elem,
	}
	if len(t.Elems) > 0 {
		buf := make([]byte, 4*len(t.Elems))
		for i, e := range t.Elems {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(e))
		}
		k.Elems = string(buf)
	}
	return k
}

func (k typeKey) shard() int {
	h := fnv.New32a()
	var buf [32]byte
	buf[0] = byte(k.Kind)
	buf[1] = byte(k.Prim)
	binary.LittleEndian.PutUint32(buf[2:], k.Def)
	binary.LittleEndian.PutUint32(buf[6:], k.Index)
	binary.LittleEndian.PutUint32(buf[10:], uint32(k.Region))
	if k.Mutable {
		buf[14] = 1
	}
	binary.LittleEndian.PutUint64(buf[15:], uint64(k.Len)) // #nosec G115 -- bit pattern only
	binary.LittleEndian.PutUint32(buf[23:], uint32(k.Elem))
	_, _ = h.Write(buf[:27])
	_, _ = h.Write([]byte(k.Elems))
	return int(h.Sum32() & shardMask)
}

// Intern returns the canonical id for t, inserting it on first sight.
// Safe for concurrent use.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := keyOf(t)
	si := key.shard()
	sh := &in.shards[si]

	sh.mu.RLock()
	id, ok := sh.index[key]
	sh.mu.RUnlock()
	if ok {
		return id
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if id, ok := sh.index[key]; ok {
		return id
	}
	slot, err := safecast.Conv[uint32](len(sh.types) + 1)
	if err != nil || slot >= 1<<(32-shardBits) {
		panic(fmt.Errorf("type interner shard %d overflow: %w", si, err))
	}
	if len(t.Elems) > 0 {
		t.Elems = append([]TypeID(nil), t.Elems...)
	}
	sh.types = append(sh.types, t)
	id = TypeID(slot<<shardBits | uint32(si)) // #nosec G115 -- si < shardCount
	sh.index[key] = id
	return id
}

// Lookup returns the descriptor for id. The Elems slice is shared and must
// not be modified.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID {
		return Type{}, false
	}
	sh := &in.shards[uint32(id)&shardMask]
	slot := int(uint32(id) >> shardBits)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if slot == 0 || slot > len(sh.types) {
		return Type{}, false
	}
	return sh.types[slot-1], true
}

// MustLookup panics when id is unknown.
func (in *Interner) MustLookup(id TypeID) Type {
	t, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("types: invalid TypeID %d", id))
	}
	return t
}

// Kind is a shortcut for MustLookup(id).Kind; unknown ids report KindInvalid.
func (in *Interner) Kind(id TypeID) Kind {
	t, _ := in.Lookup(id)
	return t.Kind
}

// Len counts interned descriptors across all shards.
func (in *Interner) Len() int {
	n := 0
	for i := range in.shards {
		sh := &in.shards[i]
		sh.mu.RLock()
		n += len(sh.types)
		sh.mu.RUnlock()
	}
	return n
}

// Convenience constructors.

func (in *Interner) Named(def uint32, args ...TypeID) TypeID { return in.Intern(MakeNamed(def, args...)) }
func (in *Interner) Ref(inner TypeID, mutable bool) TypeID   { return in.Intern(MakeRef(inner, mutable)) }
func (in *Interner) Fn(params []TypeID, ret TypeID) TypeID   { return in.Intern(MakeFn(params, ret)) }
func (in *Interner) Array(elem TypeID, n int64) TypeID       { return in.Intern(MakeArray(elem, n)) }
func (in *Interner) Var(id uint32) TypeID                    { return in.Intern(MakeVar(id)) }
func (in *Interner) Param(owner, index uint32) TypeID        { return in.Intern(MakeParam(owner, index)) }
func (in *Interner) Dyn(trait uint32, args ...TypeID) TypeID {
	return in.Intern(MakeDyn(trait, args...))
}

// Tuple interns a tuple; the empty tuple is unit.
func (in *Interner) Tuple(elems ...TypeID) TypeID {
	if len(elems) == 0 {
		return in.builtins.Unit
	}
	return in.Intern(MakeTuple(elems...))
}
