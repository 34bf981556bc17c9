package ast

import "vais/internal/source"

type PatKind uint8

const (
	PatWild PatKind = iota + 1
	PatBind
	PatLit
	PatRange
	PatTuple
	PatVariant
	PatStruct
	PatOr
)

type FieldPat struct {
	Name source.StringID `msgpack:"name"`
	Pat  PatID           `msgpack:"pat"`
}

// Pattern is a match pattern. Range bounds are inclusive.
type Pattern struct {
	Kind PatKind `msgpack:"kind"`
	Span source.Span

	Local LocalID `msgpack:"local,omitempty"` // Bind

	Lit  LitKind `msgpack:"lit,omitempty"`
	Text string  `msgpack:"text,omitempty"`
	Lo   int64   `msgpack:"lo,omitempty"`
	Hi   int64   `msgpack:"hi,omitempty"`

	Item    ItemID     `msgpack:"item,omitempty"` // enum or struct
	Variant uint32     `msgpack:"variant,omitempty"`
	Subs    []PatID    `msgpack:"subs,omitempty"`
	Fields  []FieldPat `msgpack:"fields,omitempty"`
	Rest    bool       `msgpack:"rest,omitempty"` // `..` in struct patterns
}
