package ast

import "vais/internal/source"

type ItemKind uint8

const (
	ItemFn ItemKind = iota + 1
	ItemStruct
	ItemEnum
	ItemTrait
	ItemImpl
)

func (k ItemKind) String() string {
	switch k {
	case ItemFn:
		return "fn"
	case ItemStruct:
		return "struct"
	case ItemEnum:
		return "enum"
	case ItemTrait:
		return "trait"
	case ItemImpl:
		return "impl"
	}
	return "item"
}

// ReceiverKind is how a method takes self.
type ReceiverKind uint8

const (
	RecvNone ReceiverKind = iota // free function or associated fn
	RecvValue                    // self
	RecvRef                      // &self
	RecvRefMut                   // &mut self
)

// Bound names a trait with its type arguments, as in `T: Into<i64>`.
type Bound struct {
	Trait ItemID   `msgpack:"trait"`
	Args  []TypeID `msgpack:"args,omitempty"`
	Span  source.Span
}

// GenericParam is one type parameter of an item. NegBounds are the `!Trait`
// bounds used to keep blanket impls apart.
type GenericParam struct {
	Name      source.StringID `msgpack:"name"`
	Bounds    []Bound         `msgpack:"bounds,omitempty"`
	NegBounds []ItemID        `msgpack:"neg,omitempty"`
	Span      source.Span
}

type Param struct {
	Local LocalID `msgpack:"local"`
	Type  TypeID  `msgpack:"type"`
	Span  source.Span
}

// FnDecl is the signature and body of a function or method.
type FnDecl struct {
	Receiver  ReceiverKind      `msgpack:"recv"`
	SelfLocal LocalID           `msgpack:"self,omitempty"`
	RecvLife  source.StringID   `msgpack:"recv_life,omitempty"` // &'a self
	Params    []Param           `msgpack:"params,omitempty"`
	Ret       TypeID            `msgpack:"ret,omitempty"` // NoTypeID = unit
	Body      ExprID            `msgpack:"body,omitempty"`
	Lifetimes []source.StringID `msgpack:"lifetimes,omitempty"`
}

type Field struct {
	Name source.StringID `msgpack:"name"`
	Type TypeID          `msgpack:"type"`
	Span source.Span
}

// Variant is an enum variant; Fields are positional.
type Variant struct {
	Name   source.StringID `msgpack:"name"`
	Fields []TypeID        `msgpack:"fields,omitempty"`
	Span   source.Span
}

// Item is a top-level declaration or an associated function. Only the
// fields that belong to Kind are meaningful.
type Item struct {
	Kind     ItemKind        `msgpack:"kind"`
	Name     source.StringID `msgpack:"name"`
	Span     source.Span
	Generics []GenericParam `msgpack:"generics,omitempty"`
	Owner    ItemID         `msgpack:"owner,omitempty"` // impl/trait of a method
	Copy     bool           `msgpack:"copy,omitempty"`  // @copy struct/enum

	Fn FnDecl `msgpack:"fn,omitempty"`

	Fields   []Field   `msgpack:"fields,omitempty"`
	Variants []Variant `msgpack:"variants,omitempty"`

	// trait: method items; impl: method items
	Methods []ItemID `msgpack:"methods,omitempty"`

	// impl
	Trait   Bound  `msgpack:"impl_trait,omitempty"` // Trait == NoItemID for inherent impls
	Target  TypeID `msgpack:"target,omitempty"`
	Default bool   `msgpack:"default,omitempty"` // overridable by a more specific impl
}

// IsMethod reports whether the item is a fn declared inside a trait or impl.
func (it *Item) IsMethod() bool {
	return it.Kind == ItemFn && it.Owner.IsValid()
}

// Local is one binding introduced by a parameter, let or pattern.
type Local struct {
	Name    source.StringID `msgpack:"name"`
	Mutable bool            `msgpack:"mut,omitempty"`
	Span    source.Span
}
