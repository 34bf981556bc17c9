package ast

import "vais/internal/source"

type ExprKind uint8

const (
	ExprLit ExprKind = iota + 1
	ExprName
	ExprCall
	ExprMethodCall
	ExprField
	ExprTupleIndex
	ExprIndex
	ExprBinary
	ExprUnary
	ExprRef
	ExprDeref
	ExprAssign
	ExprBlock
	ExprIf
	ExprWhile
	ExprLoop
	ExprMatch
	ExprTuple
	ExprArray
	ExprStruct
	ExprReturn
	ExprBreak
	ExprContinue
)

type LitKind uint8

const (
	LitInt LitKind = iota + 1
	LitFloat
	LitStr
	LitBool
	LitChar
	LitUnit
)

type BinaryOp uint8

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpRem
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd // short-circuit
	OpOr  // short-circuit
	OpBitAnd
	OpBitOr
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpRem:
		return "%"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpBitAnd:
		return "&"
	case OpBitOr:
		return "|"
	}
	return "?"
}

// IsComparison reports operators that yield bool from two equal operands.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports the short-circuit operators.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

type UnaryOp uint8

const (
	OpNeg UnaryOp = iota + 1
	OpNot
)

type RefKind uint8

const (
	RefLocal RefKind = iota + 1
	RefItem
	RefVariant // Item is the enum, Variant indexes its variants
)

// NameRef is what name resolution attached to an identifier.
type NameRef struct {
	Kind    RefKind `msgpack:"k"`
	Local   LocalID `msgpack:"l,omitempty"`
	Item    ItemID  `msgpack:"i,omitempty"`
	Variant uint32  `msgpack:"v,omitempty"`
}

type MatchArm struct {
	Pat   PatID  `msgpack:"pat"`
	Guard ExprID `msgpack:"guard,omitempty"`
	Body  ExprID `msgpack:"body"`
	Span  source.Span
}

type FieldInit struct {
	Name  source.StringID `msgpack:"name"`
	Value ExprID          `msgpack:"value"`
	Span  source.Span
}

// Expr is a resolved expression node. Operand fields are shared between
// kinds:
//
//	Call        X=callee Args
//	MethodCall  X=receiver Name Args
//	Field       X Name; TupleIndex X Index
//	Index       X Y
//	Binary      X Op Y; Unary X UnOp
//	Ref         X Mut; Deref X
//	Assign      X=place Y=value
//	Block       Stmts Tail
//	If          X=cond Then Else; While X=cond Then=body; Loop Then=body
//	Match       X=scrutinee Arms
//	Tuple/Array Args; Struct Item Fields
//	Return/Break X (optional value)
type Expr struct {
	Kind ExprKind `msgpack:"kind"`
	Span source.Span

	Lit  LitKind `msgpack:"lit,omitempty"`
	Text string  `msgpack:"text,omitempty"` // literal source text
	Ref  NameRef `msgpack:"ref,omitempty"`

	TypeArgs []TypeID `msgpack:"targs,omitempty"` // explicit generic args on a name

	X     ExprID   `msgpack:"x,omitempty"`
	Y     ExprID   `msgpack:"y,omitempty"`
	Op    BinaryOp `msgpack:"op,omitempty"`
	UnOp  UnaryOp  `msgpack:"unop,omitempty"`
	Mut   bool     `msgpack:"mut,omitempty"`
	Args  []ExprID `msgpack:"args,omitempty"`
	Name  source.StringID `msgpack:"name,omitempty"`
	Index uint32 `msgpack:"index,omitempty"`

	Stmts []StmtID `msgpack:"stmts,omitempty"`
	Tail  ExprID   `msgpack:"tail,omitempty"`
	Then  ExprID   `msgpack:"then,omitempty"`
	Else  ExprID   `msgpack:"else,omitempty"`

	Arms   []MatchArm  `msgpack:"arms,omitempty"`
	Item   ItemID      `msgpack:"item,omitempty"`
	Fields []FieldInit `msgpack:"fields,omitempty"`
}

type StmtKind uint8

const (
	StmtLet StmtKind = iota + 1
	StmtExpr
)

// Stmt is a let binding or an expression statement.
type Stmt struct {
	Kind  StmtKind `msgpack:"kind"`
	Span  source.Span
	Local LocalID `msgpack:"local,omitempty"`
	Type  TypeID  `msgpack:"type,omitempty"` // annotation, NoTypeID if inferred
	Expr  ExprID  `msgpack:"expr,omitempty"` // initializer or the statement expression
}
