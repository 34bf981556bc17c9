package ast

type (
	ItemID  uint32
	ExprID  uint32
	StmtID  uint32
	PatID   uint32
	TypeID  uint32 // syntactic type expression, not a checked type
	LocalID uint32
)

const (
	NoItemID  ItemID  = 0
	NoExprID  ExprID  = 0
	NoStmtID  StmtID  = 0
	NoPatID   PatID   = 0
	NoTypeID  TypeID  = 0
	NoLocalID LocalID = 0
)

func (id ItemID) IsValid() bool  { return id != NoItemID }
func (id ExprID) IsValid() bool  { return id != NoExprID }
func (id StmtID) IsValid() bool  { return id != NoStmtID }
func (id PatID) IsValid() bool   { return id != NoPatID }
func (id TypeID) IsValid() bool  { return id != NoTypeID }
func (id LocalID) IsValid() bool { return id != NoLocalID }
