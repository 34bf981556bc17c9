package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Типы и вывод
	TypInfo          Code = 1000
	TypeMismatch     Code = 1001
	InfiniteType     Code = 1002
	CannotInfer      Code = 1003
	ArgCount         Code = 1004
	NotCallable      Code = 1005
	NoSuchField      Code = 1006
	UnresolvedMethod Code = 1007
	AmbiguousMethod  Code = 1008
	UnsatisfiedBound Code = 1009
	NotIndexable     Code = 1010
	BadOperand       Code = 1011

	// Трейты и имплы
	TrtInfo            Code = 2000
	ConflictingImpls   Code = 2001
	NotObjectSafe      Code = 2002
	MissingTraitMethod Code = 2003
	UnknownTraitMethod Code = 2004

	// Владение
	OwnInfo             Code = 3000
	UseAfterMove        Code = 3001
	UseAfterPartialMove Code = 3002
	ImmutableAssign     Code = 3003
	BorrowAfterMove     Code = 3004
	MoveOutOfBorrow     Code = 3005

	// Заимствования и времена жизни
	BrwInfo              Code = 4000
	BorrowConflict       Code = 4001
	AssignWhileBorrowed  Code = 4002
	MoveWhileBorrowed    Code = 4003
	MutBorrowOfImmutable Code = 4004
	MissingLifetime      Code = 4005
	ReturnLocalRef       Code = 4006

	// Сопоставление с образцом
	PatInfo            Code = 5000
	NonExhaustiveMatch Code = 5001
	UnreachablePattern Code = 5002

	// I/O драйвера
	IOLoadFileError Code = 6001
	IOCacheError    Code = 6002

	// Внутренние ошибки чекера
	InternalError Code = 9001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:          "Unknown error",
		TypInfo:              "Type information",
		TypeMismatch:         "mismatched types",
		InfiniteType:         "infinite type",
		CannotInfer:          "type annotations needed",
		ArgCount:             "wrong number of arguments",
		NotCallable:          "value is not callable",
		NoSuchField:          "no such field",
		UnresolvedMethod:     "unresolved method",
		AmbiguousMethod:      "ambiguous method call",
		UnsatisfiedBound:     "trait bound not satisfied",
		NotIndexable:         "value cannot be indexed",
		BadOperand:           "invalid operand type",
		TrtInfo:              "Trait information",
		ConflictingImpls:     "conflicting implementations",
		NotObjectSafe:        "trait is not object safe",
		MissingTraitMethod:   "missing trait method in impl",
		UnknownTraitMethod:   "method is not a member of trait",
		OwnInfo:              "Ownership information",
		UseAfterMove:         "use of moved value",
		UseAfterPartialMove:  "use of partially moved value",
		ImmutableAssign:      "assignment to immutable binding",
		BorrowAfterMove:      "borrow of moved value",
		MoveOutOfBorrow:      "cannot move out of borrowed content",
		BrwInfo:              "Borrow information",
		BorrowConflict:       "conflicting borrows",
		AssignWhileBorrowed:  "assignment to borrowed value",
		MoveWhileBorrowed:    "move out of borrowed value",
		MutBorrowOfImmutable: "mutable borrow of immutable binding",
		MissingLifetime:      "missing lifetime annotation",
		ReturnLocalRef:       "returns a reference to a local value",
		PatInfo:              "Pattern information",
		NonExhaustiveMatch:   "non-exhaustive patterns",
		UnreachablePattern:   "unreachable pattern",
		IOLoadFileError:      "I/O load file error",
		IOCacheError:         "diagnostics cache error",
		InternalError:        "internal checker error",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("TYP%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("TRT%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("OWN%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("BRW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("PAT%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("ICE%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
