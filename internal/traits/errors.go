package traits

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/types"
)

// UnresolvedMethodError: no inherent or visible trait method matched.
type UnresolvedMethodError struct {
	Recv types.TypeID
	Name string
	// Hidden lists traits that would have matched if they were in scope.
	Hidden []ast.ItemID
	// Available lists the methods callable on Recv, sorted.
	Available []string
}

func (e *UnresolvedMethodError) Error() string {
	return fmt.Sprintf("no method named %q", e.Name)
}

// AmbiguousMethodError: several candidates remained after ranking.
type AmbiguousMethodError struct {
	Name       string
	Candidates []MethodRef
}

func (e *AmbiguousMethodError) Error() string {
	return fmt.Sprintf("multiple applicable items named %q", e.Name)
}

// UnknownReceiverError: the receiver is still an unsolved variable.
type UnknownReceiverError struct {
	Name string
}

func (e *UnknownReceiverError) Error() string {
	return fmt.Sprintf("type must be known to call method %q", e.Name)
}

type UnsatisfiedBoundError struct {
	Type  types.TypeID
	Trait ast.ItemID
	Args  []types.TypeID
}

func (e *UnsatisfiedBoundError) Error() string {
	return "trait bound is not satisfied"
}

// NotObjectSafeError is returned when a dyn type names a trait that cannot
// be used as an object.
type NotObjectSafeError struct {
	Trait      ast.ItemID
	Violations []SafetyViolation
}

func (e *NotObjectSafeError) Error() string {
	return "trait cannot be made into an object"
}
