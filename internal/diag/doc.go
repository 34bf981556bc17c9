// Package diag defines the diagnostic model shared by every checking pass.
//
// A Diagnostic carries a severity, a stable numeric Code, a message, the
// primary span and optional secondary notes and fixes. Passes never abort on
// the first problem: they report through a Reporter (usually a BagReporter)
// and keep going, and the driver decides afterwards whether errors block
// code generation.
//
// Codes are grouped by family; the family prefix is part of Code.ID:
//
//	TYP1xxx  inference and unification
//	TRT2xxx  trait registry, coherence and object safety
//	OWN3xxx  move tracking
//	BRW4xxx  borrow regions and lifetimes
//	PAT5xxx  match exhaustiveness
//	IO6xxx   driver input/output
//	ICE9xxx  internal invariant violations
//
// Rendering lives in internal/diagfmt; FormatShort is the only formatter here
// because tests compare against it.
package diag
