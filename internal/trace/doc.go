// Package trace records structured begin/end events for checker passes.
//
// The checker has no logger; what a log would say lives here as spans:
// the driver opens a root span, sema opens one per pass, and at detail level
// one per function body. Tracers are cheap to disable (Nop) and safe to share
// between the worker goroutines of the body pass.
package trace
