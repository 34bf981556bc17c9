package exhaust

import (
	"fmt"
	"strings"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/source"
	"vais/internal/types"
)

// MaxWitnesses bounds how many missing patterns are listed.
const MaxWitnesses = 3

type Arm struct {
	Pat     Pat
	Guarded bool
}

// Result of checking one match.
type Result struct {
	Witnesses   []Pat
	Missing     []string // Witnesses rendered
	Truncated   bool     // more missing patterns exist than are listed
	Unreachable []int    // arm indexes
}

func (r Result) Exhaustive() bool { return len(r.Witnesses) == 0 }

// Check computes which values of scrut no unguarded arm matches and which
// arms can never be reached.
func Check(info TypeInfo, scrut types.TypeID, arms []Arm) Result {
	var res Result
	if info.Shape(scrut).Kind == ShapeUnknown {
		return res
	}
	c := &checker{info: info}
	tys := []types.TypeID{scrut}
	rows := make([]row, 0, len(arms))
	for i, arm := range arms {
		if _, ok := c.useful(rows, row{arm.Pat}, tys); !ok {
			res.Unreachable = append(res.Unreachable, i)
		}
		if !arm.Guarded {
			rows = append(rows, row{arm.Pat})
		}
	}
	if len(rows) == 0 {
		// no arm at all: list the constructors themselves
		shape := info.Shape(scrut)
		if ctors, _ := c.signature(shape, nil); shape.Kind == ShapeEnum || shape.Kind == ShapeBool {
			for _, k := range ctors {
				if len(res.Witnesses) == MaxWitnesses {
					res.Truncated = true
					break
				}
				k.Subs = wilds(shape.arity(k.Ctor))
				res.Witnesses = append(res.Witnesses, k)
				res.Missing = append(res.Missing, Render(info, k, scrut))
			}
			return res
		}
	}
	for {
		w, ok := c.useful(rows, row{{}}, tys)
		if !ok {
			break
		}
		if len(res.Witnesses) == MaxWitnesses {
			res.Truncated = true
			break
		}
		res.Witnesses = append(res.Witnesses, w[0])
		res.Missing = append(res.Missing, Render(info, w[0], scrut))
		rows = append(rows, w)
	}
	return res
}

func quoteList(items []string, more bool) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = "`" + s + "`"
	}
	switch {
	case more:
		return strings.Join(q, ", ") + " and more"
	case len(q) == 1:
		return q[0]
	}
	return strings.Join(q[:len(q)-1], ", ") + " and " + q[len(q)-1]
}

// CheckMatch checks a match expression whose scrutinee has type scrut and
// reports NonExhaustiveMatch and UnreachablePattern.
func CheckMatch(mod *ast.Module, info TypeInfo, scrut types.TypeID, match ast.ExprID, rep diag.Reporter) Result {
	e := mod.Expr(match)
	if e == nil || e.Kind != ast.ExprMatch {
		return Result{}
	}
	arms := make([]Arm, len(e.Arms))
	for i, a := range e.Arms {
		arms[i] = Arm{Pat: Lower(mod, info, a.Pat, scrut), Guarded: a.Guard.IsValid()}
	}
	res := Check(info, scrut, arms)
	for _, i := range res.Unreachable {
		sp := e.Arms[i].Span
		if p := mod.Pat(e.Arms[i].Pat); p != nil {
			sp = p.Span
		}
		diag.ReportWarning(rep, diag.UnreachablePattern, sp, "unreachable pattern").Emit()
	}
	if !res.Exhaustive() {
		b := diag.ReportError(rep, diag.NonExhaustiveMatch, e.Span,
			fmt.Sprintf("non-exhaustive patterns: %s not covered", quoteList(res.Missing, res.Truncated)))
		if sx := mod.Expr(e.X); sx != nil {
			b = b.WithNote(sx.Span, "matched value here")
		}
		if n := len(e.Arms); n > 0 && !res.Truncated {
			last := e.Arms[n-1].Span
			edit := diag.FixEdit{Span: source.Span{File: last.File, Start: last.End, End: last.End}}
			for _, m := range res.Missing {
				edit.NewText += ",\n" + m + " => todo()"
			}
			b = b.WithFix("add arms for the missing patterns", edit)
		}
		b.Emit()
	}
	return res
}
