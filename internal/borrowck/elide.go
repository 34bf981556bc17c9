package borrowck

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/sig"
	"vais/internal/source"
	"vais/internal/types"
)

// ElisionRule records how the output regions of a signature were fixed.
type ElisionRule uint8

const (
	ElideNone     ElisionRule = iota // output has no elided references
	ElideSingle                      // the only input region
	ElideReceiver                    // the region of &self or &mut self
)

// ElidedSig is a signature with every region spelled out. Input regions
// that were elided are numbered after the declared lifetimes, left to
// right and outermost first.
type ElidedSig struct {
	Fn      ast.ItemID
	Inputs  []types.TypeID // receiver first when there is one
	Output  types.TypeID
	Regions []types.Region // distinct input regions in order of appearance
	Rule    ElisionRule
}

// MissingLifetimeError means the output borrows from an input that cannot
// be determined.
type MissingLifetimeError struct {
	Fn      ast.ItemID
	Span    source.Span
	Regions int // how many input regions competed
}

func (e *MissingLifetimeError) Error() string {
	if e.Regions == 0 {
		return "missing lifetime specifier: no input to borrow from"
	}
	return fmt.Sprintf("missing lifetime specifier: %d input lifetimes and no `&self`", e.Regions)
}

// Elide fills in the regions a signature left out. The result depends only
// on the signature, so repeated calls agree.
func Elide(in *types.Interner, fs *sig.FnSig) (ElidedSig, error) {
	next := types.RegionFirstNamed + types.Region(fs.Lifetimes)
	var fill func(id types.TypeID) types.TypeID
	fill = func(id types.TypeID) types.TypeID {
		return in.Map(id, func(_ types.TypeID, t types.Type) (types.TypeID, bool) {
			if t.Kind != types.KindRef || t.Region != types.RegionErased {
				return types.NoTypeID, false
			}
			r := next
			next++
			return in.Intern(types.MakeRefIn(r, fill(t.Elem), t.Mutable)), true
		})
	}

	out := ElidedSig{Fn: fs.Item}
	for _, ty := range fs.Inputs() {
		out.Inputs = append(out.Inputs, fill(ty))
	}
	seen := make(map[types.Region]bool)
	for _, ty := range out.Inputs {
		in.Contains(ty, func(_ types.TypeID, t types.Type) bool {
			if t.Kind == types.KindRef && !seen[t.Region] {
				seen[t.Region] = true
				out.Regions = append(out.Regions, t.Region)
			}
			return false
		})
	}

	out.Output = fs.Ret
	if !hasErased(in, fs.Ret) {
		return out, nil
	}
	var chosen types.Region
	switch {
	case len(out.Regions) == 1:
		chosen, out.Rule = out.Regions[0], ElideSingle
	case fs.Receiver == ast.RecvRef || fs.Receiver == ast.RecvRefMut:
		rt := in.MustLookup(out.Inputs[0])
		chosen, out.Rule = rt.Region, ElideReceiver
	default:
		return out, &MissingLifetimeError{Fn: fs.Item, Span: fs.RetSpan, Regions: len(out.Regions)}
	}
	out.Output = outputFill(in, fs.Ret, chosen)
	return out, nil
}

func outputFill(in *types.Interner, id types.TypeID, r types.Region) types.TypeID {
	return in.Map(id, func(_ types.TypeID, t types.Type) (types.TypeID, bool) {
		if t.Kind != types.KindRef || t.Region != types.RegionErased {
			return types.NoTypeID, false
		}
		return in.Intern(types.MakeRefIn(r, outputFill(in, t.Elem, r), t.Mutable)), true
	})
}

func hasErased(in *types.Interner, id types.TypeID) bool {
	return in.Contains(id, func(_ types.TypeID, t types.Type) bool {
		return t.Kind == types.KindRef && t.Region == types.RegionErased
	})
}

// OutputSources lists the input positions whose references may be
// returned: those sharing a region or a type parameter with the output.
func (e ElidedSig) OutputSources(in *types.Interner) []int {
	want := make(map[types.Region]bool)
	params := make(map[types.TypeID]bool)
	in.Contains(e.Output, func(id types.TypeID, t types.Type) bool {
		switch t.Kind {
		case types.KindRef:
			want[t.Region] = true
		case types.KindParam:
			params[id] = true
		}
		return false
	})
	var out []int
	for i, ty := range e.Inputs {
		if in.Contains(ty, func(id types.TypeID, t types.Type) bool {
			return (t.Kind == types.KindRef && want[t.Region]) || params[id]
		}) {
			out = append(out, i)
		}
	}
	return out
}
