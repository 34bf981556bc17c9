package types

import (
	"fmt"
	"strings"
)

// Names supplies item and parameter spellings for printing.
type Names interface {
	ItemName(def uint32) string
	ParamName(owner, index uint32) string
}

// Printer renders types for diagnostics. Vars print as ?N unless Var
// spells them; callers are expected to apply their substitution first.
type Printer struct {
	In    *Interner
	Names Names
	Var   func(id TypeID) string
}

func (p Printer) String(id TypeID) string {
	var sb strings.Builder
	p.write(&sb, id)
	return sb.String()
}

func (p Printer) item(def uint32) string {
	if p.Names == nil {
		return fmt.Sprintf("#%d", def)
	}
	return p.Names.ItemName(def)
}

func (p Printer) write(sb *strings.Builder, id TypeID) {
	t, ok := p.In.Lookup(id)
	if !ok {
		sb.WriteString("<?>")
		return
	}
	switch t.Kind {
	case KindPrim:
		sb.WriteString(t.Prim.String())
	case KindNamed:
		sb.WriteString(p.item(t.Def))
		p.args(sb, t.Elems)
	case KindRef:
		sb.WriteByte('&')
		if t.Region == RegionStatic {
			sb.WriteString("'static ")
		} else if t.Region >= RegionFirstNamed {
			fmt.Fprintf(sb, "'%d ", t.Region-RegionFirstNamed)
		}
		if t.Mutable {
			sb.WriteString("mut ")
		}
		p.write(sb, t.Elem)
	case KindFn:
		sb.WriteString("fn(")
		p.list(sb, t.Elems)
		sb.WriteString(") -> ")
		p.write(sb, t.Elem)
	case KindTuple:
		sb.WriteByte('(')
		p.list(sb, t.Elems)
		if len(t.Elems) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case KindArray:
		sb.WriteByte('[')
		p.write(sb, t.Elem)
		if t.Len != DynamicLen {
			fmt.Fprintf(sb, "; %d", t.Len)
		}
		sb.WriteByte(']')
	case KindVar:
		if p.Var != nil {
			if name := p.Var(id); name != "" {
				sb.WriteString(name)
				return
			}
		}
		fmt.Fprintf(sb, "?%d", t.Index)
	case KindParam:
		switch {
		case t.Index == SelfIndex:
			sb.WriteString("Self")
		case p.Names != nil:
			sb.WriteString(p.Names.ParamName(t.Def, t.Index))
		default:
			fmt.Fprintf(sb, "T%d", t.Index)
		}
	case KindDyn:
		sb.WriteString("dyn ")
		sb.WriteString(p.item(t.Def))
		p.args(sb, t.Elems)
	case KindError:
		sb.WriteString("{error}")
	default:
		sb.WriteString("<invalid>")
	}
}

func (p Printer) args(sb *strings.Builder, args []TypeID) {
	if len(args) == 0 {
		return
	}
	sb.WriteByte('<')
	p.list(sb, args)
	sb.WriteByte('>')
}

func (p Printer) list(sb *strings.Builder, ids []TypeID) {
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		p.write(sb, id)
	}
}
