package exhaust

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"vais/internal/ast"
	"vais/internal/types"
)

type ShapeKind uint8

const (
	// ShapeUnknown is a type the checker cannot reason about, such as the
	// error type. Every pattern counts as covering it.
	ShapeUnknown ShapeKind = iota
	ShapeOpaque             // unbounded set of values: str, floats, char, generics
	ShapeBool
	ShapeInt
	ShapeProduct // a single constructor: tuples, unit and structs
	ShapeEnum
)

// Shape describes the constructors of a type.
type Shape struct {
	Kind       ShapeKind
	Name       string           // struct name; empty for tuples
	Ctors      []string         // enum variant names
	Fields     [][]types.TypeID // field types per constructor
	FieldNames []string         // struct field names in declaration order
	Lo, Hi     int64            // ShapeInt, inclusive
	// Unsigned marks the u64 domain: Lo, Hi and every range over it hold
	// keys, values shifted down by 2^63 so that order is kept.
	Unsigned bool
}

const u64Bias = uint64(1) << 63

// Uint64Shape is the shape of u64.
func Uint64Shape() Shape {
	return Shape{Kind: ShapeInt, Lo: math.MinInt64, Hi: math.MaxInt64, Unsigned: true}
}

// key maps a non-negative pattern bound into the shape's value space.
func (s Shape) key(v int64) int64 {
	if s.Unsigned {
		return int64(uint64(v) ^ u64Bias) // #nosec G115 -- order-preserving bias
	}
	return v
}

func (s Shape) format(k int64) string {
	if s.Unsigned {
		return strconv.FormatUint(uint64(k)^u64Bias, 10) // #nosec G115
	}
	return strconv.FormatInt(k, 10)
}

// parseKey reads an integer literal into the shape's value space.
func (s Shape) parseKey(text string) (int64, bool) {
	if !s.Unsigned {
		return ParseInt(text)
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(text, "_", ""), 0, 64)
	if err != nil {
		return 0, false
	}
	return int64(v ^ u64Bias), true // #nosec G115
}

func (s Shape) arity(ctor int) int {
	if ctor < len(s.Fields) {
		return len(s.Fields[ctor])
	}
	return 0
}

func (s Shape) fieldTypes(ctor int) []types.TypeID {
	if ctor < len(s.Fields) {
		return s.Fields[ctor]
	}
	return nil
}

// TypeInfo supplies shapes of scrutinee types.
type TypeInfo interface {
	Shape(ty types.TypeID) Shape
}

type PatKind uint8

const (
	Wild PatKind = iota
	Ctor        // enum variant, bool value or the product constructor
	Range       // inclusive integer interval; literals are one-point ranges
	Lit         // literal of an opaque type
	Or
)

// Pat is a pattern reduced to what coverage needs.
type Pat struct {
	Kind   PatKind
	Ctor   int
	Lo, Hi int64
	Lit    string
	Subs   []Pat
}

func wilds(n int) []Pat { return make([]Pat, n) }

// ParseInt reads an integer literal as written in source.
func ParseInt(text string) (int64, bool) {
	v, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
	return v, err == nil
}

// Lower converts an AST pattern matched against ty.
func Lower(mod *ast.Module, info TypeInfo, pid ast.PatID, ty types.TypeID) Pat {
	p := mod.Pat(pid)
	if p == nil {
		return Pat{}
	}
	shape := info.Shape(ty)
	switch p.Kind {
	case ast.PatBind:
		if len(p.Subs) > 0 {
			return Lower(mod, info, p.Subs[0], ty)
		}
	case ast.PatLit:
		switch p.Lit {
		case ast.LitBool:
			if p.Text == "true" {
				return Pat{Kind: Ctor, Ctor: 1}
			}
			return Pat{Kind: Ctor, Ctor: 0}
		case ast.LitInt:
			if shape.Kind == ShapeInt {
				if k, ok := shape.parseKey(p.Text); ok {
					return Pat{Kind: Range, Lo: k, Hi: k}
				}
			}
		case ast.LitUnit:
			return Pat{Kind: Ctor}
		}
		return Pat{Kind: Lit, Lit: p.Text}
	case ast.PatRange:
		if shape.Unsigned {
			if p.Hi < 0 {
				// ни одного значения u64: такой диапазон ничего не покрывает
				return Pat{Kind: Lit, Lit: fmt.Sprintf("%d..=%d", p.Lo, p.Hi)}
			}
			return Pat{Kind: Range, Lo: shape.key(max(p.Lo, 0)), Hi: shape.key(p.Hi)}
		}
		return Pat{Kind: Range, Lo: p.Lo, Hi: p.Hi}
	case ast.PatTuple:
		return Pat{Kind: Ctor, Subs: lowerSubs(mod, info, p.Subs, shape.fieldTypes(0))}
	case ast.PatVariant:
		idx := int(p.Variant)
		return Pat{Kind: Ctor, Ctor: idx, Subs: lowerSubs(mod, info, p.Subs, shape.fieldTypes(idx))}
	case ast.PatStruct:
		subs := wilds(len(shape.FieldNames))
		fts := shape.fieldTypes(0)
		for _, fp := range p.Fields {
			name := mod.Name(fp.Name)
			for i, fn := range shape.FieldNames {
				if fn == name && i < len(fts) {
					subs[i] = Lower(mod, info, fp.Pat, fts[i])
				}
			}
		}
		return Pat{Kind: Ctor, Subs: subs}
	case ast.PatOr:
		alts := make([]Pat, 0, len(p.Subs))
		for _, s := range p.Subs {
			alts = append(alts, Lower(mod, info, s, ty))
		}
		return Pat{Kind: Or, Subs: alts}
	}
	return Pat{}
}

func lowerSubs(mod *ast.Module, info TypeInfo, subs []ast.PatID, tys []types.TypeID) []Pat {
	out := wilds(len(tys))
	for i, s := range subs {
		if i < len(tys) {
			out[i] = Lower(mod, info, s, tys[i])
		}
	}
	return out
}

// Render prints a witness the way it would be written in an arm.
func Render(info TypeInfo, p Pat, ty types.TypeID) string {
	shape := info.Shape(ty)
	switch p.Kind {
	case Wild:
		return "_"
	case Lit:
		return p.Lit
	case Range:
		switch {
		case shape.Kind == ShapeInt && p.Lo == shape.Lo && p.Hi == shape.Hi:
			return "_"
		case p.Lo == p.Hi:
			return shape.format(p.Lo)
		}
		return shape.format(p.Lo) + "..=" + shape.format(p.Hi)
	case Or:
		parts := make([]string, 0, len(p.Subs))
		for _, s := range p.Subs {
			parts = append(parts, Render(info, s, ty))
		}
		return strings.Join(parts, " | ")
	}

	fts := shape.fieldTypes(p.Ctor)
	subs := make([]string, 0, len(p.Subs))
	for i, s := range p.Subs {
		if i < len(fts) {
			subs = append(subs, Render(info, s, fts[i]))
		}
	}
	switch shape.Kind {
	case ShapeBool:
		if p.Ctor == 1 {
			return "true"
		}
		return "false"
	case ShapeEnum:
		name := "?"
		if p.Ctor < len(shape.Ctors) {
			name = shape.Ctors[p.Ctor]
		}
		if len(subs) == 0 {
			return name
		}
		return name + "(" + strings.Join(subs, ", ") + ")"
	case ShapeProduct:
		if shape.Name == "" {
			if len(subs) == 1 {
				return "(" + subs[0] + ",)"
			}
			return "(" + strings.Join(subs, ", ") + ")"
		}
		if len(subs) == 0 {
			return shape.Name
		}
		var sb strings.Builder
		sb.WriteString(shape.Name)
		sb.WriteString(" { ")
		for i, s := range subs {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i < len(shape.FieldNames) {
				sb.WriteString(shape.FieldNames[i])
				sb.WriteString(": ")
			}
			sb.WriteString(s)
		}
		sb.WriteString(" }")
		return sb.String()
	}
	return "_"
}
