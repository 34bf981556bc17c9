package sig

import (
	"fmt"

	"vais/internal/ast"
	"vais/internal/diag"
	"vais/internal/source"
	"vais/internal/types"
)

// Lowerer turns syntactic type expressions into interned types.
type Lowerer struct {
	Mod *ast.Module
	In  *types.Interner

	// Self is what `Self` means at this point; NoTypeID outside impls and traits.
	Self types.TypeID
	// Lifetimes are the named lifetimes in scope, in declaration order.
	Lifetimes []source.StringID
	// Infer supplies a type for `_`; nil makes `_` an error.
	Infer    func(sp source.Span) types.TypeID
	Reporter diag.Reporter
}

// Lower returns NoTypeID for NoTypeID so callers can pick their own default.
func (l *Lowerer) Lower(id ast.TypeID) types.TypeID {
	if !id.IsValid() {
		return types.NoTypeID
	}
	te := l.Mod.Type(id)
	if te == nil {
		return l.In.Builtins().Error
	}
	switch te.Kind {
	case ast.TypePrim:
		name := l.Mod.Name(te.Name)
		p, ok := types.PrimByName(name)
		if !ok {
			l.report(diag.InternalError, te.Span, fmt.Sprintf("unknown primitive type %q", name))
			return l.In.Builtins().Error
		}
		return l.In.Prim(p)
	case ast.TypeNamed:
		return l.In.Named(uint32(te.Item), l.lowerList(te.Args)...)
	case ast.TypeParam:
		return l.In.Param(uint32(te.Item), te.Index)
	case ast.TypeRef:
		inner := l.Lower(te.Elem)
		return l.In.Intern(types.MakeRefIn(l.region(te.Lifetime, te.Span), inner, te.Mut))
	case ast.TypeTuple:
		return l.In.Tuple(l.lowerList(te.Args)...)
	case ast.TypeArray:
		return l.In.Array(l.Lower(te.Elem), te.Len)
	case ast.TypeFn:
		ret := l.Lower(te.Elem)
		if ret == types.NoTypeID {
			ret = l.In.Builtins().Unit
		}
		return l.In.Fn(l.lowerList(te.Args), ret)
	case ast.TypeDyn:
		return l.In.Dyn(uint32(te.Item), l.lowerList(te.Args)...)
	case ast.TypeSelf:
		if l.Self == types.NoTypeID {
			l.report(diag.TypeMismatch, te.Span, "`Self` is only valid inside traits and impls")
			return l.In.Builtins().Error
		}
		return l.Self
	case ast.TypeInfer:
		if l.Infer == nil {
			l.report(diag.CannotInfer, te.Span, "the placeholder `_` is not allowed in item signatures")
			return l.In.Builtins().Error
		}
		return l.Infer(te.Span)
	}
	return l.In.Builtins().Error
}

func (l *Lowerer) lowerList(ids []ast.TypeID) []types.TypeID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]types.TypeID, len(ids))
	for i, id := range ids {
		out[i] = l.Lower(id)
	}
	return out
}

func (l *Lowerer) region(name source.StringID, sp source.Span) types.Region {
	if name == source.NoStringID {
		return types.RegionErased
	}
	if l.Mod.Name(name) == "static" {
		return types.RegionStatic
	}
	for i, lt := range l.Lifetimes {
		if lt == name {
			return types.RegionFirstNamed + types.Region(i) // #nosec G115 -- bounded by the lifetime list
		}
	}
	l.report(diag.MissingLifetime, sp, fmt.Sprintf("use of undeclared lifetime '%s", l.Mod.Name(name)))
	return types.RegionErased
}

func (l *Lowerer) report(code diag.Code, sp source.Span, msg string) {
	if l.Reporter == nil {
		return
	}
	diag.ReportError(l.Reporter, code, sp, msg).Emit()
}
