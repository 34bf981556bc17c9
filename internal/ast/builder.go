package ast

import (
	"vais/internal/source"
)

// Builder assembles a resolved Module. Frontends use it after name
// resolution; tests use it to write programs without a parser. Every node
// gets a distinct synthetic span unless one is set explicitly with At.
type Builder struct {
	m    *Module
	file source.FileID
	off  uint32
	at   *source.Span
}

func NewBuilder(path string) *Builder {
	return &Builder{m: NewModule(path)}
}

// NewBuilderInFile is NewBuilder with spans pointing into file.
func NewBuilderInFile(path string, file source.FileID) *Builder {
	b := NewBuilder(path)
	b.m.File = file
	b.file = file
	return b
}

func (b *Builder) Module() *Module { return b.m }

// At makes the next allocated node use sp instead of a synthetic span.
func (b *Builder) At(sp source.Span) *Builder {
	b.at = &sp
	return b
}

func (b *Builder) span() source.Span {
	if b.at != nil {
		sp := *b.at
		b.at = nil
		return sp
	}
	sp := source.Span{File: b.file, Start: b.off, End: b.off + 1}
	b.off += 2
	return sp
}

func (b *Builder) Name(s string) source.StringID {
	return b.m.Names.Intern(s)
}

// ---- locals ----

func (b *Builder) Local(name string, mutable bool) LocalID {
	return LocalID(b.m.Locals.Allocate(Local{Name: b.Name(name), Mutable: mutable, Span: b.span()}))
}

// ---- type expressions ----

func (b *Builder) newType(t TypeExpr) TypeID {
	t.Span = b.span()
	return TypeID(b.m.Types.Allocate(t))
}

func (b *Builder) Prim(name string) TypeID {
	return b.newType(TypeExpr{Kind: TypePrim, Name: b.Name(name)})
}

func (b *Builder) NamedT(item ItemID, args ...TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeNamed, Item: item, Args: args})
}

func (b *Builder) ParamT(owner ItemID, index uint32) TypeID {
	return b.newType(TypeExpr{Kind: TypeParam, Item: owner, Index: index})
}

func (b *Builder) RefT(mut bool, inner TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeRef, Mut: mut, Elem: inner})
}

// RefLT is a reference with an explicit lifetime name.
func (b *Builder) RefLT(lifetime string, mut bool, inner TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeRef, Mut: mut, Elem: inner, Lifetime: b.Name(lifetime)})
}

func (b *Builder) TupleT(elems ...TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeTuple, Args: elems})
}

func (b *Builder) ArrayT(elem TypeID, n int64) TypeID {
	return b.newType(TypeExpr{Kind: TypeArray, Elem: elem, Len: n})
}

func (b *Builder) FnT(params []TypeID, ret TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeFn, Args: params, Elem: ret})
}

func (b *Builder) DynT(trait ItemID, args ...TypeID) TypeID {
	return b.newType(TypeExpr{Kind: TypeDyn, Item: trait, Args: args})
}

func (b *Builder) SelfT() TypeID  { return b.newType(TypeExpr{Kind: TypeSelf}) }
func (b *Builder) InferT() TypeID { return b.newType(TypeExpr{Kind: TypeInfer}) }

// ---- items ----

func (b *Builder) newItem(it Item, topLevel bool) ItemID {
	it.Span = b.span()
	id := ItemID(b.m.Items.Allocate(it))
	if topLevel {
		b.m.Order = append(b.m.Order, id)
	}
	return id
}

// Generic appends a type parameter to item and returns a type expression
// naming it.
func (b *Builder) Generic(item ItemID, name string, bounds ...Bound) TypeID {
	it := b.m.Item(item)
	idx := uint32(len(it.Generics)) // #nosec G115
	it.Generics = append(it.Generics, GenericParam{Name: b.Name(name), Bounds: bounds, Span: b.span()})
	return b.ParamT(item, idx)
}

// NegBound adds `!trait` to the index-th generic of item.
func (b *Builder) NegBound(item ItemID, index int, trait ItemID) {
	g := &b.m.Item(item).Generics[index]
	g.NegBounds = append(g.NegBounds, trait)
}

func (b *Builder) BoundOf(trait ItemID, args ...TypeID) Bound {
	return Bound{Trait: trait, Args: args, Span: b.span()}
}

func (b *Builder) Param(local LocalID, ty TypeID) Param {
	return Param{Local: local, Type: ty, Span: b.span()}
}

// DeclFn allocates an empty top-level function so that signatures may refer
// to it (generics, recursion) before SetFn fills it.
func (b *Builder) DeclFn(name string) ItemID {
	return b.newItem(Item{Kind: ItemFn, Name: b.Name(name)}, true)
}

func (b *Builder) SetFn(id ItemID, fn FnDecl) {
	b.m.Item(id).Fn = fn
}

// Fn declares a complete top-level function.
func (b *Builder) Fn(name string, fn FnDecl) ItemID {
	id := b.DeclFn(name)
	b.SetFn(id, fn)
	return id
}

func (b *Builder) Struct(name string, fields ...Field) ItemID {
	return b.newItem(Item{Kind: ItemStruct, Name: b.Name(name), Fields: fields}, true)
}

func (b *Builder) FieldDecl(name string, ty TypeID) Field {
	return Field{Name: b.Name(name), Type: ty, Span: b.span()}
}

// AddField appends a field; used for generic or self-referential structs.
func (b *Builder) AddField(item ItemID, name string, ty TypeID) {
	it := b.m.Item(item)
	it.Fields = append(it.Fields, b.FieldDecl(name, ty))
}

func (b *Builder) Enum(name string) ItemID {
	return b.newItem(Item{Kind: ItemEnum, Name: b.Name(name)}, true)
}

// AddVariant appends a variant and returns its index.
func (b *Builder) AddVariant(enum ItemID, name string, fields ...TypeID) uint32 {
	it := b.m.Item(enum)
	it.Variants = append(it.Variants, Variant{Name: b.Name(name), Fields: fields, Span: b.span()})
	return uint32(len(it.Variants) - 1) // #nosec G115
}

// MarkCopy flags a struct or enum as a copy type.
func (b *Builder) MarkCopy(item ItemID) {
	b.m.Item(item).Copy = true
}

func (b *Builder) Trait(name string) ItemID {
	return b.newItem(Item{Kind: ItemTrait, Name: b.Name(name)}, true)
}

// TraitMethod declares a method of trait; a valid fn.Body is its default.
func (b *Builder) TraitMethod(trait ItemID, name string, fn FnDecl) ItemID {
	id := b.newItem(Item{Kind: ItemFn, Name: b.Name(name), Owner: trait, Fn: fn}, false)
	owner := b.m.Item(trait)
	owner.Methods = append(owner.Methods, id)
	return id
}

// Impl declares `impl trait for target`; pass a zero Bound for inherent impls.
func (b *Builder) Impl(trait Bound, target TypeID) ItemID {
	return b.newItem(Item{Kind: ItemImpl, Trait: trait, Target: target}, true)
}

// DeclImpl allocates an impl whose target is filled later with SetImplTarget,
// for impls generic over their own parameters.
func (b *Builder) DeclImpl(trait Bound) ItemID {
	return b.newItem(Item{Kind: ItemImpl, Trait: trait}, true)
}

func (b *Builder) SetImplTarget(impl ItemID, target TypeID) {
	b.m.Item(impl).Target = target
}

func (b *Builder) SetImplTrait(impl ItemID, trait Bound) {
	b.m.Item(impl).Trait = trait
}

func (b *Builder) MarkDefault(impl ItemID) {
	b.m.Item(impl).Default = true
}

// DeclMethod allocates a method inside impl (or trait) without a signature.
func (b *Builder) DeclMethod(owner ItemID, name string) ItemID {
	id := b.newItem(Item{Kind: ItemFn, Name: b.Name(name), Owner: owner}, false)
	it := b.m.Item(owner)
	it.Methods = append(it.Methods, id)
	return id
}

func (b *Builder) Method(owner ItemID, name string, fn FnDecl) ItemID {
	id := b.DeclMethod(owner, name)
	b.SetFn(id, fn)
	return id
}

func (b *Builder) VisibleTraits(traits ...ItemID) {
	b.m.VisibleTraits = append(b.m.VisibleTraits, traits...)
}

// ---- expressions ----

func (b *Builder) newExpr(e Expr) ExprID {
	e.Span = b.span()
	return ExprID(b.m.Exprs.Allocate(e))
}

func (b *Builder) Int(text string) ExprID   { return b.newExpr(Expr{Kind: ExprLit, Lit: LitInt, Text: text}) }
func (b *Builder) Float(text string) ExprID { return b.newExpr(Expr{Kind: ExprLit, Lit: LitFloat, Text: text}) }
func (b *Builder) Str(text string) ExprID   { return b.newExpr(Expr{Kind: ExprLit, Lit: LitStr, Text: text}) }
func (b *Builder) Char(text string) ExprID  { return b.newExpr(Expr{Kind: ExprLit, Lit: LitChar, Text: text}) }
func (b *Builder) UnitLit() ExprID          { return b.newExpr(Expr{Kind: ExprLit, Lit: LitUnit}) }

func (b *Builder) Bool(v bool) ExprID {
	text := "false"
	if v {
		text = "true"
	}
	return b.newExpr(Expr{Kind: ExprLit, Lit: LitBool, Text: text})
}

func (b *Builder) Var(local LocalID) ExprID {
	return b.newExpr(Expr{Kind: ExprName, Ref: NameRef{Kind: RefLocal, Local: local}})
}

func (b *Builder) ItemRef(item ItemID, typeArgs ...TypeID) ExprID {
	return b.newExpr(Expr{Kind: ExprName, Ref: NameRef{Kind: RefItem, Item: item}, TypeArgs: typeArgs})
}

func (b *Builder) VariantRef(enum ItemID, variant uint32) ExprID {
	return b.newExpr(Expr{Kind: ExprName, Ref: NameRef{Kind: RefVariant, Item: enum, Variant: variant}})
}

func (b *Builder) Call(callee ExprID, args ...ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprCall, X: callee, Args: args})
}

func (b *Builder) MethodCall(recv ExprID, name string, args ...ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprMethodCall, X: recv, Name: b.Name(name), Args: args})
}

func (b *Builder) Field(x ExprID, name string) ExprID {
	return b.newExpr(Expr{Kind: ExprField, X: x, Name: b.Name(name)})
}

func (b *Builder) TupleIndex(x ExprID, index uint32) ExprID {
	return b.newExpr(Expr{Kind: ExprTupleIndex, X: x, Index: index})
}

func (b *Builder) Index(x, idx ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprIndex, X: x, Y: idx})
}

func (b *Builder) Binary(op BinaryOp, x, y ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprBinary, Op: op, X: x, Y: y})
}

func (b *Builder) Unary(op UnaryOp, x ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprUnary, UnOp: op, X: x})
}

func (b *Builder) Ref(x ExprID) ExprID    { return b.newExpr(Expr{Kind: ExprRef, X: x}) }
func (b *Builder) RefMut(x ExprID) ExprID { return b.newExpr(Expr{Kind: ExprRef, X: x, Mut: true}) }
func (b *Builder) Deref(x ExprID) ExprID  { return b.newExpr(Expr{Kind: ExprDeref, X: x}) }

func (b *Builder) Assign(place, value ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprAssign, X: place, Y: value})
}

func (b *Builder) Block(tail ExprID, stmts ...StmtID) ExprID {
	return b.newExpr(Expr{Kind: ExprBlock, Stmts: stmts, Tail: tail})
}

func (b *Builder) If(cond, then, els ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprIf, X: cond, Then: then, Else: els})
}

func (b *Builder) While(cond, body ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprWhile, X: cond, Then: body})
}

func (b *Builder) Loop(body ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprLoop, Then: body})
}

func (b *Builder) Match(scrutinee ExprID, arms ...MatchArm) ExprID {
	return b.newExpr(Expr{Kind: ExprMatch, X: scrutinee, Arms: arms})
}

func (b *Builder) Arm(pat PatID, guard, body ExprID) MatchArm {
	return MatchArm{Pat: pat, Guard: guard, Body: body, Span: b.span()}
}

func (b *Builder) Tuple(elems ...ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprTuple, Args: elems})
}

func (b *Builder) Array(elems ...ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprArray, Args: elems})
}

func (b *Builder) StructLit(item ItemID, fields ...FieldInit) ExprID {
	return b.newExpr(Expr{Kind: ExprStruct, Item: item, Fields: fields})
}

func (b *Builder) FieldInit(name string, value ExprID) FieldInit {
	return FieldInit{Name: b.Name(name), Value: value, Span: b.span()}
}

func (b *Builder) Return(value ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprReturn, X: value})
}

func (b *Builder) Break(value ExprID) ExprID {
	return b.newExpr(Expr{Kind: ExprBreak, X: value})
}

func (b *Builder) Continue() ExprID {
	return b.newExpr(Expr{Kind: ExprContinue})
}

// ---- statements ----

func (b *Builder) Let(local LocalID, ty TypeID, init ExprID) StmtID {
	return StmtID(b.m.Stmts.Allocate(Stmt{Kind: StmtLet, Local: local, Type: ty, Expr: init, Span: b.span()}))
}

func (b *Builder) ExprStmt(e ExprID) StmtID {
	return StmtID(b.m.Stmts.Allocate(Stmt{Kind: StmtExpr, Expr: e, Span: b.span()}))
}

// ---- patterns ----

func (b *Builder) newPat(p Pattern) PatID {
	p.Span = b.span()
	return PatID(b.m.Pats.Allocate(p))
}

func (b *Builder) PWild() PatID              { return b.newPat(Pattern{Kind: PatWild}) }
func (b *Builder) PBind(local LocalID) PatID { return b.newPat(Pattern{Kind: PatBind, Local: local}) }
func (b *Builder) PTuple(subs ...PatID) PatID {
	return b.newPat(Pattern{Kind: PatTuple, Subs: subs})
}
func (b *Builder) POr(alts ...PatID) PatID { return b.newPat(Pattern{Kind: PatOr, Subs: alts}) }

func (b *Builder) PInt(text string) PatID {
	return b.newPat(Pattern{Kind: PatLit, Lit: LitInt, Text: text})
}

func (b *Builder) PStr(text string) PatID {
	return b.newPat(Pattern{Kind: PatLit, Lit: LitStr, Text: text})
}

func (b *Builder) PBool(v bool) PatID {
	text := "false"
	if v {
		text = "true"
	}
	return b.newPat(Pattern{Kind: PatLit, Lit: LitBool, Text: text})
}

func (b *Builder) PRange(lo, hi int64) PatID {
	return b.newPat(Pattern{Kind: PatRange, Lo: lo, Hi: hi})
}

func (b *Builder) PVariant(enum ItemID, variant uint32, subs ...PatID) PatID {
	return b.newPat(Pattern{Kind: PatVariant, Item: enum, Variant: variant, Subs: subs})
}

func (b *Builder) PStruct(item ItemID, rest bool, fields ...FieldPat) PatID {
	return b.newPat(Pattern{Kind: PatStruct, Item: item, Fields: fields, Rest: rest})
}

func (b *Builder) FieldPat(name string, pat PatID) FieldPat {
	return FieldPat{Name: b.Name(name), Pat: pat}
}
