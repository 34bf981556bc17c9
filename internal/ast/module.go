package ast

import (
	"vais/internal/source"
)

// Module is a resolved compilation unit: every name reference already
// points at its declaration. Names is rebuilt from the dump's string table
// on load.
type Module struct {
	Path   string           `msgpack:"path"`
	File   source.FileID    `msgpack:"file"`
	Names  *source.Interner `msgpack:"-"`
	Items  *Arena[Item]     `msgpack:"items"`
	Exprs  *Arena[Expr]     `msgpack:"exprs"`
	Stmts  *Arena[Stmt]     `msgpack:"stmts"`
	Pats   *Arena[Pattern]  `msgpack:"pats"`
	Types  *Arena[TypeExpr] `msgpack:"types"`
	Locals *Arena[Local]    `msgpack:"locals"`
	Order  []ItemID         `msgpack:"order"` // top-level items in source order

	// VisibleTraits lists traits whose impls are in scope for this unit.
	// Empty means every trait in the module is visible.
	VisibleTraits []ItemID `msgpack:"visible,omitempty"`
}

func NewModule(path string) *Module {
	return &Module{
		Path:   path,
		Names:  source.NewInterner(),
		Items:  NewArena[Item](1 << 5),
		Exprs:  NewArena[Expr](1 << 8),
		Stmts:  NewArena[Stmt](1 << 7),
		Pats:   NewArena[Pattern](1 << 5),
		Types:  NewArena[TypeExpr](1 << 6),
		Locals: NewArena[Local](1 << 6),
	}
}

func (m *Module) Item(id ItemID) *Item     { return m.Items.Get(uint32(id)) }
func (m *Module) Expr(id ExprID) *Expr     { return m.Exprs.Get(uint32(id)) }
func (m *Module) Stmt(id StmtID) *Stmt     { return m.Stmts.Get(uint32(id)) }
func (m *Module) Pat(id PatID) *Pattern    { return m.Pats.Get(uint32(id)) }
func (m *Module) Type(id TypeID) *TypeExpr { return m.Types.Get(uint32(id)) }
func (m *Module) Local(id LocalID) *Local  { return m.Locals.Get(uint32(id)) }

// Name returns the text of an interned identifier.
func (m *Module) Name(id source.StringID) string {
	if m.Names == nil {
		return ""
	}
	s, _ := m.Names.Lookup(id)
	return s
}

// ItemName is a shortcut for Name(Item(id).Name).
func (m *Module) ItemName(id ItemID) string {
	it := m.Item(id)
	if it == nil {
		return "<?>"
	}
	return m.Name(it.Name)
}

func (m *Module) LocalName(id LocalID) string {
	l := m.Local(id)
	if l == nil {
		return "<?>"
	}
	return m.Name(l.Name)
}

// ItemIDs lists every item, methods included, in allocation order.
func (m *Module) ItemIDs() []ItemID {
	out := make([]ItemID, 0, m.Items.Len())
	for i := uint32(1); i <= m.Items.Len(); i++ {
		out = append(out, ItemID(i))
	}
	return out
}

// Bodies lists the functions that carry a body, in item order.
func (m *Module) Bodies() []ItemID {
	var out []ItemID
	for _, id := range m.ItemIDs() {
		it := m.Item(id)
		if it.Kind == ItemFn && it.Fn.Body.IsValid() {
			out = append(out, id)
		}
	}
	return out
}

// TraitVisible reports whether impls of trait are in scope.
func (m *Module) TraitVisible(trait ItemID) bool {
	if len(m.VisibleTraits) == 0 {
		return true
	}
	for _, t := range m.VisibleTraits {
		if t == trait {
			return true
		}
	}
	return false
}

// FindItem returns the first item with the given name.
func (m *Module) FindItem(name string) (ItemID, bool) {
	for _, id := range m.ItemIDs() {
		if m.ItemName(id) == name {
			return id, true
		}
	}
	return NoItemID, false
}
