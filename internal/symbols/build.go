package symbols

import (
	"github.com/electwix/db-xref/internal/syntax"
)

// Build constructs the symbol table for a parsed file.
func Build(file *syntax.File) *Table {
	t := &Table{
		Path:    file.Path,
		File:    file,
		Sites:   make(map[int]*Declaration),
		ScopeOf: make(map[syntax.Node]*Scope),
	}
	b := &builder{t: t}
	for _, stmt := range file.Statements {
		b.statement(stmt)
	}
	sortDeclarations(t.Decls)
	return t
}

type builder struct {
	t     *Table
	scope *Scope
}

func (b *builder) declare(kind Kind, ident *syntax.Ident, parent *Declaration) *Declaration {
	if ident == nil || ident.Slot < 0 {
		return nil
	}
	d := &Declaration{
		ID: ID{
			Kind:   kind,
			Path:   b.t.Path,
			Line:   ident.Span.StartLine,
			Column: ident.Span.StartColumn,
			Name:   ident.Name,
		},
		Span:  ident.Span,
		Slot:  ident.Slot,
		Scope: b.scope,
	}
	if parent != nil {
		pid := parent.ID
		d.Parent = &pid
	}
	b.t.Decls = append(b.t.Decls, d)
	b.t.Sites[ident.Slot] = d
	if b.scope != nil {
		b.scope.Decls = append(b.scope.Decls, d)
	}
	return d
}

func (b *builder) open(kind ScopeKind, node syntax.Node) {
	s := &Scope{Kind: kind, Node: node, Parent: b.scope}
	if b.scope == nil {
		b.t.Scopes = append(b.t.Scopes, s)
	}
	b.t.ScopeOf[node] = s
	b.scope = s
}

func (b *builder) close() {
	b.scope = b.scope.Parent
}

func (b *builder) statement(stmt syntax.Statement) {
	switch n := stmt.(type) {
	case *syntax.Labeled:
		if d := b.declare(KindLabeledStatement, n.Label, nil); d != nil {
			b.t.Labels = append(b.t.Labels, d)
		}
		b.statement(n.Stmt)
	case *syntax.CreateTable:
		b.createTable(n)
	case *syntax.CreateView:
		b.createView(n)
	case *syntax.AlterTable:
		if n.AddColumn == nil {
			return
		}
		var parent *Declaration
		if rel := b.localTable(n.Table.Key()); rel != nil {
			parent = rel.Decl
		}
		if d := b.declare(KindColumn, n.AddColumn.Name, parent); d != nil {
			b.t.Added = append(b.t.Added, &AddedColumn{Table: n.Table, Decl: d})
		}
		b.expr(n.AddColumn.Default)
		b.exprs(n.AddColumn.Checks)
	case *syntax.CreateIndex:
		b.expr(n.Where)
	case *syntax.CreateTrigger:
		b.expr(n.When)
		for _, s := range n.Body {
			b.statement(s)
		}
	case *syntax.Select:
		b.selectStmt(n, ScopeQuery, nil)
	case *syntax.Insert:
		b.insert(n)
	case *syntax.Update:
		b.update(n)
	case *syntax.Delete:
		b.delete(n)
	}
}

func (b *builder) localTable(key string) *Relation {
	for _, rel := range b.t.Relations {
		if rel.Key() == key && !rel.IsView() {
			return rel
		}
	}
	return nil
}

func (b *builder) createTable(ct *syntax.CreateTable) {
	d := b.declare(KindTable, ct.Name, nil)
	if d == nil {
		return
	}
	rel := &Relation{Decl: d, Owner: b.t}
	for _, col := range ct.Columns {
		if cd := b.declare(KindColumn, col.Name, d); cd != nil {
			rel.Columns = append(rel.Columns, cd)
		}
		b.expr(col.Default)
		b.exprs(col.Checks)
	}
	for _, c := range ct.Constraints {
		b.expr(c.Check)
	}
	b.t.Relations = append(b.t.Relations, rel)
}

// createView declares the view and its output columns. Without an explicit
// column list, each named result column of the first SELECT core becomes a
// view column declared at its alias, or at the source column name when it
// has none; star columns are left to the resolver.
func (b *builder) createView(cv *syntax.CreateView) {
	d := b.declare(KindView, cv.Name, nil)
	if d == nil {
		return
	}
	rel := &Relation{Decl: d, View: cv, Owner: b.t}
	top := make(map[*syntax.ResultColumn]bool)
	if len(cv.Columns) > 0 {
		for _, id := range cv.Columns {
			if vc := b.declare(KindViewColumn, id, d); vc != nil {
				rel.Columns = append(rel.Columns, vc)
			}
		}
	} else if cv.Select != nil && len(cv.Select.Cores) > 0 {
		for _, rc := range cv.Select.Cores[0].Columns {
			if rc.Star {
				continue
			}
			if vc := b.declare(KindViewColumn, rc.Name(), d); vc != nil {
				rel.Columns = append(rel.Columns, vc)
				top[rc] = true
			}
		}
	}
	b.t.Relations = append(b.t.Relations, rel)
	b.selectStmt(cv.Select, ScopeQuery, top)
}

func (b *builder) selectStmt(sel *syntax.Select, kind ScopeKind, viewColumns map[*syntax.ResultColumn]bool) {
	if sel == nil {
		return
	}
	b.open(kind, sel)
	defer b.close()
	b.with(sel.With)
	for _, core := range sel.Cores {
		for _, rc := range core.Columns {
			b.resultColumn(rc, viewColumns[rc])
		}
		b.from(core.From)
		b.expr(core.Where)
		b.exprs(core.GroupBy)
		b.expr(core.Having)
		for _, w := range core.Windows {
			b.exprs(w.PartitionBy)
			b.order(w.OrderBy)
		}
		for _, row := range core.Values {
			b.exprs(row)
		}
	}
	b.order(sel.OrderBy)
	b.expr(sel.Limit)
	b.expr(sel.Offset)
}

func (b *builder) with(w *syntax.With) {
	if w == nil {
		return
	}
	for _, cte := range w.CTEs {
		d := b.declare(KindCTE, cte.Name, nil)
		for _, col := range cte.Columns {
			b.declare(KindCTEColumn, col, d)
		}
		b.selectStmt(cte.Select, ScopeCTE, nil)
	}
}

func (b *builder) resultColumn(rc *syntax.ResultColumn, viewColumn bool) {
	b.expr(rc.Expr)
	if rc.Alias != nil && !viewColumn {
		b.declare(KindQueryColumnAlias, rc.Alias, nil)
	}
}

func (b *builder) from(t syntax.TableExpr) {
	switch n := t.(type) {
	case *syntax.TableName:
		b.declare(KindQueryTableAlias, n.Alias, nil)
	case *syntax.SubquerySource:
		b.selectStmt(n.Select, ScopeSubquery, nil)
		b.declare(KindQueryTableAlias, n.Alias, nil)
	case *syntax.FunctionSource:
		b.exprs(n.Args)
		b.declare(KindQueryTableAlias, n.Alias, nil)
	case *syntax.Join:
		b.from(n.Left)
		b.from(n.Right)
		b.expr(n.On)
	}
}

func (b *builder) insert(n *syntax.Insert) {
	b.open(ScopeQuery, n)
	defer b.close()
	b.with(n.With)
	b.declare(KindQueryTableAlias, n.Alias, nil)
	for _, row := range n.Values {
		b.exprs(row)
	}
	b.selectStmt(n.Select, ScopeSubquery, nil)
	for _, u := range n.Upsert {
		b.order(u.Target)
		b.expr(u.TargetWhere)
		b.assignments(u.Set)
		b.expr(u.Where)
	}
	b.returning(n.Returning)
}

func (b *builder) update(n *syntax.Update) {
	b.open(ScopeQuery, n)
	defer b.close()
	b.with(n.With)
	b.declare(KindQueryTableAlias, n.Alias, nil)
	b.assignments(n.Set)
	b.from(n.From)
	b.expr(n.Where)
	b.returning(n.Returning)
}

func (b *builder) delete(n *syntax.Delete) {
	b.open(ScopeQuery, n)
	defer b.close()
	b.with(n.With)
	b.declare(KindQueryTableAlias, n.Alias, nil)
	b.expr(n.Where)
	b.returning(n.Returning)
}

func (b *builder) returning(cols []*syntax.ResultColumn) {
	for _, rc := range cols {
		b.resultColumn(rc, false)
	}
}

func (b *builder) assignments(set []*syntax.Assignment) {
	for _, a := range set {
		b.expr(a.Value)
	}
}

func (b *builder) order(terms []*syntax.OrderTerm) {
	for _, t := range terms {
		b.expr(t.Expr)
	}
}

func (b *builder) exprs(list []syntax.Expr) {
	for _, e := range list {
		b.expr(e)
	}
}

// expr declares what subqueries nested in an expression introduce.
func (b *builder) expr(e syntax.Expr) {
	if e == nil {
		return
	}
	syntax.Inspect(e, func(n syntax.Node) bool {
		if sel, ok := n.(*syntax.Select); ok {
			b.selectStmt(sel, ScopeSubquery, nil)
			return false
		}
		return true
	})
}
