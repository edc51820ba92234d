package resolve

import (
	"github.com/electwix/db-xref/internal/syntax"
)

// ownRelation returns the relation declared by a CREATE TABLE, preferring
// the catalog entry so added columns are visible.
func (r *resolver) ownRelation(name *syntax.Ident) *relation {
	local := r.table.RelationOf(name)
	if local == nil {
		return opaqueRelation
	}
	if merged := r.catalog.Lookup(name.Name); merged != nil && merged.Decl == local.Decl {
		return tableRelation(merged)
	}
	return tableRelation(local)
}

func (r *resolver) createTable(n *syntax.CreateTable) {
	rel := r.ownRelation(n.Name)
	self := &env{sources: []*source{{name: n.Name.Key(), decl: r.table.Site(n.Name), rel: rel}}}
	for _, col := range n.Columns {
		r.expr(col.Default, self, noAlias)
		r.exprs(col.Checks, self, noAlias)
		r.foreignKey(col.References)
	}
	for _, c := range n.Constraints {
		for _, id := range c.Columns {
			r.targetColumn(id, n.Name, rel)
		}
		r.expr(c.Check, self, noAlias)
		r.foreignKey(c.References)
	}
}

func (r *resolver) foreignKey(fk *syntax.ForeignKey) {
	if fk == nil {
		return
	}
	rel, _ := r.lookupRelation(fk.Table, nil)
	for _, id := range fk.Columns {
		r.targetColumn(id, fk.Table, rel)
	}
}

func (r *resolver) alterTable(n *syntax.AlterTable) {
	rel, decl := r.lookupRelation(n.Table, nil)
	if n.AddColumn != nil {
		self := &env{sources: []*source{{name: n.Table.Key(), decl: decl, rel: rel}}}
		r.expr(n.AddColumn.Default, self, noAlias)
		r.exprs(n.AddColumn.Checks, self, noAlias)
		r.foreignKey(n.AddColumn.References)
	}
	if n.DropColumn != nil {
		r.targetColumn(n.DropColumn, n.Table, rel)
	}
	if n.RenameColumn != nil {
		r.targetColumn(n.RenameColumn, n.Table, rel)
	}
}

// createTrigger resolves the trigger body with NEW and OLD bound to rows of
// the trigger table.
func (r *resolver) createTrigger(n *syntax.CreateTrigger) {
	rel, _ := r.lookupRelation(n.Table, nil)
	for _, id := range n.Columns {
		r.targetColumn(id, n.Table, rel)
	}
	te := &env{sources: []*source{
		{name: "new", rel: rel},
		{name: "old", rel: rel},
	}}
	r.expr(n.When, te, noAlias)
	for _, stmt := range n.Body {
		r.statement(stmt, te)
	}
}

// target resolves the table of an INSERT, UPDATE or DELETE and returns it
// as a source exposed under its alias when aliased.
func (r *resolver) target(table, alias *syntax.Ident, e *env) *source {
	rel, decl := r.lookupRelation(table, e)
	src := &source{name: table.Key(), decl: decl, rel: rel}
	r.alias(src, alias)
	return src
}

func (r *resolver) insert(n *syntax.Insert, parent *env) {
	e := r.withClause(n.With, parent)
	target := r.target(n.Table, n.Alias, e)
	for _, id := range n.Columns {
		r.targetColumn(id, n.Table, target.rel)
	}
	values := &env{parent: e}
	for _, row := range n.Values {
		r.exprs(row, values, noAlias)
	}
	r.resolveSelect(n.Select, e)

	if len(n.Upsert) > 0 {
		ue := &env{parent: e, sources: []*source{
			target,
			{name: "excluded", rel: target.rel},
		}}
		for _, u := range n.Upsert {
			for _, t := range u.Target {
				r.expr(t.Expr, ue, noAlias)
			}
			r.expr(u.TargetWhere, ue, noAlias)
			r.assignments(u.Set, n.Table, target.rel, ue)
			r.expr(u.Where, ue, noAlias)
		}
	}
	r.returning(n.Returning, target, e)
}

func (r *resolver) update(n *syntax.Update, parent *env) {
	e := r.withClause(n.With, parent)
	target := r.target(n.Table, n.Alias, e)
	ue := &env{parent: e, sources: []*source{target}}
	r.from(n.From, ue)
	r.assignments(n.Set, n.Table, target.rel, ue)
	r.expr(n.Where, ue, noAlias)
	r.returning(n.Returning, target, e)
}

func (r *resolver) delete(n *syntax.Delete, parent *env) {
	e := r.withClause(n.With, parent)
	target := r.target(n.Table, n.Alias, e)
	de := &env{parent: e, sources: []*source{target}}
	r.expr(n.Where, de, noAlias)
	r.returning(n.Returning, target, e)
}

func (r *resolver) assignments(set []*syntax.Assignment, table *syntax.Ident, rel *relation, e *env) {
	for _, a := range set {
		for _, id := range a.Columns {
			r.targetColumn(id, table, rel)
		}
		r.expr(a.Value, e, noAlias)
	}
}

func (r *resolver) returning(cols []*syntax.ResultColumn, target *source, parent *env) {
	if len(cols) == 0 {
		return
	}
	re := &env{parent: parent, sources: []*source{target}}
	r.resultColumns(cols, re)
}
