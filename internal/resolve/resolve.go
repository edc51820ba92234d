package resolve

import (
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/syntax"
)

// File resolves every identifier slot of table against its own scopes and
// the project catalog.
func File(table *symbols.Table, catalog *model.Catalog) *Result {
	if catalog == nil {
		catalog = model.NewCatalog()
	}
	r := &resolver{
		table:   table,
		catalog: catalog,
		result:  newResult(table),
		sess: &session{
			views:     make(map[*symbols.Declaration]*relation),
			expanding: make(map[*symbols.Declaration]bool),
		},
	}
	for _, stmt := range table.File.Statements {
		r.statement(stmt, nil)
	}
	return r.result
}

// session is shared by a resolver and the forks it spawns to expand views
// declared in other statements or files.
type session struct {
	views     map[*symbols.Declaration]*relation
	expanding map[*symbols.Declaration]bool
}

type resolver struct {
	table   *symbols.Table
	catalog *model.Catalog
	result  *Result
	sess    *session
}

func (r *resolver) bind(ident *syntax.Ident, d *symbols.Declaration) {
	r.result.bind(ident, d)
}

func (r *resolver) fail(ident *syntax.Ident, kind symbols.Kind, qualifier string, err error) {
	r.result.fail(ident, kind, qualifier, err)
}

func (r *resolver) statement(stmt syntax.Statement, e *env) {
	switch n := stmt.(type) {
	case *syntax.Labeled:
		r.statement(n.Stmt, e)
	case *syntax.CreateTable:
		r.createTable(n)
	case *syntax.CreateView:
		r.resolveSelect(n.Select, nil)
	case *syntax.CreateIndex:
		rel, _ := r.lookupRelation(n.Table, nil)
		ie := &env{sources: []*source{{name: n.Table.Key(), rel: rel}}}
		for _, t := range n.Columns {
			r.expr(t.Expr, ie, noAlias)
		}
		r.expr(n.Where, ie, noAlias)
	case *syntax.AlterTable:
		r.alterTable(n)
	case *syntax.CreateTrigger:
		r.createTrigger(n)
	case *syntax.Drop:
		if n.Name == nil {
			return
		}
		if n.IfExists && r.catalog.Lookup(n.Name.Name) == nil {
			return
		}
		r.lookupRelation(n.Name, nil)
	case *syntax.Select:
		r.resolveSelect(n, e)
	case *syntax.Insert:
		r.insert(n, e)
	case *syntax.Update:
		r.update(n, e)
	case *syntax.Delete:
		r.delete(n, e)
	}
}

// lookupRelation resolves a table reference: CTEs from the innermost scope
// outward, then exposed source names of enclosing queries, then the catalog.
func (r *resolver) lookupRelation(ident *syntax.Ident, e *env) (*relation, *symbols.Declaration) {
	key := ident.Key()
	for cur := e; cur != nil; cur = cur.parent {
		if entry, ok := cur.ctes[key]; ok {
			r.bind(ident, entry.decl)
			if entry.rel == nil {
				return &relation{decl: entry.decl, opaque: true}, entry.decl
			}
			return entry.rel, entry.decl
		}
	}
	for cur := e; cur != nil; cur = cur.parent {
		if src := cur.source(key); src != nil {
			r.bind(ident, src.decl)
			return src.rel, src.decl
		}
	}
	if rel := r.catalog.Lookup(ident.Name); rel != nil {
		r.bind(ident, rel.Decl)
		return r.relationOf(rel), rel.Decl
	}
	r.fail(ident, symbols.KindTable, "", ErrUnresolvedReference)
	return opaqueRelation, nil
}

func (r *resolver) relationOf(rel *model.Relation) *relation {
	if !rel.IsView() {
		return tableRelation(rel)
	}
	return r.viewRelation(rel)
}

// viewRelation computes the columns a view exposes. Views without an
// explicit column list are resolved by a fork so that star columns expand
// to the underlying sources; cyclic view definitions become opaque.
func (r *resolver) viewRelation(rel *model.Relation) *relation {
	if cached, ok := r.sess.views[rel.Decl]; ok {
		return cached
	}
	if len(rel.View.Columns) > 0 {
		out := tableRelation(rel)
		r.sess.views[rel.Decl] = out
		return out
	}
	if r.sess.expanding[rel.Decl] || rel.Owner == nil || rel.Owner.File == nil {
		return &relation{decl: rel.Decl, opaque: true}
	}
	r.sess.expanding[rel.Decl] = true
	fork := &resolver{
		table:   rel.Owner,
		catalog: r.catalog,
		result:  newResult(rel.Owner),
		sess:    r.sess,
	}
	body := fork.resolveSelect(rel.View.Select, nil)
	delete(r.sess.expanding, rel.Decl)

	out := &relation{decl: rel.Decl, columns: body.columns, opaque: body.opaque}
	r.sess.views[rel.Decl] = out
	return out
}

// resolveSelect resolves a SELECT and returns the relation formed by the
// output columns of its first core.
func (r *resolver) resolveSelect(sel *syntax.Select, parent *env) *relation {
	if sel == nil {
		return opaqueRelation
	}
	e := r.withClause(sel.With, parent)
	var first *env
	out := &relation{}
	for i, core := range sel.Cores {
		ce, cols, opaque := r.core(core, e)
		if i == 0 {
			first = ce
			out.columns = cols
			out.opaque = opaque
		}
	}
	if first == nil {
		first = &env{parent: e}
	}
	for _, t := range sel.OrderBy {
		r.expr(t.Expr, first, aliasFirst)
	}
	r.expr(sel.Limit, e, noAlias)
	r.expr(sel.Offset, e, noAlias)
	return out
}

// withClause opens an environment holding the CTEs of w. Later CTEs see
// earlier ones; a CTE sees itself only under RECURSIVE.
func (r *resolver) withClause(w *syntax.With, parent *env) *env {
	if w == nil {
		return parent
	}
	e := &env{parent: parent, ctes: make(map[string]*cteEntry)}
	for _, cte := range w.CTEs {
		entry := &cteEntry{decl: r.table.Site(cte.Name)}
		if len(cte.Columns) > 0 {
			entry.rel = &relation{decl: entry.decl}
			for _, col := range cte.Columns {
				entry.rel.columns = append(entry.rel.columns, column{name: col.Key(), decl: r.table.Site(col)})
			}
		}
		if w.Recursive {
			e.ctes[cte.Name.Key()] = entry
		}
		body := r.resolveSelect(cte.Select, e)
		if len(cte.Columns) == 0 {
			entry.rel = &relation{decl: entry.decl, columns: body.columns, opaque: body.opaque}
		}
		e.ctes[cte.Name.Key()] = entry
	}
	return e
}

func (r *resolver) core(core *syntax.SelectCore, parent *env) (*env, []column, bool) {
	ce := &env{parent: parent}
	if core.Values != nil {
		width := 0
		for _, row := range core.Values {
			r.exprs(row, ce, noAlias)
			width = max(width, len(row))
		}
		return ce, make([]column, width), false
	}
	r.from(core.From, ce)
	cols, opaque := r.resultColumns(core.Columns, ce)

	ce.aliases = make(map[string]*symbols.Declaration)
	for _, rc := range core.Columns {
		if rc.Alias == nil {
			continue
		}
		if _, seen := ce.aliases[rc.Alias.Key()]; !seen {
			ce.aliases[rc.Alias.Key()] = r.table.Site(rc.Alias)
		}
	}
	r.expr(core.Where, ce, sourceFirst)
	r.exprs(core.GroupBy, ce, sourceFirst)
	r.expr(core.Having, ce, aliasFirst)
	for _, w := range core.Windows {
		r.exprs(w.PartitionBy, ce, sourceFirst)
		for _, t := range w.OrderBy {
			r.expr(t.Expr, ce, sourceFirst)
		}
	}
	return ce, cols, opaque
}

// from adds the sources of a FROM clause to ce. Table names and derived
// tables are resolved in the enclosing environment; function arguments and
// join constraints see the sources added so far.
func (r *resolver) from(t syntax.TableExpr, ce *env) {
	switch n := t.(type) {
	case *syntax.TableName:
		rel, decl := r.lookupRelation(n.Name, ce.parent)
		src := &source{name: n.Name.Key(), decl: decl, rel: rel}
		r.alias(src, n.Alias)
		ce.sources = append(ce.sources, src)
	case *syntax.SubquerySource:
		rel := r.resolveSelect(n.Select, ce.parent)
		src := &source{rel: rel}
		r.alias(src, n.Alias)
		ce.sources = append(ce.sources, src)
	case *syntax.FunctionSource:
		r.exprs(n.Args, ce, noAlias)
		src := &source{name: syntax.Canonical(n.Name), rel: opaqueRelation}
		r.alias(src, n.Alias)
		ce.sources = append(ce.sources, src)
	case *syntax.Join:
		r.from(n.Left, ce)
		left := len(ce.sources)
		r.from(n.Right, ce)
		right := ce.sources[left:]
		r.expr(n.On, ce, noAlias)
		for _, u := range n.Using {
			r.usingColumn(u, ce.sources[:left], right)
		}
		if n.Natural {
			hideShared(ce.sources[:left], right)
		}
	}
}

func (r *resolver) alias(src *source, alias *syntax.Ident) {
	if alias == nil {
		return
	}
	src.name = alias.Key()
	src.decl = r.table.Site(alias)
}

// usingColumn binds a USING column to the right-hand source and hides it
// there so later bare references are not ambiguous.
func (r *resolver) usingColumn(ident *syntax.Ident, left, right []*source) {
	key := ident.Key()
	bound := false
	for _, group := range [][]*source{right, left} {
		for _, src := range group {
			if col, ok := src.lookup(key); ok {
				if !bound {
					r.bind(ident, col.decl)
					bound = true
				}
				break
			}
		}
	}
	if !bound {
		if anyOpaque(right) || anyOpaque(left) {
			return
		}
		r.fail(ident, symbols.KindColumn, "", ErrUnresolvedReference)
		return
	}
	hideShared(left, right, key)
}

// hideShared hides columns of right that also appear in left. With keys,
// only those names are considered.
func hideShared(left, right []*source, keys ...string) {
	for _, src := range right {
		candidates := keys
		if len(candidates) == 0 {
			for _, c := range src.rel.columns {
				candidates = append(candidates, c.name)
			}
		}
		for _, key := range candidates {
			for _, l := range left {
				if _, ok := l.lookup(key); ok {
					if src.hidden == nil {
						src.hidden = make(map[string]bool)
					}
					src.hidden[key] = true
					break
				}
			}
		}
	}
}

func anyOpaque(sources []*source) bool {
	for _, s := range sources {
		if s.rel.opaque {
			return true
		}
	}
	return false
}

// resultColumns resolves a SELECT list or RETURNING clause and returns its
// output columns. The boolean reports that a star expanded an opaque source.
func (r *resolver) resultColumns(cols []*syntax.ResultColumn, ce *env) ([]column, bool) {
	var out []column
	opaque := false
	for _, rc := range cols {
		if rc.Star {
			if rc.Table != nil {
				src := ce.source(rc.Table.Key())
				if src == nil {
					r.fail(rc.Table, symbols.KindTable, "", ErrUnresolvedReference)
					opaque = true
					continue
				}
				r.bind(rc.Table, src.decl)
				out = append(out, src.rel.columns...)
				opaque = opaque || src.rel.opaque
				continue
			}
			for _, src := range ce.sources {
				out = append(out, src.rel.columns...)
				opaque = opaque || src.rel.opaque
			}
			continue
		}
		r.expr(rc.Expr, ce, noAlias)
		var c column
		if name := rc.Name(); name != nil {
			c.name = name.Key()
			if d := r.table.Site(name); d != nil {
				c.decl = d
			} else {
				c.decl, _ = r.result.Lookup(name.Slot)
			}
		}
		out = append(out, c)
	}
	return out, opaque
}

func (r *resolver) exprs(list []syntax.Expr, e *env, m mode) {
	for _, x := range list {
		r.expr(x, e, m)
	}
}

// expr resolves the column references of an expression. Nested queries
// open their own environments below e.
func (r *resolver) expr(x syntax.Expr, e *env, m mode) {
	if x == nil {
		return
	}
	syntax.Inspect(x, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.ColumnRef:
			r.columnRef(n, e, m)
			return false
		case *syntax.Select:
			r.resolveSelect(n, e)
			return false
		}
		return true
	})
}

func (r *resolver) columnRef(ref *syntax.ColumnRef, e *env, m mode) {
	key := ref.Column.Key()
	if ref.Table != nil {
		r.qualified(ref, e, key)
		return
	}
	if m == aliasFirst && e != nil {
		if d := e.aliases[key]; d != nil {
			r.bind(ref.Column, d)
			return
		}
	}
	for cur := e; cur != nil; cur = cur.parent {
		var found []*symbols.Declaration
		matched, opaque := false, false
		for _, src := range cur.sources {
			col, ok := src.lookup(key)
			if !ok {
				opaque = opaque || src.rel.opaque
				continue
			}
			matched = true
			if col.decl != nil && !containsDecl(found, col.decl) {
				found = append(found, col.decl)
			}
		}
		switch {
		case len(found) > 1:
			r.fail(ref.Column, symbols.KindColumn, "", ErrAmbiguousReference)
			return
		case len(found) == 1:
			r.bind(ref.Column, found[0])
			return
		case matched || opaque:
			return
		}
		if m == sourceFirst && cur == e {
			if d := cur.aliases[key]; d != nil {
				r.bind(ref.Column, d)
				return
			}
		}
	}
	if isRowID(key) {
		return
	}
	r.fail(ref.Column, symbols.KindColumn, "", ErrUnresolvedReference)
}

func (r *resolver) qualified(ref *syntax.ColumnRef, e *env, key string) {
	var src *source
	for cur := e; cur != nil && src == nil; cur = cur.parent {
		src = cur.source(ref.Table.Key())
	}
	if src == nil {
		r.fail(ref.Table, symbols.KindTable, "", ErrUnresolvedReference)
		r.fail(ref.Column, symbols.KindColumn, ref.Table.Name, ErrUnresolvedReference)
		return
	}
	r.bind(ref.Table, src.decl)
	if col, ok := src.rel.lookup(key); ok {
		r.bind(ref.Column, col.decl)
		return
	}
	if src.rel.opaque || isRowID(key) {
		return
	}
	r.fail(ref.Column, symbols.KindColumn, ref.Table.Name, ErrUnresolvedQualifier)
}

func containsDecl(list []*symbols.Declaration, d *symbols.Declaration) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}

// targetColumn resolves a column named directly against a relation, as in
// INSERT column lists, SET targets and key columns.
func (r *resolver) targetColumn(ident *syntax.Ident, table *syntax.Ident, rel *relation) {
	key := ident.Key()
	if col, ok := rel.lookup(key); ok {
		r.bind(ident, col.decl)
		return
	}
	if rel.opaque || isRowID(key) {
		return
	}
	r.fail(ident, symbols.KindColumn, table.Name, ErrUnresolvedQualifier)
}
