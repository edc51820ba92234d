package resolve

import (
	"github.com/electwix/db-xref/internal/symbols"
)

// column is an output column of a relation. decl is nil for expression
// columns without an alias and for columns whose source did not resolve.
type column struct {
	name string
	decl *symbols.Declaration
}

// relation is the column shape of a FROM source. Opaque relations have an
// unknown shape; lookups against them neither bind nor fail.
type relation struct {
	decl    *symbols.Declaration
	columns []column
	opaque  bool
}

var opaqueRelation = &relation{opaque: true}

func (r *relation) lookup(key string) (column, bool) {
	for _, c := range r.columns {
		if c.name == key {
			return c, true
		}
	}
	return column{}, false
}

func tableRelation(rel *symbols.Relation) *relation {
	out := &relation{decl: rel.Decl, columns: make([]column, 0, len(rel.Columns))}
	for _, c := range rel.Columns {
		out.columns = append(out.columns, column{name: c.Key(), decl: c})
	}
	return out
}

// source is a FROM entry visible to column references. name is the exposed
// name: the alias when aliased, else the relation name. decl is what a
// qualifier naming the source binds to; pseudo sources such as NEW, OLD and
// excluded have none.
type source struct {
	name   string
	decl   *symbols.Declaration
	rel    *relation
	hidden map[string]bool
}

func (s *source) lookup(key string) (column, bool) {
	if s.hidden[key] {
		return column{}, false
	}
	return s.rel.lookup(key)
}

type cteEntry struct {
	decl *symbols.Declaration
	rel  *relation
}

// env is one level of the query environment chain.
type env struct {
	parent  *env
	ctes    map[string]*cteEntry
	sources []*source
	aliases map[string]*symbols.Declaration
}

func (e *env) source(key string) *source {
	for _, s := range e.sources {
		if s.name == key {
			return s
		}
	}
	return nil
}

// mode selects how bare column names interact with SELECT-list aliases.
type mode int

const (
	// sourceFirst prefers source columns and falls back to aliases (WHERE, GROUP BY).
	sourceFirst mode = iota
	// aliasFirst prefers aliases of the same query (ORDER BY, HAVING).
	aliasFirst
	// noAlias ignores aliases (result columns, ON, DML clauses).
	noAlias
)

func isRowID(key string) bool {
	switch key {
	case "rowid", "oid", "_rowid_":
		return true
	}
	return false
}
