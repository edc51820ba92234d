package resolve_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/db-xref/internal/resolve"
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/parser"
	"github.com/electwix/db-xref/internal/symbols"
)

type source struct {
	path string
	text string
}

type project struct {
	tables  map[string]*symbols.Table
	results map[string]*resolve.Result
}

func resolveAll(t *testing.T, sources ...source) *project {
	t.Helper()
	p := &project{
		tables:  make(map[string]*symbols.Table),
		results: make(map[string]*resolve.Result),
	}
	var rels []*model.Relation
	var added []*symbols.AddedColumn
	for _, s := range sources {
		file, err := parser.Parse(s.path, []byte(s.text))
		if err != nil {
			t.Fatalf("Parse(%s): %v", s.path, err)
		}
		tbl := symbols.Build(file)
		p.tables[s.path] = tbl
		rels = append(rels, tbl.Relations...)
		added = append(added, tbl.Added...)
	}
	catalog, err := model.MergeCatalog(rels, added...)
	if err != nil {
		t.Fatalf("MergeCatalog: %v", err)
	}
	for path, tbl := range p.tables {
		p.results[path] = resolve.File(tbl, catalog)
	}
	return p
}

func resolveOne(t *testing.T, text string) *resolve.Result {
	t.Helper()
	return resolveAll(t, source{"Test.sq", text}).results["Test.sq"]
}

// decl finds the first declaration of kind named name in path.
func (p *project) decl(t *testing.T, path string, kind symbols.Kind, name string) *symbols.Declaration {
	t.Helper()
	for _, d := range p.tables[path].Decls {
		if d.ID.Kind == kind && d.ID.Name == name {
			return d
		}
	}
	t.Fatalf("no %s %s in %s", kind, name, path)
	return nil
}

// refs lists the positions of references to d across the project, by path.
func (p *project) refs(d *symbols.Declaration) []string {
	var out []string
	for _, path := range []string{"Test.sq", "a.sq", "b.sq"} {
		res, ok := p.results[path]
		if !ok {
			continue
		}
		for _, b := range res.References() {
			if b.Decl == d || b.Decl.ID == d.ID {
				out = append(out, fmt.Sprintf("%s:%d:%d", path, b.Ident.Span.StartLine, b.Ident.Span.StartColumn))
			}
		}
	}
	return out
}

func errorsOf(res *resolve.Result) []string {
	var out []string
	for _, e := range res.Errors() {
		out = append(out, fmt.Sprintf("%d:%d %s %v", e.Span.StartLine, e.Span.StartColumn, e.Name, e.Err))
	}
	return out
}

func assertNoErrors(t *testing.T, res *resolve.Result) {
	t.Helper()
	if errs := errorsOf(res); len(errs) > 0 {
		t.Fatalf("unexpected unresolved occurrences: %v", errs)
	}
}

const columnFixture = `CREATE TABLE test (
  value TEXT NOT NULL
);

INSERT INTO test (value)
VALUES ('stuff');

anUpdate:
UPDATE test
SET value = ?;

someSelect:
SELECT value
FROM test
WHERE test.value = ?;`

func TestResolveTableAndColumns(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", columnFixture})
	assertNoErrors(t, p.results["Test.sq"])

	table := p.decl(t, "Test.sq", symbols.KindTable, "test")
	wantTable := []string{"Test.sq:5:13", "Test.sq:9:8", "Test.sq:14:6", "Test.sq:15:7"}
	if diff := cmp.Diff(wantTable, p.refs(table)); diff != "" {
		t.Fatalf("table references (-want +got):\n%s", diff)
	}

	value := p.decl(t, "Test.sq", symbols.KindColumn, "value")
	wantValue := []string{"Test.sq:5:19", "Test.sq:10:5", "Test.sq:13:8", "Test.sq:15:12"}
	if diff := cmp.Diff(wantValue, p.refs(value)); diff != "" {
		t.Fatalf("column references (-want +got):\n%s", diff)
	}

	got, err := p.results["Test.sq"].Lookup(value.Slot)
	if err != nil || got != value {
		t.Fatalf("Lookup(declaration slot) = %v, %v", got, err)
	}
}

func TestResolveViewColumnAlias(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE test (
  stuff TEXT NOT NULL
);

CREATE VIEW test_view AS
SELECT stuff AS stuff_alias
FROM test;

someSelect:
SELECT stuff_alias
FROM test_view;`})
	assertNoErrors(t, p.results["Test.sq"])

	alias := p.decl(t, "Test.sq", symbols.KindViewColumn, "stuff_alias")
	if diff := cmp.Diff([]string{"Test.sq:10:8"}, p.refs(alias)); diff != "" {
		t.Fatalf("view column references (-want +got):\n%s", diff)
	}
	stuff := p.decl(t, "Test.sq", symbols.KindColumn, "stuff")
	if diff := cmp.Diff([]string{"Test.sq:6:8"}, p.refs(stuff)); diff != "" {
		t.Fatalf("column references (-want +got):\n%s", diff)
	}
}

func TestResolveTableAlias(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE test (
  stuff TEXT NOT NULL
);

someSelect:
SELECT test_alias.*
FROM test test_alias
WHERE test_alias.stuff = ?;`})
	assertNoErrors(t, p.results["Test.sq"])

	alias := p.decl(t, "Test.sq", symbols.KindQueryTableAlias, "test_alias")
	if diff := cmp.Diff([]string{"Test.sq:6:8", "Test.sq:8:7"}, p.refs(alias)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
	table := p.decl(t, "Test.sq", symbols.KindTable, "test")
	if diff := cmp.Diff([]string{"Test.sq:7:6"}, p.refs(table)); diff != "" {
		t.Fatalf("table references (-want +got):\n%s", diff)
	}
}

func TestResolveCommonTable(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE test (
  stuff TEXT NOT NULL
);

someSelect:
WITH test_alias AS (
  SELECT *
  FROM test
)
SELECT test_alias.*
FROM test_alias
WHERE test_alias.stuff = ?;`})
	assertNoErrors(t, p.results["Test.sq"])

	cte := p.decl(t, "Test.sq", symbols.KindCTE, "test_alias")
	want := []string{"Test.sq:10:8", "Test.sq:11:6", "Test.sq:12:7"}
	if diff := cmp.Diff(want, p.refs(cte)); diff != "" {
		t.Fatalf("cte references (-want +got):\n%s", diff)
	}
	table := p.decl(t, "Test.sq", symbols.KindTable, "test")
	if diff := cmp.Diff([]string{"Test.sq:8:8"}, p.refs(table)); diff != "" {
		t.Fatalf("table references (-want +got):\n%s", diff)
	}
	stuff := p.decl(t, "Test.sq", symbols.KindColumn, "stuff")
	if diff := cmp.Diff([]string{"Test.sq:12:18"}, p.refs(stuff)); diff != "" {
		t.Fatalf("star-expanded column references (-want +got):\n%s", diff)
	}
}

func TestResolveCommonTableColumns(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE test (
  stuff TEXT NOT NULL
);

someSelect:
WITH test_alias (stuff_alias) AS (
  SELECT *
  FROM test
)
SELECT stuff_alias
FROM test_alias
WHERE test_alias.stuff_alias = ?;`})
	assertNoErrors(t, p.results["Test.sq"])

	col := p.decl(t, "Test.sq", symbols.KindCTEColumn, "stuff_alias")
	if diff := cmp.Diff([]string{"Test.sq:10:8", "Test.sq:12:18"}, p.refs(col)); diff != "" {
		t.Fatalf("cte column references (-want +got):\n%s", diff)
	}
}

func TestResolveAcrossFiles(t *testing.T) {
	p := resolveAll(t,
		source{"a.sq", "CREATE TABLE test (id INTEGER, name TEXT);\nCREATE VIEW everything AS SELECT * FROM test;"},
		source{"b.sq", "ALTER TABLE test ADD COLUMN extra TEXT;\nsel:\nSELECT name, extra FROM everything;"},
	)
	assertNoErrors(t, p.results["a.sq"])
	assertNoErrors(t, p.results["b.sq"])

	name := p.decl(t, "a.sq", symbols.KindColumn, "name")
	if diff := cmp.Diff([]string{"b.sq:3:8"}, p.refs(name)); diff != "" {
		t.Fatalf("name references (-want +got):\n%s", diff)
	}
	extra := p.decl(t, "b.sq", symbols.KindColumn, "extra")
	if diff := cmp.Diff([]string{"b.sq:3:14"}, p.refs(extra)); diff != "" {
		t.Fatalf("added column references (-want +got):\n%s", diff)
	}
	table := p.decl(t, "a.sq", symbols.KindTable, "test")
	if diff := cmp.Diff([]string{"a.sq:2:41", "b.sq:1:13"}, p.refs(table)); diff != "" {
		t.Fatalf("table references (-want +got):\n%s", diff)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "unknown table",
			sql:  "SELECT a FROM missing;",
			want: []string{"1:15 missing unresolved reference"},
		},
		{
			name: "unknown qualifier",
			sql:  "CREATE TABLE t (a TEXT);\nSELECT x.a FROM t;",
			want: []string{"2:8 x unresolved reference", "2:10 a unresolved reference"},
		},
		{
			name: "unknown qualified column",
			sql:  "CREATE TABLE t (a TEXT);\nSELECT t.b FROM t;",
			want: []string{"2:10 b unresolved qualifier"},
		},
		{
			name: "aliased table hides its name",
			sql:  "CREATE TABLE t (a TEXT);\nSELECT t.a FROM t x;",
			want: []string{"2:8 t unresolved reference", "2:10 a unresolved reference"},
		},
		{
			name: "unknown bare column",
			sql:  "CREATE TABLE t (a TEXT);\nSELECT b FROM t;",
			want: []string{"2:8 b unresolved reference"},
		},
		{
			name: "ambiguous column",
			sql:  "CREATE TABLE t (a TEXT);\nCREATE TABLE u (a TEXT);\nSELECT a FROM t, u;",
			want: []string{"3:8 a ambiguous reference"},
		},
		{
			name: "insert column",
			sql:  "CREATE TABLE t (a TEXT);\nINSERT INTO t (b) VALUES (1);",
			want: []string{"2:16 b unresolved qualifier"},
		},
		{
			name: "alter unknown table",
			sql:  "ALTER TABLE missing ADD COLUMN c TEXT;",
			want: []string{"1:13 missing unresolved reference"},
		},
		{
			name: "drop unknown table",
			sql:  "DROP TABLE missing;\nDROP TABLE IF EXISTS other;",
			want: []string{"1:12 missing unresolved reference"},
		},
		{
			name: "cte not visible in own body",
			sql:  "WITH c AS (SELECT * FROM c) SELECT * FROM c;",
			want: []string{"1:26 c unresolved reference"},
		},
		{
			name: "foreign key column",
			sql:  "CREATE TABLE p (id INTEGER);\nCREATE TABLE c (pid INTEGER REFERENCES p (nope));",
			want: []string{"2:43 nope unresolved qualifier"},
		},
		{
			name: "rowid and opaque sources",
			sql:  "CREATE TABLE t (a TEXT);\nSELECT rowid, t.oid, value FROM t, json_each(t.a);\nSELECT x FROM missing;",
			want: []string{"3:15 missing unresolved reference"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolveOne(t, tt.sql)
			if diff := cmp.Diff(tt.want, errorsOf(res)); diff != "" {
				t.Fatalf("errors (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnresolvedErrorWrapsSentinel(t *testing.T) {
	res := resolveOne(t, "CREATE TABLE t (a TEXT);\nSELECT t.b FROM t;")
	errs := res.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
	var unresolved *resolve.UnresolvedError
	if !errors.As(res.Err(), &unresolved) {
		t.Fatalf("Err() = %v, want *UnresolvedError", res.Err())
	}
	if !errors.Is(res.Err(), resolve.ErrUnresolvedQualifier) {
		t.Fatalf("Err() should wrap ErrUnresolvedQualifier")
	}
	if unresolved.Qualifier != "t" || unresolved.Kind != symbols.KindColumn {
		t.Fatalf("unexpected error fields: %+v", unresolved)
	}
	if got, want := unresolved.Error(), "Test.sq:2:10: unresolved qualifier: column t.b"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestResolveAliasPrecedence(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE t (a TEXT, b TEXT);
SELECT b AS a FROM t WHERE a = 1 GROUP BY a HAVING a > 0 ORDER BY a;`})
	assertNoErrors(t, p.results["Test.sq"])

	alias := p.decl(t, "Test.sq", symbols.KindQueryColumnAlias, "a")
	if diff := cmp.Diff([]string{"Test.sq:2:52", "Test.sq:2:67"}, p.refs(alias)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
	col := p.decl(t, "Test.sq", symbols.KindColumn, "a")
	if diff := cmp.Diff([]string{"Test.sq:2:28", "Test.sq:2:43"}, p.refs(col)); diff != "" {
		t.Fatalf("column references (-want +got):\n%s", diff)
	}
}

func TestResolveWhereAliasFallback(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", "CREATE TABLE t (a TEXT);\nSELECT a AS x FROM t WHERE x = 1;"})
	assertNoErrors(t, p.results["Test.sq"])
	alias := p.decl(t, "Test.sq", symbols.KindQueryColumnAlias, "x")
	if diff := cmp.Diff([]string{"Test.sq:2:28"}, p.refs(alias)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
}

func TestResolveCorrelatedSubquery(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE t (a TEXT, id INTEGER);
CREATE TABLE u (tid INTEGER);
SELECT a AS x FROM t o WHERE EXISTS (SELECT 1 FROM u WHERE u.tid = o.id AND x IS NULL);`})
	res := p.results["Test.sq"]
	want := []string{"3:77 x unresolved reference"}
	if diff := cmp.Diff(want, errorsOf(res)); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
	alias := p.decl(t, "Test.sq", symbols.KindQueryTableAlias, "o")
	if diff := cmp.Diff([]string{"Test.sq:3:68"}, p.refs(alias)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
}

func TestResolveJoins(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE t (id INTEGER, a TEXT);
CREATE TABLE u (id INTEGER, b TEXT);
SELECT id, a, b FROM t JOIN u USING (id);
SELECT t.id FROM t LEFT JOIN u ON u.id = t.id;
SELECT id FROM t NATURAL JOIN u;`})
	assertNoErrors(t, p.results["Test.sq"])
	tid := p.tables["Test.sq"].Relations[0].Column("id")
	uid := p.tables["Test.sq"].Relations[1].Column("id")
	if diff := cmp.Diff([]string{"Test.sq:3:8", "Test.sq:4:10", "Test.sq:4:44", "Test.sq:5:8"}, p.refs(tid)); diff != "" {
		t.Fatalf("t.id references (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Test.sq:3:38", "Test.sq:4:37"}, p.refs(uid)); diff != "" {
		t.Fatalf("u.id references (-want +got):\n%s", diff)
	}
}

func TestResolveDML(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE t (id INTEGER PRIMARY KEY, a TEXT);
INSERT INTO t (id, a) VALUES (1, 'x') ON CONFLICT (id) DO UPDATE SET a = excluded.a WHERE t.a IS NULL RETURNING id;
UPDATE t AS w SET a = 'y' WHERE w.id = 1 RETURNING a;
DELETE FROM t WHERE t.id IN (SELECT id FROM t) RETURNING *;`})
	assertNoErrors(t, p.results["Test.sq"])
	a := p.tables["Test.sq"].Relations[0].Column("a")
	want := []string{"Test.sq:2:20", "Test.sq:2:70", "Test.sq:2:83", "Test.sq:2:93", "Test.sq:3:19", "Test.sq:3:52"}
	if diff := cmp.Diff(want, p.refs(a)); diff != "" {
		t.Fatalf("column a references (-want +got):\n%s", diff)
	}
	w := p.decl(t, "Test.sq", symbols.KindQueryTableAlias, "w")
	if diff := cmp.Diff([]string{"Test.sq:3:33"}, p.refs(w)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
}

func TestResolveTrigger(t *testing.T) {
	res := resolveOne(t, `CREATE TABLE t (id INTEGER, a TEXT);
CREATE TABLE log (tid INTEGER, what TEXT);
CREATE TRIGGER t_log AFTER UPDATE OF a ON t
WHEN new.a IS NOT old.a
BEGIN
  INSERT INTO log (tid, what) VALUES (new.id, new.a);
  UPDATE log SET what = old.a WHERE tid = new.nope;
END;`)
	want := []string{"7:47 nope unresolved qualifier"}
	if diff := cmp.Diff(want, errorsOf(res)); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
}

func TestResolveRecursiveCTE(t *testing.T) {
	res := resolveOne(t, `WITH RECURSIVE cnt (x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM cnt WHERE x < 10)
SELECT x FROM cnt;`)
	assertNoErrors(t, res)
	var refs int
	for _, b := range res.References() {
		if b.Decl.ID.Kind == symbols.KindCTE || b.Decl.ID.Kind == symbols.KindCTEColumn {
			refs++
		}
	}
	if refs != 5 {
		t.Fatalf("cte references = %d, want 5", refs)
	}
}

func TestResolveDerivedTable(t *testing.T) {
	p := resolveAll(t, source{"Test.sq", `CREATE TABLE t (a TEXT);
SELECT s.a, s.n FROM (SELECT a, count(*) AS n FROM t) s;`})
	assertNoErrors(t, p.results["Test.sq"])
	col := p.decl(t, "Test.sq", symbols.KindColumn, "a")
	if diff := cmp.Diff([]string{"Test.sq:2:10", "Test.sq:2:30"}, p.refs(col)); diff != "" {
		t.Fatalf("column references (-want +got):\n%s", diff)
	}
	n := p.decl(t, "Test.sq", symbols.KindQueryColumnAlias, "n")
	if diff := cmp.Diff([]string{"Test.sq:2:15"}, p.refs(n)); diff != "" {
		t.Fatalf("alias references (-want +got):\n%s", diff)
	}
}

func TestResolveCyclicViews(t *testing.T) {
	res := resolveOne(t, `CREATE VIEW a AS SELECT * FROM b;
CREATE VIEW b AS SELECT * FROM a;
SELECT anything FROM a;`)
	assertNoErrors(t, res)
}
