package index_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/resolve"
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/parser"
	"github.com/electwix/db-xref/internal/symbols"
)

type file struct {
	path string
	text string
}

func build(t *testing.T, x *index.Index, files ...file) map[string]*symbols.Table {
	t.Helper()
	tables := make(map[string]*symbols.Table)
	var rels []*model.Relation
	var added []*symbols.AddedColumn
	for _, f := range files {
		tree, err := parser.Parse(f.path, []byte(f.text))
		if err != nil {
			t.Fatalf("Parse(%s): %v", f.path, err)
		}
		tbl := symbols.Build(tree)
		tables[f.path] = tbl
		rels = append(rels, tbl.Relations...)
		added = append(added, tbl.Added...)
	}
	catalog, err := model.MergeCatalog(rels, added...)
	if err != nil {
		t.Fatalf("MergeCatalog: %v", err)
	}
	for _, tbl := range tables {
		x.Update(index.Contribute(resolve.File(tbl, catalog)))
	}
	return tables
}

func find(t *testing.T, tbl *symbols.Table, kind symbols.Kind, name string) symbols.ID {
	t.Helper()
	for _, d := range tbl.Decls {
		if d.ID.Kind == kind && d.ID.Name == name {
			return d.ID
		}
	}
	t.Fatalf("no %s %s", kind, name)
	return symbols.ID{}
}

func describe(usages []index.Usage) []string {
	out := make([]string, len(usages))
	for i, u := range usages {
		out[i] = fmt.Sprintf("%s %s:%d:%d", u.Kind, u.Path, u.Span.StartLine, u.Span.StartColumn)
		if u.Handle != "" {
			out[i] += " " + u.Handle
		}
	}
	return out
}

func TestFindUsagesOfTable(t *testing.T) {
	x := index.New(nil)
	tables := build(t, x, file{"Test.sq", `CREATE TABLE test (
  value TEXT NOT NULL
);

INSERT INTO test
VALUES ('stuff');

someSelect:
SELECT *
FROM test;`})
	id := find(t, tables["Test.sq"], symbols.KindTable, "test")
	want := []string{
		"declaration Test.sq:1:14",
		"reference Test.sq:5:13",
		"reference Test.sq:10:6",
	}
	got := x.FindUsages(id, index.FindUsagesOptions{})
	if diff := cmp.Diff(want, describe(got)); diff != "" {
		t.Fatalf("usages (-want +got):\n%s", diff)
	}
	if again := x.FindUsages(id, index.FindUsagesOptions{}); !cmp.Equal(got, again) {
		t.Fatalf("FindUsages is not idempotent")
	}
}

func TestFindUsagesOfView(t *testing.T) {
	x := index.New(nil)
	tables := build(t, x, file{"Test.sq", `CREATE VIEW test AS
SELECT 1, 2;

someSelect:
SELECT *
FROM test;`})
	id := find(t, tables["Test.sq"], symbols.KindView, "test")
	want := []string{"declaration Test.sq:1:13", "reference Test.sq:6:6"}
	if diff := cmp.Diff(want, describe(x.FindUsages(id, index.FindUsagesOptions{}))); diff != "" {
		t.Fatalf("usages (-want +got):\n%s", diff)
	}
}

func TestFindUsagesOfAliases(t *testing.T) {
	x := index.New(nil)
	tables := build(t, x, file{"Test.sq", `CREATE TABLE test (
  stuff TEXT NOT NULL
);

CREATE VIEW test_view AS
SELECT stuff AS stuff_alias
FROM test;

someSelect:
SELECT stuff_alias
FROM test_view;

aliased:
SELECT test_alias.*
FROM test test_alias
WHERE test_alias.stuff = ?;`})
	tbl := tables["Test.sq"]

	viewCol := find(t, tbl, symbols.KindViewColumn, "stuff_alias")
	if diff := cmp.Diff([]string{"reference Test.sq:10:8"}, describe(x.FindUsages(viewCol, index.FindUsagesOptions{}))); diff != "" {
		t.Fatalf("view column usages (-want +got):\n%s", diff)
	}
	withDecl := x.FindUsages(viewCol, index.FindUsagesOptions{IncludeDeclaration: true})
	if diff := cmp.Diff([]string{"declaration Test.sq:6:17", "reference Test.sq:10:8"}, describe(withDecl)); diff != "" {
		t.Fatalf("view column usages with declaration (-want +got):\n%s", diff)
	}

	alias := find(t, tbl, symbols.KindQueryTableAlias, "test_alias")
	want := []string{"reference Test.sq:14:8", "reference Test.sq:16:7"}
	if diff := cmp.Diff(want, describe(x.FindUsages(alias, index.FindUsagesOptions{}))); diff != "" {
		t.Fatalf("table alias usages (-want +got):\n%s", diff)
	}
}

func TestFindUsagesExternal(t *testing.T) {
	reg := bridge.NewRegistry()
	x := index.New(reg)
	tables := build(t, x, file{"Main.sq", "someQuery:\nSELECT 1;"})
	id := find(t, tables["Main.sq"], symbols.KindLabeledStatement, "someQuery")

	if got := x.FindUsages(id, index.FindUsagesOptions{}); len(got) != 0 {
		t.Fatalf("labels have no usages of their own, got %v", describe(got))
	}
	for _, u := range []bridge.Usage{
		{Handle: "b", Path: "src/SampleClass.java", Line: 4, Column: 2},
		{Handle: "a", Path: "src/SampleClass.java", Line: 4, Column: 2},
		{Handle: "k", Path: "src/KotlinClass.kt", Line: 9, Column: 1},
	} {
		if err := reg.Register(id, u); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	want := []string{
		"external src/KotlinClass.kt:9:1 k",
		"external src/SampleClass.java:4:2 a",
	}
	if diff := cmp.Diff(want, describe(x.FindUsages(id, index.FindUsagesOptions{}))); diff != "" {
		t.Fatalf("external usages (-want +got):\n%s", diff)
	}
}

func TestUpdateAndRemove(t *testing.T) {
	x := index.New(nil)
	build(t, x,
		file{"a.sq", "CREATE TABLE t (c TEXT);"},
		file{"b.sq", "q:\nSELECT c FROM t;"},
	)
	id := symbols.ID{Kind: symbols.KindTable, Path: "a.sq", Line: 1, Column: 14, Name: "t"}
	if got := len(x.FindUsages(id, index.FindUsagesOptions{})); got != 2 {
		t.Fatalf("usages = %d, want 2", got)
	}
	if s := x.Stats(); s.Files != 2 || s.Declarations != 3 || s.References != 2 {
		t.Fatalf("Stats = %+v", s)
	}

	x.Remove("b.sq")
	if got := describe(x.FindUsages(id, index.FindUsagesOptions{})); !cmp.Equal(got, []string{"declaration a.sq:1:14"}) {
		t.Fatalf("after Remove = %v", got)
	}
	x.Remove("a.sq")
	if x.Declaration(id) != nil || len(x.FindUsages(id, index.FindUsagesOptions{})) != 0 {
		t.Fatalf("removed declaration still indexed")
	}
}
