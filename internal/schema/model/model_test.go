package model_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/parser"
	"github.com/electwix/db-xref/internal/symbols"
)

func table(t *testing.T, path, src string) *symbols.Table {
	t.Helper()
	file, err := parser.Parse(path, []byte(src))
	if err != nil {
		t.Fatalf("Parse(%s): %v", path, err)
	}
	return symbols.Build(file)
}

func merge(t *testing.T, tables ...*symbols.Table) (*model.Catalog, error) {
	t.Helper()
	var rels []*model.Relation
	var added []*symbols.AddedColumn
	for _, tbl := range tables {
		rels = append(rels, tbl.Relations...)
		added = append(added, tbl.Added...)
	}
	return model.MergeCatalog(rels, added...)
}

func columnNames(rel *model.Relation) []string {
	var out []string
	for _, c := range rel.Columns {
		out = append(out, c.ID.Name)
	}
	return out
}

func TestNewCatalog(t *testing.T) {
	c := model.NewCatalog()
	if c.Tables == nil || c.Views == nil {
		t.Fatal("maps should be initialized")
	}
	if c.Len() != 0 || c.Lookup("x") != nil {
		t.Fatal("new catalog should be empty")
	}
	var nilCatalog *model.Catalog
	if nilCatalog.Lookup("x") != nil || nilCatalog.Len() != 0 {
		t.Fatal("nil catalog should behave as empty")
	}
}

func TestMergeCatalog(t *testing.T) {
	a := table(t, "a.sq", "CREATE TABLE Test (value TEXT);\nCREATE VIEW v AS SELECT value FROM test;")
	b := table(t, "b.sq", "ALTER TABLE test ADD COLUMN extra INTEGER;\nCREATE TABLE other (id INTEGER);")

	c, err := merge(t, b, a)
	if err != nil {
		t.Fatalf("MergeCatalog: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	test := c.Lookup("TEST")
	if test == nil || test.IsView() {
		t.Fatalf("Lookup(TEST) = %+v", test)
	}
	if diff := cmp.Diff([]string{"value", "extra"}, columnNames(test)); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if len(a.Relations[0].Columns) != 1 {
		t.Fatalf("merge mutated the file's relation")
	}
	if v := c.Lookup("v"); v == nil || !v.IsView() {
		t.Fatalf("Lookup(v) = %+v", v)
	}

	var names []string
	for _, rel := range c.Relations() {
		names = append(names, rel.Decl.ID.Path+":"+rel.Decl.ID.Name)
	}
	if diff := cmp.Diff([]string{"a.sq:Test", "a.sq:v", "b.sq:other"}, names); diff != "" {
		t.Fatalf("Relations (-want +got):\n%s", diff)
	}
}

func TestMergeCatalogDuplicates(t *testing.T) {
	a := table(t, "a.sq", "CREATE TABLE test (value TEXT);")
	b := table(t, "b.sq", "CREATE VIEW TEST AS SELECT 1;\nALTER TABLE test ADD COLUMN value TEXT;")

	c, err := merge(t, b, a)
	if err == nil {
		t.Fatal("expected duplicate errors")
	}
	if got := c.Lookup("test"); got == nil || got.Decl.ID.Path != "a.sq" || got.IsView() {
		t.Fatalf("first declaration should win, got %+v", got)
	}

	var dups []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var dup *model.DuplicateDeclaration
		if !errors.As(e, &dup) {
			t.Fatalf("unexpected error %T: %v", e, e)
		}
		dups = append(dups, dup.Name+"@"+dup.Second.Path)
		if dup.First.Path != "a.sq" {
			t.Fatalf("First = %v", dup.First)
		}
	}
	if diff := cmp.Diff([]string{"TEST@b.sq", "test.value@b.sq"}, dups); diff != "" {
		t.Fatalf("duplicates (-want +got):\n%s", diff)
	}
	if len(c.Lookup("test").Columns) != 1 {
		t.Fatalf("duplicate column should not be added")
	}
}

func TestMergeCatalogUnknownAlterTarget(t *testing.T) {
	a := table(t, "a.sq", "ALTER TABLE missing ADD COLUMN c TEXT;")
	c, err := merge(t, a)
	if err != nil {
		t.Fatalf("MergeCatalog: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestDuplicateDeclarationError(t *testing.T) {
	err := &model.DuplicateDeclaration{
		Name:   "test",
		First:  symbols.ID{Kind: symbols.KindTable, Path: "a.sq", Line: 1, Column: 14, Name: "test"},
		Second: symbols.ID{Kind: symbols.KindTable, Path: "b.sq", Line: 3, Column: 14, Name: "test"},
	}
	want := "b.sq:3:14: duplicate declaration of test (first declared at a.sq:1:14)"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
