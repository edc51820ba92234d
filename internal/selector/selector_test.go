package selector_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/db-xref/internal/schema/parser"
	"github.com/electwix/db-xref/internal/selector"
	"github.com/electwix/db-xref/internal/symbols"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want selector.Selector
	}{
		{"table test", selector.Selector{Kind: symbols.KindTable, Path: []string{"test"}}},
		{"column test.value", selector.Selector{Kind: symbols.KindColumn, Path: []string{"test", "value"}}},
		{"view-column test_view.stuff_alias", selector.Selector{Kind: symbols.KindViewColumn, Path: []string{"test_view", "stuff_alias"}}},
		{"cte someSelect.test_alias", selector.Selector{Kind: symbols.KindCTE, Path: []string{"someSelect", "test_alias"}}},
		{`table "odd name" in "db/Main.sq" @3:14`, selector.Selector{Kind: symbols.KindTable, Path: []string{"odd name"}, File: "db/Main.sq", Line: 3, Column: 14}},
		{"label `someQuery` @7", selector.Selector{Kind: symbols.KindLabeledStatement, Path: []string{"someQuery"}, Line: 7}},
		{"COLUMN t.c", selector.Selector{Kind: symbols.KindColumn, Path: []string{"t", "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := selector.Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Fatalf("selector (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "table", "widget x", "column a.", "table x in", "table x @"} {
		if _, err := selector.Parse(in); err == nil {
			t.Fatalf("Parse(%q) should fail", in)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"table test",
		"cte-column someSelect.test_alias.stuff_alias",
		`table "odd name" in "db/Main.sq" @3:14`,
		`column "in".x`,
	} {
		sel := selector.MustParse(in)
		if got := sel.String(); got != in {
			t.Fatalf("String() = %q, want %q", got, in)
		}
	}
}

const source = `CREATE TABLE test (
  value TEXT NOT NULL
);

CREATE VIEW test_view AS
SELECT value AS stuff_alias FROM test t;

someSelect:
WITH test_alias (stuff_alias) AS (SELECT * FROM test)
SELECT stuff_alias FROM test_alias;

other:
SELECT value FROM test t;`

func TestMatchAndFor(t *testing.T) {
	file, err := parser.Parse("db/Main.sq", []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	table := symbols.Build(file)
	tables := []*symbols.Table{table}

	describe := func(decls []*symbols.Declaration) []string {
		var out []string
		for _, d := range decls {
			out = append(out, fmt.Sprintf("%s@%d:%d", d.ID.Kind, d.ID.Line, d.ID.Column))
		}
		return out
	}

	tests := []struct {
		sel  string
		want []string
	}{
		{"table test", []string{"table@1:14"}},
		{"column test.value", []string{"column@2:3"}},
		{"column other.value", nil},
		{"view-column stuff_alias", []string{"view-column@6:17"}},
		{"cte-column stuff_alias", []string{"cte-column@9:18"}},
		{"cte-column someSelect.test_alias.stuff_alias", []string{"cte-column@9:18"}},
		{"table-alias t", []string{"table-alias@6:39", "table-alias@13:24"}},
		{"table-alias other.t", []string{"table-alias@13:24"}},
		{"table-alias test_view.t", []string{"table-alias@6:39"}},
		{`table test in "Main.sq"`, []string{"table@1:14"}},
		{`table test in "Other.sq"`, nil},
		{"label someSelect @8", []string{"label@8:1"}},
	}
	for _, tt := range tests {
		got := selector.MustParse(tt.sel).Select(tables)
		if diff := cmp.Diff(tt.want, describe(got)); diff != "" {
			t.Fatalf("Select(%s) (-want +got):\n%s", tt.sel, diff)
		}
	}

	for _, d := range table.Decls {
		sel := selector.For(table, d)
		found := false
		for _, m := range sel.Select(tables) {
			found = found || m == d
		}
		if !found {
			t.Fatalf("For(%s) = %s does not select it", d.ID, sel)
		}
	}
	alias := table.Decls[len(table.Decls)-1]
	if got, want := selector.For(table, alias).String(), "table-alias other.t"; got != want {
		t.Fatalf("For = %q, want %q", got, want)
	}
}
