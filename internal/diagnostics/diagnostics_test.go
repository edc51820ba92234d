package diagnostics

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestDiagnosticError(t *testing.T) {
	d := Error("unresolved reference: column nope").
		WithCode(ErrUnresolved).
		At("Test.sq", 3, 11).
		Build()
	want := "Test.sq:3:11: [E201] error: unresolved reference: column nope"
	if got := d.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	d.Code = ""
	want = "Test.sq:3:11: error: unresolved reference: column nope"
	if got := d.Error(); got != want {
		t.Errorf("Error() without code = %q, want %q", got, want)
	}
}

func TestDiagnosticJSON(t *testing.T) {
	d := Error("expected ), found EOF").WithCode(ErrParse).At("Test.sq", 2, 1).Build()
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"severity":"error"`, `"code":"E101"`, `"path":"Test.sq"`, `"line":2`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON missing %s in %s", want, got)
		}
	}
	if strings.Contains(got, "suggestions") {
		t.Errorf("empty suggestions should be omitted: %s", got)
	}
}

func TestCollection(t *testing.T) {
	c := NewCollection()
	if c.HasErrors() {
		t.Fatal("empty collection reports errors")
	}
	c.Add(
		Warning("unknown key").WithCode(WarnConfigUnknownKey).At("db-xref.toml", 1, 1).Build(),
		Error("b").WithCode(ErrUnresolved).At("b.sq", 2, 5).Build(),
		Error("a2").WithCode(ErrUnresolved).At("a.sq", 4, 1).Build(),
		Error("a1").WithCode(ErrAmbiguous).At("a.sq", 1, 9).Build(),
	)
	c.Add(Diagnostic{Severity: SeverityInfo, Message: "done"})

	if !c.HasErrors() {
		t.Fatal("HasErrors() = false")
	}
	if got := c.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	if got := len(c.ByCode(ErrUnresolved)); got != 2 {
		t.Errorf("ByCode(E201) = %d, want 2", got)
	}

	want := Summary{Total: 5, Errors: 3, Warnings: 1, Infos: 1}
	if got := c.Summary(); got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}

	c.SortByLocation()
	var order []string
	for _, d := range c.All() {
		order = append(order, d.Message)
	}
	if got := strings.Join(order, ","); got != "done,a1,a2,b,unknown key" {
		t.Errorf("sorted order = %s", got)
	}
}
