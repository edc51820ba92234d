package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/electwix/db-xref/internal/config"
	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/pipeline"
	"github.com/electwix/db-xref/internal/selector"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/workspace"
)

// textWriter is implemented by views with a plain text rendering.
type textWriter interface {
	writeText(w io.Writer) error
}

// render writes v in the selected output format.
func render(w io.Writer, format string, v textWriter) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return v.writeText(w)
}

type summaryView struct {
	Files        int    `json:"files" yaml:"files"`
	Indexed      int    `json:"indexed" yaml:"indexed"`
	Failed       int    `json:"failed" yaml:"failed"`
	Removed      int    `json:"removed" yaml:"removed"`
	Declarations int    `json:"declarations" yaml:"declarations"`
	References   int    `json:"references" yaml:"references"`
	External     int    `json:"external" yaml:"external"`
	Unresolved   int    `json:"unresolved" yaml:"unresolved"`
	Conflicts    int    `json:"conflicts" yaml:"conflicts"`
	Errors       int    `json:"errors" yaml:"errors"`
	Warnings     int    `json:"warnings" yaml:"warnings"`
	Duration     string `json:"duration" yaml:"duration"`
	Saved        string `json:"saved,omitempty" yaml:"saved,omitempty"`
}

// newSummaryView describes a run; files counts the sources the engine holds.
func newSummaryView(s pipeline.Summary, files int) *summaryView {
	v := &summaryView{
		Files:        files,
		Indexed:      s.Indexed,
		Failed:       s.Failed,
		Removed:      s.Removed,
		Declarations: s.Stats.Declarations,
		References:   s.Stats.References,
		External:     s.Stats.External,
		Unresolved:   s.Stats.Unresolved,
		Conflicts:    s.Stats.Conflicts,
		Duration:     s.Duration.Round(time.Millisecond).String(),
	}
	if s.Diagnostics != nil {
		counts := s.Diagnostics.Summary()
		v.Errors, v.Warnings = counts.Errors, counts.Warnings
	}
	return v
}

func (v *summaryView) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "indexed %d files (%d failed, %d removed): %d declarations, %d references, %d external usages, %d unresolved in %s\n",
		v.Files, v.Failed, v.Removed, v.Declarations, v.References, v.External, v.Unresolved, v.Duration)
	if err == nil && v.Saved != "" {
		_, err = fmt.Fprintf(w, "snapshot saved to %s\n", v.Saved)
	}
	return err
}

type declView struct {
	Kind     string    `json:"kind" yaml:"kind"`
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Line     int       `json:"line" yaml:"line"`
	Column   int       `json:"column" yaml:"column"`
	Selector string    `json:"selector,omitempty" yaml:"selector,omitempty"`
	Parent   *declView `json:"parent,omitempty" yaml:"parent,omitempty"`
}

func newDeclView(table *symbols.Table, d *symbols.Declaration) *declView {
	v := idView(d.ID)
	if table != nil {
		v.Selector = selector.For(table, d).String()
	}
	if d.Parent != nil {
		v.Parent = idView(*d.Parent)
	}
	return v
}

func idView(id symbols.ID) *declView {
	return &declView{Kind: id.Kind.String(), Name: id.Name, Path: id.Path, Line: id.Line, Column: id.Column}
}

func (v *declView) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s:%d:%d %s %s\n", v.Path, v.Line, v.Column, v.Kind, v.Name)
	return err
}

type declListView struct {
	Path         string      `json:"path" yaml:"path"`
	Declarations []*declView `json:"declarations" yaml:"declarations"`
}

func (v *declListView) writeText(w io.Writer) error {
	for _, d := range v.Declarations {
		sel := d.Selector
		if sel == "" {
			sel = d.Kind + " " + d.Name
		}
		if _, err := fmt.Fprintf(w, "%d:%d\t%s\n", d.Line, d.Column, sel); err != nil {
			return err
		}
	}
	return nil
}

type usageView struct {
	Kind     string `json:"kind" yaml:"kind"`
	Path     string `json:"path" yaml:"path"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
	Handle   string `json:"handle,omitempty" yaml:"handle,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

type usagesView struct {
	Declaration *declView   `json:"declaration" yaml:"declaration"`
	Usages      []usageView `json:"usages" yaml:"usages"`
}

func newUsagesView(decl *declView, usages []index.Usage) *usagesView {
	v := &usagesView{Declaration: decl, Usages: make([]usageView, 0, len(usages))}
	for _, u := range usages {
		v.Usages = append(v.Usages, usageView{
			Kind:     u.Kind.String(),
			Path:     u.Path,
			Line:     u.Span.StartLine,
			Column:   u.Span.StartColumn,
			Handle:   u.Handle,
			Language: u.Language,
		})
	}
	return v
}

func (v *usagesView) writeText(w io.Writer) error {
	for _, u := range v.Usages {
		line := fmt.Sprintf("%s:%d:%d\t%s", u.Path, u.Line, u.Column, u.Kind)
		if u.Handle != "" {
			line += "\t" + u.Handle
			if u.Language != "" {
				line += " (" + u.Language + ")"
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// tableFor returns the symbol table declaring d, or nil for declarations
// that only exist in a saved snapshot.
func tableFor(engine *workspace.Engine, d *symbols.Declaration) *symbols.Table {
	if engine == nil {
		return nil
	}
	return engine.Table(d.ID.Path)
}
