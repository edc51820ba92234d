package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/electwix/db-xref/internal/selector"
)

// Entry is one record of a bridge file: a usage and the selector naming the
// declaration it refers to.
type Entry struct {
	Declaration string `yaml:"declaration"`
	Usage       `yaml:",inline"`

	Selector *selector.Selector `yaml:"-"`
	// SourceLine is the line of the entry in its bridge file.
	SourceLine int `yaml:"-"`
}

// EntryError reports an invalid bridge file entry.
type EntryError struct {
	Path  string
	Index int
	Line  int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s:%d: entry %d: %v", e.Path, e.Line, e.Index, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// LoadFile reads a YAML bridge file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bridge file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes bridge file contents. The document is a sequence of entries;
// every entry is validated and every problem is reported.
func Parse(path string, data []byte) ([]Entry, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode bridge file %s: %w", path, err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.ScalarNode && doc.Tag == "!!null" {
		return nil, nil
	}
	if doc.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("decode bridge file %s: line %d: expected a list of usages", path, doc.Line)
	}

	entries := make([]Entry, 0, len(doc.Content))
	var errs []error
	for i, node := range doc.Content {
		var e Entry
		if err := node.Decode(&e); err != nil {
			errs = append(errs, &EntryError{Path: path, Index: i, Line: node.Line, Err: err})
			continue
		}
		if e.Declaration == "" {
			errs = append(errs, &EntryError{Path: path, Index: i, Line: node.Line, Err: errors.New("missing declaration")})
			continue
		}
		sel, err := selector.Parse(e.Declaration)
		if err != nil {
			errs = append(errs, &EntryError{Path: path, Index: i, Line: node.Line, Err: err})
			continue
		}
		if e.Handle == "" || e.Path == "" {
			errs = append(errs, &EntryError{Path: path, Index: i, Line: node.Line, Err: ErrInvalidUsage})
			continue
		}
		e.Selector = sel
		e.SourceLine = node.Line
		entries = append(entries, e)
	}
	return entries, errors.Join(errs...)
}

// Marshal encodes entries in bridge file form.
func Marshal(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode bridge file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode bridge file: %w", err)
	}
	return buf.Bytes(), nil
}
