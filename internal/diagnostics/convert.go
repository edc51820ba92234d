package diagnostics

import (
	"errors"
	"fmt"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/resolve"
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/parser"
)

// FromError converts an engine error into diagnostics. Joined errors are
// flattened so each duplicate or bridge entry gets its own diagnostic.
// Errors of unknown shape become a single diagnostic without a location.
func FromError(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []Diagnostic
		for _, e := range joined.Unwrap() {
			out = append(out, FromError(e)...)
		}
		return out
	}

	var (
		parseErr   *parser.ParseError
		dupErr     *model.DuplicateDeclaration
		unresolved *resolve.UnresolvedError
		entryErr   *bridge.EntryError
	)
	switch {
	case errors.As(err, &parseErr):
		return []Diagnostic{FromParseError(parseErr)}
	case errors.As(err, &dupErr):
		return []Diagnostic{FromDuplicate(dupErr)}
	case errors.As(err, &unresolved):
		return []Diagnostic{FromUnresolved(unresolved)}
	case errors.As(err, &entryErr):
		return []Diagnostic{Warning(entryErr.Err.Error()).
			WithCode(WarnBridgeEntry).
			At(entryErr.Path, entryErr.Line, 1).
			WithSource("bridge").
			Build()}
	}
	return []Diagnostic{Error(err.Error()).Build()}
}

// FromParseError converts a syntax error.
func FromParseError(err *parser.ParseError) Diagnostic {
	msg := err.Message
	if msg == "" {
		msg = fmt.Sprintf("expected %s, found %s", err.Expected, err.Found)
	}
	return Error(msg).
		WithCode(ErrParse).
		At(err.Path, err.Line, err.Column).
		WithSource("parser").
		WithNote("statements after this point in the file are not indexed").
		Build()
}

// FromDuplicate converts a catalog conflict. The diagnostic sits on the
// losing declaration and points back at the one that was kept.
func FromDuplicate(err *model.DuplicateDeclaration) Diagnostic {
	return Error(fmt.Sprintf("duplicate declaration of %s", err.Name)).
		WithCode(ErrDuplicate).
		At(err.Second.Path, err.Second.Line, err.Second.Column).
		WithSource("catalog").
		WithRelated(err.First.Path, err.First.Line, err.First.Column, "first declared here").
		WithSuggestion("remove or rename one of the declarations", "").
		Build()
}

// FromUnresolved converts an unbound occurrence.
func FromUnresolved(err *resolve.UnresolvedError) Diagnostic {
	name := err.Name
	if err.Qualifier != "" {
		name = err.Qualifier + "." + name
	}
	b := Error(fmt.Sprintf("%v: %s %s", err.Err, err.Kind, name)).
		At(err.Path, err.Span.StartLine, err.Span.StartColumn).
		WithSource("resolver")
	switch {
	case errors.Is(err, resolve.ErrAmbiguousReference):
		b.WithCode(ErrAmbiguous).WithSuggestion("qualify the column with a table name or alias", "table."+err.Name)
	case errors.Is(err, resolve.ErrUnresolvedQualifier):
		b.WithCode(ErrUnresolvedQualifier).WithNote(fmt.Sprintf("%s has no column named %s", err.Qualifier, err.Name))
	default:
		b.WithCode(ErrUnresolved)
	}
	return b.Build()
}

// FromResult converts every unresolved occurrence of a file.
func FromResult(res *resolve.Result) []Diagnostic {
	if res == nil {
		return nil
	}
	errs := res.Errors()
	out := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, FromUnresolved(e))
	}
	return out
}

// ConfigError creates a diagnostic for an invalid configuration file.
func ConfigError(path string, err error) Diagnostic {
	return Error(err.Error()).
		WithCode(ErrConfig).
		At(path, 0, 0).
		WithSource("config").
		Build()
}

// ConfigWarning creates a diagnostic for a non-fatal configuration problem.
func ConfigWarning(path, message string) Diagnostic {
	return Warning(message).
		WithCode(WarnConfigUnknownKey).
		At(path, 0, 0).
		WithSource("config").
		Build()
}
