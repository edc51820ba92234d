package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	KindInvalid Kind = iota
	// KindIdentifier is a bare or delimited ("x", `x`, [x]) name.
	KindIdentifier
	// KindKeyword is a keyword; its Text is upper-cased.
	KindKeyword
	KindNumber
	// KindString is a single-quoted literal.
	KindString
	// KindBlob is an X'..' literal.
	KindBlob
	KindSymbol
	// KindParam is a bind parameter: ?, ?NNN, :name, @name, $name or $NNN.
	KindParam
	KindEOF
)

var kindNames = [...]string{
	KindInvalid:    "Invalid",
	KindIdentifier: "Identifier",
	KindKeyword:    "Keyword",
	KindNumber:     "Number",
	KindString:     "String",
	KindBlob:       "Blob",
	KindSymbol:     "Symbol",
	KindParam:      "Param",
	KindEOF:        "EOF",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexeme. Line and Column are 1-based; Offset and Width are
// byte positions in the source.
type Token struct {
	Kind   Kind
	Text   string
	File   string
	Line   int
	Column int
	Offset int
	Width  int
}

// Quoted reports whether the token is a delimited identifier.
func (t Token) Quoted() bool {
	return t.Kind == KindIdentifier && t.Text != "" && strings.ContainsRune("\"[`", rune(t.Text[0]))
}

// endColumn is the column just past the token.
func (t Token) endColumn() int {
	return t.Column + utf8.RuneCountInString(t.Text)
}

// Span is a source range. The end position is exclusive.
type Span struct {
	File        string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	StartOffset int
	EndOffset   int
}

// NewSpan returns the span of tok.
func NewSpan(tok Token) Span {
	return Span{
		File:        tok.File,
		StartLine:   tok.Line,
		StartColumn: tok.Column,
		EndLine:     tok.Line,
		EndColumn:   tok.endColumn(),
		StartOffset: tok.Offset,
		EndOffset:   tok.Offset + tok.Width,
	}
}

// SpanBetween returns the span from the start of start to the end of end.
// An end token before start collapses the span to start's position.
func SpanBetween(start, end Token) Span {
	s := NewSpan(start)
	if end.Line < start.Line || end.Line == start.Line && end.endColumn() < start.Column {
		s.EndLine, s.EndColumn, s.EndOffset = s.StartLine, s.StartColumn, s.StartOffset
		return s
	}
	if end.File != "" {
		s.File = end.File
	}
	s.EndLine, s.EndColumn, s.EndOffset = end.Line, end.endColumn(), end.Offset+end.Width
	return s
}

// Contains reports whether line:column falls inside the span.
func (s Span) Contains(line, column int) bool {
	afterStart := line > s.StartLine || line == s.StartLine && column >= s.StartColumn
	beforeEnd := line < s.EndLine || line == s.EndLine && column < s.EndColumn
	return afterStart && beforeEnd
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.StartLine, s.StartColumn)
}

// Error is a lexical error at a source position.
type Error struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

// keyword classes: reserved keywords end a clause and can never be read as
// a name or an implicit alias; the others (KEY, ACTION, ...) can.
const (
	nonReserved = iota + 1
	reserved
)

var keywords = map[string]int{}

func init() {
	for _, kw := range strings.Fields(`
		ABORT ACTION ADD AFTER ALWAYS ASC AUTOINCREMENT BEFORE BEGIN CASCADE
		COLUMN CONFLICT CURRENT_DATE CURRENT_TIME CURRENT_TIMESTAMP DEFERRABLE
		DEFERRED DESC DO EACH FAIL FIRST FOR GENERATED IF IGNORE IMMEDIATE
		IMPORT INITIALLY INSTEAD KEY LAST MATERIALIZED NO NOTHING NULLS OF
		PARTITION RAISE RECURSIVE RENAME REPLACE RESTRICT ROLLBACK ROW ROWID
		STORED STRICT TEMP TEMPORARY TRIGGER VIEW VIRTUAL WITHOUT`) {
		keywords[kw] = nonReserved
	}
	for _, kw := range strings.Fields(`
		ALL ALTER AND AS BETWEEN BY CASE CAST CHECK COLLATE CONSTRAINT CREATE
		CROSS DEFAULT DELETE DISTINCT DROP ELSE END ESCAPE EXCEPT EXISTS
		FILTER FOREIGN FROM FULL GLOB GROUP HAVING IN INDEX INDEXED INNER
		INSERT INTERSECT INTO IS ISNULL JOIN LEFT LIKE LIMIT MATCH NATURAL NOT
		NOTNULL NULL OFFSET ON OR ORDER OUTER OVER PRIMARY REFERENCES REGEXP
		RETURNING RIGHT SELECT SET TABLE THEN TO UNION UNIQUE UPDATE USING
		VALUES WHEN WHERE WINDOW WITH`) {
		keywords[kw] = reserved
	}
}

// IsKeyword reports whether s is a keyword, in any case.
func IsKeyword(s string) bool {
	return keywords[strings.ToUpper(s)] != 0
}

// IsReserved reports whether s is a keyword that cannot stand in for an
// identifier.
func IsReserved(s string) bool {
	return keywords[strings.ToUpper(s)] == reserved
}

// NormalizeIdentifier strips the delimiters of a quoted identifier and
// unescapes doubled quotes. Other text is returned unchanged.
func NormalizeIdentifier(text string) string {
	if len(text) < 2 {
		return text
	}
	open, last := text[0], text[len(text)-1]
	inner := text[1 : len(text)-1]
	switch {
	case open == '"' && last == '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case open == '`' && last == '`':
		return strings.ReplaceAll(inner, "``", "`")
	case open == '[' && last == ']':
		return inner
	}
	return text
}
