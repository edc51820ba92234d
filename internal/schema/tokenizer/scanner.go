// Package tokenizer scans .sq source into tokens for the parser.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const eof = -1

// operators lists the multi-character symbols, longest first.
var operators = []string{"->>", "->", "||", "<>", "<=", "<<", ">=", ">>", "!=", "=="}

// position is a cursor into the source. Columns count runes.
type position struct {
	off, line, col int
}

type scanner struct {
	path string
	src  string
	pos  position
	toks []Token
}

// Scan tokenizes src. The result always ends with a KindEOF token. The
// first lexical error stops the scan and is returned as an *Error.
func Scan(path string, src []byte) ([]Token, error) {
	if !utf8.Valid(src) {
		return nil, &Error{Path: path, Line: 1, Column: 1, Message: "input is not valid UTF-8"}
	}
	s := &scanner{
		path: path,
		src:  string(src),
		pos:  position{line: 1, col: 1},
		toks: make([]Token, 0, len(src)/4+1),
	}
	for {
		if err := s.skipTrivia(); err != nil {
			return nil, err
		}
		if s.pos.off >= len(s.src) {
			break
		}
		start := s.pos
		kind, text, err := s.lex()
		if err != nil {
			return nil, err
		}
		if text == "" {
			text = s.src[start.off:s.pos.off]
		}
		s.toks = append(s.toks, Token{
			Kind:   kind,
			Text:   text,
			File:   s.path,
			Line:   start.line,
			Column: start.col,
			Offset: start.off,
			Width:  s.pos.off - start.off,
		})
	}
	s.toks = append(s.toks, Token{Kind: KindEOF, File: s.path, Line: s.pos.line, Column: s.pos.col, Offset: s.pos.off})
	return s.toks, nil
}

// skipTrivia consumes whitespace and comments.
func (s *scanner) skipTrivia() error {
	for {
		switch r := s.at(0); {
		case r == eof:
			return nil
		case unicode.IsSpace(r):
			s.next()
		case r == '-' && s.at(1) == '-':
			for r := s.at(0); r != eof && r != '\n' && r != '\r'; r = s.at(0) {
				s.next()
			}
		case r == '/' && s.at(1) == '*':
			start := s.pos
			s.next()
			s.next()
			for !s.hasPrefix("*/") {
				if s.next() == eof {
					return s.fail(start, "unterminated block comment")
				}
			}
			s.next()
			s.next()
		default:
			return nil
		}
	}
}

// lex consumes one token. An empty text means the source slice.
func (s *scanner) lex() (Kind, string, error) {
	start := s.pos
	r, r1 := s.at(0), s.at(1)
	switch {
	case r == '\'':
		s.next()
		return KindString, "", s.closeQuote(start, '\'', true, "unterminated string literal")
	case (r == 'x' || r == 'X') && r1 == '\'':
		return KindBlob, "", s.blob(start)
	case r == '"' || r == '`':
		s.next()
		return KindIdentifier, "", s.closeQuote(start, r, true, "unterminated quoted identifier")
	case r == '[':
		s.next()
		return KindIdentifier, "", s.closeQuote(start, ']', false, "unterminated quoted identifier")
	case r == '?':
		s.next()
		s.skipWhile(isDigit)
		return KindParam, "", nil
	case (r == ':' || r == '@' || r == '$') && isIdentifierStart(r1):
		s.next()
		s.skipWhile(isIdentifierPart)
		return KindParam, "", nil
	case r == '$' && isDigit(r1):
		s.next()
		s.skipWhile(isDigit)
		return KindParam, "", nil
	case isIdentifierStart(r):
		s.skipWhile(isIdentifierPart)
		if upper := strings.ToUpper(s.src[start.off:s.pos.off]); IsKeyword(upper) {
			return KindKeyword, upper, nil
		}
		return KindIdentifier, "", nil
	case isDigit(r) || r == '.' && isDigit(r1):
		s.number()
		return KindNumber, "", nil
	case isSymbolRune(r):
		for _, op := range operators {
			if s.hasPrefix(op) {
				s.pos.off += len(op)
				s.pos.col += len(op)
				return KindSymbol, "", nil
			}
		}
		s.next()
		return KindSymbol, "", nil
	}
	return KindInvalid, "", s.fail(start, "unexpected character %q", r)
}

// closeQuote consumes up to and including the closing quote. With doubled
// set, two quotes in a row stand for one.
func (s *scanner) closeQuote(start position, quote rune, doubled bool, msg string) error {
	for {
		switch s.next() {
		case eof:
			return s.fail(start, "%s", msg)
		case quote:
			if doubled && s.at(0) == quote {
				s.next()
				continue
			}
			return nil
		}
	}
}

func (s *scanner) blob(start position) error {
	s.next()
	s.next()
	if err := s.closeQuote(start, '\'', false, "unterminated blob literal"); err != nil {
		return err
	}
	payload := s.src[start.off+2 : s.pos.off-1]
	if len(payload)%2 != 0 {
		return s.fail(start, "blob literal must contain even number of hex digits")
	}
	if strings.IndexFunc(payload, func(r rune) bool { return !isHexDigit(r) }) >= 0 {
		return s.fail(start, "blob literal contains non-hex digit")
	}
	return nil
}

func (s *scanner) number() {
	if s.at(0) == '0' && (s.at(1) == 'x' || s.at(1) == 'X') {
		s.next()
		s.next()
		s.skipWhile(isHexDigit)
		return
	}
	s.skipWhile(isDigit)
	if s.at(0) == '.' {
		s.next()
		s.skipWhile(isDigit)
	}
	if e := s.at(0); e == 'e' || e == 'E' {
		s.next()
		if sign := s.at(0); sign == '+' || sign == '-' {
			s.next()
		}
		s.skipWhile(isDigit)
	}
}

// at returns the rune n runes ahead of the cursor, or eof.
func (s *scanner) at(n int) rune {
	off := s.pos.off
	for ; n > 0 && off < len(s.src); n-- {
		_, size := utf8.DecodeRuneInString(s.src[off:])
		off += size
	}
	if off >= len(s.src) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.src[off:])
	return r
}

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.pos.off:], p)
}

// next consumes one rune. A CRLF pair is consumed as a single '\n'.
func (s *scanner) next() rune {
	if s.pos.off >= len(s.src) {
		return eof
	}
	r, size := utf8.DecodeRuneInString(s.src[s.pos.off:])
	s.pos.off += size
	switch r {
	case '\r':
		if s.pos.off < len(s.src) && s.src[s.pos.off] == '\n' {
			s.pos.off++
		}
		r = '\n'
		fallthrough
	case '\n':
		s.pos.line++
		s.pos.col = 1
	default:
		s.pos.col++
	}
	return r
}

func (s *scanner) skipWhile(pred func(rune) bool) {
	for pred(s.at(0)) {
		s.next()
	}
}

func (s *scanner) fail(at position, format string, args ...any) error {
	return &Error{Path: s.path, Line: at.line, Column: at.col, Message: fmt.Sprintf(format, args...)}
}

func isIdentifierStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentifierPart(r rune) bool {
	return isIdentifierStart(r) || r == '$' || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F'
}

func isSymbolRune(r rune) bool {
	return r >= 0 && strings.ContainsRune("(),;.*=+-/%<>!:|&~{}", r)
}
