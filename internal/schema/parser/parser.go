// Package parser turns schema and query source into a syntax tree.
//
// The parser is a hand-written recursive descent parser over the token
// stream produced by the tokenizer package. It understands the SQLite
// dialect used by .sq files: DDL (tables, virtual tables, views, indexes,
// triggers, ALTER and DROP), labeled query statements, host-language imports
// and `AS Type` column annotations. Parsing stops at the first error, which
// is reported as a *ParseError carrying the offending position.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/syntax"
)

// ParseError describes the first syntax error found in a file.
type ParseError struct {
	Path     string
	Line     int
	Column   int
	Expected string
	Found    string
	// Message replaces the expected/found wording for lexical errors.
	Message string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
	}
	if e.Path == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, msg)
}

// Parser holds the state of a single parse.
type Parser struct {
	path   string
	src    []byte
	tokens []tokenizer.Token
	pos    int
	idents []*syntax.Ident
	err    *ParseError
}

// Parse parses a whole source file.
func Parse(path string, src []byte) (*syntax.File, error) {
	tokens, err := tokenizer.Scan(path, src)
	if err != nil {
		var scanErr *tokenizer.Error
		if errors.As(err, &scanErr) {
			return nil, &ParseError{Path: path, Line: scanErr.Line, Column: scanErr.Column, Message: scanErr.Message}
		}
		return nil, err
	}
	p := &Parser{path: path, src: src, tokens: tokens}
	file := &syntax.File{Path: path}
	for !p.isEOF() {
		if p.acceptSymbol(";") {
			continue
		}
		stmt := p.parseStatement()
		if p.err == nil && !p.isEOF() {
			p.expectSymbol(";")
		}
		if p.err != nil {
			return nil, p.err
		}
		file.Statements = append(file.Statements, stmt)
	}
	file.Idents = p.idents
	return file, nil
}

// --- statements ---

func (p *Parser) parseStatement() syntax.Statement {
	tok := p.current()
	if isName(tok) && p.peekSymbol(1, ":") {
		label := p.newIdent(p.advance())
		p.advance() // ':'
		stmt := p.parseQueryStatement()
		return &syntax.Labeled{Label: label, Stmt: stmt, Span: p.spanFrom(tok)}
	}
	switch {
	case p.matchKeyword("CREATE"):
		return p.parseCreate()
	case p.matchKeyword("ALTER"):
		return p.parseAlter()
	case p.matchKeyword("DROP"):
		return p.parseDrop()
	case p.matchKeyword("IMPORT"):
		return p.parseImport()
	}
	if p.startsQuery() {
		return p.parseQueryStatement()
	}
	p.fail("statement")
	return nil
}

func (p *Parser) startsQuery() bool {
	tok := p.current()
	if tok.Kind != tokenizer.KindKeyword {
		return false
	}
	switch tok.Text {
	case "SELECT", "VALUES", "WITH", "INSERT", "REPLACE", "UPDATE", "DELETE":
		return true
	}
	return false
}

func (p *Parser) startsSelect() bool {
	return p.matchKeyword("SELECT") || p.matchKeyword("VALUES") || p.matchKeyword("WITH")
}

func (p *Parser) parseQueryStatement() syntax.Statement {
	start := p.current()
	var with *syntax.With
	if p.matchKeyword("WITH") {
		with = p.parseWith()
	}
	switch {
	case p.matchKeyword("SELECT"), p.matchKeyword("VALUES"):
		return p.parseSelectBody(with, start)
	case p.matchKeyword("INSERT"), p.matchKeyword("REPLACE"):
		return p.parseInsert(with, start)
	case p.matchKeyword("UPDATE"):
		return p.parseUpdate(with, start)
	case p.matchKeyword("DELETE"):
		return p.parseDelete(with, start)
	}
	p.fail("SELECT, INSERT, UPDATE or DELETE")
	return nil
}

func (p *Parser) parseImport() syntax.Statement {
	start := p.advance() // IMPORT
	var b strings.Builder
	for !p.isEOF() && !p.matchSymbol(";") {
		b.WriteString(p.rawText(p.advance()))
	}
	if b.Len() == 0 {
		p.fail("import path")
	}
	return &syntax.Import{Path: b.String(), Span: p.spanFrom(start)}
}

func (p *Parser) parseCreate() syntax.Statement {
	start := p.advance() // CREATE
	temp := p.acceptKeyword("TEMP") || p.acceptKeyword("TEMPORARY")
	switch {
	case p.acceptKeyword("TABLE"):
		return p.parseCreateTable(start, temp)
	case p.acceptKeyword("VIRTUAL"):
		p.expectKeyword("TABLE")
		return p.parseCreateVirtualTable(start)
	case p.acceptKeyword("VIEW"):
		return p.parseCreateView(start, temp)
	case p.acceptKeyword("UNIQUE"):
		p.expectKeyword("INDEX")
		return p.parseCreateIndex(start, true)
	case p.acceptKeyword("INDEX"):
		return p.parseCreateIndex(start, false)
	case p.acceptKeyword("TRIGGER"):
		return p.parseCreateTrigger(start, temp)
	}
	p.fail("TABLE, VIEW, INDEX or TRIGGER")
	return nil
}

func (p *Parser) parseIfNotExists() bool {
	if !p.acceptKeyword("IF") {
		return false
	}
	p.expectKeyword("NOT")
	p.expectKeyword("EXISTS")
	return true
}

func (p *Parser) parseCreateTable(start tokenizer.Token, temp bool) *syntax.CreateTable {
	ct := &syntax.CreateTable{Temp: temp, IfNotExists: p.parseIfNotExists()}
	_, ct.Name = p.parseQualifiedName("table name")
	p.expectSymbol("(")
	for p.err == nil {
		if p.startsTableConstraint() {
			ct.Constraints = append(ct.Constraints, p.parseTableConstraint())
		} else {
			ct.Columns = append(ct.Columns, p.parseColumnDef())
		}
		if !p.acceptSymbol(",") {
			break
		}
	}
	p.expectSymbol(")")
	for p.err == nil {
		switch {
		case p.acceptKeyword("WITHOUT"):
			p.expectKeyword("ROWID")
			ct.WithoutRowID = true
		case p.acceptKeyword("STRICT"):
			ct.Strict = true
		default:
			ct.Span = p.spanFrom(start)
			return ct
		}
		if !p.acceptSymbol(",") {
			break
		}
	}
	ct.Span = p.spanFrom(start)
	return ct
}

// parseCreateVirtualTable keeps plain identifier arguments of the module as
// columns; option arguments such as tokenize='porter' are skipped.
func (p *Parser) parseCreateVirtualTable(start tokenizer.Token) *syntax.CreateTable {
	ct := &syntax.CreateTable{IfNotExists: p.parseIfNotExists()}
	_, ct.Name = p.parseQualifiedName("table name")
	p.expectKeyword("USING")
	ct.Module = p.parseName("module name")
	if p.acceptSymbol("(") {
		for p.err == nil && !p.matchSymbol(")") {
			argStart := p.current()
			if isName(argStart) && !p.peekSymbol(1, "=") {
				col := &syntax.ColumnDef{Name: p.newIdent(p.advance())}
				p.skipArgument()
				col.Span = p.spanFrom(argStart)
				ct.Columns = append(ct.Columns, col)
			} else {
				p.skipArgument()
			}
			if !p.acceptSymbol(",") {
				break
			}
		}
		p.expectSymbol(")")
	}
	ct.Span = p.spanFrom(start)
	return ct
}

// skipArgument consumes tokens up to the next top-level ',' or ')'.
func (p *Parser) skipArgument() {
	depth := 0
	for !p.isEOF() {
		tok := p.current()
		if tok.Kind == tokenizer.KindSymbol {
			switch tok.Text {
			case "(":
				depth++
			case ")":
				if depth == 0 {
					return
				}
				depth--
			case ",":
				if depth == 0 {
					return
				}
			}
		}
		p.advance()
	}
}

func (p *Parser) startsTableConstraint() bool {
	for _, kw := range []string{"CONSTRAINT", "PRIMARY", "UNIQUE", "CHECK", "FOREIGN"} {
		if p.matchKeyword(kw) {
			return true
		}
	}
	return false
}

func (p *Parser) parseColumnDef() *syntax.ColumnDef {
	start := p.current()
	col := &syntax.ColumnDef{Name: p.parseIdent("column name")}
	col.Type = p.parseTypeName()
	for p.err == nil && p.parseColumnConstraint(col) {
	}
	col.Span = p.spanFrom(start)
	return col
}

// parseColumnConstraint consumes one column constraint and reports whether
// one was present.
func (p *Parser) parseColumnConstraint(col *syntax.ColumnDef) bool {
	if p.acceptKeyword("CONSTRAINT") {
		p.parseName("constraint name")
	}
	switch {
	case p.acceptKeyword("PRIMARY"):
		p.expectKeyword("KEY")
		col.PrimaryKey = true
		_ = p.acceptKeyword("ASC") || p.acceptKeyword("DESC")
		p.parseConflictClause()
		col.Autoincrement = p.acceptKeyword("AUTOINCREMENT")
	case p.acceptKeyword("NOT"):
		p.expectKeyword("NULL")
		col.NotNull = true
		p.parseConflictClause()
	case p.acceptKeyword("NULL"):
		p.parseConflictClause()
	case p.acceptKeyword("UNIQUE"):
		col.Unique = true
		p.parseConflictClause()
	case p.acceptKeyword("CHECK"):
		p.expectSymbol("(")
		col.Checks = append(col.Checks, p.parseExpr())
		p.expectSymbol(")")
	case p.acceptKeyword("DEFAULT"):
		col.Default = p.parseDefault()
	case p.acceptKeyword("COLLATE"):
		col.Collate = p.parseName("collation name")
	case p.matchKeyword("REFERENCES"):
		col.References = p.parseForeignKey()
	case p.acceptKeyword("GENERATED"):
		p.expectKeyword("ALWAYS")
		p.expectKeyword("AS")
		p.parseGenerated(col)
	case p.matchKeyword("AS"):
		if p.peekSymbol(1, "(") {
			p.advance()
			p.parseGenerated(col)
		} else {
			p.advance()
			col.CustomType = p.parseCustomType()
		}
	default:
		return false
	}
	return true
}

func (p *Parser) parseGenerated(col *syntax.ColumnDef) {
	p.expectSymbol("(")
	col.Checks = append(col.Checks, p.parseExpr())
	p.expectSymbol(")")
	_ = p.acceptKeyword("STORED") || p.acceptKeyword("VIRTUAL")
}

func (p *Parser) parseConflictClause() {
	if !p.matchKeyword("ON") || !p.peekKeyword(1, "CONFLICT") {
		return
	}
	p.advance()
	p.advance()
	p.parseConflictAction()
}

func (p *Parser) parseConflictAction() string {
	for _, kw := range []string{"ROLLBACK", "ABORT", "FAIL", "IGNORE", "REPLACE"} {
		if p.acceptKeyword(kw) {
			return kw
		}
	}
	p.fail("conflict resolution")
	return ""
}

func (p *Parser) parseDefault() syntax.Expr {
	start := p.current()
	if p.acceptSymbol("(") {
		x := p.parseExpr()
		p.expectSymbol(")")
		return &syntax.Paren{List: []syntax.Expr{x}, Span: p.spanFrom(start)}
	}
	if p.matchSymbol("-") || p.matchSymbol("+") {
		op := p.advance()
		x := p.parsePrimary()
		return &syntax.Unary{Op: op.Text, X: x, Span: p.spanFrom(start)}
	}
	if isName(start) && !(start.Kind == tokenizer.KindKeyword && strings.HasPrefix(start.Text, "CURRENT_")) {
		// DEFAULT accepts bare words such as DEFAULT true; they are not references.
		p.advance()
		return &syntax.Literal{Type: syntax.LiteralString, Text: p.rawText(start), Span: p.spanFrom(start)}
	}
	return p.parsePrimary()
}

// parseTypeName reads a SQL type such as `VARCHAR(20)` or `UNSIGNED BIG INT`.
func (p *Parser) parseTypeName() string {
	var words []string
	for p.err == nil {
		tok := p.current()
		if !isName(tok) || (tok.Kind == tokenizer.KindKeyword && columnConstraintStarters[tok.Text]) {
			break
		}
		words = append(words, p.rawText(p.advance()))
	}
	if len(words) == 0 {
		return ""
	}
	typ := strings.Join(words, " ")
	if p.acceptSymbol("(") {
		var args []string
		for p.err == nil {
			arg := ""
			if p.matchSymbol("-") || p.matchSymbol("+") {
				arg = p.advance().Text
			}
			tok := p.current()
			if tok.Kind != tokenizer.KindNumber {
				p.fail("type size")
				break
			}
			args = append(args, arg+p.advance().Text)
			if !p.acceptSymbol(",") {
				break
			}
		}
		p.expectSymbol(")")
		typ += "(" + strings.Join(args, ",") + ")"
	}
	return typ
}

var columnConstraintStarters = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "NOT": true, "NULL": true,
	"UNIQUE": true, "CHECK": true, "DEFAULT": true, "COLLATE": true,
	"REFERENCES": true, "GENERATED": true, "AS": true,
}

// parseCustomType reads the host-language type following `AS` in a column
// definition, for example `AS kotlin.collections.List<String>`.
func (p *Parser) parseCustomType() string {
	var b strings.Builder
	angle, paren := 0, 0
	prevWord := false
	for !p.isEOF() && p.err == nil {
		tok := p.current()
		if angle == 0 && paren == 0 {
			if tok.Kind == tokenizer.KindSymbol && (tok.Text == "," || tok.Text == ")") {
				break
			}
			if tok.Kind == tokenizer.KindKeyword && columnConstraintStarters[tok.Text] && tok.Text != "AS" {
				break
			}
		}
		if tok.Kind == tokenizer.KindSymbol {
			switch tok.Text {
			case "(":
				paren++
			case ")":
				paren--
			}
			angle += strings.Count(tok.Text, "<") - strings.Count(tok.Text, ">")
		}
		word := isWordToken(tok)
		if prevWord && word {
			b.WriteByte(' ')
		}
		prevWord = word
		b.WriteString(p.rawText(p.advance()))
	}
	if b.Len() == 0 {
		p.fail("type")
	}
	return b.String()
}

func isWordToken(tok tokenizer.Token) bool {
	return tok.Kind == tokenizer.KindIdentifier || tok.Kind == tokenizer.KindKeyword || tok.Kind == tokenizer.KindParam
}

func (p *Parser) parseForeignKey() *syntax.ForeignKey {
	start := p.advance() // REFERENCES
	fk := &syntax.ForeignKey{}
	_, fk.Table = p.parseQualifiedName("table name")
	if p.matchSymbol("(") {
		fk.Columns = p.parseIdentList()
	}
	for p.err == nil {
		switch {
		case p.matchKeyword("ON") && (p.peekKeyword(1, "DELETE") || p.peekKeyword(1, "UPDATE")):
			p.advance()
			event := p.advance().Text
			action := p.parseReferentialAction()
			if event == "DELETE" {
				fk.OnDelete = action
			} else {
				fk.OnUpdate = action
			}
		case p.acceptKeyword("MATCH"):
			p.parseName("match type")
		case p.matchKeyword("NOT") && p.peekKeyword(1, "DEFERRABLE"):
			p.advance()
			p.advance()
			p.parseDeferral()
		case p.acceptKeyword("DEFERRABLE"):
			p.parseDeferral()
		default:
			fk.Span = p.spanFrom(start)
			return fk
		}
	}
	fk.Span = p.spanFrom(start)
	return fk
}

func (p *Parser) parseReferentialAction() string {
	switch {
	case p.acceptKeyword("SET"):
		if p.acceptKeyword("NULL") {
			return "SET NULL"
		}
		p.expectKeyword("DEFAULT")
		return "SET DEFAULT"
	case p.acceptKeyword("CASCADE"):
		return "CASCADE"
	case p.acceptKeyword("RESTRICT"):
		return "RESTRICT"
	case p.acceptKeyword("NO"):
		p.expectKeyword("ACTION")
		return "NO ACTION"
	}
	p.fail("referential action")
	return ""
}

func (p *Parser) parseDeferral() {
	if p.acceptKeyword("INITIALLY") {
		if !p.acceptKeyword("DEFERRED") {
			p.expectKeyword("IMMEDIATE")
		}
	}
}

func (p *Parser) parseTableConstraint() *syntax.TableConstraint {
	start := p.current()
	tc := &syntax.TableConstraint{}
	if p.acceptKeyword("CONSTRAINT") {
		tc.Name = p.parseName("constraint name")
	}
	switch {
	case p.acceptKeyword("PRIMARY"):
		p.expectKeyword("KEY")
		tc.Type = syntax.ConstraintPrimaryKey
		tc.Columns = p.parseIndexedColumns()
		p.parseConflictClause()
	case p.acceptKeyword("UNIQUE"):
		tc.Type = syntax.ConstraintUnique
		tc.Columns = p.parseIndexedColumns()
		p.parseConflictClause()
	case p.acceptKeyword("CHECK"):
		tc.Type = syntax.ConstraintCheck
		p.expectSymbol("(")
		tc.Check = p.parseExpr()
		p.expectSymbol(")")
	case p.acceptKeyword("FOREIGN"):
		p.expectKeyword("KEY")
		tc.Type = syntax.ConstraintForeignKey
		tc.Columns = p.parseIdentList()
		if p.matchKeyword("REFERENCES") {
			tc.References = p.parseForeignKey()
		} else {
			p.fail("REFERENCES")
		}
	default:
		p.fail("PRIMARY KEY, UNIQUE, CHECK or FOREIGN KEY")
	}
	tc.Span = p.spanFrom(start)
	return tc
}

// parseIndexedColumns reads `(col [COLLATE x] [ASC|DESC], ...)`.
func (p *Parser) parseIndexedColumns() []*syntax.Ident {
	p.expectSymbol("(")
	var cols []*syntax.Ident
	for p.err == nil {
		cols = append(cols, p.parseIdent("column name"))
		if p.acceptKeyword("COLLATE") {
			p.parseName("collation name")
		}
		_ = p.acceptKeyword("ASC") || p.acceptKeyword("DESC")
		if !p.acceptSymbol(",") {
			break
		}
	}
	p.expectSymbol(")")
	return cols
}

func (p *Parser) parseCreateView(start tokenizer.Token, temp bool) *syntax.CreateView {
	cv := &syntax.CreateView{Temp: temp, IfNotExists: p.parseIfNotExists()}
	_, cv.Name = p.parseQualifiedName("view name")
	if p.matchSymbol("(") {
		cv.Columns = p.parseIdentList()
	}
	p.expectKeyword("AS")
	cv.Select = p.parseSelect()
	cv.Span = p.spanFrom(start)
	return cv
}

func (p *Parser) parseCreateIndex(start tokenizer.Token, unique bool) *syntax.CreateIndex {
	ci := &syntax.CreateIndex{Unique: unique, IfNotExists: p.parseIfNotExists()}
	ci.Name = p.parsePlainQualifiedName("index name")
	p.expectKeyword("ON")
	_, ci.Table = p.parseQualifiedName("table name")
	p.expectSymbol("(")
	ci.Columns = p.parseOrderTerms()
	p.expectSymbol(")")
	if p.acceptKeyword("WHERE") {
		ci.Where = p.parseExpr()
	}
	ci.Span = p.spanFrom(start)
	return ci
}

func (p *Parser) parseCreateTrigger(start tokenizer.Token, temp bool) *syntax.CreateTrigger {
	tr := &syntax.CreateTrigger{Temp: temp, IfNotExists: p.parseIfNotExists()}
	tr.Name = p.parsePlainQualifiedName("trigger name")
	switch {
	case p.acceptKeyword("BEFORE"):
		tr.Timing = "BEFORE"
	case p.acceptKeyword("AFTER"):
		tr.Timing = "AFTER"
	case p.acceptKeyword("INSTEAD"):
		p.expectKeyword("OF")
		tr.Timing = "INSTEAD OF"
	}
	switch {
	case p.acceptKeyword("DELETE"):
		tr.Event = "DELETE"
	case p.acceptKeyword("INSERT"):
		tr.Event = "INSERT"
	case p.acceptKeyword("UPDATE"):
		tr.Event = "UPDATE"
		if p.acceptKeyword("OF") {
			for p.err == nil {
				tr.Columns = append(tr.Columns, p.parseIdent("column name"))
				if !p.acceptSymbol(",") {
					break
				}
			}
		}
	default:
		p.fail("DELETE, INSERT or UPDATE")
	}
	p.expectKeyword("ON")
	_, tr.Table = p.parseQualifiedName("table name")
	if p.acceptKeyword("FOR") {
		p.expectKeyword("EACH")
		p.expectKeyword("ROW")
		tr.ForEachRow = true
	}
	if p.acceptKeyword("WHEN") {
		tr.When = p.parseExpr()
	}
	p.expectKeyword("BEGIN")
	for p.err == nil && !p.matchKeyword("END") {
		tr.Body = append(tr.Body, p.parseQueryStatement())
		p.expectSymbol(";")
	}
	p.expectKeyword("END")
	tr.Span = p.spanFrom(start)
	return tr
}

func (p *Parser) parseAlter() syntax.Statement {
	start := p.advance() // ALTER
	p.expectKeyword("TABLE")
	at := &syntax.AlterTable{}
	_, at.Table = p.parseQualifiedName("table name")
	switch {
	case p.acceptKeyword("RENAME"):
		if p.acceptKeyword("TO") {
			at.RenameTo = p.parseName("table name")
			break
		}
		p.acceptKeyword("COLUMN")
		at.RenameColumn = p.parseIdent("column name")
		p.expectKeyword("TO")
		at.NewColumn = p.parseName("column name")
	case p.acceptKeyword("ADD"):
		p.acceptKeyword("COLUMN")
		at.AddColumn = p.parseColumnDef()
	case p.acceptKeyword("DROP"):
		p.acceptKeyword("COLUMN")
		at.DropColumn = p.parseIdent("column name")
	default:
		p.fail("RENAME, ADD or DROP")
	}
	at.Span = p.spanFrom(start)
	return at
}

func (p *Parser) parseDrop() syntax.Statement {
	start := p.advance() // DROP
	d := &syntax.Drop{}
	switch {
	case p.acceptKeyword("TABLE"):
		d.Object = syntax.ObjectTable
	case p.acceptKeyword("VIEW"):
		d.Object = syntax.ObjectView
	case p.acceptKeyword("INDEX"):
		d.Object = syntax.ObjectIndex
	case p.acceptKeyword("TRIGGER"):
		d.Object = syntax.ObjectTrigger
	default:
		p.fail("TABLE, VIEW, INDEX or TRIGGER")
		return nil
	}
	if p.acceptKeyword("IF") {
		p.expectKeyword("EXISTS")
		d.IfExists = true
	}
	if d.Object == syntax.ObjectTable || d.Object == syntax.ObjectView {
		_, d.Name = p.parseQualifiedName(strings.ToLower(string(d.Object)) + " name")
	} else {
		d.OtherName = p.parsePlainQualifiedName(strings.ToLower(string(d.Object)) + " name")
	}
	d.Span = p.spanFrom(start)
	return d
}

// --- queries ---

func (p *Parser) parseWith() *syntax.With {
	start := p.advance() // WITH
	w := &syntax.With{Recursive: p.acceptKeyword("RECURSIVE")}
	for p.err == nil {
		cteStart := p.current()
		cte := &syntax.CTE{Name: p.parseIdent("common table name")}
		if p.matchSymbol("(") {
			cte.Columns = p.parseIdentList()
		}
		p.expectKeyword("AS")
		if p.acceptKeyword("NOT") {
			p.expectKeyword("MATERIALIZED")
		} else {
			p.acceptKeyword("MATERIALIZED")
		}
		p.expectSymbol("(")
		cte.Select = p.parseSelect()
		p.expectSymbol(")")
		cte.Span = p.spanFrom(cteStart)
		w.CTEs = append(w.CTEs, cte)
		if !p.acceptSymbol(",") {
			break
		}
	}
	w.Span = p.spanFrom(start)
	return w
}

func (p *Parser) parseSelect() *syntax.Select {
	start := p.current()
	var with *syntax.With
	if p.matchKeyword("WITH") {
		with = p.parseWith()
	}
	return p.parseSelectBody(with, start)
}

func (p *Parser) parseSelectBody(with *syntax.With, start tokenizer.Token) *syntax.Select {
	sel := &syntax.Select{With: with}
	sel.Cores = append(sel.Cores, p.parseSelectCore())
	for p.err == nil {
		op := ""
		if p.acceptKeyword("UNION") {
			op = "UNION"
			if p.acceptKeyword("ALL") {
				op = "UNION ALL"
			}
		} else if p.acceptKeyword("INTERSECT") {
			op = "INTERSECT"
		} else if p.acceptKeyword("EXCEPT") {
			op = "EXCEPT"
		}
		if op == "" {
			break
		}
		sel.Ops = append(sel.Ops, op)
		sel.Cores = append(sel.Cores, p.parseSelectCore())
	}
	if p.acceptKeyword("ORDER") {
		p.expectKeyword("BY")
		sel.OrderBy = p.parseOrderTerms()
	}
	if p.acceptKeyword("LIMIT") {
		sel.Limit = p.parseExpr()
		if p.acceptKeyword("OFFSET") {
			sel.Offset = p.parseExpr()
		} else if p.acceptSymbol(",") {
			sel.Offset = sel.Limit
			sel.Limit = p.parseExpr()
		}
	}
	sel.Span = p.spanFrom(start)
	return sel
}

func (p *Parser) parseSelectCore() *syntax.SelectCore {
	start := p.current()
	core := &syntax.SelectCore{}
	if p.acceptKeyword("VALUES") {
		core.Values = p.parseValueRows()
		core.Span = p.spanFrom(start)
		return core
	}
	p.expectKeyword("SELECT")
	if p.acceptKeyword("DISTINCT") {
		core.Distinct = true
	} else {
		p.acceptKeyword("ALL")
	}
	core.Columns = p.parseResultColumns()
	if p.acceptKeyword("FROM") {
		core.From = p.parseFrom()
	}
	if p.acceptKeyword("WHERE") {
		core.Where = p.parseExpr()
	}
	if p.acceptKeyword("GROUP") {
		p.expectKeyword("BY")
		core.GroupBy = p.parseExprList()
	}
	if p.acceptKeyword("HAVING") {
		core.Having = p.parseExpr()
	}
	if p.acceptKeyword("WINDOW") {
		for p.err == nil {
			name := p.parseName("window name")
			p.expectKeyword("AS")
			w := p.parseWindowSpec()
			w.Name = name
			core.Windows = append(core.Windows, w)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	core.Span = p.spanFrom(start)
	return core
}

func (p *Parser) parseValueRows() [][]syntax.Expr {
	var rows [][]syntax.Expr
	for p.err == nil {
		p.expectSymbol("(")
		rows = append(rows, p.parseExprList())
		p.expectSymbol(")")
		if !p.acceptSymbol(",") {
			break
		}
	}
	return rows
}

func (p *Parser) parseResultColumns() []*syntax.ResultColumn {
	var cols []*syntax.ResultColumn
	for p.err == nil {
		cols = append(cols, p.parseResultColumn())
		if !p.acceptSymbol(",") {
			break
		}
	}
	return cols
}

func (p *Parser) parseResultColumn() *syntax.ResultColumn {
	start := p.current()
	if p.acceptSymbol("*") {
		return &syntax.ResultColumn{Star: true, Span: p.spanFrom(start)}
	}
	if isName(start) && p.peekSymbol(1, ".") && p.peekSymbol(2, "*") {
		table := p.newIdent(p.advance())
		p.advance()
		p.advance()
		return &syntax.ResultColumn{Star: true, Table: table, Span: p.spanFrom(start)}
	}
	rc := &syntax.ResultColumn{Expr: p.parseExpr()}
	rc.Alias = p.parseAlias()
	rc.Span = p.spanFrom(start)
	return rc
}

// parseAlias reads `AS name` or an implicit alias. Reserved words never
// start an implicit alias.
func (p *Parser) parseAlias() *syntax.Ident {
	if p.acceptKeyword("AS") {
		tok := p.current()
		if tok.Kind == tokenizer.KindString {
			p.advance()
			return p.newIdentText(tok, strings.ReplaceAll(tok.Text[1:len(tok.Text)-1], "''", "'"))
		}
		return p.parseIdent("alias")
	}
	if isName(p.current()) {
		return p.newIdent(p.advance())
	}
	return nil
}

func (p *Parser) parseFrom() syntax.TableExpr {
	start := p.current()
	left := p.parseTableOrSubquery()
	for p.err == nil {
		join := &syntax.Join{Left: left}
		if p.acceptSymbol(",") {
			join.Type = ","
		} else if !p.parseJoinOperator(join) {
			break
		}
		join.Right = p.parseTableOrSubquery()
		if p.acceptKeyword("ON") {
			join.On = p.parseExpr()
		} else if p.acceptKeyword("USING") {
			join.Using = p.parseIdentList()
		}
		join.Span = p.spanFrom(start)
		left = join
	}
	return left
}

func (p *Parser) parseJoinOperator(join *syntax.Join) bool {
	if p.acceptKeyword("NATURAL") {
		join.Natural = true
	}
	switch {
	case p.acceptKeyword("LEFT"):
		join.Type = "LEFT"
	case p.acceptKeyword("RIGHT"):
		join.Type = "RIGHT"
	case p.acceptKeyword("FULL"):
		join.Type = "FULL"
	case p.acceptKeyword("INNER"):
		join.Type = "INNER"
	case p.acceptKeyword("CROSS"):
		join.Type = "CROSS"
	}
	if join.Type == "LEFT" || join.Type == "RIGHT" || join.Type == "FULL" {
		p.acceptKeyword("OUTER")
	}
	if p.acceptKeyword("JOIN") {
		if join.Type == "" {
			join.Type = "INNER"
		}
		return true
	}
	if join.Natural || join.Type != "" {
		p.fail("JOIN")
	}
	return false
}

func (p *Parser) parseTableOrSubquery() syntax.TableExpr {
	start := p.current()
	if p.acceptSymbol("(") {
		if p.startsSelect() {
			src := &syntax.SubquerySource{Select: p.parseSelect()}
			p.expectSymbol(")")
			src.Alias = p.parseAlias()
			src.Span = p.spanFrom(start)
			return src
		}
		inner := p.parseFrom()
		p.expectSymbol(")")
		return inner
	}
	if isName(start) && p.peekSymbol(1, "(") {
		fn := &syntax.FunctionSource{Name: p.rawText(p.advance())}
		p.advance() // '('
		if !p.matchSymbol(")") {
			fn.Args = p.parseExprList()
		}
		p.expectSymbol(")")
		fn.Alias = p.parseAlias()
		fn.Span = p.spanFrom(start)
		return fn
	}
	tn := &syntax.TableName{}
	tn.Schema, tn.Name = p.parseQualifiedName("table name")
	tn.Alias = p.parseAlias()
	p.parseIndexedBy()
	tn.Span = p.spanFrom(start)
	return tn
}

func (p *Parser) parseIndexedBy() {
	if p.acceptKeyword("INDEXED") {
		p.expectKeyword("BY")
		p.parseName("index name")
	} else if p.matchKeyword("NOT") && p.peekKeyword(1, "INDEXED") {
		p.advance()
		p.advance()
	}
}

func (p *Parser) parseInsert(with *syntax.With, start tokenizer.Token) *syntax.Insert {
	ins := &syntax.Insert{With: with}
	if p.acceptKeyword("REPLACE") {
		ins.Verb = "REPLACE"
	} else {
		p.expectKeyword("INSERT")
		ins.Verb = "INSERT"
		if p.acceptKeyword("OR") {
			ins.Or = p.parseConflictAction()
		}
	}
	p.expectKeyword("INTO")
	_, ins.Table = p.parseQualifiedName("table name")
	if p.acceptKeyword("AS") {
		ins.Alias = p.parseIdent("alias")
	}
	if p.matchSymbol("(") {
		ins.Columns = p.parseIdentList()
	}
	switch {
	case p.acceptKeyword("VALUES"):
		ins.Values = p.parseValueRows()
	case p.acceptKeyword("DEFAULT"):
		p.expectKeyword("VALUES")
		ins.DefaultValues = true
	case p.startsSelect():
		ins.Select = p.parseSelect()
	default:
		p.fail("VALUES, SELECT or DEFAULT VALUES")
	}
	for p.err == nil && p.matchKeyword("ON") && p.peekKeyword(1, "CONFLICT") {
		ins.Upsert = append(ins.Upsert, p.parseUpsert())
	}
	if p.acceptKeyword("RETURNING") {
		ins.Returning = p.parseResultColumns()
	}
	ins.Span = p.spanFrom(start)
	return ins
}

func (p *Parser) parseUpsert() *syntax.Upsert {
	start := p.advance() // ON
	p.advance()          // CONFLICT
	u := &syntax.Upsert{}
	if p.acceptSymbol("(") {
		u.Target = p.parseOrderTerms()
		p.expectSymbol(")")
		if p.acceptKeyword("WHERE") {
			u.TargetWhere = p.parseExpr()
		}
	}
	p.expectKeyword("DO")
	if p.acceptKeyword("NOTHING") {
		u.DoNothing = true
	} else {
		p.expectKeyword("UPDATE")
		p.expectKeyword("SET")
		u.Set = p.parseAssignments()
		if p.acceptKeyword("WHERE") {
			u.Where = p.parseExpr()
		}
	}
	u.Span = p.spanFrom(start)
	return u
}

func (p *Parser) parseUpdate(with *syntax.With, start tokenizer.Token) *syntax.Update {
	p.advance() // UPDATE
	upd := &syntax.Update{With: with}
	if p.acceptKeyword("OR") {
		upd.Or = p.parseConflictAction()
	}
	_, upd.Table = p.parseQualifiedName("table name")
	if p.acceptKeyword("AS") {
		upd.Alias = p.parseIdent("alias")
	}
	p.parseIndexedBy()
	p.expectKeyword("SET")
	upd.Set = p.parseAssignments()
	if p.acceptKeyword("FROM") {
		upd.From = p.parseFrom()
	}
	if p.acceptKeyword("WHERE") {
		upd.Where = p.parseExpr()
	}
	if p.acceptKeyword("RETURNING") {
		upd.Returning = p.parseResultColumns()
	}
	upd.Span = p.spanFrom(start)
	return upd
}

func (p *Parser) parseAssignments() []*syntax.Assignment {
	var set []*syntax.Assignment
	for p.err == nil {
		a := &syntax.Assignment{}
		if p.matchSymbol("(") {
			a.Columns = p.parseIdentList()
		} else {
			a.Columns = []*syntax.Ident{p.parseIdent("column name")}
		}
		p.expectSymbol("=")
		a.Value = p.parseExpr()
		set = append(set, a)
		if !p.acceptSymbol(",") {
			break
		}
	}
	return set
}

func (p *Parser) parseDelete(with *syntax.With, start tokenizer.Token) *syntax.Delete {
	p.advance() // DELETE
	p.expectKeyword("FROM")
	del := &syntax.Delete{With: with}
	_, del.Table = p.parseQualifiedName("table name")
	if p.acceptKeyword("AS") {
		del.Alias = p.parseIdent("alias")
	}
	p.parseIndexedBy()
	if p.acceptKeyword("WHERE") {
		del.Where = p.parseExpr()
	}
	if p.acceptKeyword("RETURNING") {
		del.Returning = p.parseResultColumns()
	}
	del.Span = p.spanFrom(start)
	return del
}

func (p *Parser) parseOrderTerms() []*syntax.OrderTerm {
	var terms []*syntax.OrderTerm
	for p.err == nil {
		term := &syntax.OrderTerm{Expr: p.parseExpr()}
		if p.acceptKeyword("DESC") {
			term.Desc = true
		} else {
			p.acceptKeyword("ASC")
		}
		if p.acceptKeyword("NULLS") {
			first := p.acceptKeyword("FIRST")
			if !first {
				p.expectKeyword("LAST")
			}
			term.NullsFirst = &first
		}
		terms = append(terms, term)
		if !p.acceptSymbol(",") {
			break
		}
	}
	return terms
}

// --- expressions ---

func (p *Parser) parseExprList() []syntax.Expr {
	var list []syntax.Expr
	for p.err == nil {
		list = append(list, p.parseExpr())
		if !p.acceptSymbol(",") {
			break
		}
	}
	return list
}

func (p *Parser) parseExpr() syntax.Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() syntax.Expr {
	start := p.current()
	left := p.parseAnd()
	for p.err == nil && p.acceptKeyword("OR") {
		right := p.parseAnd()
		left = &syntax.Binary{Op: "OR", Left: left, Right: right, Span: p.spanFrom(start)}
	}
	return left
}

func (p *Parser) parseAnd() syntax.Expr {
	start := p.current()
	left := p.parseNot()
	for p.err == nil && p.acceptKeyword("AND") {
		right := p.parseNot()
		left = &syntax.Binary{Op: "AND", Left: left, Right: right, Span: p.spanFrom(start)}
	}
	return left
}

func (p *Parser) parseNot() syntax.Expr {
	if !p.matchKeyword("NOT") {
		return p.parseEquality()
	}
	start := p.advance()
	x := p.parseNot()
	if ex, ok := x.(*syntax.Exists); ok && !ex.Not {
		ex.Not = true
		ex.Span = p.spanFrom(start)
		return ex
	}
	return &syntax.Unary{Op: "NOT", X: x, Span: p.spanFrom(start)}
}

var negatable = map[string]bool{
	"IN": true, "LIKE": true, "GLOB": true, "MATCH": true, "REGEXP": true, "BETWEEN": true, "NULL": true,
}

func (p *Parser) parseEquality() syntax.Expr {
	start := p.current()
	left := p.parseComparison()
	for p.err == nil {
		not := false
		if p.matchKeyword("NOT") {
			next := p.peekAt(1)
			if next.Kind != tokenizer.KindKeyword || !negatable[next.Text] {
				return left
			}
			p.advance()
			not = true
		}
		tok := p.current()
		switch {
		case !not && tok.Kind == tokenizer.KindSymbol && (tok.Text == "=" || tok.Text == "==" || tok.Text == "!=" || tok.Text == "<>"):
			p.advance()
			right := p.parseComparison()
			left = &syntax.Binary{Op: tok.Text, Left: left, Right: right, Span: p.spanFrom(start)}
		case !not && p.acceptKeyword("IS"):
			op := "IS"
			if p.acceptKeyword("NOT") {
				op = "IS NOT"
			}
			if p.acceptKeyword("DISTINCT") {
				p.expectKeyword("FROM")
				op += " DISTINCT FROM"
			}
			right := p.parseComparison()
			left = &syntax.Binary{Op: op, Left: left, Right: right, Span: p.spanFrom(start)}
		case p.acceptKeyword("IN"):
			left = p.parseInTail(left, not, start)
		case tok.Kind == tokenizer.KindKeyword && (tok.Text == "LIKE" || tok.Text == "GLOB" || tok.Text == "MATCH" || tok.Text == "REGEXP"):
			p.advance()
			like := &syntax.Like{Op: tok.Text, Not: not, X: left, Pattern: p.parseComparison()}
			if p.acceptKeyword("ESCAPE") {
				like.Escape = p.parseComparison()
			}
			like.Span = p.spanFrom(start)
			left = like
		case p.acceptKeyword("BETWEEN"):
			low := p.parseComparison()
			p.expectKeyword("AND")
			high := p.parseComparison()
			left = &syntax.Between{Not: not, X: left, Low: low, High: high, Span: p.spanFrom(start)}
		case !not && p.acceptKeyword("ISNULL"):
			left = &syntax.IsNull{X: left, Span: p.spanFrom(start)}
		case !not && p.acceptKeyword("NOTNULL"), not && p.acceptKeyword("NULL"):
			left = &syntax.IsNull{Not: true, X: left, Span: p.spanFrom(start)}
		default:
			return left
		}
	}
	return left
}

func (p *Parser) parseInTail(x syntax.Expr, not bool, start tokenizer.Token) syntax.Expr {
	in := &syntax.In{Not: not, X: x}
	p.expectSymbol("(")
	switch {
	case p.startsSelect():
		in.Select = p.parseSelect()
	case p.matchSymbol(")"):
	default:
		in.List = p.parseExprList()
	}
	p.expectSymbol(")")
	in.Span = p.spanFrom(start)
	return in
}

func (p *Parser) parseBinaryLevel(ops []string, next func() syntax.Expr) syntax.Expr {
	start := p.current()
	left := next()
	for p.err == nil {
		tok := p.current()
		if tok.Kind != tokenizer.KindSymbol || !contains(ops, tok.Text) {
			return left
		}
		p.advance()
		right := next()
		left = &syntax.Binary{Op: tok.Text, Left: left, Right: right, Span: p.spanFrom(start)}
	}
	return left
}

var (
	comparisonOps     = []string{"<", "<=", ">", ">="}
	bitwiseOps        = []string{"&", "|", "<<", ">>"}
	additiveOps       = []string{"+", "-"}
	multiplicativeOps = []string{"*", "/", "%"}
	concatOps         = []string{"||", "->", "->>"}
)

func (p *Parser) parseComparison() syntax.Expr {
	return p.parseBinaryLevel(comparisonOps, p.parseBitwise)
}

func (p *Parser) parseBitwise() syntax.Expr {
	return p.parseBinaryLevel(bitwiseOps, p.parseAdditive)
}

func (p *Parser) parseAdditive() syntax.Expr {
	return p.parseBinaryLevel(additiveOps, p.parseMultiplicative)
}

func (p *Parser) parseMultiplicative() syntax.Expr {
	return p.parseBinaryLevel(multiplicativeOps, p.parseConcat)
}

func (p *Parser) parseConcat() syntax.Expr {
	return p.parseBinaryLevel(concatOps, p.parseUnary)
}

func (p *Parser) parseUnary() syntax.Expr {
	start := p.current()
	if start.Kind == tokenizer.KindSymbol && (start.Text == "-" || start.Text == "+" || start.Text == "~") {
		p.advance()
		x := p.parseUnary()
		return &syntax.Unary{Op: start.Text, X: x, Span: p.spanFrom(start)}
	}
	x := p.parsePrimary()
	for p.err == nil && p.acceptKeyword("COLLATE") {
		x = &syntax.Collate{X: x, Collation: p.parseName("collation name"), Span: p.spanFrom(start)}
	}
	return x
}

func (p *Parser) parsePrimary() syntax.Expr {
	tok := p.current()
	switch tok.Kind {
	case tokenizer.KindNumber:
		p.advance()
		return &syntax.Literal{Type: syntax.LiteralNumber, Text: tok.Text, Span: tokenizer.NewSpan(tok)}
	case tokenizer.KindString:
		p.advance()
		return &syntax.Literal{Type: syntax.LiteralString, Text: tok.Text, Span: tokenizer.NewSpan(tok)}
	case tokenizer.KindBlob:
		p.advance()
		return &syntax.Literal{Type: syntax.LiteralBlob, Text: tok.Text, Span: tokenizer.NewSpan(tok)}
	case tokenizer.KindParam:
		p.advance()
		return &syntax.Param{Text: tok.Text, Span: tokenizer.NewSpan(tok)}
	case tokenizer.KindSymbol:
		if tok.Text == "(" {
			return p.parseParenExpr()
		}
	case tokenizer.KindKeyword:
		switch tok.Text {
		case "NULL":
			p.advance()
			return &syntax.Literal{Type: syntax.LiteralNull, Text: tok.Text, Span: tokenizer.NewSpan(tok)}
		case "CURRENT_TIME", "CURRENT_DATE", "CURRENT_TIMESTAMP":
			p.advance()
			return &syntax.Literal{Type: syntax.LiteralTime, Text: tok.Text, Span: tokenizer.NewSpan(tok)}
		case "CAST":
			return p.parseCast()
		case "CASE":
			return p.parseCase()
		case "EXISTS":
			p.advance()
			p.expectSymbol("(")
			sel := p.parseSelect()
			p.expectSymbol(")")
			return &syntax.Exists{Select: sel, Span: p.spanFrom(tok)}
		case "RAISE":
			return p.parseRaise()
		}
	}
	if isName(tok) {
		if p.peekSymbol(1, "(") {
			return p.parseCall()
		}
		if tok.Kind == tokenizer.KindIdentifier && !tok.Quoted() && !p.peekSymbol(1, ".") {
			switch strings.ToUpper(tok.Text) {
			case "TRUE", "FALSE":
				p.advance()
				return &syntax.Literal{Type: syntax.LiteralBool, Text: strings.ToUpper(tok.Text), Span: tokenizer.NewSpan(tok)}
			}
		}
		return p.parseColumnRef()
	}
	p.fail("expression")
	return nil
}

func (p *Parser) parseParenExpr() syntax.Expr {
	start := p.advance() // '('
	if p.startsSelect() {
		sel := p.parseSelect()
		p.expectSymbol(")")
		return &syntax.Subquery{Select: sel, Span: p.spanFrom(start)}
	}
	list := p.parseExprList()
	p.expectSymbol(")")
	return &syntax.Paren{List: list, Span: p.spanFrom(start)}
}

func (p *Parser) parseColumnRef() syntax.Expr {
	start := p.current()
	ref := &syntax.ColumnRef{}
	if p.peekSymbol(1, ".") && isName(p.peekAt(2)) && p.peekSymbol(3, ".") {
		ref.Schema = tokenizer.NormalizeIdentifier(p.rawText(p.advance()))
		p.advance()
	}
	if p.peekSymbol(1, ".") {
		ref.Table = p.newIdent(p.advance())
		p.advance()
	}
	ref.Column = p.parseIdent("column name")
	ref.Span = p.spanFrom(start)
	return ref
}

func (p *Parser) parseCall() syntax.Expr {
	start := p.advance()
	call := &syntax.Call{Name: p.rawText(start)}
	p.advance() // '('
	if p.acceptSymbol("*") {
		call.Star = true
	} else if !p.matchSymbol(")") {
		call.Distinct = p.acceptKeyword("DISTINCT")
		call.Args = p.parseExprList()
	}
	p.expectSymbol(")")
	if p.acceptKeyword("FILTER") {
		p.expectSymbol("(")
		p.expectKeyword("WHERE")
		call.Filter = p.parseExpr()
		p.expectSymbol(")")
	}
	if p.acceptKeyword("OVER") {
		if p.matchSymbol("(") {
			call.Over = p.parseWindowSpec()
		} else {
			call.Over = &syntax.Window{Base: p.parseName("window name")}
		}
	}
	call.Span = p.spanFrom(start)
	return call
}

func (p *Parser) parseWindowSpec() *syntax.Window {
	w := &syntax.Window{}
	p.expectSymbol("(")
	if isName(p.current()) && !p.matchKeyword("PARTITION") {
		w.Base = p.parseName("window name")
	}
	if p.acceptKeyword("PARTITION") {
		p.expectKeyword("BY")
		w.PartitionBy = p.parseExprList()
	}
	if p.acceptKeyword("ORDER") {
		p.expectKeyword("BY")
		w.OrderBy = p.parseOrderTerms()
	}
	// Frame specifications carry no identifiers worth tracking.
	depth := 0
	for p.err == nil && !p.isEOF() && !(depth == 0 && p.matchSymbol(")")) {
		switch {
		case p.matchSymbol("("):
			depth++
		case p.matchSymbol(")"):
			depth--
		}
		p.advance()
	}
	p.expectSymbol(")")
	return w
}

func (p *Parser) parseCast() syntax.Expr {
	start := p.advance() // CAST
	p.expectSymbol("(")
	x := p.parseExpr()
	p.expectKeyword("AS")
	typ := p.parseTypeName()
	if typ == "" {
		p.fail("type name")
	}
	p.expectSymbol(")")
	return &syntax.Cast{X: x, Type: typ, Span: p.spanFrom(start)}
}

func (p *Parser) parseCase() syntax.Expr {
	start := p.advance() // CASE
	c := &syntax.Case{}
	if !p.matchKeyword("WHEN") {
		c.Operand = p.parseExpr()
	}
	for p.err == nil && p.acceptKeyword("WHEN") {
		w := &syntax.When{Cond: p.parseExpr()}
		p.expectKeyword("THEN")
		w.Result = p.parseExpr()
		c.Whens = append(c.Whens, w)
	}
	if len(c.Whens) == 0 {
		p.fail("WHEN")
	}
	if p.acceptKeyword("ELSE") {
		c.Else = p.parseExpr()
	}
	p.expectKeyword("END")
	c.Span = p.spanFrom(start)
	return c
}

func (p *Parser) parseRaise() syntax.Expr {
	start := p.advance() // RAISE
	call := &syntax.Call{Name: "RAISE"}
	p.expectSymbol("(")
	if !p.acceptKeyword("IGNORE") {
		p.parseConflictAction()
		p.expectSymbol(",")
		call.Args = []syntax.Expr{p.parseExpr()}
	}
	p.expectSymbol(")")
	call.Span = p.spanFrom(start)
	return call
}

// --- names ---

// isName reports whether tok can be used as an identifier. Non-reserved
// keywords such as KEY or ACTION double as names.
func isName(tok tokenizer.Token) bool {
	switch tok.Kind {
	case tokenizer.KindIdentifier:
		return true
	case tokenizer.KindKeyword:
		return !tokenizer.IsReserved(tok.Text)
	}
	return false
}

func (p *Parser) newIdent(tok tokenizer.Token) *syntax.Ident {
	return p.newIdentText(tok, tokenizer.NormalizeIdentifier(p.rawText(tok)))
}

func (p *Parser) newIdentText(tok tokenizer.Token, name string) *syntax.Ident {
	id := &syntax.Ident{Name: name, Span: tokenizer.NewSpan(tok), Slot: len(p.idents)}
	p.idents = append(p.idents, id)
	return id
}

// parseIdent consumes a name and registers it as an identifier occurrence.
// On failure it returns a placeholder outside the slot table.
func (p *Parser) parseIdent(expected string) *syntax.Ident {
	tok := p.current()
	if !isName(tok) {
		p.fail(expected)
		return &syntax.Ident{Slot: -1}
	}
	return p.newIdent(p.advance())
}

// parseName consumes a name that does not take part in resolution.
func (p *Parser) parseName(expected string) string {
	tok := p.current()
	if !isName(tok) {
		p.fail(expected)
		return ""
	}
	p.advance()
	return tokenizer.NormalizeIdentifier(p.rawText(tok))
}

// parseQualifiedName reads `[schema.]name`; only the last part is an
// identifier occurrence.
func (p *Parser) parseQualifiedName(expected string) (string, *syntax.Ident) {
	schema := ""
	if isName(p.current()) && p.peekSymbol(1, ".") && isName(p.peekAt(2)) {
		schema = tokenizer.NormalizeIdentifier(p.rawText(p.advance()))
		p.advance()
	}
	return schema, p.parseIdent(expected)
}

func (p *Parser) parsePlainQualifiedName(expected string) string {
	if isName(p.current()) && p.peekSymbol(1, ".") && isName(p.peekAt(2)) {
		p.advance()
		p.advance()
	}
	return p.parseName(expected)
}

func (p *Parser) parseIdentList() []*syntax.Ident {
	p.expectSymbol("(")
	var list []*syntax.Ident
	for p.err == nil {
		list = append(list, p.parseIdent("column name"))
		if !p.acceptSymbol(",") {
			break
		}
	}
	p.expectSymbol(")")
	return list
}

// --- token helpers ---

func (p *Parser) current() tokenizer.Token {
	if p.err != nil || p.pos >= len(p.tokens) {
		return p.eof()
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) tokenizer.Token {
	if p.err != nil || p.pos+n >= len(p.tokens) {
		return p.eof()
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) eof() tokenizer.Token {
	if len(p.tokens) == 0 {
		return tokenizer.Token{Kind: tokenizer.KindEOF, File: p.path, Line: 1, Column: 1}
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) advance() tokenizer.Token {
	tok := p.current()
	if tok.Kind != tokenizer.KindEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) previous() tokenizer.Token {
	if p.pos == 0 {
		return p.current()
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) isEOF() bool {
	return p.current().Kind == tokenizer.KindEOF
}

func (p *Parser) matchKeyword(kw string) bool {
	tok := p.current()
	return tok.Kind == tokenizer.KindKeyword && tok.Text == kw
}

func (p *Parser) matchSymbol(sym string) bool {
	tok := p.current()
	return tok.Kind == tokenizer.KindSymbol && tok.Text == sym
}

func (p *Parser) peekKeyword(n int, kw string) bool {
	tok := p.peekAt(n)
	return tok.Kind == tokenizer.KindKeyword && tok.Text == kw
}

func (p *Parser) peekSymbol(n int, sym string) bool {
	tok := p.peekAt(n)
	return tok.Kind == tokenizer.KindSymbol && tok.Text == sym
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.matchKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) acceptSymbol(sym string) bool {
	if p.matchSymbol(sym) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) bool {
	if p.acceptKeyword(kw) {
		return true
	}
	p.fail(kw)
	return false
}

func (p *Parser) expectSymbol(sym string) bool {
	if p.acceptSymbol(sym) {
		return true
	}
	p.fail("'" + sym + "'")
	return false
}

// fail records the first error; later calls are ignored so the parse
// unwinds without cascading messages.
func (p *Parser) fail(expected string) {
	if p.err != nil {
		return
	}
	tok := p.current()
	p.err = &ParseError{
		Path:     p.path,
		Line:     tok.Line,
		Column:   tok.Column,
		Expected: expected,
		Found:    describe(tok),
	}
}

func describe(tok tokenizer.Token) string {
	switch tok.Kind {
	case tokenizer.KindEOF:
		return "end of input"
	case tokenizer.KindString:
		return "string literal"
	}
	return fmt.Sprintf("%q", tok.Text)
}

// rawText returns the token as written; keyword tokens carry uppercased text.
func (p *Parser) rawText(tok tokenizer.Token) string {
	if tok.Kind == tokenizer.KindKeyword && tok.Offset+tok.Width <= len(p.src) {
		return string(p.src[tok.Offset : tok.Offset+tok.Width])
	}
	return tok.Text
}

func (p *Parser) spanFrom(start tokenizer.Token) tokenizer.Span {
	return tokenizer.SpanBetween(start, p.previous())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
