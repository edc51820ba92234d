// Package syntax defines the syntax tree produced by the parser.
//
// Nodes are a closed set of variants: every node reports its NodeKind and
// span. Identifiers that can name or reference a declaration are *Ident
// values numbered with a dense per-file slot; later stages attach meaning to
// identifiers through side tables keyed by slot instead of mutating the tree.
package syntax

import (
	"strings"

	"github.com/electwix/db-xref/internal/schema/tokenizer"
)

// Node is implemented by every syntax tree node.
type Node interface {
	Kind() NodeKind
	Pos() tokenizer.Span
}

// Statement is a top-level statement.
type Statement interface {
	Node
	stmtNode()
}

// Expr is a scalar expression.
type Expr interface {
	Node
	exprNode()
}

// TableExpr is an entry of a FROM clause.
type TableExpr interface {
	Node
	tableNode()
}

// Ident is an identifier occurrence.
type Ident struct {
	// Name is the identifier with quoting removed.
	Name string
	Span tokenizer.Span
	// Slot is the identifier's index in File.Idents.
	Slot int
}

// Key returns the case-insensitive lookup key for the identifier.
func (i *Ident) Key() string {
	if i == nil {
		return ""
	}
	return Canonical(i.Name)
}

func (i *Ident) Kind() NodeKind      { return KindIdent }
func (i *Ident) Pos() tokenizer.Span { return i.Span }

// Canonical folds a name for case-insensitive comparison.
func Canonical(name string) string {
	return strings.ToLower(name)
}

// File is the parsed form of one source file.
type File struct {
	Path       string
	Statements []Statement
	// Idents lists every identifier occurrence, indexed by slot.
	Idents []*Ident
}

// IdentAt returns the identifier whose span contains line:column.
func (f *File) IdentAt(line, column int) *Ident {
	for _, id := range f.Idents {
		if id.Span.Contains(line, column) {
			return id
		}
	}
	return nil
}

// Labeled is a statement introduced by `label:`.
type Labeled struct {
	Label *Ident
	Stmt  Statement
	Span  tokenizer.Span
}

// CreateTable is a CREATE TABLE statement.
type CreateTable struct {
	Name         *Ident
	Temp         bool
	IfNotExists  bool
	WithoutRowID bool
	Strict       bool
	// Module is set for CREATE VIRTUAL TABLE ... USING module(...).
	Module       string
	Columns      []*ColumnDef
	Constraints  []*TableConstraint
	Span         tokenizer.Span
}

// ColumnDef is a column definition inside CREATE TABLE or ALTER TABLE.
type ColumnDef struct {
	Name *Ident
	Type string
	// CustomType is the host-language type given with `AS Type`.
	CustomType    string
	NotNull       bool
	PrimaryKey    bool
	Autoincrement bool
	Unique        bool
	Collate       string
	Default       Expr
	Checks        []Expr
	References    *ForeignKey
	Span          tokenizer.Span
}

// ConstraintKind classifies table constraints.
type ConstraintKind int

const (
	ConstraintPrimaryKey ConstraintKind = iota
	ConstraintUnique
	ConstraintCheck
	ConstraintForeignKey
)

// TableConstraint is a table-level constraint.
type TableConstraint struct {
	Name       string
	Type       ConstraintKind
	Columns    []*Ident
	Check      Expr
	References *ForeignKey
	Span       tokenizer.Span
}

// ForeignKey is the REFERENCES clause of a column or table constraint.
type ForeignKey struct {
	Table    *Ident
	Columns  []*Ident
	OnDelete string
	OnUpdate string
	Span     tokenizer.Span
}

// CreateView is a CREATE VIEW statement.
type CreateView struct {
	Name        *Ident
	Temp        bool
	IfNotExists bool
	Columns     []*Ident
	Select      *Select
	Span        tokenizer.Span
}

// CreateIndex is a CREATE INDEX statement.
type CreateIndex struct {
	Name        string
	Unique      bool
	IfNotExists bool
	Table       *Ident
	Columns     []*OrderTerm
	Where       Expr
	Span        tokenizer.Span
}

// AlterTable is an ALTER TABLE statement.
type AlterTable struct {
	Table        *Ident
	AddColumn    *ColumnDef
	DropColumn   *Ident
	RenameTo     string
	RenameColumn *Ident
	NewColumn    string
	Span         tokenizer.Span
}

// CreateTrigger is a CREATE TRIGGER statement. NEW and OLD inside the body
// refer to rows of Table.
type CreateTrigger struct {
	Name        string
	Temp        bool
	IfNotExists bool
	Timing      string
	Event       string
	Columns     []*Ident
	Table       *Ident
	ForEachRow  bool
	When        Expr
	Body        []Statement
	Span        tokenizer.Span
}

// ObjectType names the object kind of a DROP statement.
type ObjectType string

const (
	ObjectTable   ObjectType = "TABLE"
	ObjectView    ObjectType = "VIEW"
	ObjectIndex   ObjectType = "INDEX"
	ObjectTrigger ObjectType = "TRIGGER"
)

// Drop is a DROP TABLE/VIEW/INDEX/TRIGGER statement.
type Drop struct {
	Object   ObjectType
	IfExists bool
	// Name is set for tables and views; index and trigger names are not tracked.
	Name      *Ident
	OtherName string
	Span      tokenizer.Span
}

// Import is a host-language type import.
type Import struct {
	Path string
	Span tokenizer.Span
}

// With is a WITH clause.
type With struct {
	Recursive bool
	CTEs      []*CTE
	Span      tokenizer.Span
}

// CTE is one common table expression.
type CTE struct {
	Name    *Ident
	Columns []*Ident
	Select  *Select
	Span    tokenizer.Span
}

// Select is a possibly compound SELECT statement.
type Select struct {
	With *With
	// Cores holds the operands of the compound; Ops[i] joins Cores[i] and Cores[i+1].
	Cores   []*SelectCore
	Ops     []string
	OrderBy []*OrderTerm
	Limit   Expr
	Offset  Expr
	Span    tokenizer.Span
}

// SelectCore is a single SELECT or VALUES block.
type SelectCore struct {
	Distinct bool
	Columns  []*ResultColumn
	From     TableExpr
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Windows  []*Window
	// Values is set for VALUES cores, which have no columns or FROM.
	Values [][]Expr
	Span   tokenizer.Span
}

// ResultColumn is an entry of a SELECT list or RETURNING clause.
type ResultColumn struct {
	// Star is set for `*` and `t.*`; Table holds the qualifier of the latter.
	Star  bool
	Table *Ident
	Expr  Expr
	Alias *Ident
	Span  tokenizer.Span
}

// Name returns the output name of the result column, if it has one.
func (rc *ResultColumn) Name() *Ident {
	if rc.Alias != nil {
		return rc.Alias
	}
	if ref, ok := rc.Expr.(*ColumnRef); ok {
		return ref.Column
	}
	return nil
}

// OrderTerm is an ORDER BY or indexed-column entry.
type OrderTerm struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// TableName is a named FROM source.
type TableName struct {
	Schema string
	Name   *Ident
	Alias  *Ident
	Span   tokenizer.Span
}

// SubquerySource is a parenthesized SELECT used as a FROM source.
type SubquerySource struct {
	Select *Select
	Alias  *Ident
	Span   tokenizer.Span
}

// FunctionSource is a table-valued function such as json_each(x).
type FunctionSource struct {
	Name  string
	Args  []Expr
	Alias *Ident
	Span  tokenizer.Span
}

// Join combines two FROM sources.
type Join struct {
	Left    TableExpr
	Right   TableExpr
	Type    string
	Natural bool
	On      Expr
	Using   []*Ident
	Span    tokenizer.Span
}

// Insert is an INSERT or REPLACE statement.
type Insert struct {
	With          *With
	Verb          string
	Or            string
	Table         *Ident
	Alias         *Ident
	Columns       []*Ident
	Values        [][]Expr
	Select        *Select
	DefaultValues bool
	Upsert        []*Upsert
	Returning     []*ResultColumn
	Span          tokenizer.Span
}

// Upsert is an ON CONFLICT clause of an INSERT.
type Upsert struct {
	Target      []*OrderTerm
	TargetWhere Expr
	DoNothing   bool
	Set         []*Assignment
	Where       Expr
	Span        tokenizer.Span
}

// Assignment is one `col = expr` or `(a, b) = expr` entry of a SET clause.
type Assignment struct {
	Columns []*Ident
	Value   Expr
}

// Update is an UPDATE statement.
type Update struct {
	With      *With
	Or        string
	Table     *Ident
	Alias     *Ident
	Set       []*Assignment
	From      TableExpr
	Where     Expr
	Returning []*ResultColumn
	Span      tokenizer.Span
}

// Delete is a DELETE statement.
type Delete struct {
	With      *With
	Table     *Ident
	Alias     *Ident
	Where     Expr
	Returning []*ResultColumn
	Span      tokenizer.Span
}

// ColumnRef is a possibly qualified column reference.
type ColumnRef struct {
	Schema string
	Table  *Ident
	Column *Ident
	Span   tokenizer.Span
}

// LiteralKind classifies literals.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBlob
	LiteralNull
	LiteralBool
	LiteralTime
)

// Literal is a constant value.
type Literal struct {
	Type LiteralKind
	Text string
	Span tokenizer.Span
}

// Param is a bind parameter.
type Param struct {
	Text string
	Span tokenizer.Span
}

// Unary is a prefix operator application.
type Unary struct {
	Op   string
	X    Expr
	Span tokenizer.Span
}

// Binary is an infix operator application.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
	Span  tokenizer.Span
}

// Like is a LIKE, GLOB, MATCH or REGEXP test.
type Like struct {
	Op      string
	Not     bool
	X       Expr
	Pattern Expr
	Escape  Expr
	Span    tokenizer.Span
}

// Between is a BETWEEN test.
type Between struct {
	Not  bool
	X    Expr
	Low  Expr
	High Expr
	Span tokenizer.Span
}

// In is an IN test against a list or subquery.
type In struct {
	Not    bool
	X      Expr
	List   []Expr
	Select *Select
	Span   tokenizer.Span
}

// IsNull is an ISNULL / NOTNULL / NOT NULL postfix test.
type IsNull struct {
	Not  bool
	X    Expr
	Span tokenizer.Span
}

// Call is a function call.
type Call struct {
	Name     string
	Distinct bool
	Star     bool
	Args     []Expr
	Filter   Expr
	Over     *Window
	Span     tokenizer.Span
}

// Window is an OVER clause or a WINDOW definition.
type Window struct {
	Name        string
	Base        string
	PartitionBy []Expr
	OrderBy     []*OrderTerm
}

// Cast is CAST(x AS type).
type Cast struct {
	X    Expr
	Type string
	Span tokenizer.Span
}

// Collate is `x COLLATE name`.
type Collate struct {
	X         Expr
	Collation string
	Span      tokenizer.Span
}

// When is one branch of a CASE expression.
type When struct {
	Cond   Expr
	Result Expr
}

// Case is a CASE expression.
type Case struct {
	Operand Expr
	Whens   []*When
	Else    Expr
	Span    tokenizer.Span
}

// Exists is an EXISTS (select) test.
type Exists struct {
	Not    bool
	Select *Select
	Span   tokenizer.Span
}

// Subquery is a scalar subquery.
type Subquery struct {
	Select *Select
	Span   tokenizer.Span
}

// Paren is a parenthesized expression or row value.
type Paren struct {
	List []Expr
	Span tokenizer.Span
}

func (*Labeled) stmtNode()       {}
func (*CreateTable) stmtNode()   {}
func (*CreateView) stmtNode()    {}
func (*CreateIndex) stmtNode()   {}
func (*AlterTable) stmtNode()    {}
func (*CreateTrigger) stmtNode() {}
func (*Drop) stmtNode()          {}
func (*Import) stmtNode()        {}
func (*Select) stmtNode()        {}
func (*Insert) stmtNode()        {}
func (*Update) stmtNode()        {}
func (*Delete) stmtNode()        {}

func (*TableName) tableNode()      {}
func (*SubquerySource) tableNode() {}
func (*FunctionSource) tableNode() {}
func (*Join) tableNode()           {}

func (*ColumnRef) exprNode() {}
func (*Literal) exprNode()   {}
func (*Param) exprNode()     {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Like) exprNode()      {}
func (*Between) exprNode()   {}
func (*In) exprNode()        {}
func (*IsNull) exprNode()    {}
func (*Call) exprNode()      {}
func (*Cast) exprNode()      {}
func (*Collate) exprNode()   {}
func (*Case) exprNode()      {}
func (*Exists) exprNode()    {}
func (*Subquery) exprNode()  {}
func (*Paren) exprNode()     {}
