package syntax

import (
	"strconv"

	"github.com/electwix/db-xref/internal/schema/tokenizer"
)

// NodeKind tags the variant of a Node.
type NodeKind int

const (
	KindInvalid NodeKind = iota
	KindIdent
	KindLabeled
	KindCreateTable
	KindCreateView
	KindCreateIndex
	KindAlterTable
	KindCreateTrigger
	KindDrop
	KindImport
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindTableName
	KindSubquerySource
	KindFunctionSource
	KindJoin
	KindColumnRef
	KindLiteral
	KindParam
	KindUnary
	KindBinary
	KindLike
	KindBetween
	KindIn
	KindIsNull
	KindCall
	KindCast
	KindCollate
	KindCase
	KindExists
	KindSubquery
	KindParen
)

var kindNames = [...]string{
	KindInvalid:        "Invalid",
	KindIdent:          "Ident",
	KindLabeled:        "Labeled",
	KindCreateTable:    "CreateTable",
	KindCreateView:     "CreateView",
	KindCreateIndex:    "CreateIndex",
	KindAlterTable:     "AlterTable",
	KindCreateTrigger:  "CreateTrigger",
	KindDrop:           "Drop",
	KindImport:         "Import",
	KindSelect:         "Select",
	KindInsert:         "Insert",
	KindUpdate:         "Update",
	KindDelete:         "Delete",
	KindTableName:      "TableName",
	KindSubquerySource: "SubquerySource",
	KindFunctionSource: "FunctionSource",
	KindJoin:           "Join",
	KindColumnRef:      "ColumnRef",
	KindLiteral:        "Literal",
	KindParam:          "Param",
	KindUnary:          "Unary",
	KindBinary:         "Binary",
	KindLike:           "Like",
	KindBetween:        "Between",
	KindIn:             "In",
	KindIsNull:         "IsNull",
	KindCall:           "Call",
	KindCast:           "Cast",
	KindCollate:        "Collate",
	KindCase:           "Case",
	KindExists:         "Exists",
	KindSubquery:       "Subquery",
	KindParen:          "Paren",
}

func (k NodeKind) String() string {
	if k >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "NodeKind(" + strconv.Itoa(int(k)) + ")"
}

func (*Labeled) Kind() NodeKind        { return KindLabeled }
func (*CreateTable) Kind() NodeKind    { return KindCreateTable }
func (*CreateView) Kind() NodeKind     { return KindCreateView }
func (*CreateIndex) Kind() NodeKind    { return KindCreateIndex }
func (*AlterTable) Kind() NodeKind     { return KindAlterTable }
func (*CreateTrigger) Kind() NodeKind  { return KindCreateTrigger }
func (*Drop) Kind() NodeKind           { return KindDrop }
func (*Import) Kind() NodeKind         { return KindImport }
func (*Select) Kind() NodeKind         { return KindSelect }
func (*Insert) Kind() NodeKind         { return KindInsert }
func (*Update) Kind() NodeKind         { return KindUpdate }
func (*Delete) Kind() NodeKind         { return KindDelete }
func (*TableName) Kind() NodeKind      { return KindTableName }
func (*SubquerySource) Kind() NodeKind { return KindSubquerySource }
func (*FunctionSource) Kind() NodeKind { return KindFunctionSource }
func (*Join) Kind() NodeKind           { return KindJoin }
func (*ColumnRef) Kind() NodeKind      { return KindColumnRef }
func (*Literal) Kind() NodeKind        { return KindLiteral }
func (*Param) Kind() NodeKind          { return KindParam }
func (*Unary) Kind() NodeKind          { return KindUnary }
func (*Binary) Kind() NodeKind         { return KindBinary }
func (*Like) Kind() NodeKind           { return KindLike }
func (*Between) Kind() NodeKind        { return KindBetween }
func (*In) Kind() NodeKind             { return KindIn }
func (*IsNull) Kind() NodeKind         { return KindIsNull }
func (*Call) Kind() NodeKind           { return KindCall }
func (*Cast) Kind() NodeKind           { return KindCast }
func (*Collate) Kind() NodeKind        { return KindCollate }
func (*Case) Kind() NodeKind           { return KindCase }
func (*Exists) Kind() NodeKind         { return KindExists }
func (*Subquery) Kind() NodeKind       { return KindSubquery }
func (*Paren) Kind() NodeKind          { return KindParen }

func (n *Labeled) Pos() tokenizer.Span        { return n.Span }
func (n *CreateTable) Pos() tokenizer.Span    { return n.Span }
func (n *CreateView) Pos() tokenizer.Span     { return n.Span }
func (n *CreateIndex) Pos() tokenizer.Span    { return n.Span }
func (n *AlterTable) Pos() tokenizer.Span     { return n.Span }
func (n *CreateTrigger) Pos() tokenizer.Span  { return n.Span }
func (n *Drop) Pos() tokenizer.Span           { return n.Span }
func (n *Import) Pos() tokenizer.Span         { return n.Span }
func (n *Select) Pos() tokenizer.Span         { return n.Span }
func (n *Insert) Pos() tokenizer.Span         { return n.Span }
func (n *Update) Pos() tokenizer.Span         { return n.Span }
func (n *Delete) Pos() tokenizer.Span         { return n.Span }
func (n *TableName) Pos() tokenizer.Span      { return n.Span }
func (n *SubquerySource) Pos() tokenizer.Span { return n.Span }
func (n *FunctionSource) Pos() tokenizer.Span { return n.Span }
func (n *Join) Pos() tokenizer.Span           { return n.Span }
func (n *ColumnRef) Pos() tokenizer.Span      { return n.Span }
func (n *Literal) Pos() tokenizer.Span        { return n.Span }
func (n *Param) Pos() tokenizer.Span          { return n.Span }
func (n *Unary) Pos() tokenizer.Span          { return n.Span }
func (n *Binary) Pos() tokenizer.Span         { return n.Span }
func (n *Like) Pos() tokenizer.Span           { return n.Span }
func (n *Between) Pos() tokenizer.Span        { return n.Span }
func (n *In) Pos() tokenizer.Span             { return n.Span }
func (n *IsNull) Pos() tokenizer.Span         { return n.Span }
func (n *Call) Pos() tokenizer.Span           { return n.Span }
func (n *Cast) Pos() tokenizer.Span           { return n.Span }
func (n *Collate) Pos() tokenizer.Span        { return n.Span }
func (n *Case) Pos() tokenizer.Span           { return n.Span }
func (n *Exists) Pos() tokenizer.Span         { return n.Span }
func (n *Subquery) Pos() tokenizer.Span       { return n.Span }
func (n *Paren) Pos() tokenizer.Span          { return n.Span }
