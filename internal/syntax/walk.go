package syntax

// Inspect traverses the tree rooted at node in source order, calling fn for
// each node. If fn returns false, the children of that node are skipped.
func Inspect(node Node, fn func(Node) bool) {
	if isNil(node) || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Labeled:
		Inspect(n.Label, fn)
		Inspect(n.Stmt, fn)
	case *CreateTable:
		Inspect(n.Name, fn)
		for _, col := range n.Columns {
			inspectColumn(col, fn)
		}
		for _, c := range n.Constraints {
			inspectIdents(c.Columns, fn)
			inspectExpr(c.Check, fn)
			inspectForeignKey(c.References, fn)
		}
	case *CreateView:
		Inspect(n.Name, fn)
		inspectIdents(n.Columns, fn)
		inspectSelect(n.Select, fn)
	case *CreateIndex:
		Inspect(n.Table, fn)
		inspectOrder(n.Columns, fn)
		inspectExpr(n.Where, fn)
	case *AlterTable:
		Inspect(n.Table, fn)
		if n.AddColumn != nil {
			inspectColumn(n.AddColumn, fn)
		}
		if n.DropColumn != nil {
			Inspect(n.DropColumn, fn)
		}
		if n.RenameColumn != nil {
			Inspect(n.RenameColumn, fn)
		}
	case *CreateTrigger:
		inspectIdents(n.Columns, fn)
		Inspect(n.Table, fn)
		inspectExpr(n.When, fn)
		for _, stmt := range n.Body {
			Inspect(stmt, fn)
		}
	case *Drop:
		if n.Name != nil {
			Inspect(n.Name, fn)
		}
	case *Select:
		inspectWith(n.With, fn)
		for _, core := range n.Cores {
			for _, rc := range core.Columns {
				inspectResult(rc, fn)
			}
			inspectTable(core.From, fn)
			inspectExpr(core.Where, fn)
			inspectExprs(core.GroupBy, fn)
			inspectExpr(core.Having, fn)
			for _, w := range core.Windows {
				inspectWindow(w, fn)
			}
			for _, row := range core.Values {
				inspectExprs(row, fn)
			}
		}
		inspectOrder(n.OrderBy, fn)
		inspectExpr(n.Limit, fn)
		inspectExpr(n.Offset, fn)
	case *Insert:
		inspectWith(n.With, fn)
		Inspect(n.Table, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
		inspectIdents(n.Columns, fn)
		for _, row := range n.Values {
			inspectExprs(row, fn)
		}
		inspectSelect(n.Select, fn)
		for _, u := range n.Upsert {
			inspectOrder(u.Target, fn)
			inspectExpr(u.TargetWhere, fn)
			inspectAssignments(u.Set, fn)
			inspectExpr(u.Where, fn)
		}
		for _, rc := range n.Returning {
			inspectResult(rc, fn)
		}
	case *Update:
		inspectWith(n.With, fn)
		Inspect(n.Table, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
		inspectAssignments(n.Set, fn)
		inspectTable(n.From, fn)
		inspectExpr(n.Where, fn)
		for _, rc := range n.Returning {
			inspectResult(rc, fn)
		}
	case *Delete:
		inspectWith(n.With, fn)
		Inspect(n.Table, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
		inspectExpr(n.Where, fn)
		for _, rc := range n.Returning {
			inspectResult(rc, fn)
		}
	case *TableName:
		Inspect(n.Name, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
	case *SubquerySource:
		inspectSelect(n.Select, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
	case *FunctionSource:
		inspectExprs(n.Args, fn)
		if n.Alias != nil {
			Inspect(n.Alias, fn)
		}
	case *Join:
		inspectTable(n.Left, fn)
		inspectTable(n.Right, fn)
		inspectExpr(n.On, fn)
		inspectIdents(n.Using, fn)
	case *ColumnRef:
		if n.Table != nil {
			Inspect(n.Table, fn)
		}
		Inspect(n.Column, fn)
	case *Unary:
		inspectExpr(n.X, fn)
	case *Binary:
		inspectExpr(n.Left, fn)
		inspectExpr(n.Right, fn)
	case *Like:
		inspectExpr(n.X, fn)
		inspectExpr(n.Pattern, fn)
		inspectExpr(n.Escape, fn)
	case *Between:
		inspectExpr(n.X, fn)
		inspectExpr(n.Low, fn)
		inspectExpr(n.High, fn)
	case *In:
		inspectExpr(n.X, fn)
		inspectExprs(n.List, fn)
		inspectSelect(n.Select, fn)
	case *IsNull:
		inspectExpr(n.X, fn)
	case *Call:
		inspectExprs(n.Args, fn)
		inspectExpr(n.Filter, fn)
		if n.Over != nil {
			inspectWindow(n.Over, fn)
		}
	case *Cast:
		inspectExpr(n.X, fn)
	case *Collate:
		inspectExpr(n.X, fn)
	case *Case:
		inspectExpr(n.Operand, fn)
		for _, w := range n.Whens {
			inspectExpr(w.Cond, fn)
			inspectExpr(w.Result, fn)
		}
		inspectExpr(n.Else, fn)
	case *Exists:
		inspectSelect(n.Select, fn)
	case *Subquery:
		inspectSelect(n.Select, fn)
	case *Paren:
		inspectExprs(n.List, fn)
	}
}

// isNil reports typed nil pointers stored in the interface as nil.
func isNil(node Node) bool {
	if node == nil {
		return true
	}
	switch n := node.(type) {
	case *Ident:
		return n == nil
	case *Select:
		return n == nil
	}
	return false
}

func inspectColumn(col *ColumnDef, fn func(Node) bool) {
	Inspect(col.Name, fn)
	inspectExpr(col.Default, fn)
	inspectExprs(col.Checks, fn)
	inspectForeignKey(col.References, fn)
}

func inspectForeignKey(fk *ForeignKey, fn func(Node) bool) {
	if fk == nil {
		return
	}
	Inspect(fk.Table, fn)
	inspectIdents(fk.Columns, fn)
}

func inspectWith(w *With, fn func(Node) bool) {
	if w == nil {
		return
	}
	for _, cte := range w.CTEs {
		Inspect(cte.Name, fn)
		inspectIdents(cte.Columns, fn)
		inspectSelect(cte.Select, fn)
	}
}

func inspectResult(rc *ResultColumn, fn func(Node) bool) {
	if rc.Table != nil {
		Inspect(rc.Table, fn)
	}
	inspectExpr(rc.Expr, fn)
	if rc.Alias != nil {
		Inspect(rc.Alias, fn)
	}
}

func inspectAssignments(set []*Assignment, fn func(Node) bool) {
	for _, a := range set {
		inspectIdents(a.Columns, fn)
		inspectExpr(a.Value, fn)
	}
}

func inspectSelect(sel *Select, fn func(Node) bool) {
	if sel != nil {
		Inspect(sel, fn)
	}
}

func inspectTable(t TableExpr, fn func(Node) bool) {
	if t != nil {
		Inspect(t, fn)
	}
}

func inspectExpr(e Expr, fn func(Node) bool) {
	if e != nil {
		Inspect(e, fn)
	}
}

func inspectExprs(list []Expr, fn func(Node) bool) {
	for _, e := range list {
		inspectExpr(e, fn)
	}
}

func inspectIdents(list []*Ident, fn func(Node) bool) {
	for _, id := range list {
		Inspect(id, fn)
	}
}

func inspectWindow(w *Window, fn func(Node) bool) {
	inspectExprs(w.PartitionBy, fn)
	inspectOrder(w.OrderBy, fn)
}

func inspectOrder(terms []*OrderTerm, fn func(Node) bool) {
	for _, t := range terms {
		inspectExpr(t.Expr, fn)
	}
}
