package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/workspace"
)

// ErrNoSnapshot is returned by queries against an empty store.
var ErrNoSnapshot = errors.New("no index snapshot saved")

// Info describes the saved snapshot.
type Info struct {
	Revision     uuid.UUID `json:"revision" yaml:"revision"`
	Generation   uint64    `json:"generation" yaml:"generation"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Files        int       `json:"files" yaml:"files"`
	Declarations int       `json:"declarations" yaml:"declarations"`
	References   int       `json:"references" yaml:"references"`
	External     int       `json:"external" yaml:"external"`
	Unresolved   int       `json:"unresolved" yaml:"unresolved"`
}

var wipe = []string{
	"DELETE FROM external_usages",
	"DELETE FROM references_",
	"DELETE FROM declarations",
	"DELETE FROM files",
	"DELETE FROM snapshots",
}

// Save replaces the stored snapshot with snap in one transaction.
func (s *Store) Save(ctx context.Context, snap *workspace.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range wipe {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}

	rev := snap.Revision.String()
	if _, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO snapshots (revision, generation, created_at, unresolved) VALUES (?, ?, ?, ?)`),
		rev, int64(snap.Generation), time.Now().UTC().Format(time.RFC3339Nano), snap.Unresolved,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err = s.insertAll(ctx, tx, `INSERT INTO files (revision, path) VALUES (?, ?)`, len(snap.Files), func(i int) []any {
		return []any{rev, snap.Files[i]}
	}); err != nil {
		return fmt.Errorf("insert files: %w", err)
	}

	if err = s.insertAll(ctx, tx, `INSERT INTO declarations
		(revision, kind, path, line, col, name, end_line, end_col, parent_kind, parent_line, parent_col, parent_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(snap.Declarations), func(i int) []any {
		d := snap.Declarations[i]
		var pk, pn sql.NullString
		var pl, pc sql.NullInt64
		if d.Parent != nil {
			pk = sql.NullString{String: d.Parent.Kind.String(), Valid: true}
			pn = sql.NullString{String: d.Parent.Name, Valid: true}
			pl = sql.NullInt64{Int64: int64(d.Parent.Line), Valid: true}
			pc = sql.NullInt64{Int64: int64(d.Parent.Column), Valid: true}
		}
		return []any{rev, d.ID.Kind.String(), d.ID.Path, d.ID.Line, d.ID.Column, d.ID.Name,
			d.Span.EndLine, d.Span.EndColumn, pk, pl, pc, pn}
	}); err != nil {
		return fmt.Errorf("insert declarations: %w", err)
	}

	if err = s.insertAll(ctx, tx, `INSERT INTO references_
		(revision, decl_kind, decl_path, decl_line, decl_col, decl_name, path, start_line, start_col, end_line, end_col)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(snap.References), func(i int) []any {
		r := snap.References[i]
		return []any{rev, r.ID.Kind.String(), r.ID.Path, r.ID.Line, r.ID.Column, r.ID.Name,
			r.Path, r.Span.StartLine, r.Span.StartColumn, r.Span.EndLine, r.Span.EndColumn}
	}); err != nil {
		return fmt.Errorf("insert references: %w", err)
	}

	if err = s.insertAll(ctx, tx, `INSERT INTO external_usages
		(revision, decl_kind, decl_path, decl_line, decl_col, decl_name, handle, path, line, col, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(snap.External), func(i int) []any {
		x := snap.External[i]
		return []any{rev, x.ID.Kind.String(), x.ID.Path, x.ID.Line, x.ID.Column, x.ID.Name,
			x.Usage.Handle, x.Usage.Path, x.Usage.Line, x.Usage.Column, x.Usage.Language}
	}); err != nil {
		return fmt.Errorf("insert external usages: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.log.Info("snapshot saved",
		"revision", rev,
		"files", len(snap.Files),
		"declarations", len(snap.Declarations),
		"references", len(snap.References),
	)
	return nil
}

func (s *Store) insertAll(ctx context.Context, tx *sql.Tx, query string, n int, row func(int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range n {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	return nil
}

// Latest describes the saved snapshot or returns ErrNoSnapshot.
func (s *Store) Latest(ctx context.Context) (*Info, error) {
	var (
		info    Info
		rev     string
		gen     int64
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, generation, created_at, unresolved FROM snapshots`,
	).Scan(&rev, &gen, &created, &info.Unresolved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if info.Revision, err = uuid.Parse(rev); err != nil {
		return nil, fmt.Errorf("snapshot revision: %w", err)
	}
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("snapshot time: %w", err)
	}
	info.Generation = uint64(gen)

	counts := []struct {
		table string
		dst   *int
	}{
		{"files", &info.Files},
		{"declarations", &info.Declarations},
		{"references_", &info.References},
		{"external_usages", &info.External},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return &info, nil
}

// Declarations returns the saved declarations of kind named name, compared
// case-insensitively. A zero kind matches every kind.
func (s *Store) Declarations(ctx context.Context, kind symbols.Kind, name string) ([]*symbols.Declaration, error) {
	query := `SELECT kind, path, line, col, name, end_line, end_col, parent_kind, parent_line, parent_col, parent_name
		FROM declarations WHERE LOWER(name) = ?`
	args := []any{strings.ToLower(name)}
	if kind != 0 {
		query += ` AND kind = ?`
		args = append(args, kind.String())
	}
	query += ` ORDER BY path, line, col`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	var out []*symbols.Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeclaration(scanner interface{ Scan(...any) error }) (*symbols.Declaration, error) {
	var (
		kind            string
		d               symbols.Declaration
		endLine, endCol int
		pk, pn          sql.NullString
		pl, pc          sql.NullInt64
	)
	if err := scanner.Scan(&kind, &d.ID.Path, &d.ID.Line, &d.ID.Column, &d.ID.Name,
		&endLine, &endCol, &pk, &pl, &pc, &pn); err != nil {
		return nil, fmt.Errorf("scan declaration: %w", err)
	}
	k, ok := symbols.ParseKind(kind)
	if !ok {
		return nil, fmt.Errorf("scan declaration: unknown kind %q", kind)
	}
	d.ID.Kind = k
	d.Span = tokenizer.Span{
		File:        d.ID.Path,
		StartLine:   d.ID.Line,
		StartColumn: d.ID.Column,
		EndLine:     endLine,
		EndColumn:   endCol,
		StartOffset: -1,
		EndOffset:   -1,
	}
	if pk.Valid {
		parent := symbols.ID{Path: d.ID.Path, Name: pn.String, Line: int(pl.Int64), Column: int(pc.Int64)}
		if parent.Kind, ok = symbols.ParseKind(pk.String); !ok {
			return nil, fmt.Errorf("scan declaration: unknown parent kind %q", pk.String)
		}
		d.Parent = &parent
	}
	return &d, nil
}

// Usages returns the saved usages of id in the order the live index
// reports them: the declaration site, references, then external usages.
func (s *Store) Usages(ctx context.Context, id symbols.ID, opts index.FindUsagesOptions) ([]index.Usage, error) {
	var out []index.Usage
	if id.Kind.Navigable() || opts.IncludeDeclaration {
		row := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT kind, path, line, col, name, end_line, end_col, parent_kind, parent_line, parent_col, parent_name
			FROM declarations WHERE kind = ? AND path = ? AND line = ? AND col = ? AND name = ?`),
			id.Kind.String(), id.Path, id.Line, id.Column, id.Name)
		d, err := scanDeclaration(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		default:
			out = append(out, index.Usage{Path: d.ID.Path, Span: d.Span, Kind: index.Declaration})
		}
	}

	refs, err := s.queryUsages(ctx, `SELECT path, start_line, start_col, end_line, end_col, '', ''
		FROM references_ WHERE decl_kind = ? AND decl_path = ? AND decl_line = ? AND decl_col = ? AND decl_name = ?`,
		index.Reference, id)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	ext, err := s.queryUsages(ctx, `SELECT path, line, col, line, col, handle, language
		FROM external_usages WHERE decl_kind = ? AND decl_path = ? AND decl_line = ? AND decl_col = ? AND decl_name = ?`,
		index.External, id)
	if err != nil {
		return nil, fmt.Errorf("query external usages: %w", err)
	}
	return append(append(out, refs...), ext...), nil
}

func (s *Store) queryUsages(ctx context.Context, query string, kind index.UsageKind, id symbols.ID) ([]index.Usage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), id.Kind.String(), id.Path, id.Line, id.Column, id.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []index.Usage
	for rows.Next() {
		u := index.Usage{Kind: kind}
		u.Span.StartOffset, u.Span.EndOffset = -1, -1
		if err := rows.Scan(&u.Path, &u.Span.StartLine, &u.Span.StartColumn,
			&u.Span.EndLine, &u.Span.EndColumn, &u.Handle, &u.Language); err != nil {
			return nil, err
		}
		u.Span.File = u.Path
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b index.Usage) int {
		return cmp.Or(
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.Span.StartLine, b.Span.StartLine),
			cmp.Compare(a.Span.StartColumn, b.Span.StartColumn),
			cmp.Compare(a.Handle, b.Handle),
		)
	})
	return out, nil
}
