// Package repo provides the ingest repository implementation. Identifiers
// are only ever taken from the domain column allow-list, never from CSV input
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"skillproof/internal/modkit/repokit"
	perr "skillproof/internal/platform/errors"
	"skillproof/internal/services/ingest/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the ingest repository
type Storage interface {
	Exists(ctx context.Context, t domain.Table, keys map[string]any) (bool, error)
	Insert(ctx context.Context, t domain.Table, row domain.Row) error
	Update(ctx context.Context, t domain.Table, row domain.Row, keys map[string]any) error

	// BadgeValid and ProfileValid drive the import-time protection rule
	BadgeValid(ctx context.Context, email, problemStatement string) (exists bool, valid bool, err error)
	ProfileValid(ctx context.Context, email, link string) (exists bool, valid bool, err error)
	// MasterClassFlags returns the stored live/recorded booleans, nil when unset
	MasterClassFlags(ctx context.Context, email, name string) (exists bool, live, recorded *bool, err error)
}

// ident validates a SQL identifier against the table's allow-list
func ident(t domain.Table, col string) (string, error) {
	if !domain.KnownColumn(t, col) {
		return "", perr.InvalidArgf("unknown column %q for table %s", col, t)
	}
	return col, nil
}

// sortedCols gives deterministic statement shapes for tests and plan reuse
func sortedCols(row domain.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Exists implements Storage
func (s *pg) Exists(ctx context.Context, t domain.Table, keys map[string]any) (bool, error) {
	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT EXISTS (SELECT 1 FROM %s WHERE ", t)
	for i, c := range sortedCols(domain.Row(keys)) {
		col, err := ident(t, c)
		if err != nil {
			return false, err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		args = append(args, keys[c])
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
	}
	sb.WriteString(")")

	var exists bool
	if err := s.q.QueryRow(ctx, sb.String(), args...).Scan(&exists); err != nil {
		return false, perr.FromPostgresf(err, "exists check on %s", t)
	}
	return exists, nil
}

// Insert implements Storage
func (s *pg) Insert(ctx context.Context, t domain.Table, row domain.Row) error {
	cols := sortedCols(row)
	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "INSERT INTO %s (", t)
	for i, c := range cols {
		col, err := ident(t, c)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col)
		args = append(args, row[c])
	}
	sb.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", i+1)
	}
	sb.WriteString(")")

	if _, err := s.q.Exec(ctx, sb.String(), args...); err != nil {
		return perr.FromPostgresf(err, "insert into %s", t)
	}
	return nil
}

// Update implements Storage. Key columns are excluded from the SET list
func (s *pg) Update(ctx context.Context, t domain.Table, row domain.Row, keys map[string]any) error {
	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "UPDATE %s SET ", t)

	wrote := false
	for _, c := range sortedCols(row) {
		if _, isKey := keys[c]; isKey {
			continue
		}
		col, err := ident(t, c)
		if err != nil {
			return err
		}
		if wrote {
			sb.WriteString(", ")
		}
		args = append(args, row[c])
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
		wrote = true
	}
	if wrote {
		sb.WriteString(", ")
	}
	sb.WriteString("updated_at = now() WHERE ")

	for i, c := range sortedCols(domain.Row(keys)) {
		col, err := ident(t, c)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		args = append(args, keys[c])
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
	}

	if _, err := s.q.Exec(ctx, sb.String(), args...); err != nil {
		return perr.FromPostgresf(err, "update %s", t)
	}
	return nil
}

// BadgeValid implements Storage
func (s *pg) BadgeValid(ctx context.Context, email, problemStatement string) (bool, bool, error) {
	var exists, valid bool
	err := s.q.QueryRow(ctx, `
		SELECT TRUE, valid IS TRUE
		FROM courses
		WHERE email = $1 AND problem_statement = $2`,
		email, problemStatement,
	).Scan(&exists, &valid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, perr.FromPostgres(err, "badge validity check")
	}
	return exists, valid, nil
}

// ProfileValid implements Storage
func (s *pg) ProfileValid(ctx context.Context, email, link string) (bool, bool, error) {
	var exists, valid bool
	err := s.q.QueryRow(ctx, `
		SELECT TRUE, valid IS TRUE
		FROM skillboost_profile
		WHERE email = $1 AND google_cloud_skills_boost_profile_link = $2`,
		email, link,
	).Scan(&exists, &valid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, perr.FromPostgres(err, "profile validity check")
	}
	return exists, valid, nil
}

// MasterClassFlags implements Storage
func (s *pg) MasterClassFlags(ctx context.Context, email, name string) (bool, *bool, *bool, error) {
	var live, recorded *bool
	err := s.q.QueryRow(ctx, `
		SELECT live, recorded
		FROM master_classes
		WHERE email = $1 AND master_class_name = $2`,
		email, name,
	).Scan(&live, &recorded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, nil, nil
		}
		return false, nil, nil, perr.FromPostgres(err, "master class flags")
	}
	return true, live, recorded, nil
}
