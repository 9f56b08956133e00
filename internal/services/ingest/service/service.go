// Package service implements the column-mapped CSV importer
package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"skillproof/internal/modkit/repokit"
	perr "skillproof/internal/platform/errors"
	"skillproof/internal/platform/logger"
	"skillproof/internal/platform/validate"
	"skillproof/internal/services/ingest/domain"
	"skillproof/internal/services/ingest/repo"
)

// Config tunes the importer
type Config struct {
	// LogEvery is the progress log cadence in rows, default 100
	LogEvery int
}

func (c *Config) defaults() {
	if c.LogEvery <= 0 {
		c.LogEvery = 100
	}
}

// Service implements domain.ImporterPort
type Service struct {
	db     repokit.TxRunner
	binder repokit.Binder[repo.Storage]
	cfg    Config
}

// New constructs the importer service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage], cfg Config) *Service {
	cfg.defaults()
	return &Service{db: db, binder: binder, cfg: cfg}
}

// Import implements domain.ImporterPort. Each row commits in its own
// transaction so one bad row never takes the file down with it
func (s *Service) Import(ctx context.Context, r io.Reader, spec domain.Spec) (domain.Stats, error) {
	var stats domain.Stats
	if len(domain.Columns(spec.Table)) == 0 {
		return stats, perr.InvalidArgf("unknown table %q", spec.Table)
	}
	if !spec.Mode.Valid() {
		return stats, perr.InvalidArgf("unknown mode %q", spec.Mode)
	}
	if len(spec.Mapping) == 0 && len(spec.Inject) == 0 {
		return stats, perr.InvalidArgf("empty column mapping")
	}
	for col := range spec.Inject {
		if !domain.KnownColumn(spec.Table, col) {
			return stats, perr.InvalidArgf("unknown inject column %q for table %s", col, spec.Table)
		}
	}

	log := logger.C(ctx)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return stats, perr.InvalidArgf("read header: %v", err)
	}
	cols := resolveColumns(spec, header)

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		stats.TotalRows++
		if err != nil {
			stats.Skipped++
			stats.AddError(fmt.Sprintf("row %d: %v", line, err))
			continue
		}

		row, err := buildRow(spec, cols, rec)
		if err != nil {
			stats.Skipped++
			stats.AddError(fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		if err := s.importRow(ctx, spec, row, &stats); err != nil {
			stats.Skipped++
			stats.AddError(fmt.Sprintf("row %d: %v", line, err))
		}

		if stats.TotalRows%s.cfg.LogEvery == 0 {
			log.Info().
				Int("rows", stats.TotalRows).
				Int("created", stats.Created).
				Int("updated", stats.Updated).
				Int("skipped", stats.Skipped).
				Msg("import progress")
		}
	}

	log.Info().
		Str("table", string(spec.Table)).
		Int("rows", stats.TotalRows).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("errors", stats.TotalErrors).
		Msg("import complete")
	return stats, nil
}

// resolveColumns maps header positions onto database columns. Unmapped or
// unknown headers are dropped
func resolveColumns(spec domain.Spec, header []string) []string {
	cols := make([]string, len(header))
	for i, h := range header {
		name := spec.Mapping[strings.TrimSpace(h)]
		if name == "" || !domain.KnownColumn(spec.Table, name) {
			continue
		}
		cols[i] = name
	}
	return cols
}

// buildRow converts one record into a typed row and validates its keys
func buildRow(spec domain.Spec, cols []string, rec []string) (domain.Row, error) {
	row := make(domain.Row, len(cols)+len(spec.Inject))
	for i, col := range cols {
		if col == "" || i >= len(rec) {
			continue
		}
		v, keep, err := convert(col, rec[i])
		if err != nil {
			return nil, err
		}
		if keep {
			row[col] = v
		}
	}
	for col, v := range spec.Inject {
		row[col] = v
	}

	if e, ok := row["email"].(string); ok {
		row["email"] = strings.ToLower(strings.TrimSpace(e))
	}
	for _, k := range domain.RequiredKeys(spec.Table) {
		if v, ok := row[k]; !ok || v == nil || v == "" {
			return nil, perr.Validationf("missing %s", k)
		}
	}
	if err := validate.Var(row["email"], "required,email"); err != nil {
		return nil, perr.Validationf("email %v: %s", row["email"], validate.Message(err))
	}
	return row, nil
}

// importRow applies one row inside its own transaction
func (s *Service) importRow(ctx context.Context, spec domain.Spec, row domain.Row, stats *domain.Stats) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		st := s.binder.Bind(q)
		switch spec.Table {
		case domain.TableCourses:
			return s.importCourse(ctx, st, spec, row, stats)
		case domain.TableProfiles:
			return s.importProfile(ctx, st, spec, row, stats)
		case domain.TableMasterClasses:
			return s.importMasterClass(ctx, st, spec, row, stats)
		default:
			return s.importKeyed(ctx, st, spec, row, stats)
		}
	})
}

// importKeyed handles user_pii with caller-chosen update keys, default email
func (s *Service) importKeyed(
	ctx context.Context,
	st repo.Storage,
	spec domain.Spec,
	row domain.Row,
	stats *domain.Stats,
) error {
	keys := spec.UpdateKeys
	if len(keys) == 0 {
		keys = []string{"email"}
	}
	filter := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := row[k]
		if !ok {
			return perr.Validationf("missing update key %s", k)
		}
		filter[k] = v
	}

	exists, err := st.Exists(ctx, spec.Table, filter)
	if err != nil {
		return err
	}
	switch {
	case exists && spec.Mode.CanUpdate():
		if err := st.Update(ctx, spec.Table, row, filter); err != nil {
			return err
		}
		stats.Updated++
	case !exists && spec.Mode.CanCreate():
		if err := st.Insert(ctx, spec.Table, row); err != nil {
			return err
		}
		stats.Created++
	default:
		stats.Skipped++
	}
	return nil
}

// importCourse applies the badge protection rule: a row already verified
// valid is never overwritten, and accepting a new link resets the verdict so
// the row re-enters the verification queue
func (s *Service) importCourse(
	ctx context.Context,
	st repo.Storage,
	spec domain.Spec,
	row domain.Row,
	stats *domain.Stats,
) error {
	email, _ := row["email"].(string)
	ps, _ := row["problem_statement"].(string)

	exists, valid, err := st.BadgeValid(ctx, email, ps)
	if err != nil {
		return err
	}
	keys := map[string]any{"email": email, "problem_statement": ps}
	switch {
	case exists && valid:
		stats.Skipped++
	case exists && spec.Mode.CanUpdate():
		row["valid"] = nil
		row["remarks"] = nil
		if err := st.Update(ctx, spec.Table, row, keys); err != nil {
			return err
		}
		stats.Updated++
	case !exists && spec.Mode.CanCreate():
		if err := st.Insert(ctx, spec.Table, row); err != nil {
			return err
		}
		stats.Created++
	default:
		stats.Skipped++
	}
	return nil
}

// importProfile mirrors importCourse for skillboost_profile
func (s *Service) importProfile(
	ctx context.Context,
	st repo.Storage,
	spec domain.Spec,
	row domain.Row,
	stats *domain.Stats,
) error {
	email, _ := row["email"].(string)
	link, _ := row["google_cloud_skills_boost_profile_link"].(string)

	exists, valid, err := st.ProfileValid(ctx, email, link)
	if err != nil {
		return err
	}
	keys := map[string]any{"email": email, "google_cloud_skills_boost_profile_link": link}
	switch {
	case exists && valid:
		stats.Skipped++
	case exists && spec.Mode.CanUpdate():
		row["valid"] = nil
		row["remarks"] = nil
		if err := st.Update(ctx, spec.Table, row, keys); err != nil {
			return err
		}
		stats.Updated++
	case !exists && spec.Mode.CanCreate():
		if err := st.Insert(ctx, spec.Table, row); err != nil {
			return err
		}
		stats.Created++
	default:
		stats.Skipped++
	}
	return nil
}

// importMasterClass protects live and recorded individually once verified
// TRUE, and never stores both TRUE at once
func (s *Service) importMasterClass(
	ctx context.Context,
	st repo.Storage,
	spec domain.Spec,
	row domain.Row,
	stats *domain.Stats,
) error {
	email, _ := row["email"].(string)
	name, _ := row["master_class_name"].(string)

	// live attendance and recorded viewing are mutually exclusive claims
	if isTrue(row["live"]) && isTrue(row["recorded"]) {
		row["recorded"] = nil
	}

	exists, live, recorded, err := st.MasterClassFlags(ctx, email, name)
	if err != nil {
		return err
	}
	keys := map[string]any{"email": email, "master_class_name": name}
	switch {
	case exists && spec.Mode.CanUpdate():
		if live != nil && *live {
			delete(row, "live")
		}
		if recorded != nil && *recorded {
			delete(row, "recorded")
		}
		if err := st.Update(ctx, spec.Table, row, keys); err != nil {
			return err
		}
		stats.Updated++
	case !exists && spec.Mode.CanCreate():
		if err := st.Insert(ctx, spec.Table, row); err != nil {
			return err
		}
		stats.Created++
	default:
		stats.Skipped++
	}
	return nil
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
