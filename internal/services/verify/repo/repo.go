// Package repo provides the verification repository implementation.
// Verdicts only ever update rows the importer created; the composite keys
// (email, problem_statement) and (email, profile_link) keep writes
// idempotent and one-row-per-target
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skillproof/internal/modkit/repokit"
	perr "skillproof/internal/platform/errors"
	"skillproof/internal/services/verify/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the verification repository
type Storage interface {
	FetchPendingBadges(ctx context.Context, limit int, force bool) ([]domain.Target, error)
	FetchPendingProfiles(ctx context.Context, limit int, force bool) ([]domain.Target, error)
	UpsertVerdicts(ctx context.Context, rs []domain.Result, force bool) error
	IsCurrentlyValid(ctx context.Context, t domain.Target) (bool, error)
	MarkMissingBadges(ctx context.Context) (int64, error)
	RecordRun(ctx context.Context, s domain.Summary) error
	LastRun(ctx context.Context) (domain.Summary, error)
}

// FetchPendingBadges implements Storage. Pending means valid IS NULL with a
// usable link; force widens to every row with a usable link
func (s *pg) FetchPendingBadges(ctx context.Context, limit int, force bool) ([]domain.Target, error) {
	sql := `
		SELECT email, problem_statement, share_skill_badge_public_link
		FROM courses
		WHERE share_skill_badge_public_link IS NOT NULL
			AND btrim(share_skill_badge_public_link) <> ''
			AND btrim(share_skill_badge_public_link) <> '-'`
	if !force {
		sql += `
			AND valid IS NULL`
	}
	sql += `
		ORDER BY email, problem_statement`
	var args []any
	if limit > 0 {
		sql += `
		LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgres(err, "fetch pending badges")
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t := domain.Target{Entity: domain.EntityBadge}
		if err := rows.Scan(&t.Email, &t.CredentialKey, &t.ClaimedURL); err != nil {
			return nil, perr.FromPostgres(err, "scan pending badge")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FetchPendingProfiles implements Storage
func (s *pg) FetchPendingProfiles(ctx context.Context, limit int, force bool) ([]domain.Target, error) {
	sql := `
		SELECT email, google_cloud_skills_boost_profile_link
		FROM skillboost_profile
		WHERE google_cloud_skills_boost_profile_link IS NOT NULL
			AND btrim(google_cloud_skills_boost_profile_link) <> ''
			AND btrim(google_cloud_skills_boost_profile_link) <> '-'`
	if !force {
		sql += `
			AND valid IS NULL`
	}
	sql += `
		ORDER BY email`
	var args []any
	if limit > 0 {
		sql += `
		LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgres(err, "fetch pending profiles")
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t := domain.Target{Entity: domain.EntityProfile, CredentialKey: "profile"}
		if err := rows.Scan(&t.Email, &t.ClaimedURL); err != nil {
			return nil, perr.FromPostgres(err, "scan pending profile")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertVerdicts implements Storage. Stored valid=TRUE rows are protected:
// non-forced writes skip them entirely, and even forced writes only let a
// terminal outcome through. Pending results update remarks and the
// extracted date without touching valid
func (s *pg) UpsertVerdicts(ctx context.Context, rs []domain.Result, force bool) error {
	for _, r := range rs {
		if err := s.upsertOne(ctx, r, force); err != nil {
			return err
		}
	}
	return nil
}

func (s *pg) upsertOne(ctx context.Context, r domain.Result, force bool) error {
	terminal := r.Verdict.Status != domain.StatusPending

	// forced downgrades require a terminal outcome; transient failures
	// never unset a stored valid verdict
	guard := ``
	if !force || !terminal {
		guard = ` AND valid IS DISTINCT FROM TRUE`
	}

	var valid *bool
	if terminal {
		v := r.Verdict.Status == domain.StatusValid
		valid = &v
	}

	if r.Target.Entity == domain.EntityProfile {
		sql := `
			UPDATE skillboost_profile
			SET valid = CASE WHEN $3::bool IS NULL THEN valid ELSE $3 END,
				remarks = $4,
				updated_at = now()
			WHERE email = $1 AND google_cloud_skills_boost_profile_link = $2` + guard
		_, err := s.q.Exec(ctx, sql, r.Target.Email, r.Target.ClaimedURL, valid, r.Verdict.Evidence)
		if err != nil {
			return perr.FromPostgres(err, "upsert profile verdict")
		}
		return nil
	}

	sql := `
		UPDATE courses
		SET valid = CASE WHEN $3::bool IS NULL THEN valid ELSE $3 END,
			remarks = $4,
			issued_on = COALESCE($5, issued_on),
			updated_at = now()
		WHERE email = $1 AND problem_statement = $2` + guard
	_, err := s.q.Exec(ctx, sql,
		r.Target.Email, r.Target.CredentialKey, valid, r.Verdict.Evidence, r.Verdict.ExtractedDate,
	)
	if err != nil {
		return perr.FromPostgres(err, "upsert badge verdict")
	}
	return nil
}

// IsCurrentlyValid implements Storage
func (s *pg) IsCurrentlyValid(ctx context.Context, t domain.Target) (bool, error) {
	var sql string
	var args []any
	if t.Entity == domain.EntityProfile {
		sql = `
			SELECT COALESCE(bool_or(valid IS TRUE), FALSE)
			FROM skillboost_profile
			WHERE email = $1 AND google_cloud_skills_boost_profile_link = $2`
		args = []any{t.Email, t.ClaimedURL}
	} else {
		sql = `
			SELECT COALESCE(bool_or(valid IS TRUE), FALSE)
			FROM courses
			WHERE email = $1 AND problem_statement = $2`
		args = []any{t.Email, t.CredentialKey}
	}
	var valid bool
	if err := s.q.QueryRow(ctx, sql, args...).Scan(&valid); err != nil {
		return false, perr.FromPostgres(err, "check current validity")
	}
	return valid, nil
}

// MarkMissingBadges implements Storage. Only pending rows flip; terminal
// verdicts are left alone
func (s *pg) MarkMissingBadges(ctx context.Context) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE courses
		SET valid = FALSE, remarks = 'No badge link provided', updated_at = now()
		WHERE valid IS NULL
			AND (share_skill_badge_public_link IS NULL
				OR btrim(share_skill_badge_public_link) = ''
				OR btrim(share_skill_badge_public_link) = '-')`)
	if err != nil {
		return 0, perr.FromPostgres(err, "mark missing badge links")
	}
	return tag.RowsAffected(), nil
}

// RecordRun implements Storage
func (s *pg) RecordRun(ctx context.Context, sum domain.Summary) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO verification_runs
			(id, started_at, finished_at,
			profiles_verified, profiles_failed, profiles_pending,
			badges_verified, badges_failed, badges_pending,
			errors, error_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		sum.RunID, sum.StartedAt, sum.FinishedAt,
		sum.ProfilesVerified, sum.ProfilesFailed, sum.ProfilesPending,
		sum.BadgesVerified, sum.BadgesFailed, sum.BadgesPending,
		sum.Errors, sum.TotalErrors,
	)
	if err != nil {
		return perr.FromPostgres(err, "record verification run")
	}
	return nil
}

// LastRun implements Storage
func (s *pg) LastRun(ctx context.Context) (domain.Summary, error) {
	var sum domain.Summary
	var started, finished time.Time
	err := s.q.QueryRow(ctx, `
		SELECT id, started_at, finished_at,
			profiles_verified, profiles_failed, profiles_pending,
			badges_verified, badges_failed, badges_pending,
			errors, error_count
		FROM verification_runs
		ORDER BY started_at DESC
		LIMIT 1`).Scan(
		&sum.RunID, &started, &finished,
		&sum.ProfilesVerified, &sum.ProfilesFailed, &sum.ProfilesPending,
		&sum.BadgesVerified, &sum.BadgesFailed, &sum.BadgesPending,
		&sum.Errors, &sum.TotalErrors,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Summary{}, perr.NotFoundf("no verification runs recorded")
		}
		return domain.Summary{}, perr.FromPostgres(err, "load last run")
	}
	sum.StartedAt = started
	sum.FinishedAt = finished
	return sum, nil
}
