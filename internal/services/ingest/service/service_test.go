package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"skillproof/internal/modkit/repokit"
	"skillproof/internal/services/ingest/domain"
	"skillproof/internal/services/ingest/repo"
)

// fakeDB satisfies repokit.TxRunner; statements never reach it because the
// fake binder ignores the queryer
type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeDB) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeDB) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (d fakeDB) Tx(_ context.Context, fn func(q repokit.Queryer) error) error   { return fn(d) }

type mcFlags struct {
	live, recorded *bool
}

// fakeStorage is an in-memory Storage. Presence in badges/profiles means the
// row exists; the pointer carries the stored valid tri-state
type fakeStorage struct {
	inserts    []domain.Row
	updates    []domain.Row
	updateKeys []map[string]any

	existing map[string]bool
	badges   map[string]*bool
	profiles map[string]*bool
	classes  map[string]mcFlags
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		existing: map[string]bool{},
		badges:   map[string]*bool{},
		profiles: map[string]*bool{},
		classes:  map[string]mcFlags{},
	}
}

func renderKeys(keys map[string]any) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, k := range names {
		fmt.Fprintf(&sb, "%s=%v;", k, keys[k])
	}
	return sb.String()
}

func (f *fakeStorage) Exists(_ context.Context, _ domain.Table, keys map[string]any) (bool, error) {
	return f.existing[renderKeys(keys)], nil
}

func (f *fakeStorage) Insert(_ context.Context, _ domain.Table, row domain.Row) error {
	f.inserts = append(f.inserts, row)
	return nil
}

func (f *fakeStorage) Update(_ context.Context, _ domain.Table, row domain.Row, keys map[string]any) error {
	f.updates = append(f.updates, row)
	f.updateKeys = append(f.updateKeys, keys)
	return nil
}

func (f *fakeStorage) BadgeValid(_ context.Context, email, ps string) (bool, bool, error) {
	v, ok := f.badges[email+"|"+ps]
	if !ok {
		return false, false, nil
	}
	return true, v != nil && *v, nil
}

func (f *fakeStorage) ProfileValid(_ context.Context, email, link string) (bool, bool, error) {
	v, ok := f.profiles[email+"|"+link]
	if !ok {
		return false, false, nil
	}
	return true, v != nil && *v, nil
}

func (f *fakeStorage) MasterClassFlags(_ context.Context, email, name string) (bool, *bool, *bool, error) {
	fl, ok := f.classes[email+"|"+name]
	if !ok {
		return false, nil, nil, nil
	}
	return true, fl.live, fl.recorded, nil
}

type fakeBinder struct{ st repo.Storage }

func (b fakeBinder) Bind(repokit.Queryer) repo.Storage { return b.st }

func newTestService(st repo.Storage) *Service {
	return New(fakeDB{}, fakeBinder{st: st}, Config{})
}

func bp(b bool) *bool { return &b }

const badgeCSV = "Email,Problem Statement,Badge Link\n" +
	"verified@b.test,Build with AI,https://www.cloudskillsboost.google/public_profiles/x/badges/1\n" +
	"stale@b.test,Build with AI,https://www.cloudskillsboost.google/public_profiles/y/badges/2\n"

var badgeSpec = domain.Spec{
	Table: domain.TableCourses,
	Mapping: map[string]string{
		"Email":             "email",
		"Problem Statement": "problem_statement",
		"Badge Link":        "share_skill_badge_public_link",
	},
	Mode: domain.ModeCreateUpdate,
}

func TestImportSkipsVerifiedBadges(t *testing.T) {
	st := newFakeStorage()
	st.badges["verified@b.test|Build with AI"] = bp(true)
	st.badges["stale@b.test|Build with AI"] = nil

	stats, err := newTestService(st).Import(context.Background(), strings.NewReader(badgeCSV), badgeSpec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Updated != 1 || stats.Created != 0 {
		t.Fatalf("stats = %+v, want 1 skipped, 1 updated", stats)
	}
	if len(st.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(st.updates))
	}
	// the accepted link re-enters the verification queue
	row := st.updates[0]
	if v, ok := row["valid"]; !ok || v != nil {
		t.Fatalf("update kept valid = %#v, want explicit NULL", v)
	}
	if v, ok := row["remarks"]; !ok || v != nil {
		t.Fatalf("update kept remarks = %#v, want explicit NULL", v)
	}
	if st.updateKeys[0]["email"] != "stale@b.test" {
		t.Fatalf("updated wrong row: %v", st.updateKeys[0])
	}
}

func TestImportSkipsVerifiedProfiles(t *testing.T) {
	st := newFakeStorage()
	st.profiles["a@b.test|https://www.skills.google/public_profiles/abc"] = bp(true)

	csv := "Email,Profile\na@b.test,https://www.skills.google/public_profiles/abc\n"
	spec := domain.Spec{
		Table: domain.TableProfiles,
		Mapping: map[string]string{
			"Email":   "email",
			"Profile": "google_cloud_skills_boost_profile_link",
		},
		Mode: domain.ModeCreateUpdate,
	}
	stats, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), spec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || len(st.updates) != 0 || len(st.inserts) != 0 {
		t.Fatalf("verified profile was touched: %+v", stats)
	}
}

var classSpec = domain.Spec{
	Table: domain.TableMasterClasses,
	Mapping: map[string]string{
		"Email":    "email",
		"Live":     "live",
		"Recorded": "recorded",
	},
	Mode:   domain.ModeCreateUpdate,
	Inject: map[string]string{"master_class_name": "Intro to Gemini"},
}

func TestImportLivePlusRecordedStoresRecordedNull(t *testing.T) {
	st := newFakeStorage()
	csv := "Email,Live,Recorded\na@b.test,yes,yes\n"

	stats, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), classSpec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 1 || len(st.inserts) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	row := st.inserts[0]
	if row["live"] != true {
		t.Fatalf("live = %#v, want true", row["live"])
	}
	if v, ok := row["recorded"]; !ok || v != nil {
		t.Fatalf("recorded = %#v, want explicit NULL", v)
	}
	if row["master_class_name"] != "Intro to Gemini" {
		t.Fatalf("injected column missing: %v", row)
	}
}

func TestImportProtectsVerifiedMasterClassFlags(t *testing.T) {
	st := newFakeStorage()
	st.classes["a@b.test|Intro to Gemini"] = mcFlags{live: bp(true)}

	csv := "Email,Live,Recorded\na@b.test,no,yes\n"
	stats, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), classSpec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 || len(st.updates) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	row := st.updates[0]
	if _, ok := row["live"]; ok {
		t.Fatalf("verified live flag was overwritten: %v", row)
	}
	if row["recorded"] != true {
		t.Fatalf("recorded = %#v, want true", row["recorded"])
	}
}

func TestImportModeMatrix(t *testing.T) {
	spec := func(m domain.Mode) domain.Spec {
		return domain.Spec{
			Table:   domain.TableUserPII,
			Mapping: map[string]string{"Email": "email", "Name": "name"},
			Mode:    m,
		}
	}
	csv := "Email,Name\na@b.test,Ada\n"

	cases := []struct {
		name    string
		mode    domain.Mode
		exists  bool
		created int
		updated int
		skipped int
	}{
		{"create on missing", domain.ModeCreate, false, 1, 0, 0},
		{"create on existing skips", domain.ModeCreate, true, 0, 0, 1},
		{"update on existing", domain.ModeUpdate, true, 0, 1, 0},
		{"update on missing skips", domain.ModeUpdate, false, 0, 0, 1},
		{"create_update on existing", domain.ModeCreateUpdate, true, 0, 1, 0},
		{"create_update on missing", domain.ModeCreateUpdate, false, 1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStorage()
			if tc.exists {
				st.existing["email=a@b.test;"] = true
			}
			stats, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), spec(tc.mode))
			if err != nil {
				t.Fatal(err)
			}
			if stats.Created != tc.created || stats.Updated != tc.updated || stats.Skipped != tc.skipped {
				t.Fatalf("stats = %+v, want %d/%d/%d", stats, tc.created, tc.updated, tc.skipped)
			}
		})
	}
}

func TestImportBadRowIsIsolated(t *testing.T) {
	st := newFakeStorage()
	csv := "Email,Name\nnot-an-email,Ada\nb@b.test,Grace\n"
	spec := domain.Spec{
		Table:   domain.TableUserPII,
		Mapping: map[string]string{"Email": "email", "Name": "name"},
		Mode:    domain.ModeCreate,
	}

	stats, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), spec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 1 || stats.Skipped != 1 || stats.TotalErrors != 1 {
		t.Fatalf("stats = %+v, want the bad row skipped and the good row created", stats)
	}
	if len(stats.Errors) != 1 || !strings.Contains(stats.Errors[0], "email") {
		t.Fatalf("errors = %v", stats.Errors)
	}
	if st.inserts[0]["email"] != "b@b.test" {
		t.Fatalf("wrong row created: %v", st.inserts[0])
	}
}

func TestImportNormalizesEmail(t *testing.T) {
	st := newFakeStorage()
	csv := "Email,Name\n  ADA@B.Test ,Ada\n"
	spec := domain.Spec{
		Table:   domain.TableUserPII,
		Mapping: map[string]string{"Email": "email", "Name": "name"},
		Mode:    domain.ModeCreate,
	}
	if _, err := newTestService(st).Import(context.Background(), strings.NewReader(csv), spec); err != nil {
		t.Fatal(err)
	}
	if st.inserts[0]["email"] != "ada@b.test" {
		t.Fatalf("email = %#v, want lowercased and trimmed", st.inserts[0]["email"])
	}
}

func TestImportRejectsUnknownTableAndMode(t *testing.T) {
	st := newFakeStorage()
	if _, err := newTestService(st).Import(context.Background(), strings.NewReader("a\n"), domain.Spec{
		Table: "nope", Mapping: map[string]string{"a": "a"}, Mode: domain.ModeCreate,
	}); err == nil {
		t.Fatal("unknown table accepted")
	}
	if _, err := newTestService(st).Import(context.Background(), strings.NewReader("a\n"), domain.Spec{
		Table: domain.TableUserPII, Mapping: map[string]string{"Email": "email"}, Mode: "upsert",
	}); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestConvert(t *testing.T) {
	dob := time.Date(2001, time.February, 3, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		col  string
		raw  string
		want any
		keep bool
	}{
		{"valid", "yes", true, true},
		{"valid", "No", false, true},
		{"live", "1", true, true},
		{"recorded", "0", false, true},
		{"recorded", "-", nil, true},
		{"live", "null", nil, true},
		{"watch_time", "45:30", 45, true},
		{"total_duration", "1:05:30", 65, true},
		{"time_watched", "90", 90, true},
		{"time_watched", "-", nil, true},
		{"date_of_birth", "2001-02-03", dob, true},
		{"date_of_birth", "2001-02-03T10:00:00Z", dob, true},
		{"name", "  Ada  ", "Ada", true},
		{"name", "", nil, false},
		// placeholder links survive so missing-link sweeps can find them
		{"share_skill_badge_public_link", "-", "-", true},
	}
	for _, tc := range cases {
		t.Run(tc.col+"/"+tc.raw, func(t *testing.T) {
			got, keep, err := convert(tc.col, tc.raw)
			if err != nil {
				t.Fatal(err)
			}
			if keep != tc.keep {
				t.Fatalf("keep = %v, want %v", keep, tc.keep)
			}
			if !keep {
				return
			}
			if wantT, ok := tc.want.(time.Time); ok {
				gotT, ok := got.(time.Time)
				if !ok || !gotT.Equal(wantT) {
					t.Fatalf("convert(%s, %q) = %#v, want %v", tc.col, tc.raw, got, wantT)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("convert(%s, %q) = %#v, want %#v", tc.col, tc.raw, got, tc.want)
			}
		})
	}
}

func TestConvertRejectsGarbage(t *testing.T) {
	if _, _, err := convert("valid", "maybe"); err == nil {
		t.Fatal("bad boolean accepted")
	}
	if _, _, err := convert("watch_time", "soon"); err == nil {
		t.Fatal("bad duration accepted")
	}
}
