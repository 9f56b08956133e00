package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"skillproof/internal/adapters/fetch"
	"skillproof/internal/modkit/repokit"
	"skillproof/internal/platform/testkit"
	"skillproof/internal/services/verify/domain"
	"skillproof/internal/services/verify/repo"
)

// fakeFetcher serves canned outcomes keyed by URL
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fetch.Outcome
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) fetch.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if out, ok := f.pages[url]; ok {
		return out
	}
	return fetch.NotFound("no canned page")
}

func (f *fakeFetcher) Close() {}

// fakeDB satisfies repokit.TxRunner; Tx just runs fn against itself
type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeDB) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeDB) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (db fakeDB) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	return fn(db)
}

// fakeStorage is an in-memory repo.Storage
type fakeStorage struct {
	mu       sync.Mutex
	badges   []domain.Target
	profiles []domain.Target
	valid    map[string]bool
	upserts  []domain.Result
	flushes  int
	runs     []domain.Summary
	failTx   bool
}

func (f *fakeStorage) FetchPendingBadges(context.Context, int, bool) ([]domain.Target, error) {
	return f.badges, nil
}

func (f *fakeStorage) FetchPendingProfiles(context.Context, int, bool) ([]domain.Target, error) {
	return f.profiles, nil
}

func (f *fakeStorage) UpsertVerdicts(_ context.Context, rs []domain.Result, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTx {
		return fmt.Errorf("commit refused")
	}
	f.flushes++
	f.upserts = append(f.upserts, rs...)
	return nil
}

func (f *fakeStorage) IsCurrentlyValid(_ context.Context, t domain.Target) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[t.Key()], nil
}

func (f *fakeStorage) MarkMissingBadges(context.Context) (int64, error) { return 0, nil }

func (f *fakeStorage) RecordRun(_ context.Context, s domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, s)
	return nil
}

func (f *fakeStorage) LastRun(context.Context) (domain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return domain.Summary{}, fmt.Errorf("no runs")
	}
	return f.runs[len(f.runs)-1], nil
}

type fakeBinder struct{ st *fakeStorage }

func (b fakeBinder) Bind(repokit.Queryer) repo.Storage { return b.st }

func newTestService(t *testing.T, st *fakeStorage, f fetch.Fetcher) *Service {
	t.Helper()
	testkit.Serial(t)
	testkit.Swap(t, &sleep, func(time.Duration) {})
	s := New(fakeDB{}, fakeBinder{st: st}, Config{Workers: 4, FlushEvery: 50})
	s.newFetcher = func() (fetch.Fetcher, error) { return f, nil }
	return s
}

const (
	goodBadgeURL = "https://www.cloudskillsboost.google/public_profiles/abc-123/badges/456"
	expectedName = "Build Real World AI Applications with Gemini and Imagen"
)

func badgePage(name, date string) fetch.Outcome {
	body := fmt.Sprintf(
		`<html><body><h1 class="badge-title">%s</h1><div class="public-profile-badge"><span class="date">%s</span></div></body></html>`,
		name, date,
	)
	return fetch.Found(&fetch.Page{URL: goodBadgeURL, Body: body})
}

func badgePageNoDate(name string) fetch.Outcome {
	body := fmt.Sprintf(`<html><body><h1 class="badge-title">%s</h1></body></html>`, name)
	return fetch.Found(&fetch.Page{URL: goodBadgeURL, Body: body})
}

func TestDecideBadgeMatrix(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		outcome  fetch.Outcome
		want     domain.Status
		evidence string
	}{
		{
			"matching name and eligible date",
			goodBadgeURL,
			badgePage(expectedName, "November 2, 2025"),
			domain.StatusValid,
			"badge verified",
		},
		{
			"date before cutoff overrides name match",
			goodBadgeURL,
			badgePage(expectedName, "October 26, 2025"),
			domain.StatusInvalid,
			"October 27, 2025",
		},
		{
			"name mismatch",
			goodBadgeURL,
			badgePage("Introduction to Generative AI", "November 2, 2025"),
			domain.StatusInvalid,
			"mismatch",
		},
		{
			"missing date is provisionally valid",
			goodBadgeURL,
			badgePageNoDate(expectedName),
			domain.StatusValid,
			"badge verified",
		},
		{
			"page not found is pending",
			goodBadgeURL,
			fetch.NotFound("page not found"),
			domain.StatusPending,
			"not accessible",
		},
		{
			"transient fetch is pending",
			goodBadgeURL,
			fetch.Transient("rate limited"),
			domain.StatusPending,
			"fetch failed",
		},
		{
			"unextractable page is pending",
			goodBadgeURL,
			fetch.Found(&fetch.Page{URL: goodBadgeURL, Body: "<html><body></body></html>"}),
			domain.StatusPending,
			"could not extract",
		},
		{
			"wrong domain is invalid without fetch",
			"https://example.com/public_profiles/abc/badges/1",
			fetch.Transient("must not be reached"),
			domain.StatusInvalid,
			"incorrect domain",
		},
		{
			"wrong path is invalid without fetch",
			"https://www.cloudskillsboost.google/paths/abc",
			fetch.Transient("must not be reached"),
			domain.StatusInvalid,
			"incorrect path",
		},
		{
			"placeholder URL is invalid",
			"-",
			fetch.Transient("must not be reached"),
			domain.StatusInvalid,
			"placeholder",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeFetcher{pages: map[string]fetch.Outcome{tc.url: tc.outcome}}
			target := domain.Target{
				Email: "a@b.test", CredentialKey: expectedName,
				ClaimedURL: tc.url, Entity: domain.EntityBadge,
			}
			v, _ := decide(context.Background(), f, target)
			if v.Status != tc.want {
				t.Fatalf("status = %v (%q), want %v", v.Status, v.Evidence, tc.want)
			}
			if !strings.Contains(strings.ToLower(v.Evidence), strings.ToLower(tc.evidence)) {
				t.Fatalf("evidence %q does not mention %q", v.Evidence, tc.evidence)
			}
		})
	}
}

func TestDecideBadgeKeepsExtractedDateOnInvalid(t *testing.T) {
	f := &fakeFetcher{pages: map[string]fetch.Outcome{
		goodBadgeURL: badgePage(expectedName, "October 26, 2025"),
	}}
	target := domain.Target{
		Email: "a@b.test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}
	v, _ := decide(context.Background(), f, target)
	if v.ExtractedDate == nil {
		t.Fatal("invalid verdict lost the extracted date")
	}
	want := time.Date(2025, time.October, 26, 0, 0, 0, 0, time.UTC)
	if !v.ExtractedDate.Equal(want) {
		t.Fatalf("extracted date = %v, want %v", v.ExtractedDate, want)
	}
}

func TestDecideProfile(t *testing.T) {
	profileURL := "https://www.skills.google/public_profiles/abc-123"
	cases := []struct {
		name    string
		url     string
		outcome fetch.Outcome
		want    domain.Status
	}{
		{
			"accessible profile",
			profileURL,
			fetch.Found(&fetch.Page{URL: profileURL, Body: "<html><body>ok</body></html>"}),
			domain.StatusValid,
		},
		{
			"redirected away",
			profileURL,
			fetch.Found(&fetch.Page{URL: "https://www.skills.google/catalog", Body: "<html></html>"}),
			domain.StatusInvalid,
		},
		{
			"inaccessible is pending",
			profileURL,
			fetch.NotFound("page not found"),
			domain.StatusPending,
		},
		{
			"credly host cannot be a profile",
			"https://www.credly.com/badges/abc",
			fetch.Transient("must not be reached"),
			domain.StatusInvalid,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeFetcher{pages: map[string]fetch.Outcome{tc.url: tc.outcome}}
			target := domain.Target{
				Email: "a@b.test", CredentialKey: "profile",
				ClaimedURL: tc.url, Entity: domain.EntityProfile,
			}
			v, _ := decide(context.Background(), f, target)
			if v.Status != tc.want {
				t.Fatalf("status = %v (%q), want %v", v.Status, v.Evidence, tc.want)
			}
		})
	}
}

func TestDecideProfileCarriesHolderName(t *testing.T) {
	profileURL := "https://www.skills.google/public_profiles/abc-123"
	body := `<html><body><h1 class="profile-name">Jane Doe</h1></body></html>`
	f := &fakeFetcher{pages: map[string]fetch.Outcome{
		profileURL: fetch.Found(&fetch.Page{URL: profileURL, Body: body}),
	}}
	target := domain.Target{
		Email: "a@b.test", CredentialKey: "profile",
		ClaimedURL: profileURL, Entity: domain.EntityProfile,
	}
	v, _ := decide(context.Background(), f, target)
	if v.Status != domain.StatusValid {
		t.Fatalf("status = %v (%q), want valid", v.Status, v.Evidence)
	}
	if !strings.Contains(v.Evidence, "Jane Doe") {
		t.Fatalf("evidence %q does not carry the holder name", v.Evidence)
	}
}

// seqFetcher serves outcomes in order; the last one repeats once exhausted
type seqFetcher struct {
	mu    sync.Mutex
	outs  []fetch.Outcome
	calls int
}

func (f *seqFetcher) Fetch(context.Context, string) fetch.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.outs) {
		i = len(f.outs) - 1
	}
	return f.outs[i]
}

func (f *seqFetcher) Close() {}

func (f *seqFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestVerifyOneRetriesTransientFetches(t *testing.T) {
	target := domain.Target{
		Email: "a@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}
	cases := []struct {
		name      string
		outs      []fetch.Outcome
		want      domain.Status
		wantCalls int
	}{
		{
			"recovers within the extra attempts",
			[]fetch.Outcome{
				fetch.Transient("rate limited"),
				fetch.Transient("rate limited"),
				badgePage(expectedName, "November 2, 2025"),
			},
			domain.StatusValid,
			3,
		},
		{
			"exhausts the extra attempts and stays pending",
			[]fetch.Outcome{fetch.Transient("connection refused")},
			domain.StatusPending,
			3,
		},
		{
			"not found is terminal, no re-run",
			[]fetch.Outcome{fetch.NotFound("page not found")},
			domain.StatusPending,
			1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &fakeStorage{valid: map[string]bool{}}
			f := &seqFetcher{outs: tc.outs}
			s := newTestService(t, st, f)

			res := s.verifyOne(context.Background(), f, target, newResultCache(0), false)
			if res.Verdict.Status != tc.want {
				t.Fatalf("status = %v (%q), want %v", res.Verdict.Status, res.Verdict.Evidence, tc.want)
			}
			if got := f.count(); got != tc.wantCalls {
				t.Fatalf("fetched %d times, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestConfigJitterBoundsStayOrdered(t *testing.T) {
	c := Config{JitterMin: time.Second}
	c.defaults()
	if c.JitterMax <= c.JitterMin {
		t.Fatalf("JitterMax = %v not above JitterMin = %v", c.JitterMax, c.JitterMin)
	}
	if want := time.Second + 400*time.Millisecond; c.JitterMax != want {
		t.Fatalf("JitterMax = %v, want %v", c.JitterMax, want)
	}
}

func TestRunWithoutWorkersReturns(t *testing.T) {
	st := &fakeStorage{valid: map[string]bool{}}
	st.badges = []domain.Target{{
		Email: "a@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}}
	s := newTestService(t, st, nil)
	s.newFetcher = func() (fetch.Fetcher, error) {
		return nil, fmt.Errorf("chrome not installed")
	}

	done := make(chan domain.Summary, 1)
	go func() {
		sum, err := s.Run(context.Background(), domain.RunOpts{Badges: true, Workers: 3})
		if err != nil {
			t.Error(err)
		}
		done <- sum
	}()

	select {
	case sum := <-done:
		if sum.TotalErrors == 0 {
			t.Fatal("fetcher failures not surfaced in summary errors")
		}
		if len(st.upserts) != 0 {
			t.Fatalf("verdicts written with no workers: %+v", st.upserts)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return with zero workers started")
	}
}

func TestRunBatchScenario(t *testing.T) {
	// 100 pending badges: 95 fetch cleanly with matching names and eligible
	// dates, 3 have mismatched names, 2 time out
	st := &fakeStorage{valid: map[string]bool{}}
	f := &fakeFetcher{pages: map[string]fetch.Outcome{}}

	for i := 0; i < 100; i++ {
		url := fmt.Sprintf("https://www.cloudskillsboost.google/public_profiles/p-%03d/badges/%d", i, 1000+i)
		st.badges = append(st.badges, domain.Target{
			Email:         fmt.Sprintf("user%03d@test", i),
			CredentialKey: expectedName,
			ClaimedURL:    url,
			Entity:        domain.EntityBadge,
		})
		switch {
		case i < 95:
			body := fmt.Sprintf(
				`<html><body><h1 class="badge-title">%s</h1><div class="public-profile-badge"><span class="date">November 2, 2025</span></div></body></html>`,
				expectedName,
			)
			f.pages[url] = fetch.Found(&fetch.Page{URL: url, Body: body})
		case i < 98:
			body := `<html><body><h1 class="badge-title">Some Other Course</h1></body></html>`
			f.pages[url] = fetch.Found(&fetch.Page{URL: url, Body: body})
		default:
			f.pages[url] = fetch.Transient("request failed: timeout")
		}
	}

	s := newTestService(t, st, f)
	sum, err := s.Run(context.Background(), domain.RunOpts{Badges: true, Workers: 8})
	if err != nil {
		t.Fatal(err)
	}

	if sum.BadgesVerified != 95 || sum.BadgesFailed != 3 || sum.BadgesPending != 2 {
		t.Fatalf("summary = %d valid / %d invalid / %d pending, want 95/3/2",
			sum.BadgesVerified, sum.BadgesFailed, sum.BadgesPending)
	}
	if len(st.upserts) != 100 {
		t.Fatalf("upserted %d verdicts, want 100", len(st.upserts))
	}
	if st.flushes < 2 {
		t.Fatalf("flushed %d times, want >= 2 for 100 results at cadence 50", st.flushes)
	}
	if len(st.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(st.runs))
	}
}

func TestRunProtectsStoredValidOnNonForcedPass(t *testing.T) {
	target := domain.Target{
		Email: "kept@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}
	st := &fakeStorage{
		badges: []domain.Target{target},
		valid:  map[string]bool{target.Key(): true},
	}
	// the live page is now unreachable; the stored verdict must survive
	f := &fakeFetcher{pages: map[string]fetch.Outcome{
		goodBadgeURL: fetch.Transient("connection refused"),
	}}

	s := newTestService(t, st, f)
	sum, err := s.Run(context.Background(), domain.RunOpts{Badges: true})
	if err != nil {
		t.Fatal(err)
	}

	if len(st.upserts) != 0 {
		t.Fatalf("protected target was written: %+v", st.upserts)
	}
	if sum.SkippedValid != 1 {
		t.Fatalf("SkippedValid = %d, want 1", sum.SkippedValid)
	}
	if sum.BadgesVerified+sum.BadgesFailed+sum.BadgesPending != 0 {
		t.Fatalf("skipped target leaked into counters: %+v", sum)
	}
}

func TestRunDeduplicatesTargetsWithinBatch(t *testing.T) {
	target := domain.Target{
		Email: "dup@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}
	st := &fakeStorage{
		badges: []domain.Target{target, target, target},
		valid:  map[string]bool{},
	}
	f := &fakeFetcher{pages: map[string]fetch.Outcome{
		goodBadgeURL: badgePage(expectedName, "November 2, 2025"),
	}}

	s := newTestService(t, st, f)
	sum, err := s.Run(context.Background(), domain.RunOpts{Badges: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.upserts) != 1 {
		t.Fatalf("upserted %d verdicts for duplicated target, want 1", len(st.upserts))
	}
	if sum.BadgesVerified != 1 {
		t.Fatalf("BadgesVerified = %d, want 1", sum.BadgesVerified)
	}
}

func TestRunFlushFailureIsIsolated(t *testing.T) {
	st := &fakeStorage{valid: map[string]bool{}, failTx: true}
	f := &fakeFetcher{pages: map[string]fetch.Outcome{
		goodBadgeURL: badgePage(expectedName, "November 2, 2025"),
	}}
	st.badges = []domain.Target{{
		Email: "a@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}}

	s := newTestService(t, st, f)
	sum, err := s.Run(context.Background(), domain.RunOpts{Badges: true})
	if err != nil {
		t.Fatal(err)
	}
	// the batch summary is still returned and the failure is counted
	if sum.TotalErrors == 0 {
		t.Fatal("flush failure not surfaced in summary errors")
	}
	if sum.BadgesVerified != 1 {
		t.Fatalf("BadgesVerified = %d, want 1 (counters reflect decisions, not commits)", sum.BadgesVerified)
	}
}

func TestSummaryErrorCap(t *testing.T) {
	var sum domain.Summary
	for i := 0; i < 12; i++ {
		sum.AddError(fmt.Sprintf("boom %d", i))
	}
	if len(sum.Errors) != 5 {
		t.Fatalf("detailed errors = %d, want 5", len(sum.Errors))
	}
	if sum.TotalErrors != 12 {
		t.Fatalf("TotalErrors = %d, want 12", sum.TotalErrors)
	}
}

func TestVerifyOnePanicBecomesPending(t *testing.T) {
	st := &fakeStorage{valid: map[string]bool{}}
	s := newTestService(t, st, nil)

	panicky := panicFetcher{}
	res := s.verifyOne(context.Background(), panicky, domain.Target{
		Email: "a@test", CredentialKey: expectedName,
		ClaimedURL: goodBadgeURL, Entity: domain.EntityBadge,
	}, newResultCache(0), false)

	if res.Verdict.Status != domain.StatusPending {
		t.Fatalf("status = %v, want pending", res.Verdict.Status)
	}
	if !strings.Contains(res.Verdict.Evidence, "verification error") {
		t.Fatalf("evidence = %q", res.Verdict.Evidence)
	}
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, string) fetch.Outcome { panic("boom") }
func (panicFetcher) Close()                                      {}
