package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skillproof/internal/adapters/extract"
	"skillproof/internal/adapters/fetch"
	"skillproof/internal/core/dates"
	"skillproof/internal/core/match"
	"skillproof/internal/core/provider"
	"skillproof/internal/services/verify/domain"
)

func pending(evidence string) domain.Verdict {
	return domain.Verdict{Status: domain.StatusPending, Evidence: evidence}
}

func invalid(evidence string) domain.Verdict {
	return domain.Verdict{Status: domain.StatusInvalid, Evidence: evidence}
}

// decide runs the fetch, extract, match, eligibility pipeline for one
// target. The four stages are strictly sequential; the tri-state outcome
// is driven by the fetch tag and the extraction hits, never by nil checks.
// retry reports a transient failure worth re-running the whole cycle for
func decide(ctx context.Context, f fetch.Fetcher, t domain.Target) (v domain.Verdict, retry bool) {
	if t.Entity == domain.EntityProfile {
		return decideProfile(ctx, f, t)
	}
	return decideBadge(ctx, f, t)
}

func decideBadge(ctx context.Context, f fetch.Fetcher, t domain.Target) (domain.Verdict, bool) {
	kind, u, err := provider.Classify(t.ClaimedURL)
	if err != nil {
		return invalid(err.Error()), false
	}
	if err := provider.CheckBadgePath(kind, u); err != nil {
		return invalid(err.Error()), false
	}

	out := f.Fetch(ctx, u.String())
	switch out.Status {
	case fetch.StatusNotFound:
		return pending("badge page not accessible: " + out.Reason), false
	case fetch.StatusTransient:
		return pending("badge fetch failed: " + out.Reason), true
	}

	doc := extract.NewDoc(out.Page)
	name, ok := extract.Name(kind, doc)
	if !ok {
		return pending(fmt.Sprintf("could not extract badge name (%s)", kind)), false
	}

	var issued *time.Time
	if d, ok := extract.Date(kind, doc); ok {
		issued = &d
	}

	ok, _, detail := match.Match(name, t.CredentialKey)
	if !ok {
		return domain.Verdict{
			Status:        domain.StatusInvalid,
			Evidence:      fmt.Sprintf("badge name mismatch (%s): %s", kind, detail),
			ExtractedDate: issued,
		}, false
	}

	// the cutoff overrides a successful name match
	if issued != nil && !dates.Eligible(*issued) {
		return domain.Verdict{
			Status: domain.StatusInvalid,
			Evidence: fmt.Sprintf("badge issued before %s: %s",
				dates.MinEligible.Format("January 2, 2006"),
				issued.Format("January 2, 2006")),
			ExtractedDate: issued,
		}, false
	}

	// missing date is provisionally acceptable pending later confirmation
	return domain.Verdict{
		Status:        domain.StatusValid,
		Evidence:      fmt.Sprintf("badge verified (%s, %s)", kind, detail),
		ExtractedDate: issued,
	}, false
}

// decideProfile checks shape and accessibility; profile pages carry no
// credential name to match, but the holder name enriches the evidence
func decideProfile(ctx context.Context, f fetch.Fetcher, t domain.Target) (domain.Verdict, bool) {
	kind, u, err := provider.Classify(t.ClaimedURL)
	if err != nil {
		return invalid(err.Error()), false
	}
	if err := provider.CheckProfilePath(kind, u); err != nil {
		return invalid(err.Error()), false
	}

	out := f.Fetch(ctx, u.String())
	switch out.Status {
	case fetch.StatusNotFound:
		return pending("profile not found or inaccessible: " + out.Reason), false
	case fetch.StatusTransient:
		return pending("profile fetch failed: " + out.Reason), true
	}

	if !strings.Contains(out.Page.URL, "public_profiles") {
		return invalid("profile redirected away from public profile: " + out.Page.URL), false
	}

	evidence := "valid profile"
	if name, ok := extract.ProfileName(extract.NewDoc(out.Page)); ok {
		evidence = fmt.Sprintf("valid profile (%s)", name)
	}
	return domain.Verdict{Status: domain.StatusValid, Evidence: evidence}, false
}
