// Package provider classifies claimed credential URLs by hosting platform
// and validates their shape against each platform's URL contract
package provider

import (
	"net/url"
	"regexp"
	"strings"

	perr "skillproof/internal/platform/errors"
)

// Kind identifies the credential hosting platform behind a URL
type Kind int

const (
	// KindUnknown means no supported platform claimed the URL
	KindUnknown Kind = iota
	// KindSkillsBoost is a Google Cloud Skills Boost profile or badge page
	KindSkillsBoost
	// KindCredly is a Credly badge page
	KindCredly
)

// String returns a human label for the platform
func (k Kind) String() string {
	switch k {
	case KindSkillsBoost:
		return "Google Skills Boost"
	case KindCredly:
		return "Credly"
	default:
		return "unknown"
	}
}

const (
	apexHost      = "cloudskillsboost.google"
	credlyHost    = "www.credly.com"
	profilePrefix = "/public_profiles/"
)

var skillsBoostHosts = []string{"www.cloudskillsboost.google", "www.skills.google"}

var (
	skillsBadgePath = regexp.MustCompile(`^/public_profiles/[A-Za-z0-9-]+/badges/\d+`)
	credlyBadgePath = regexp.MustCompile(`^/badges/[A-Za-z0-9-]+`)
)

// IsPlaceholder reports whether raw is a placeholder value rather than a link
func IsPlaceholder(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || s == "-"
}

// Normalize trims the URL, defaults the scheme to https and rewrites the apex
// Skills Boost host to its canonical www form
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	if u, err := url.Parse(s); err == nil && u.Host == apexHost {
		u.Host = "www." + apexHost
		s = u.String()
	}
	return s
}

// Classify normalizes and parses a claimed URL and reports which platform
// hosts it. The returned URL is the normalized, parsed form
func Classify(raw string) (Kind, *url.URL, error) {
	if IsPlaceholder(raw) {
		return KindUnknown, nil, perr.InvalidArgf("empty or placeholder URL")
	}
	u, err := url.Parse(Normalize(raw))
	if err != nil {
		return KindUnknown, nil, perr.InvalidArgf("URL parsing error: %v", err)
	}
	host := strings.ToLower(u.Host)
	for _, h := range skillsBoostHosts {
		if host == h {
			return KindSkillsBoost, u, nil
		}
	}
	if host == credlyHost {
		return KindCredly, u, nil
	}
	return KindUnknown, u, perr.InvalidArgf(
		"incorrect domain %q (must be %s or %s)",
		u.Host, strings.Join(skillsBoostHosts, " or "), credlyHost,
	)
}

// CheckBadgePath validates the badge path shape for the platform
func CheckBadgePath(k Kind, u *url.URL) error {
	switch k {
	case KindSkillsBoost:
		if !skillsBadgePath.MatchString(u.Path) {
			return perr.InvalidArgf("incorrect path %q (must be /public_profiles/{id}/badges/{badge_id})", u.Path)
		}
	case KindCredly:
		if !credlyBadgePath.MatchString(u.Path) {
			return perr.InvalidArgf("incorrect path %q (must be /badges/{id})", u.Path)
		}
	default:
		return perr.InvalidArgf("unsupported platform for badge URL")
	}
	return nil
}

// CheckProfilePath validates a public learning-profile link.
// Profiles exist only on Skills Boost
func CheckProfilePath(k Kind, u *url.URL) error {
	if k != KindSkillsBoost {
		return perr.InvalidArgf(
			"incorrect domain %q (profile must be on %s)",
			u.Host, strings.Join(skillsBoostHosts, " or "),
		)
	}
	if !strings.HasPrefix(u.Path, profilePrefix) {
		return perr.InvalidArgf("incorrect path %q (must start with %s)", u.Path, profilePrefix)
	}
	return nil
}
