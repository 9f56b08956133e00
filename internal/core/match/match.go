// Package match scores an extracted credential name against the expected one.
// Normalization pipeline
// 1 Unicode case folding
// 2 Width fold fullwidth to ASCII
// 3 Strip provider boilerplate suffixes and issued-by tails
// 4 Trim trailing punctuation
// 5 Collapse whitespace to single spaces and trim
package match

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// Tier labels which rule accepted a candidate name, strictest first
type Tier string

// Tiers in decreasing order of strictness
const (
	TierNone        Tier = ""
	TierExact       Tier = "exact match"
	TierCore        Tier = "core name match"
	TierContains    Tier = "contains match"
	TierWordOverlap Tier = "word overlap match"
)

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			cases.Fold(), // unicode case folding
			width.Fold,   // map fullwidth forms to ASCII
		)
	},
}

var (
	trackPrefix = regexp.MustCompile(`^\[[^\]]+\]\s*`)
	boilerplate = regexp.MustCompile(`(?i)\s*[-–|]\s*(credly|google skills|google|cloud skills boost|skills boost).*$`)
	issuedBy    = regexp.MustCompile(`(?i)\s+was issued by\s+.*$`)
	wordRe      = regexp.MustCompile(`[a-z0-9]+`)
)

// Normalize returns the comparable form of a credential name following the
// pipeline described above. The bracketed track prefix is kept; stripping it
// is the core tier's job
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	ns = boilerplate.ReplaceAllString(ns, "")
	ns = issuedBy.ReplaceAllString(ns, "")
	ns = strings.TrimRight(strings.TrimSpace(ns), ".,;:!?")
	ns = strings.Join(strings.Fields(ns), " ")
	return strings.TrimSpace(ns)
}

// Core strips the leading bracketed track prefix from an already
// normalized name
func Core(s string) string {
	return strings.TrimSpace(trackPrefix.ReplaceAllString(s, ""))
}

// Match compares an extracted name against the expected one through the
// tiers in order of decreasing strictness. The tier and detail feed the
// verdict evidence so audits can see which rule fired
func Match(found, expected string) (bool, Tier, string) {
	f := Normalize(found)
	e := Normalize(expected)
	if f == "" || e == "" {
		return false, TierNone, "empty name"
	}

	if f == e {
		return true, TierExact, string(TierExact)
	}

	fc, ec := Core(f), Core(e)
	if fc != "" && fc == ec {
		return true, TierCore, string(TierCore)
	}

	if strings.Contains(fc, ec) || strings.Contains(ec, fc) {
		return true, TierContains, fmt.Sprintf("contains match: %q", found)
	}

	ew := meaningfulWords(ec)
	if len(ew) == 0 {
		return false, TierNone, fmt.Sprintf("expected %q, found %q", expected, found)
	}
	fw := meaningfulWords(fc)
	overlap := 0
	for w := range ew {
		if fw[w] {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(ew))
	if ratio >= 0.6 {
		return true, TierWordOverlap, fmt.Sprintf("word overlap %d%%: %q", int(ratio*100), found)
	}
	return false, TierNone, fmt.Sprintf("expected %q, found %q", expected, found)
}

// meaningfulWords returns the set of words longer than two characters
func meaningfulWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordRe.FindAllString(s, -1) {
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}
