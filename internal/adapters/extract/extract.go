// Package extract pulls credential facts (display name, issuance date) out
// of heterogeneous provider markup. Each (platform, fact) pair owns an
// ordered list of strategies; the first plausible hit wins. Provider markup
// is not a stable contract, so the redundancy is the design
package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"skillproof/internal/adapters/fetch"
	"skillproof/internal/core/dates"
	"skillproof/internal/core/provider"
)

// Doc wraps one fetched page with its parsed DOM. A page that fails to
// parse still carries its raw markup for the regex strategies
type Doc struct {
	URL string
	Raw string
	dom *goquery.Document
}

// NewDoc parses a fetched page. Malformed HTML never errors out; DOM
// strategies simply miss and the regex fallbacks get their turn
func NewDoc(p *fetch.Page) *Doc {
	d := &Doc{URL: p.URL, Raw: p.Body}
	if dom, err := goquery.NewDocumentFromReader(strings.NewReader(p.Body)); err == nil {
		d.dom = dom
	}
	return d
}

// Strategy extracts one fact from a page, reporting whether it hit
type Strategy func(d *Doc) (string, bool)

var nameStrategies = map[provider.Kind][]Strategy{
	provider.KindSkillsBoost: {
		selText("h1.badge-title"),
		qlBadgeName,
		titleMinusSkillsBoostSuffix,
		metaOGTitle,
		headerScan(10, 200),
	},
	provider.KindCredly: {
		selText("h1.ac-heading--badge-name-hero"),
		selText("h1.badge-name"),
		dataNameAttr,
		ogTitleMinusCredlySuffix,
		titleMinusCredlySuffix,
		selText("h1"),
	},
}

var dateStrategies = map[provider.Kind][]Strategy{
	provider.KindSkillsBoost: {
		selText(".public-profile-badge .date"),
		qlBadgeCompletedAt,
		rawDateRegex,
	},
	provider.KindCredly: {
		credlyIssuedBanner,
		credlyIssuedSibling,
		credlyIssuedRegex,
	},
}

// profileNameStrategies verify a learning-profile page is a real profile
var profileNameStrategies = []Strategy{
	selText("h1.profile-name"),
	titleMinusSkillsBoostSuffix,
	metaOGTitleMinusSkillsBoostSuffix,
	headerScan(2, 100),
}

// Name extracts the credential display name for the platform
func Name(k provider.Kind, d *Doc) (string, bool) {
	return run(nameStrategies[k], d)
}

// Date extracts and parses the issuance date for the platform
func Date(k provider.Kind, d *Doc) (time.Time, bool) {
	s, ok := run(dateStrategies[k], d)
	if !ok {
		return time.Time{}, false
	}
	return dates.Parse(s)
}

// ProfileName extracts the holder name from a Skills Boost profile page
func ProfileName(d *Doc) (string, bool) {
	return run(profileNameStrategies, d)
}

func run(strategies []Strategy, d *Doc) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, s := range strategies {
		if v, ok := s(d); ok {
			return v, true
		}
	}
	return "", false
}

// selText hits when the first match of a CSS selector has non-empty text
func selText(selector string) Strategy {
	return func(d *Doc) (string, bool) {
		if d.dom == nil {
			return "", false
		}
		t := strings.TrimSpace(d.dom.Find(selector).First().Text())
		return t, t != ""
	}
}

// headerScan walks h1/h2 elements for the first text of sane length
func headerScan(minLen, maxLen int) Strategy {
	return func(d *Doc) (string, bool) {
		if d.dom == nil {
			return "", false
		}
		var out string
		d.dom.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := strings.TrimSpace(s.Text())
			if len(t) > minLen && len(t) < maxLen {
				out = t
				return false
			}
			return true
		})
		return out, out != ""
	}
}

func metaOGTitle(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	v, ok := d.dom.Find(`meta[property="og:title"]`).First().Attr("content")
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
