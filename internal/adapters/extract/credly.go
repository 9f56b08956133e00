package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// credlySuffix strips the "| Credly" tail from titles
var credlySuffix = regexp.MustCompile(`(?i)\s*[-–|]\s*Credly.*$`)

const issuedLabel = "Date issued:"

// credlyIssuedPatterns anchor the raw-markup fallback on the banner label
var credlyIssuedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Date issued:\s*([A-Z][a-z]+ \d{1,2}, \d{4})`),
	regexp.MustCompile(`Date issued:\s*(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`Date issued:\s*(\d{4}-\d{2}-\d{2})`),
}

func dataNameAttr(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	v, ok := d.dom.Find("div[data-name]").First().Attr("data-name")
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func ogTitleMinusCredlySuffix(d *Doc) (string, bool) {
	v, ok := metaOGTitle(d)
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(credlySuffix.ReplaceAllString(v, ""))
	return name, name != ""
}

func titleMinusCredlySuffix(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	t := strings.TrimSpace(d.dom.Find("title").First().Text())
	if t == "" {
		return "", false
	}
	name := strings.TrimSpace(credlySuffix.ReplaceAllString(t, ""))
	return name, name != ""
}

// credlyIssuedBanner reads the "Date issued: ..." paragraph in the badge
// banner and strips the label
func credlyIssuedBanner(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	var out string
	d.dom.Find(".badge-banner-issued-to-text p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if strings.Contains(t, issuedLabel) {
			out = strings.TrimSpace(strings.TrimPrefix(t, issuedLabel))
			return false
		}
		return true
	})
	return out, out != ""
}

// credlyIssuedSibling finds the div immediately after a bare
// "Date issued:" label div
func credlyIssuedSibling(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	var out string
	d.dom.Find("div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != issuedLabel {
			return true
		}
		sib := strings.TrimSpace(s.Next().Text())
		if sib != "" {
			out = sib
			return false
		}
		return true
	})
	return out, out != ""
}

func credlyIssuedRegex(d *Doc) (string, bool) {
	for _, re := range credlyIssuedPatterns {
		if m := re.FindStringSubmatch(d.Raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}
