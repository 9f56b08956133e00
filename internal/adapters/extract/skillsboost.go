package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// skillsBoostSuffix strips the platform tail from <title> and og:title text
var skillsBoostSuffix = regexp.MustCompile(`(?i)\s*[-–|]\s*(Google|Cloud Skills Boost|Skills Boost|Google Skills).*$`)

// rawDatePatterns match issuance dates anywhere in the markup, tried in order
var rawDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`([A-Z][a-z]+ \d{1,2}, \d{4})`),
	regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`),
}

func titleMinusSkillsBoostSuffix(d *Doc) (string, bool) {
	if d.dom == nil {
		return "", false
	}
	t := strings.TrimSpace(d.dom.Find("title").First().Text())
	if t == "" {
		return "", false
	}
	name := strings.TrimSpace(skillsBoostSuffix.ReplaceAllString(t, ""))
	return name, len(name) > 2
}

func metaOGTitleMinusSkillsBoostSuffix(d *Doc) (string, bool) {
	v, ok := metaOGTitle(d)
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(skillsBoostSuffix.ReplaceAllString(v, ""))
	return name, len(name) > 2
}

// qlBadgeAttr decodes the JSON payload the platform embeds in its custom
// <ql-badge badge="..."> element. goquery unescapes the entity-encoded
// quotes when reading the attribute
func qlBadgeAttr(d *Doc) (map[string]any, bool) {
	if d.dom == nil {
		return nil, false
	}
	raw, ok := d.dom.Find("ql-badge").First().Attr("badge")
	if !ok || raw == "" {
		return nil, false
	}
	raw = strings.ReplaceAll(raw, "&quot;", `"`)
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func qlBadgeName(d *Doc) (string, bool) {
	payload, ok := qlBadgeAttr(d)
	if !ok {
		return "", false
	}
	for _, key := range []string{"name", "title", "badgeName", "badge_name"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func qlBadgeCompletedAt(d *Doc) (string, bool) {
	payload, ok := qlBadgeAttr(d)
	if !ok {
		return "", false
	}
	v, ok := payload["completedAt"].(string)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func rawDateRegex(d *Doc) (string, bool) {
	for _, re := range rawDatePatterns {
		if m := re.FindStringSubmatch(d.Raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}
