package match

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Build Real World AI Applications", "build real world ai applications"},
		{"trailing comma", "Gemini and Imagen,", "gemini and imagen"},
		{"credly suffix", "Cloud Digital Leader | Credly", "cloud digital leader"},
		{"skills boost suffix", "Prompt Design in Vertex AI - Google Cloud Skills Boost", "prompt design in vertex ai"},
		{"issued by tail", "Cloud Digital Leader was issued by Google Cloud", "cloud digital leader"},
		{"whitespace collapsed", "  a   b\tc  ", "a b c"},
		{"track prefix kept", "[Data] Foo", "[data] foo"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCore(t *testing.T) {
	if got := Core("[data] build real world ai applications"); got != "build real world ai applications" {
		t.Fatalf("Core = %q", got)
	}
	if got := Core("no prefix here"); got != "no prefix here" {
		t.Fatalf("Core = %q", got)
	}
}

func TestMatchTiers(t *testing.T) {
	cases := []struct {
		name     string
		found    string
		expected string
		ok       bool
		tier     Tier
	}{
		{
			"exact after normalization",
			"Build Real World AI Applications with Gemini and Imagen",
			"build real world ai applications with gemini and imagen",
			true, TierExact,
		},
		{
			"core strips track prefix",
			"[Data] Build Real World AI Applications with Gemini and Imagen,",
			"Build Real World AI Applications with Gemini and Imagen",
			true, TierCore,
		},
		{
			"contains either direction",
			"Build Real World AI Applications with Gemini and Imagen Skill Badge",
			"Build Real World AI Applications with Gemini and Imagen",
			true, TierContains,
		},
		{
			"word overlap",
			"Real World Applications with Gemini and Imagen course",
			"Build Real World AI Applications using Gemini and Imagen",
			true, TierWordOverlap,
		},
		{
			"mismatch",
			"Introduction to Generative AI",
			"Build Real World AI Applications with Gemini and Imagen",
			false, TierNone,
		},
		{
			"empty found",
			"",
			"Build Real World AI Applications",
			false, TierNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, tier, detail := Match(tc.found, tc.expected)
			if ok != tc.ok || tier != tc.tier {
				t.Fatalf("Match(%q, %q) = (%v, %q, %q), want (%v, %q)",
					tc.found, tc.expected, ok, tier, detail, tc.ok, tc.tier)
			}
		})
	}
}

func TestMatchMismatchDetailNamesBothSides(t *testing.T) {
	_, _, detail := Match("Something Else Entirely", "Expected Course Name Here")
	if !strings.Contains(detail, "Expected Course Name Here") || !strings.Contains(detail, "Something Else Entirely") {
		t.Fatalf("mismatch detail missing names: %q", detail)
	}
}
