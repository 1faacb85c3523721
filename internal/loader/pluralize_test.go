package loader

import "testing"

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"participant": "participants",
		"study":       "studies",
		"diagnosis":   "diagnoses",
		"status":      "statuses",
		"match":       "matches",
		"box":         "boxes",
		"survey":      "surveys",
		"leaf":        "leaves",
		"knife":       "knives",
		"cliff":       "cliffs",
		"person":      "people",
		"child":       "children",
		"datum":       "data",
		"index":       "indices",
		"":            "",
	}
	for word, want := range cases {
		if got := pluralize(word); got != want {
			t.Fatalf("pluralize(%q)=%q, want %q", word, got, want)
		}
	}
}

func TestPluralizeNodeName(t *testing.T) {
	cases := map[string]string{
		"participant":         "participants",
		"family_relationship": "family_relationships",
		"sample_diagnosis":    "sample_diagnoses",
		"study_arm":           "study_arms",
	}
	for name, want := range cases {
		if got := pluralizeNodeName(name); got != want {
			t.Fatalf("pluralizeNodeName(%q)=%q, want %q", name, got, want)
		}
	}
}
