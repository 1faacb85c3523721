package loader

import "strings"

var irregularPlurals = map[string]string{
	"person":    "people",
	"child":     "children",
	"datum":     "data",
	"analysis":  "analyses",
	"diagnosis": "diagnoses",
	"index":     "indices",
	"matrix":    "matrices",
	"status":    "statuses",
}

// pluralize applies the usual English rules; node names are lowercase
// snake_case so only the last word of a compound name is pluralized.
func pluralize(word string) string {
	if word == "" {
		return word
	}
	if plural, ok := irregularPlurals[word]; ok {
		return plural
	}
	switch {
	case strings.HasSuffix(word, "s"),
		strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"),
		strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(word[len(word)-2]):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "fe"):
		return word[:len(word)-2] + "ves"
	case strings.HasSuffix(word, "f") && !strings.HasSuffix(word, "ff"):
		return word[:len(word)-1] + "ves"
	default:
		return word + "s"
	}
}

// pluralizeNodeName pluralizes only the last underscore-separated word, so
// "family_relationship" becomes "family_relationships".
func pluralizeNodeName(name string) string {
	if !strings.Contains(name, "_") {
		return pluralize(name)
	}
	parts := strings.Split(name, "_")
	parts[len(parts)-1] = pluralize(parts[len(parts)-1])
	return strings.Join(parts, "_")
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
