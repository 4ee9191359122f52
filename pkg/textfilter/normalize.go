package textfilter

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize prepares text for keyword matching: lowercase, with underscores
// read as spaces so that "Ready_For_The_Day" and "ready for the day" agree.
func Normalize(s string) string {
	// Casers carry state and are not shared between goroutines.
	return strings.ReplaceAll(cases.Lower(language.Und).String(s), "_", " ")
}

// DisplayName turns an identifier such as "skeleton_warrior" or
// "GIANT_SPIDER" into "Skeleton Warrior".
func DisplayName(id string) string {
	s := strings.TrimSpace(Normalize(id))
	s = strings.ReplaceAll(s, "-", " ")
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

// Contains reports whether needle occurs anywhere in haystack after both are
// normalized. Matching is by substring, not whole word.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if strings.TrimSpace(n) == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// ContainsWord reports whether needle occurs in haystack as whole words
// after both are normalized. "go" matches "let's go!" but not "going".
func ContainsWord(haystack, needle string) bool {
	want := words(needle)
	if len(want) == 0 {
		return false
	}
	have := words(haystack)
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.Equal(have[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

// words splits normalized text on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
