package tags

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxTagWords = 3

// Tag words are lowercase or caseless letters and decimal digits.
var namePattern = regexp.MustCompile(`^[\p{Ll}\p{Lm}\p{Lo}\p{Nd}]+(-[\p{Ll}\p{Lm}\p{Lo}\p{Nd}]+)*$`)

// foldMarks strips combining marks after canonical decomposition, so
// "schrödinger" and "schrodinger" name the same tag.
func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isNameRune(r rune) bool {
	return unicode.IsDigit(r) || (unicode.IsLetter(r) && !unicode.IsUpper(r) && !unicode.IsTitle(r))
}

// Normalize lowercases a term, folds diacritics and joins its alphanumeric
// runs with hyphens. It does not shorten the term.
func Normalize(term string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range foldMarks(strings.ToLower(term)) {
		if isNameRune(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// ValidName reports whether name follows the tag naming convention:
// lowercase alphanumeric words joined by single hyphens, at most three words.
func ValidName(name string) bool {
	if !namePattern.MatchString(name) {
		return false
	}
	return strings.Count(name, "-")+1 <= maxTagWords
}

var (
	stepPrefix = regexp.MustCompile(`^\s*(?:step\s*\d+\s*[:.)-]?|\d+\s*[.):-]|\(?[ivx]+\)\s|(?:first|second|third|fourth|fifth|finally|then|next)\b\s*,?)\s*`)

	stopwords = map[string]bool{
		"a": true, "an": true, "the": true, "of": true, "and": true, "or": true, "to": true,
		"for": true, "in": true, "on": true, "with": true, "by": true, "from": true, "at": true,
		"is": true, "are": true, "be": true, "that": true, "this": true, "these": true, "its": true,
		"their": true, "we": true, "our": true, "into": true, "using": true, "via": true, "as": true,
	}
)

// Heuristic generalizes a term without any external call: it strips
// ordinal and step prefixes, drops stopwords, collapses punctuation to
// hyphens and keeps the first three words. It returns "" when nothing is
// left.
func Heuristic(term string) string {
	s := strings.ToLower(strings.TrimSpace(term))
	for {
		trimmed := stepPrefix.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	words := strings.Split(Normalize(s), "-")
	kept := make([]string, 0, maxTagWords)
	for _, w := range words {
		if w == "" || stopwords[w] {
			continue
		}
		kept = append(kept, w)
		if len(kept) == maxTagWords {
			break
		}
	}
	return strings.Join(kept, "-")
}
