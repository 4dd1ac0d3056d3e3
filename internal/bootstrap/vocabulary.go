package bootstrap

import (
	"regexp"
	"sort"
	"strings"
)

const (
	asciiLetters  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	frenchAccents = "àâäéèêëïîôùûüÿç"
)

// wordRun matches maximal runs of word characters. Runs containing anything
// outside the language's alphabet are discarded whole, so "café" never
// yields "caf" for English.
var wordRun = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopwords = map[string]bool{
	"le": true, "la": true, "les": true, "un": true, "une": true,
	"de": true, "du": true, "des": true, "et": true, "ou": true,
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "to": true, "of": true,
}

// ExtractVocabulary returns the distinct lowercased words of text that
// belong to language ("fr", "en" or "both"), sorted. Words of two letters or
// fewer and stopwords are dropped.
func ExtractVocabulary(text, language string) []string {
	alphabet := asciiLetters
	if language != "en" {
		alphabet += frenchAccents + strings.ToUpper(frenchAccents)
	}

	seen := make(map[string]bool)
	for _, run := range wordRun.FindAllString(text, -1) {
		if !onlyRunes(run, alphabet) {
			continue
		}
		w := strings.ToLower(run)
		if len([]rune(w)) <= 2 || stopwords[w] {
			continue
		}
		seen[w] = true
	}

	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// IsFrench guesses whether word is French from its accented letters.
func IsFrench(word string) bool {
	return strings.ContainsAny(strings.ToLower(word), frenchAccents)
}

// SplitByLanguage routes words of a bilingual reply to French or English.
func SplitByLanguage(words []string) (fr, en []string) {
	for _, w := range words {
		if IsFrench(w) {
			fr = append(fr, w)
		} else {
			en = append(en, w)
		}
	}
	return fr, en
}

func onlyRunes(s, alphabet string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
