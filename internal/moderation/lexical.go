package moderation

import (
	"regexp"
	"strings"
)

// LexicalFilter is the fast, local first line of defense. It flags a message
// when any wordlist term occurs in it, either as a whole word or as a raw
// substring. The substring branch also catches fragments inside longer words;
// this filter trades precision for recall on purpose.
//
// A LexicalFilter is immutable and safe for concurrent use.
type LexicalFilter struct {
	terms []string
	words []*regexp.Regexp
}

// NewLexicalFilter compiles a filter for the given wordlist.
func NewLexicalFilter(w Wordlist) *LexicalFilter {
	f := &LexicalFilter{
		terms: w.Terms(),
		words: make([]*regexp.Regexp, 0, w.Len()),
	}
	for _, t := range f.terms {
		f.words = append(f.words, regexp.MustCompile(`\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return f
}

// Contains reports whether text holds any blocked term.
func (f *LexicalFilter) Contains(text string) bool {
	norm := Normalize(text)
	for i := range f.terms {
		if f.match(i, norm) {
			return true
		}
	}
	return false
}

// Detect returns every blocked term found in text, in wordlist order.
func (f *LexicalFilter) Detect(text string) []string {
	norm := Normalize(text)
	var hits []string
	for i, t := range f.terms {
		if f.match(i, norm) {
			hits = append(hits, t)
		}
	}
	return hits
}

func (f *LexicalFilter) match(i int, norm string) bool {
	return f.words[i].MatchString(norm) || strings.Contains(norm, f.terms[i])
}
