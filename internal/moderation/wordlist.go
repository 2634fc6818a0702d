package moderation

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed wordlist.txt
var defaultWordlist string

// Wordlist is an immutable, normalized set of blocked terms. Build it once at
// startup and hand it to NewLexicalFilter.
type Wordlist struct {
	terms []string
}

// NewWordlist normalizes, de-duplicates and freezes terms, preserving the
// order in which they were first seen.
func NewWordlist(terms ...string) Wordlist {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = Normalize(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return Wordlist{terms: out}
}

// DefaultWordlist returns the built-in Indonesian and English list, including
// common leetspeak spellings.
func DefaultWordlist() Wordlist {
	terms, _ := readTerms(strings.NewReader(defaultWordlist))
	return NewWordlist(terms...)
}

// LoadWordlist returns the built-in list extended with the terms in path.
// An empty path yields the built-in list alone.
func LoadWordlist(path string) (Wordlist, error) {
	base := DefaultWordlist()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Wordlist{}, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	extra, err := readTerms(f)
	if err != nil {
		return Wordlist{}, fmt.Errorf("read wordlist: %w", err)
	}
	return NewWordlist(append(base.Terms(), extra...)...), nil
}

// Terms returns a copy of the normalized terms.
func (w Wordlist) Terms() []string {
	out := make([]string, len(w.terms))
	copy(out, w.terms)
	return out
}

// Len reports the number of terms.
func (w Wordlist) Len() int { return len(w.terms) }

// readTerms reads one term per line; blank lines and # comments are skipped.
func readTerms(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Normalize lower-cases s and folds away combining marks so that "Anjíng"
// and "anjing" compare equal. Transformers are built per call because they
// carry state and must not be shared between goroutines.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return cases.Lower(language.Und).String(folded)
}
