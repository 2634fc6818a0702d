package moderation

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultWordlist_NotEmptyAndNormalized(t *testing.T) {
	w := DefaultWordlist()
	if w.Len() == 0 {
		t.Fatal("default wordlist is empty")
	}
	for _, term := range w.Terms() {
		if term != Normalize(term) {
			t.Fatalf("term %q is not normalized", term)
		}
	}
}

func TestLexicalFilter_Contains(t *testing.T) {
	f := NewLexicalFilter(DefaultWordlist())

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"indonesian word", "dasar anjing", true},
		{"exact token", "kontol", true},
		{"upper case", "ANJING", true},
		{"diacritics folded", "Anjíng kau", true},
		{"leetspeak variant", "k0nt0l", true},
		{"substring inside longer word", "anjingnya lucu", true},
		{"english profanity", "what the fuck", true},
		{"clean english", "hello world", false},
		{"clean indonesian", "selamat pagi semuanya", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Contains(tt.input); got != tt.blocked {
				t.Fatalf("Contains(%q) = %v, want %v", tt.input, got, tt.blocked)
			}
		})
	}
}

func TestLexicalFilter_DetectReturnsAllHitsInOrder(t *testing.T) {
	f := NewLexicalFilter(NewWordlist("babi", "anjing", "kontol"))
	got := f.Detect("kontol dan anjing")
	want := []string{"anjing", "kontol"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
	if hits := f.Detect("hello"); hits != nil {
		t.Fatalf("expected nil hits, got %v", hits)
	}
}

func TestNewWordlist_DedupesAndSkipsBlank(t *testing.T) {
	w := NewWordlist("Foo", "foo", " ", "BAR", "")
	if !reflect.DeepEqual(w.Terms(), []string{"foo", "bar"}) {
		t.Fatalf("unexpected terms %v", w.Terms())
	}
	// Terms returns a copy.
	terms := w.Terms()
	terms[0] = "mutated"
	if w.Terms()[0] != "foo" {
		t.Fatal("Terms must not expose internal slice")
	}
}

func TestLoadWordlist_ExtendsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.txt")
	if err := os.WriteFile(path, []byte("# comment\nzzblocked\n\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := LoadWordlist(path)
	if err != nil {
		t.Fatalf("LoadWordlist: %v", err)
	}
	if w.Len() != DefaultWordlist().Len()+1 {
		t.Fatalf("expected one extra term, got %d vs %d", w.Len(), DefaultWordlist().Len())
	}
	if !NewLexicalFilter(w).Contains("ZZBLOCKED") {
		t.Fatal("extra term should be blocked")
	}
}

func TestLoadWordlist_EmptyPathAndMissingFile(t *testing.T) {
	w, err := LoadWordlist("")
	if err != nil || w.Len() != DefaultWordlist().Len() {
		t.Fatalf("empty path should return default list, err=%v", err)
	}
	if _, err := LoadWordlist(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
