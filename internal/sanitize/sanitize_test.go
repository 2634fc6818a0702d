package sanitize

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestText_Cases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"strips angle brackets", "<b>hi</b>", "bhi/b"},
		{"strips quotes", `say "hi" it's`, "say hi its"},
		{"removes javascript scheme", "go JavaScript:alert(1)", "go alert(1)"},
		{"removes event attribute", "img onerror=boom", "img boom"},
		{"removes nested fragments", "javajavascript:script:x", "x"},
		{"event attr hides scheme", "javascronclick=ipt:x", "x"},
		{"plain text untouched", "hello world", "hello world"},
		{"empty stays empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in, MaxMessageRunes); got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestText_TruncatesByRunes(t *testing.T) {
	in := strings.Repeat("é", MaxMessageRunes+50)
	got := Text(in, MaxMessageRunes)
	if n := utf8.RuneCountInString(got); n != MaxMessageRunes {
		t.Fatalf("expected %d runes, got %d", MaxMessageRunes, n)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8")
	}
}

func TestText_NoTruncationWhenMaxDisabled(t *testing.T) {
	in := strings.Repeat("a", 1000)
	if got := Text(in, 0); len(got) != 1000 {
		t.Fatalf("max<=0 must disable truncation, got len=%d", len(got))
	}
}

func TestText_OutputInvariants(t *testing.T) {
	forbidden := regexp.MustCompile(`(?i)(javascript:|on\w+=)`)
	inputs := []string{
		`<script>alert("x")</script>`,
		`<a href='JAVASCRIPT:void(0)' onClick="x()">`,
		strings.Repeat(`onload=<>"'`, 200),
		"ononerror==mouseover=",
		strings.Repeat("javascript:", 100) + strings.Repeat("z", 600),
	}
	for _, in := range inputs {
		got := Text(in, MaxMessageRunes)
		if utf8.RuneCountInString(got) > MaxMessageRunes {
			t.Fatalf("output too long for %q", in)
		}
		if strings.ContainsAny(got, `<>"'`) {
			t.Fatalf("unsafe chars survived in %q -> %q", in, got)
		}
		if forbidden.MatchString(got) {
			t.Fatalf("forbidden fragment survived in %q -> %q", in, got)
		}
	}
}

func TestValue_NonStringIsEmpty(t *testing.T) {
	for _, v := range []any{nil, 42, 3.14, true, map[string]any{"a": 1}, []any{"x"}} {
		if got := Value(v, MaxMessageRunes); got != "" {
			t.Fatalf("Value(%v) = %q, want empty", v, got)
		}
	}
	if got := Value("  <hi> ", MaxMessageRunes); got != "hi" {
		t.Fatalf("Value(string) = %q, want %q", got, "hi")
	}
}
