package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextRespectsLimit(t *testing.T) {
	s := strings.Repeat("абвгд", 50) // multibyte
	for _, c := range splitText(s, 40, "") {
		if n := utf8.RuneCountInString(c); n > 40 {
			t.Fatalf("chunk has %d runes, limit 40", n)
		}
	}
	if got := strings.Join(splitText(s, 40, ""), ""); got != s {
		t.Fatalf("chunks do not reassemble the input")
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 20) + "\n" + strings.Repeat("b", 20)
	got := splitText(s, 30, "")
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(got), got)
	}
	if got[0] != strings.Repeat("a", 20) || got[1] != strings.Repeat("b", 20) {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	s := strings.Repeat("x", 25) + "<b>bold</b>"
	got := splitText(s, 27, "HTML")
	if len(got) < 2 {
		t.Fatalf("expected a split, got %q", got)
	}
	if got[0] != strings.Repeat("x", 25) {
		t.Fatalf("first chunk %q cuts into a tag", got[0])
	}
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("second chunk %q does not start with the tag", got[1])
	}
}
