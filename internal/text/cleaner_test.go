package text

import (
	"strings"
	"testing"
)

func TestCleanStripsPageNumberLines(t *testing.T) {
	opts := DefaultCleanOptions()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare number", "42", ""},
		{"page prefix", "Page 7", ""},
		{"flanked number", "- 12 -", ""},
		{"number at top", "3\nHello world.", "Hello world."},
		{"number at bottom", "Hello world.\n3", "Hello world."},
		{"prose with digits survives", "Chapter 12 begins here.", "Chapter 12 begins here."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in, opts); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanKeepsNumbersWhenDisabled(t *testing.T) {
	opts := CleanOptions{StripPageNumbers: false, MinLineLength: 2}
	if got := Clean("42\nHello.", opts); got != "42 Hello." {
		t.Fatalf("expected number kept, got %q", got)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	in := "Hello   world.\n\n\nThis  is\ttext."
	want := "Hello world. This is text."
	if got := Clean(in, DefaultCleanOptions()); got != want {
		t.Fatalf("Clean = %q, want %q", got, want)
	}
}

func TestCleanDropsPunctuationNoise(t *testing.T) {
	in := "Real content here.\n.\n*\nMore content."
	want := "Real content here. More content."
	if got := Clean(in, DefaultCleanOptions()); got != want {
		t.Fatalf("Clean = %q, want %q", got, want)
	}
}

func TestCleanIdempotent(t *testing.T) {
	opts := DefaultCleanOptions()
	inputs := []string{
		"",
		"42",
		"Page 1\nHello world.",
		"Hello   world.\n2\nGoodbye.",
		"- 3 -\nSome text\nwith lines.\n- 4 -",
		".\n7\n.",
		"Already clean single line of text.",
		"1\n2\n9\n3\n4",
	}
	for _, in := range inputs {
		once := Clean(in, opts)
		twice := Clean(once, opts)
		if once != twice {
			t.Fatalf("Clean not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestCleanHeadersFootersWidensStripping(t *testing.T) {
	// Six content lines so the middle folio is outside the edge region.
	in := "Intro line one.\nIntro line two.\n12\nBody line one.\nBody line two.\nBody line three."

	kept := Clean(in, CleanOptions{StripPageNumbers: true, MinLineLength: 2})
	if !strings.Contains(kept, "12") {
		t.Fatalf("mid-page folio should survive edge-only stripping, got %q", kept)
	}

	wide := Clean(in, CleanOptions{StripPageNumbers: true, StripHeadersFooters: true, MinLineLength: 2})
	if strings.Contains(wide, "12") {
		t.Fatalf("strip_headers_footers should remove mid-page folio, got %q", wide)
	}
}

func TestCleanPagesPreservesOrder(t *testing.T) {
	pages := []string{"Page 1\nHello world.", "2", "World again."}
	got := CleanPages(pages, DefaultCleanOptions())
	if len(got) != 3 {
		t.Fatalf("expected 3 cleaned pages, got %d", len(got))
	}
	if got[0] != "Hello world." {
		t.Fatalf("page 0 = %q", got[0])
	}
	if got[1] != "" {
		t.Fatalf("lone page number should clean to empty, got %q", got[1])
	}
	if got[2] != "World again." {
		t.Fatalf("page 2 = %q", got[2])
	}
}
