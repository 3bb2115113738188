package text

import (
	"regexp"
	"strings"
	"unicode"
)

// CleanOptions controls which artifacts the cleaner removes.
type CleanOptions struct {
	// StripPageNumbers drops lines that consist solely of a page number
	// ("12", "Page 12", "- 12 -") near the top or bottom of a page.
	StripPageNumbers bool
	// StripHeadersFooters widens page-number stripping to the whole page,
	// catching running headers that repeat a folio mid-text.
	StripHeadersFooters bool
	// MinLineLength drops shorter lines when they carry no letters or
	// digits (isolated punctuation noise from extraction).
	MinLineLength int
}

// DefaultCleanOptions matches the converter's stock behavior.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		StripPageNumbers: true,
		MinLineLength:    2,
	}
}

var (
	pageNumberRe = regexp.MustCompile(`(?i)^\s*(page\s*)?\d+\s*$`)
	// Digits flanked by short separators: "- 12 -", "~ 3 ~", "[7]".
	flankedNumberRe = regexp.MustCompile(`^\s*[-–—~*.\[\(]{0,3}\s*\d+\s*[-–—~*.\]\)]{0,3}\s*$`)
)

// Edge lines are the region where standalone numbers are treated as folios.
const pageEdgeLines = 2

// Clean normalizes one page worth of extracted text: strips page-number
// artifacts per opts, drops punctuation-only noise lines, and collapses all
// whitespace runs into single spaces. It is idempotent and never fails; text
// it cannot improve passes through unchanged.
func Clean(pageText string, opts CleanOptions) string {
	lines := strings.Split(pageText, "\n")
	kept := make([]string, 0, len(lines))

	// Indices of non-blank lines, so "near the edge" ignores blank padding.
	content := make([]int, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			content = append(content, i)
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if opts.StripPageNumbers && looksLikePageNumber(trimmed) {
			if opts.StripHeadersFooters || nearEdge(i, content) {
				continue
			}
		}
		if isNoiseLine(trimmed, opts.MinLineLength) {
			continue
		}
		kept = append(kept, trimmed)
	}

	out := strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	// A page whose entire residue is a bare folio had no prose at all.
	if opts.StripPageNumbers && looksLikePageNumber(out) {
		return ""
	}
	return out
}

// CleanPages cleans every page and joins the results into the single text
// stream the chunker consumes. Page order is preserved; empty pages vanish.
func CleanPages(pages []string, opts CleanOptions) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = Clean(p, opts)
	}
	return out
}

func looksLikePageNumber(line string) bool {
	return pageNumberRe.MatchString(line) || flankedNumberRe.MatchString(line)
}

func nearEdge(idx int, content []int) bool {
	n := len(content)
	if n == 0 {
		return false
	}
	pos := -1
	for rank, lineIdx := range content {
		if lineIdx == idx {
			pos = rank
			break
		}
	}
	if pos < 0 {
		return false
	}
	return pos < pageEdgeLines || pos >= n-pageEdgeLines
}

func isNoiseLine(line string, minLen int) bool {
	if len([]rune(line)) >= minLen {
		return false
	}
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
