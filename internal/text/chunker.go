package text

import (
	"strings"
	"unicode"
)

// PageRange records which source pages a chunk was derived from. Diagnostic
// only; it never affects synthesis or assembly.
type PageRange struct {
	First int
	Last  int
}

// Chunk is one bounded-length synthesis unit. Indices are dense and
// contiguous from 0 and define the final audio order.
type Chunk struct {
	Index int
	Text  string
	Pages PageRange
}

// SplitPages concatenates cleaned page texts and splits the result into
// chunks of at most maxChars characters, breaking on sentence boundaries
// where possible. A single sentence longer than maxChars is hard-split at
// the last whitespace before the limit; a chunk over the limit is a defect,
// not a tolerated edge case. Empty input yields no chunks.
func SplitPages(pages []string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = 1000
	}

	// Build the full text with one space between pages, remembering where
	// each page begins so chunks can report their source page range.
	var b strings.Builder
	type pageStart struct {
		offset int // rune offset into the full text
		page   int
	}
	var starts []pageStart
	offset := 0
	for i, p := range pages {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
			offset++
		}
		starts = append(starts, pageStart{offset: offset, page: i})
		b.WriteString(p)
		offset += len([]rune(p))
	}
	full := b.String()
	if full == "" {
		return nil
	}

	pageAt := func(runeOff int) int {
		page := 0
		for _, s := range starts {
			if s.offset <= runeOff {
				page = s.page
			} else {
				break
			}
		}
		return page
	}

	sentences := splitSentences(full)

	var chunks []Chunk
	var cur []string
	curLen := 0
	curStart := 0 // rune offset of the current chunk's first sentence

	flush := func(endOff int) {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(cur, " "),
			Pages: PageRange{First: pageAt(curStart), Last: pageAt(endOff)},
		})
		cur = cur[:0]
		curLen = 0
	}

	for _, s := range sentences {
		sLen := len([]rune(s.text))
		if sLen > maxChars {
			// Oversized sentence: close the open chunk, then hard-split.
			flush(s.start - 1)
			for _, piece := range hardSplit(s.text, maxChars) {
				pLen := len([]rune(piece.text))
				chunks = append(chunks, Chunk{
					Index: len(chunks),
					Text:  piece.text,
					Pages: PageRange{
						First: pageAt(s.start + piece.start),
						Last:  pageAt(s.start + piece.start + pLen - 1),
					},
				})
			}
			curStart = s.start + sLen + 1
			continue
		}
		if curLen > 0 && curLen+1+sLen > maxChars {
			flush(s.start - 1)
		}
		if curLen == 0 {
			curStart = s.start
			curLen = sLen
		} else {
			curLen += 1 + sLen
		}
		cur = append(cur, s.text)
	}
	flush(len([]rune(full)) - 1)

	return chunks
}

// Split chunks a single block of cleaned text.
func Split(text string, maxChars int) []Chunk {
	return SplitPages([]string{text}, maxChars)
}

type sentence struct {
	text  string
	start int // rune offset into the full text
}

// splitSentences breaks text on terminal punctuation followed by whitespace.
// The trailing punctuation stays with its sentence; the separating whitespace
// belongs to neither side.
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			raw := string(runes[start : i+1])
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				out = append(out, sentence{text: trimmed, start: start + leadingSpace(raw)})
			}
			i++
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		raw := string(runes[start:])
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out = append(out, sentence{text: trimmed, start: start + leadingSpace(raw)})
		}
	}
	return out
}

func leadingSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			break
		}
		n++
	}
	return n
}

type piece struct {
	text  string
	start int // rune offset into the parent sentence
}

// hardSplit cuts an oversized sentence at whitespace boundaries so no piece
// exceeds maxChars. A single word longer than maxChars is cut mid-word; the
// length bound is absolute.
func hardSplit(s string, maxChars int) []piece {
	var out []piece
	runes := []rune(s)
	wordStart := -1
	var words []piece
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if wordStart >= 0 {
				words = append(words, piece{text: string(runes[wordStart:i]), start: wordStart})
				wordStart = -1
			}
		} else if wordStart < 0 {
			wordStart = i
		}
	}
	if wordStart >= 0 {
		words = append(words, piece{text: string(runes[wordStart:]), start: wordStart})
	}

	var cur []string
	curLen := 0
	curStart := 0
	flush := func() {
		if curLen == 0 {
			return
		}
		out = append(out, piece{text: strings.Join(cur, " "), start: curStart})
		cur = cur[:0]
		curLen = 0
	}
	for _, w := range words {
		wLen := len([]rune(w.text))
		if wLen > maxChars {
			flush()
			wr := []rune(w.text)
			for off := 0; off < len(wr); off += maxChars {
				end := off + maxChars
				if end > len(wr) {
					end = len(wr)
				}
				out = append(out, piece{text: string(wr[off:end]), start: w.start + off})
			}
			continue
		}
		if curLen > 0 && curLen+1+wLen > maxChars {
			flush()
		}
		if curLen == 0 {
			curStart = w.start
			curLen = wLen
		} else {
			curLen += 1 + wLen
		}
		cur = append(cur, w.text)
	}
	flush()
	return out
}
