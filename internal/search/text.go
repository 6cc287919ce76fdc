// Package search holds the text primitives shared by ticket search and
// autocomplete: case-insensitive matching, word-boundary detection,
// relevance tiers, highlighting and keyword mining.
package search

import (
	"html"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
	ellipsis  = "..."
)

// Terms splits a query into distinct non-empty words, preserving order.
func Terms(query string) []string {
	fields := strings.Fields(query)
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		key := strings.ToLower(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// indexFold returns the byte offset of the first case-insensitive occurrence
// of term in text at or after from, or -1.
func indexFold(text, term string, from int) int {
	if term == "" {
		return -1
	}
	for i := from; i+len(term) <= len(text); {
		if strings.EqualFold(text[i:i+len(term)], term) {
			return i
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1
}

// ContainsFold reports whether term occurs in text ignoring case.
func ContainsFold(text, term string) bool {
	return indexFold(text, term, 0) >= 0
}

// ContainsWord reports whether term occurs in text ignoring case with a word
// boundary on both sides. The start and end of text count as boundaries.
func ContainsWord(text, term string) bool {
	for i := indexFold(text, term, 0); i >= 0; i = indexFold(text, term, i+1) {
		if isBoundaryBefore(text, i) && isBoundaryAfter(text, i+len(term)) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func isBoundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

// Truncate shortens text to at most max runes, marking the cut with "...".
func Truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-len(ellipsis)])) + ellipsis
}

// Excerpt returns at most max runes of text around the first occurrence of
// query. Cuts are marked with "...".
func Excerpt(text, query string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	at := indexFold(text, strings.TrimSpace(query), 0)
	if at < 0 {
		return Truncate(text, max)
	}
	center := utf8.RuneCountInString(text[:at])
	start := center - max/4
	if start < 0 {
		start = 0
	}
	end := start + max
	if end > len(runes) {
		end = len(runes)
		start = end - max
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = ellipsis + out
	}
	if end < len(runes) {
		out += ellipsis
	}
	return out
}

type span struct {
	start, end int
}

func matchSpans(text string, terms []string) []span {
	var spans []span
	for _, term := range terms {
		for i := indexFold(text, term, 0); i >= 0; i = indexFold(text, term, i+len(term)) {
			spans = append(spans, span{start: i, end: i + len(term)})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start == spans[j].start {
			return spans[i].end > spans[j].end
		}
		return spans[i].start < spans[j].start
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Highlight escapes text for HTML display and wraps every case-insensitive
// occurrence of the query terms in <mark> tags. Matches are located on the
// raw text and each segment is escaped on its own, so markers are never
// escaped and entities are never split.
func Highlight(text, query string) string {
	terms := Terms(query)
	spans := matchSpans(text, terms)
	if len(spans) == 0 {
		return html.EscapeString(text)
	}
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		b.WriteString(html.EscapeString(text[prev:s.start]))
		b.WriteString(markOpen)
		b.WriteString(html.EscapeString(text[s.start:s.end]))
		b.WriteString(markClose)
		prev = s.end
	}
	b.WriteString(html.EscapeString(text[prev:]))
	return b.String()
}

// Words splits text into lower-cased letter/digit runs.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

// MinKeywordLength is the rune length a mined keyword must exceed.
const MinKeywordLength = 3

// Keywords mines the most frequent words longer than MinKeywordLength runes
// that contain the whole lower-cased query. A query spanning several words
// matches no single word. Ties are broken alphabetically.
func Keywords(texts []string, query string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	counts := map[string]int{}
	for _, text := range texts {
		for _, word := range Words(text) {
			if utf8.RuneCountInString(word) > MinKeywordLength && strings.Contains(word, needle) {
				counts[word]++
			}
		}
	}
	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		ci, cj := counts[keywords[i]], counts[keywords[j]]
		if ci != cj {
			return ci > cj
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}
