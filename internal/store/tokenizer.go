package store

import (
	"strings"
	"unicode"
)

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 2

// DefaultStopWords are common English words that carry no ranking signal.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"has", "have", "he", "her", "his", "if", "in", "into", "is", "it", "its",
	"of", "on", "or", "our", "she", "so", "than", "that", "the", "their",
	"them", "then", "there", "these", "they", "this", "to", "was", "we",
	"were", "what", "when", "which", "who", "will", "with", "you", "your",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// Tokenize splits text into lowercase words. A word is a run of letters and
// digits; stop words and tokens shorter than MinTokenLength runes are dropped.
func Tokenize(text string) []string {
	return tokenizeWith(text, defaultStopWordMap)
}

func tokenizeWith(text string, stopWords map[string]struct{}) []string {
	spans := tokenSpans(text, stopWords)
	tokens := make([]string, len(spans))
	for i, sp := range spans {
		tokens[i] = sp.term
	}
	return tokens
}

// span is a kept token with its byte offsets in the source text.
type span struct {
	term       string
	start, end int
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func tokenSpans(text string, stopWords map[string]struct{}) []span {
	var spans []span
	start, runes := -1, 0
	flush := func(end int) {
		if start < 0 {
			return
		}
		if runes >= MinTokenLength {
			lower := strings.ToLower(text[start:end])
			if _, isStop := stopWords[lower]; !isStop {
				spans = append(spans, span{term: lower, start: start, end: end})
			}
		}
		start, runes = -1, 0
	}
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(text))
	return spans
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
