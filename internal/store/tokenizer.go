package store

import (
	"strings"
	"unicode"
)

// DefaultVietnameseStopWords is the fixed stopword list applied by the BM25
// tokenizer. Function words only; domain terms ("thủ tục", "hồ sơ") are
// deliberately kept because they carry signal in this corpus.
var DefaultVietnameseStopWords = []string{
	"và", "của", "có", "là", "được", "trong", "các", "để", "cho",
	"với", "theo", "từ", "về", "này", "đó", "khi", "như", "không",
	"tại", "hoặc", "những", "đã", "vào", "nếu", "hay", "do", "sẽ",
	"bởi", "bằng", "đến", "trên", "dưới", "sau", "trước", "ngoài",
	"giữa", "thì", "nhưng", "mà", "vì", "nên", "đây", "đấy", "cũng",
	"thêm", "nhiều", "ít", "rằng", "ra",
}

// Tokenize splits Vietnamese text into BM25 terms: lowercase, split on
// whitespace and punctuation, drop single-character tokens and stopwords.
func Tokenize(text string, stopWords map[string]struct{}) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		// Single-character tokens are noise in Vietnamese syllable text.
		if len([]rune(tok)) < 2 {
			return
		}
		if _, stop := stopWords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// BuildStopWordMap converts a stopword slice to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// WordSet returns the distinct lowercase words of text. Used for
// near-duplicate detection during fusion.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text, nil) {
		set[tok] = struct{}{}
	}
	return set
}
