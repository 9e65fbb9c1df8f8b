package analyse

import (
	"regexp"
	"strings"
)

// fillerPatterns strip question framing that hurts retrieval: hypothetical
// openers, comparison phrases, how-constructions and trailing punctuation.
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^nếu\s+(tôi|mình|em)\s+`),
	regexp.MustCompile(`(?i)\s+thì\s+`),
	regexp.MustCompile(`(?i)khác\s+gì|khác\s+nhau\s+như\s+thế\s+nào|sự\s+khác\s+biệt`),
	regexp.MustCompile(`(?i)bằng\s+cách\s+nào|như\s+thế\s+nào`),
	regexp.MustCompile(`(?i)so\s+với`),
	regexp.MustCompile(`\?+\s*$`),
}

var spaceRun = regexp.MustCompile(`\s+`)

// Rewrite simplifies a question for retrieval. When the cleaned form drops
// below three words the original wins, so short questions pass untouched.
func Rewrite(question string) string {
	simplified := strings.ToLower(question)
	for _, p := range fillerPatterns {
		simplified = p.ReplaceAllString(simplified, " ")
	}
	simplified = strings.TrimSpace(spaceRun.ReplaceAllString(simplified, " "))

	if len(strings.Fields(simplified)) < 3 {
		return question
	}
	return simplified
}

// synonymTable maps a phrase to substitutes used for expansion variants.
var synonymTable = map[string][]string{
	"đăng ký":  {"đk", "ghi danh"},
	"giấy tờ":  {"hồ sơ", "tài liệu"},
	"hồ sơ":    {"giấy tờ", "tài liệu"},
	"lệ phí":   {"phí", "chi phí"},
	"thời hạn": {"thời gian", "bao lâu"},
}

// synonymOrder fixes iteration order so variants are deterministic.
var synonymOrder = []string{"đăng ký", "giấy tờ", "hồ sơ", "lệ phí", "thời hạn"}

// SynonymVariants produces up to max substituted variants of the question.
// Each variant swaps a single phrase for one of its synonyms.
func SynonymVariants(question string, max int) []string {
	if max <= 0 {
		return nil
	}
	lower := strings.ToLower(question)

	var variants []string
	for _, phrase := range synonymOrder {
		if !strings.Contains(lower, phrase) {
			continue
		}
		for _, sub := range synonymTable[phrase] {
			v := strings.Replace(lower, phrase, sub, 1)
			if v != lower {
				variants = append(variants, v)
				if len(variants) == max {
					return variants
				}
			}
		}
	}
	return variants
}
