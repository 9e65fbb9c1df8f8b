package analyse

import "strings"

// intentKeywords scores intents by substring presence. The lists come from
// observed phrasings in citizen questions about administrative procedures.
var intentKeywords = map[Intent][]string{
	IntentDocuments:    {"giấy tờ cần nộp", "hồ sơ bao gồm", "văn bản nộp", "tài liệu cần", "nộp gì", "cần giấy tờ gì", "những giấy tờ"},
	IntentRequirements: {"điều kiện", "yêu cầu", "ai được", "đối tượng", "được làm", "được phép"},
	IntentProcess:      {"trình tự", "các bước", "làm thế nào", "quy trình", "cách thức"},
	IntentLegal:        {"căn cứ", "pháp lý", "luật", "nghị định", "thông tư", "quy định"},
	IntentTimeline:     {"thời gian", "bao lâu", "thời hạn", "mất bao lâu", "trong vòng", "ngày làm việc"},
	IntentFees:         {"phí", "lệ phí", "chi phí", "tốn", "giá", "mất bao nhiêu"},
	IntentLocation:     {"ở đâu", "địa chỉ", "nơi", "cơ quan nào", "đến đâu"},
}

// intentExclusions disqualify an intent when present. Compound questions
// often mention "hồ sơ" while really asking about timing or notification.
var intentExclusions = map[Intent][]string{
	IntentDocuments: {"thời gian", "bao lâu", "thời hạn", "hình thức thông báo", "thông báo"},
}

// keywordIntent scores each intent by keyword matches and returns the best,
// or false when no keyword matched at all.
func keywordIntent(question string) (Intent, bool) {
	lower := strings.ToLower(question)

	var best Intent
	bestScore := 0
	for _, intent := range AllIntents {
		keywords, ok := intentKeywords[intent]
		if !ok {
			continue
		}
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > 0 {
			excluded := false
			for _, excl := range intentExclusions[intent] {
				if strings.Contains(lower, excl) {
					excluded = true
					break
				}
			}
			if excluded {
				continue
			}
		}
		if score > bestScore {
			best, bestScore = intent, score
		}
	}

	if bestScore == 0 {
		return "", false
	}
	return best, true
}
