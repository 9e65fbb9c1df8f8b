package analyse

import "regexp"

// MaxExpansions caps the total query expansions per plan.
const MaxExpansions = 5

// QueryPlan is the per-request product of analysis. Downstream stages
// consume it without re-parsing the question.
type QueryPlan struct {
	RawQuestion      string        `json:"raw_question"`
	Intent           Intent        `json:"intent"`
	IntentConfidence float64       `json:"intent_confidence"`
	Expansions       []string      `json:"expansions"`
	ProcedureCode    string        `json:"procedure_code,omitempty"`
	ContextConfig    ContextConfig `json:"context_config"`
}

// procedureCodePattern matches administrative procedure codes such as
// 1.013133 or 2.002767.
var procedureCodePattern = regexp.MustCompile(`\b\d+\.\d{5,7}\b`)

// ExtractProcedureCode returns the first procedure code in the question, or
// the empty string.
func ExtractProcedureCode(question string) string {
	return procedureCodePattern.FindString(question)
}
