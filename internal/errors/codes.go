// Package errors provides structured error handling for the retrieval core.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Data and store errors
//   - 3XX: Collaborator (network) errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryData indicates chunk store and index errors.
	CategoryData Category = "DATA"
	// CategoryCollaborator indicates failures of external collaborators.
	CategoryCollaborator Category = "COLLABORATOR"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	CodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	CodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Data errors (200-299)
	CodeChunkNotFound     = "ERR_201_CHUNK_NOT_FOUND"
	CodeProcedureNotFound = "ERR_202_PROCEDURE_NOT_FOUND"
	CodeStoreCorrupt      = "ERR_203_STORE_CORRUPT"
	CodeStoreInvariant    = "ERR_204_STORE_INVARIANT"
	CodeIndexCorrupt      = "ERR_205_INDEX_CORRUPT"

	// Collaborator errors (300-399)
	CodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	CodeVectorStoreFailed   = "ERR_302_VECTOR_STORE_FAILED"
	CodeLLMFailed           = "ERR_303_LLM_FAILED"
	CodeRerankerFailed      = "ERR_304_RERANKER_FAILED"
	CodeNoChannels          = "ERR_305_NO_RETRIEVAL_CHANNELS"

	// Validation errors (400-499)
	CodeInvalidInput = "ERR_401_INVALID_INPUT"

	// Internal errors (500-599)
	CodeInternal  = "ERR_501_INTERNAL"
	CodeTimeout   = "ERR_502_TIMEOUT"
	CodeCancelled = "ERR_503_CANCELLED"
)

// categoryFromCode derives the category from the numeric range of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryData
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the code.
func severityFromCode(code string) Severity {
	switch code {
	case CodeStoreCorrupt, CodeStoreInvariant, CodeConfigInvalid, CodeConfigNotFound:
		return SeverityFatal
	case CodeEmbedderUnavailable, CodeVectorStoreFailed, CodeLLMFailed, CodeRerankerFailed:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be
// retried. Only transient collaborator failures qualify.
func isRetryableCode(code string) bool {
	switch code {
	case CodeEmbedderUnavailable, CodeVectorStoreFailed, CodeLLMFailed, CodeRerankerFailed:
		return true
	default:
		return false
	}
}
