package analysis

import (
	"context"
	"errors"
	"strings"

	"research-backend/internal/classify"
	"research-backend/internal/documents"
	"research-backend/internal/extraction"
	"research-backend/internal/extract"
	"research-backend/internal/insights"
	"research-backend/internal/llm"
)

var ErrJobQueueNotConfigured = errors.New("job queue not configured")

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeScoring           = "SCORING_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeExtraction        = "EXTRACTION_FAILED"
	ErrorCodeCancelled         = "CANCELLED"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)

// ClassifyFailure maps an analysis error onto a stable failure code and
// reports whether running the same job again could succeed.
func ClassifyFailure(err error) (string, bool) {
	switch {
	case err == nil:
		return ErrorCodeInternal, false
	case errors.Is(err, documents.ErrNotFound),
		errors.Is(err, documents.ErrInvalidInput),
		errors.Is(err, documents.ErrAlreadyAnalyzed),
		errors.Is(err, insights.ErrInvalidInput),
		errors.Is(err, extract.ErrNoText):
		return ErrorCodeValidation, false
	case errors.Is(err, documents.ErrInProgress):
		return ErrorCodeValidation, true
	case errors.Is(err, classify.ErrEmptyText), errors.Is(err, classify.ErrInvalidRules):
		return ErrorCodeScoring, false
	case errors.Is(err, extraction.ErrCancelled), errors.Is(err, context.Canceled):
		return ErrorCodeCancelled, true
	case errors.Is(err, extraction.ErrFallbackFailed):
		return ErrorCodeExtraction, llm.ShouldRetry(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, extraction.ErrBudgetExceeded):
		return ErrorCodeLLMTimeout, true
	case errors.Is(err, llm.ErrMalformedOutput), errors.Is(err, extraction.ErrInvalidOutput):
		return ErrorCodeLLMSchemaMismatch, false
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "llm") || strings.Contains(msg, "openai")) {
		return ErrorCodeLLMTimeout, true
	}
	if strings.Contains(msg, "store") || strings.Contains(msg, "storage") || strings.Contains(msg, "database") ||
		strings.Contains(msg, "record classification") || strings.Contains(msg, "session") {
		return ErrorCodeStorage, true
	}
	return ErrorCodeInternal, false
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
