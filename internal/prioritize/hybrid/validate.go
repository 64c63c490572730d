package hybrid

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// genericPhrases are brief_reasoning strings the spec rejects outright
// (§4.2: "Brief-reasoning validator rejects ... generic phrases").
var genericPhrases = []string{
	"important", "critical", "high priority", "makes sense", "obviously",
	"self-explanatory", "needs to be done", "good idea",
}

func validateStruct(s any) ValidationResult {
	if err := validate.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return ValidationResult{Valid: false, Errors: []ValidationError{{Message: err.Error()}}}
		}
		errs := make([]ValidationError, 0, len(verrs))
		for _, e := range verrs {
			errs = append(errs, ValidationError{
				Field:   e.StructNamespace(),
				Tag:     e.Tag(),
				Value:   e.Value(),
				Message: formatFieldError(e),
			})
		}
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.StructNamespace() + " is required"
	case "min":
		return e.StructNamespace() + " must have at least " + e.Param() + " items/chars"
	case "gte":
		return e.StructNamespace() + " must be >= " + e.Param()
	case "lte":
		return e.StructNamespace() + " must be <= " + e.Param()
	case "oneof":
		return e.StructNamespace() + " must be one of: " + e.Param()
	default:
		return e.StructNamespace() + " failed rule '" + e.Tag() + "'"
	}
}

// Validate checks GeneratorResponse struct tags plus the brief-reasoning
// word-count/genericness rule applied to every per-task score.
func (r *GeneratorResponse) Validate() ValidationResult {
	result := validateStruct(r)
	for _, score := range r.PerTaskScores {
		if err := validateBriefReasoning(score.BriefReasoning); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "PerTaskScores.BriefReasoning",
				Message: err.Error(),
				Value:   score.BriefReasoning,
			})
		}
	}
	return result
}

// Validate checks EvaluatorResponse struct tags.
func (r *EvaluatorResponse) Validate() ValidationResult {
	return validateStruct(r)
}

type briefReasoningError string

func (e briefReasoningError) Error() string { return string(e) }

// validateBriefReasoning enforces the spec's ≤20 word bound and rejects
// generic filler phrases, forcing a repair attempt.
func validateBriefReasoning(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return briefReasoningError("brief_reasoning must not be empty")
	}
	words := strings.Fields(trimmed)
	if len(words) > 20 {
		return briefReasoningError("brief_reasoning must be <= 20 words")
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			return briefReasoningError("brief_reasoning is too generic: " + phrase)
		}
	}
	return nil
}
