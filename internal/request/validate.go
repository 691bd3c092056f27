package request

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError names the first offending field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes raw job input into a normalized, validated GenerationRequest.
func Parse(raw json.RawMessage) (*GenerationRequest, error) {
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &ValidationError{Field: "input", Message: err.Error()}
	}
	req := in.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks a normalized request against the allowed ranges. Pure, no
// side effects.
func (r *GenerationRequest) Validate() error {
	if !r.HasWorkflow() && strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{
			Field:   "prompt",
			Message: "either 'workflow' or a non-empty 'prompt' must be provided",
		}
	}

	if err := validate.Struct(r); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return &ValidationError{Field: "input", Message: err.Error()}
		}
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: constraintMessage(fe)}
	}
	return nil
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed '%s' constraint", fe.Tag())
	}
}
