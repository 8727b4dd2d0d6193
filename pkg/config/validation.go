package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags.
//
// Returns an error listing every failing field rather than stopping at the
// first, so a broken config can be fixed in one pass.
func Validate(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	problems := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		problems = append(problems, describeFieldError(fieldErr))
	}

	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}

// describeFieldError renders one validation failure as a human-readable
// line.
func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	// Strip the leading "Config." for readability
	field = strings.TrimPrefix(field, "Config.")

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %q)", field, fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s (got %v)", field, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s (got %v)", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got %v)", field, fe.Param(), fe.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q (got %q)", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation (got %v)", field, fe.Tag(), fe.Value())
	}
}
