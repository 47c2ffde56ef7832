package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Uses go-playground/validator for declarative validation via struct tags,
// with additional custom validation for rules that cannot be expressed in
// tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// S3 DeleteObjects accepts at most 1000 keys per request.
	if cfg.Content.Type == "s3" && cfg.GC.BatchSize > 1000 {
		return fmt.Errorf("gc: batch_size %d exceeds the S3 limit of 1000", cfg.GC.BatchSize)
	}

	// A reaper sweeping less often than sessions expire leaves stale
	// sessions holding staging space for a full extra interval.
	if cfg.Transfer.Reaper.Enabled && cfg.Transfer.Reaper.Interval > cfg.Transfer.IdleTimeout {
		return fmt.Errorf("transfer: reaper interval %s exceeds session idle_timeout %s",
			cfg.Transfer.Reaper.Interval, cfg.Transfer.IdleTimeout)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
