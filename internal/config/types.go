// Package config loads the gating policy (rqg.yml).
// This package is decoupled from CLI concerns so the server and the CLI
// load policies the same way.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// PolicyConfig is an alias for the shared policy configuration.
type PolicyConfig = core.PolicyConfig

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a policy against its struct tag constraints.
func Validate(cfg *PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy is nil")
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid policy: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "PolicyConfig.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
