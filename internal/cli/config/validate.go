package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.validateStore()
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func (c *Config) validateStore() error {
	if c.Store == "postgres" && c.DSN == "" {
		return fmt.Errorf("store %q requires a dsn\nHint: set dsn in %s/%s or RQG_DSN", c.Store, DefaultConfigDir, DefaultConfigFile)
	}
	return nil
}
