package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/rpc"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// transport: a name registered with rpc.RegisterTransport
	_ = v.RegisterValidation("transport", func(fl validator.FieldLevel) bool {
		return rpc.HasTransport(fl.Field().String())
	})

	// profile_type: a Pyroscope profile type name
	_ = v.RegisterValidation("profile_type", func(fl validator.FieldLevel) bool {
		_, err := telemetry.ParseProfileType(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks cfg against the struct tags of every section.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
