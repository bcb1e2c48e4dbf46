package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Load reads the configuration from the environment. Every missing required
// variable is reported in a single error.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom is Load over an explicit environment, used by tests.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg.Thumbnail); err != nil {
		return nil, fmt.Errorf("invalid thumbnail configuration: %w", err)
	}
	if err := v.Struct(cfg.Redis); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	return cfg, nil
}
