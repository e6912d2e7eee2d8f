// Package config loads runtime settings from MLNMR_* environment
// variables. Command-line flags override these values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings.
type Config struct {
	// DB is the SQLite file holding stored fits.
	DB string `env:"MLNMR_DB" envDefault:"mlnmr.db" validate:"required"`
	// Workers bounds parallelism; 0 means GOMAXPROCS.
	Workers int `env:"MLNMR_WORKERS" envDefault:"0" validate:"gte=0"`
	// NInt is the number of integration points per AgD arm.
	NInt int    `env:"MLNMR_N_INT" envDefault:"1000" validate:"gte=1"`
	Seed uint64 `env:"MLNMR_SEED" envDefault:"1"`
	// Draws is the number of retained posterior draws.
	Draws   int    `env:"MLNMR_DRAWS" envDefault:"1000" validate:"gte=1"`
	Sampler string `env:"MLNMR_SAMPLER" envDefault:"laplace" validate:"oneof=laplace metropolis"`
	// IntTol is the integration-error tolerance used by diagnose.
	IntTol   float64 `env:"MLNMR_INT_TOL" envDefault:"0.01" validate:"gt=0"`
	LogLevel string  `env:"MLNMR_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sampler = strings.ToLower(cfg.Sampler)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every failing variable.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s", envName(fe.StructField()), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envName(field string) string {
	switch field {
	case "NInt":
		return "MLNMR_N_INT"
	case "IntTol":
		return "MLNMR_INT_TOL"
	case "LogLevel":
		return "MLNMR_LOG_LEVEL"
	}
	return "MLNMR_" + strings.ToUpper(field)
}
