package lm

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config holds the solver hyperparameters.
type Config struct {
	MaxIterations  int     `json:"max_iterations"`
	Tolerance      float64 `json:"tolerance"`
	InitialDamping float64 `json:"initial_damping"`
	DampingGrowth  float64 `json:"damping_growth"`

	// StrictAcceptance accepts an improving candidate before applying the convergence test. When
	// false a candidate whose residual norm is within Tolerance of the current one ends the solve
	// without being taken.
	StrictAcceptance bool `json:"strict_acceptance"`
}

// DefaultConfig returns the hyperparameters used for camera calibration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  100,
		Tolerance:      1e-8,
		InitialDamping: 1e-3,
		DampingGrowth:  10,
	}
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var err error
	if cfg.MaxIterations < 1 {
		err = multierr.Append(err, errors.Errorf("max_iterations must be at least 1, got %d", cfg.MaxIterations))
	}
	if !(cfg.Tolerance >= 0) {
		err = multierr.Append(err, errors.Errorf("tolerance must be non-negative, got %v", cfg.Tolerance))
	}
	if !(cfg.InitialDamping > 0) {
		err = multierr.Append(err, errors.Errorf("initial_damping must be positive, got %v", cfg.InitialDamping))
	}
	if !(cfg.DampingGrowth > 1) {
		err = multierr.Append(err, errors.Errorf("damping_growth must be greater than 1, got %v", cfg.DampingGrowth))
	}
	return err
}

// ReadConfig decodes a JSON config. Fields missing from the input keep their DefaultConfig values.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "error parsing solver config")
	}
	return cfg, cfg.Validate()
}
