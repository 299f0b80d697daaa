package lm

import (
	"math"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)

	cfg := Config{
		MaxIterations:  0,
		Tolerance:      math.NaN(),
		InitialDamping: -1,
		DampingGrowth:  1,
	}
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 4)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_iterations")
	test.That(t, err.Error(), test.ShouldContainSubstring, "damping_growth")

	_, err = NewSolver(cfg, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(`{"max_iterations": 300, "strict_acceptance": true}`))
	test.That(t, err, test.ShouldBeNil)
	expected := DefaultConfig()
	expected.MaxIterations = 300
	expected.StrictAcceptance = true
	test.That(t, cfg, test.ShouldResemble, expected)

	_, err = ReadConfig(strings.NewReader(`{"damping_growth": 0.5}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadConfig(strings.NewReader(`{"tolerance": "small"}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing solver config")
}
