package gradcheck

import (
	"fmt"

	"toygrad/internal/config"
)

// Config controls the finite-difference comparison.
type Config struct {
	// Epsilon is the central-difference step h in (f(x+h) - f(x-h)) / 2h.
	Epsilon float64 `env:"TOYGRAD_GRADCHECK_EPSILON" envDefault:"1e-6"`
	// Tolerance is the largest accepted absolute difference per input.
	Tolerance float64 `env:"TOYGRAD_GRADCHECK_TOLERANCE" envDefault:"1e-4"`
}

// DefaultConfig returns the defaults without reading the environment.
func DefaultConfig() Config {
	return Config{Epsilon: 1e-6, Tolerance: 1e-4}
}

// LoadConfig reads Config from the environment, applying defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !(c.Epsilon > 0) {
		return fmt.Errorf("gradcheck: epsilon must be positive, got %g", c.Epsilon)
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("gradcheck: tolerance must be positive, got %g", c.Tolerance)
	}
	return nil
}
