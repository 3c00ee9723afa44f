package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMethod   = "rk45"
	DefaultT0       = 0.0
	DefaultT1       = 1.0
	DefaultSamples  = 11
	DefaultRTol     = 1e-8
	DefaultATol     = 1e-8
	DefaultMaxSteps = 100000
)

type Config struct {
	Model          string             `yaml:"model"`
	Method         string             `yaml:"method"`
	BackwardMethod string             `yaml:"backward_method"`
	T0             float64            `yaml:"t0"`
	T1             float64            `yaml:"t1"`
	Samples        int                `yaml:"samples"`
	RTol           float64            `yaml:"rtol"`
	ATol           float64            `yaml:"atol"`
	MaxSteps       int                `yaml:"max_steps"`
	InitState      []float64          `yaml:"init_state"`
	Params         map[string]float64 `yaml:"params"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:    "decay",
		Method:   DefaultMethod,
		T0:       DefaultT0,
		T1:       DefaultT1,
		Samples:  DefaultSamples,
		RTol:     DefaultRTol,
		ATol:     DefaultATol,
		MaxSteps: DefaultMaxSteps,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BackwardOrForward resolves the method used for adjoint sub-solves,
// defaulting to the forward method when no override is set.
func (c *Config) BackwardOrForward() string {
	if c.BackwardMethod != "" {
		return c.BackwardMethod
	}
	return c.Method
}
