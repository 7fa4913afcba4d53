// Package config loads the experiment YAML config the way tarsy's own
// config loader loads tarsy.yaml: read the file, expand ${ENV_VAR}
// references, unmarshal, fill defaults, and validate before handing the
// result to the caller.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configLike is satisfied by any config struct that knows its own defaults
// and can validate itself — experiment.Config and tuner.Config both do.
type configLike[T any] interface {
	WithDefaults() T
	Validate() error
}

// Load reads path, expands environment variable references, unmarshals
// the result as YAML into a T, applies T's defaults, and validates it.
func Load[T configLike[T]](path string) (T, error) {
	var zero T

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, NewLoadError(path, ErrConfigNotFound)
		}
		return zero, NewLoadError(path, err)
	}

	var cfg T
	if err := yaml.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return zero, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}
