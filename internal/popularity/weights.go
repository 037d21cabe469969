package popularity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWeights reads a weight override file. Fields left out of the file keep
// their default value, so an override can tune a single factor.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read weights file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return Weights{}, fmt.Errorf("parse weights file: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return w, nil
}
