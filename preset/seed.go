package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout of a preset seed file.
type SeedFile struct {
	Presets []Preset `json:"presets" yaml:"presets"`
}

// LoadSeedFile reads presets from a YAML or JSON file. A missing file is not
// an error and yields no presets. ${VAR} references are expanded from the
// environment before parsing so API keys can live in .env. Entries are
// validated but not stored; use Seed to load them into a registry.
func LoadSeedFile(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("preset: read seed file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var seed SeedFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &seed)
	default:
		err = yaml.Unmarshal(data, &seed)
	}
	if err != nil {
		return nil, fmt.Errorf("preset: parse seed file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(seed.Presets))
	for i, p := range seed.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("preset: seed entry %d (key %q): %w", i, p.Key, err)
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("preset: seed entry %d: duplicate key %q", i, p.Key)
		}
		seen[p.Key] = true
	}
	return seed.Presets, nil
}

// Seed saves every preset in presets into r.
func Seed(r *Registry, presets []Preset) error {
	for _, p := range presets {
		if err := r.Save(p); err != nil {
			return fmt.Errorf("preset: seed %q: %w", p.Key, err)
		}
	}
	return nil
}
