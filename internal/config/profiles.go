package config

import (
	"fmt"
	"os"

	"github.com/crewd/crewd/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Catalog is the static catalog of worker profiles and workflow
// definitions loaded from the profiles file.
type Catalog struct {
	Profiles  []domain.WorkerProfile      `yaml:"profiles"`
	Workflows []domain.WorkflowDefinition `yaml:"workflows"`
}

// LoadCatalog reads and validates the YAML profiles file. An empty path
// returns an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	seen := make(map[string]bool)
	for i, p := range catalog.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d has no id", i)
		}
		if p.Model == "" {
			return nil, fmt.Errorf("profile %s has no model", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate profile id: %s", p.ID)
		}
		seen[p.ID] = true
	}

	return &catalog, nil
}
