package datasets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadMetadata reads a metadata.yml file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Validate checks the fields identity assignment depends on.
func (m *Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("dataset metadata needs a name")
	}
	if m.Prefix == "" {
		return fmt.Errorf("dataset %s metadata needs an id prefix", m.Name)
	}
	return nil
}
