package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec: %w", err)
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("parse spec: %w", err)
	}
	return s, nil
}

type typesFile struct {
	ServiceTypes Types `yaml:"serviceTypes"`
}

// LoadTypes reads a service-type table and merges it over the defaults.
func LoadTypes(path string) (Types, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service types: %w", err)
	}
	var file typesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse service types: %w", err)
	}
	if err := file.ServiceTypes.Validate(); err != nil {
		return nil, err
	}
	return DefaultTypes().Merge(file.ServiceTypes), nil
}
