// Package catalog describes the admin-editable taxonomy and validates
// taxonomy and discount input before anything reaches the database.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchema []byte

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Child struct {
	Label      string `yaml:"label" json:"label"`
	Table      string `yaml:"table" json:"-"`
	ForeignKey string `yaml:"foreign_key" json:"-"`
}

type Entity struct {
	Key   string `yaml:"-" json:"key"`
	Label string `yaml:"label" json:"label"`
	Table string `yaml:"table" json:"-"`
	Child *Child `yaml:"child,omitempty" json:"child,omitempty"`
}

type Schema struct {
	Entities map[string]Entity `yaml:"entities"`
}

// Load parses and validates a schema document.
func Load(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse catalog schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog schema: %w", err)
	}
	return &schema, nil
}

// Default returns the embedded schema.
func Default() (*Schema, error) {
	return Load(defaultSchema)
}

// Validate checks every key and table name is a plain SQL identifier.
func (s *Schema) Validate() error {
	if len(s.Entities) == 0 {
		return fmt.Errorf("no entities defined")
	}
	for key, entity := range s.Entities {
		if !identifierPattern.MatchString(key) {
			return fmt.Errorf("entity key %q is not a valid identifier", key)
		}
		if !identifierPattern.MatchString(entity.Table) {
			return fmt.Errorf("entity '%s' has invalid table %q", key, entity.Table)
		}
		if entity.Label == "" {
			return fmt.Errorf("entity '%s' missing label", key)
		}
		if entity.Child == nil {
			continue
		}
		if !identifierPattern.MatchString(entity.Child.Table) {
			return fmt.Errorf("entity '%s' child has invalid table %q", key, entity.Child.Table)
		}
		if !identifierPattern.MatchString(entity.Child.ForeignKey) {
			return fmt.Errorf("entity '%s' child has invalid foreign key %q", key, entity.Child.ForeignKey)
		}
		if entity.Child.Table == entity.Table {
			return fmt.Errorf("entity '%s' child table must differ from parent", key)
		}
	}
	return nil
}

// Lookup returns the entity for key with Key populated.
func (s *Schema) Lookup(key string) (Entity, bool) {
	entity, ok := s.Entities[key]
	if !ok {
		return Entity{}, false
	}
	entity.Key = key
	return entity, true
}

// List returns every entity ordered by key.
func (s *Schema) List() []Entity {
	keys := make([]string, 0, len(s.Entities))
	for key := range s.Entities {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Entity, 0, len(keys))
	for _, key := range keys {
		entity, _ := s.Lookup(key)
		out = append(out, entity)
	}
	return out
}
