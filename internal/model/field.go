package model

import (
	"encoding/json"
	"strings"
	"time"
)

// CustomFieldDefinition describes a custom field registered for a location.
// ExternalID is the identifier used by lead exports; ID is internal.
type CustomFieldDefinition struct {
	ID          string    `json:"id" yaml:"-"`
	ExternalID  string    `json:"cf_id" yaml:"id"`
	Name        string    `json:"cf_name" yaml:"name"`
	DataType    string    `json:"data_type" yaml:"data_type"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Position    int       `json:"position,omitempty" yaml:"position,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// ContactCustomFieldValue links a Contact to a CustomFieldDefinition. There
// is at most one row per (ContactID, CustomFieldID) pair.
type ContactCustomFieldValue struct {
	ID            string          `json:"id"`
	ContactID     string          `json:"contact_id"`
	CustomFieldID string          `json:"custom_field_id"`
	Value         json.RawMessage `json:"value"`
	UserID        string          `json:"user_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DefinitionSet is an indexed collection of custom field definitions keyed by
// external id. Later duplicates replace earlier ones.
type DefinitionSet struct {
	Definitions []CustomFieldDefinition
	byExternal  map[string]int
}

// NewDefinitionSet indexes defs by trimmed external id. Definitions without
// an external id are dropped.
func NewDefinitionSet(defs []CustomFieldDefinition) *DefinitionSet {
	s := &DefinitionSet{byExternal: make(map[string]int, len(defs))}
	for _, d := range defs {
		d.ExternalID = strings.TrimSpace(d.ExternalID)
		if d.ExternalID == "" {
			continue
		}
		if i, ok := s.byExternal[d.ExternalID]; ok {
			s.Definitions[i] = d
			continue
		}
		s.byExternal[d.ExternalID] = len(s.Definitions)
		s.Definitions = append(s.Definitions, d)
	}
	return s
}

// ByExternalID returns the definition for the given external id, or nil.
func (s *DefinitionSet) ByExternalID(id string) *CustomFieldDefinition {
	i, ok := s.byExternal[id]
	if !ok {
		return nil
	}
	return &s.Definitions[i]
}

// Len returns the number of indexed definitions.
func (s *DefinitionSet) Len() int {
	return len(s.Definitions)
}
