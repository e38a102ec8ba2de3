// Package registry resolves custom field definitions by the external id used
// in lead exports.
package registry

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/model"
)

// Registry resolves a custom field external id to its definition. A nil
// definition with a nil error means the id is not registered.
type Registry interface {
	Lookup(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error)
}

// Finder is the store capability a Memo is built on.
type Finder interface {
	FindCustomFieldByExternalID(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error)
}

// Memo caches lookups against a Finder for the lifetime of one import.
// Misses are cached too; errors are not.
type Memo struct {
	finder Finder

	mu      sync.Mutex
	entries map[string]*model.CustomFieldDefinition
	lookups int
}

// NewMemo returns an empty Memo over f.
func NewMemo(f Finder) *Memo {
	return &Memo{finder: f, entries: make(map[string]*model.CustomFieldDefinition)}
}

// Lookup returns the definition for externalID, querying the Finder at most
// once per id.
func (m *Memo) Lookup(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if def, ok := m.entries[externalID]; ok {
		return def, nil
	}

	m.lookups++
	def, err := m.finder.FindCustomFieldByExternalID(ctx, externalID)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: lookup %s", externalID)
	}
	m.entries[externalID] = def
	return def, nil
}

// Lookups reports how many times the underlying Finder was queried.
func (m *Memo) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}
