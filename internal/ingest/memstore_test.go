package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// memStore is an in-memory Store with failure injection. Its tag
// get-or-create is deliberately non-atomic so tests can observe whether the
// engine serializes it.
type memStore struct {
	mu sync.Mutex

	contacts    map[string]*model.Contact // by external id
	definitions map[string]*model.CustomFieldDefinition
	values      map[string]*model.ContactCustomFieldValue // contact|field
	tags        []*model.Tag
	contactTags map[string]map[string]bool
	failures    []resilience.DeadLetter

	writes  int
	lookups int

	failContact  map[string]error
	failTags     error
	failFields   error
	upsertDelay  time.Duration
	tagRaceDelay time.Duration
}

func newMemStore(defs ...model.CustomFieldDefinition) *memStore {
	m := &memStore{
		contacts:    make(map[string]*model.Contact),
		definitions: make(map[string]*model.CustomFieldDefinition),
		values:      make(map[string]*model.ContactCustomFieldValue),
		contactTags: make(map[string]map[string]bool),
		failContact: make(map[string]error),
	}
	for _, d := range defs {
		d := d
		if d.ID == "" {
			d.ID = "def-" + d.ExternalID
		}
		m.definitions[d.ExternalID] = &d
	}
	return m
}

func (m *memStore) FindCustomFieldByExternalID(_ context.Context, id string) (*model.CustomFieldDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return m.definitions[id], nil
}

func (m *memStore) UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	if m.upsertDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.upsertDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failContact[c.ContactID]; err != nil {
		return nil, err
	}
	m.writes++

	out := *c
	if existing, ok := m.contacts[c.ContactID]; ok {
		out.ID = existing.ID
		out.CreatedAt = existing.CreatedAt
	} else {
		out.ID = uuid.New().String()
		out.CreatedAt = time.Now()
	}
	out.UpdatedAt = time.Now()
	m.contacts[c.ContactID] = &out
	cp := out
	return &cp, nil
}

func (m *memStore) UpsertCustomFieldValue(_ context.Context, v *model.ContactCustomFieldValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFields != nil {
		return m.failFields
	}
	m.writes++
	cp := *v
	m.values[v.ContactID+"|"+v.CustomFieldID] = &cp
	return nil
}

func (m *memStore) GetOrCreateTag(_ context.Context, key model.TagKey) (*model.Tag, error) {
	m.mu.Lock()
	if m.failTags != nil {
		m.mu.Unlock()
		return nil, m.failTags
	}
	for _, t := range m.tags {
		if t.Key() == key {
			m.mu.Unlock()
			return t, nil
		}
	}
	m.mu.Unlock()

	if m.tagRaceDelay > 0 {
		time.Sleep(m.tagRaceDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	t := &model.Tag{ID: uuid.New().String(), Name: key.Name, UserID: key.UserID, LocationID: key.LocationID}
	m.tags = append(m.tags, t)
	return t, nil
}

func (m *memStore) AddContactTag(_ context.Context, contactID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.contactTags[contactID] == nil {
		m.contactTags[contactID] = make(map[string]bool)
	}
	m.contactTags[contactID][tagID] = true
	return nil
}

func (m *memStore) RecordFailure(_ context.Context, dl *resilience.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, *dl)
	return nil
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// snapshot renders the store by external keys only, so two stores fed the
// same documents compare equal regardless of generated ids.
func (m *memStore) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	tagByID := make(map[string]*model.Tag, len(m.tags))
	for _, t := range m.tags {
		tagByID[t.ID] = t
	}
	defByID := make(map[string]string, len(m.definitions))
	for ext, d := range m.definitions {
		defByID[d.ID] = ext
	}

	var lines []string
	for ext, c := range m.contacts {
		attrs, _ := json.Marshal(struct {
			Name, Email, Location, TagNames *string
			DND                             bool
		}{c.Name, c.Email, c.LocationID, c.TagNames, c.DND})
		lines = append(lines, fmt.Sprintf("contact %s %s", ext, attrs))

		for tagID := range m.contactTags[c.ID] {
			lines = append(lines, fmt.Sprintf("tag %s %s", ext, tagByID[tagID].Key()))
		}
		for key, v := range m.values {
			if strings.HasPrefix(key, c.ID+"|") {
				lines = append(lines, fmt.Sprintf("value %s %s %s", ext, defByID[v.CustomFieldID], v.Value))
			}
		}
	}
	for _, t := range m.tags {
		lines = append(lines, "tagdef "+t.Key().String())
	}
	sort.Strings(lines)
	return lines
}
