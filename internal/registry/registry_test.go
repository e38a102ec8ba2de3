package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/model"
)

type fakeFinder struct {
	defs  map[string]*model.CustomFieldDefinition
	calls map[string]int
	err   error
}

func (f *fakeFinder) FindCustomFieldByExternalID(_ context.Context, id string) (*model.CustomFieldDefinition, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	if f.err != nil {
		return nil, f.err
	}
	return f.defs[id], nil
}

func TestMemo_CachesHitsAndMisses(t *testing.T) {
	f := &fakeFinder{defs: map[string]*model.CustomFieldDefinition{
		"cf-1": {ID: "internal-1", ExternalID: "cf-1", DataType: "text"},
	}}
	m := NewMemo(f)
	ctx := context.Background()

	for range 3 {
		def, err := m.Lookup(ctx, "cf-1")
		require.NoError(t, err)
		require.NotNil(t, def)
		assert.Equal(t, "internal-1", def.ID)

		miss, err := m.Lookup(ctx, "cf-unknown")
		require.NoError(t, err)
		assert.Nil(t, miss)
	}

	assert.Equal(t, 1, f.calls["cf-1"])
	assert.Equal(t, 1, f.calls["cf-unknown"])
	assert.Equal(t, 2, m.Lookups())
}

func TestMemo_ErrorsAreNotCached(t *testing.T) {
	f := &fakeFinder{err: errors.New("connection refused")}
	m := NewMemo(f)

	_, err := m.Lookup(context.Background(), "cf-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: lookup cf-1")

	f.err = nil
	def, err := m.Lookup(context.Background(), "cf-1")
	require.NoError(t, err)
	assert.Nil(t, def)
	assert.Equal(t, 2, f.calls["cf-1"])
}
