package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadsync/internal/model"
)

func TestScopeLocks_SerializesSameKey(t *testing.T) {
	locks := newScopeLocks()
	key := model.TagKey{Name: "vip", UserID: "u1", LocationID: "L1"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.lock(key)
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestScopeLocks_DistinctKeysIndependent(t *testing.T) {
	locks := newScopeLocks()
	a := locks.lock(model.TagKey{Name: "vip", LocationID: "L1"})
	b := locks.lock(model.TagKey{Name: "vip", LocationID: "L2"})
	assert.Equal(t, 2, locks.size())
	a()
	b()
	assert.Zero(t, locks.size())
}
