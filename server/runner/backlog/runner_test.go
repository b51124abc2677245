package backlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/store"
	"github.com/glimpse-dev/glimpse/store/db"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "glimpse_test.db"),
	}
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func createItemWithStatus(t *testing.T, st *store.Store, status store.ProcessingStatus, updatedTs int64) *store.Item {
	t.Helper()
	item, err := st.CreateItem(context.Background(), &store.Item{
		ID:               uuid.NewString(),
		CreatedTs:        updatedTs,
		UpdatedTs:        updatedTs,
		StoragePath:      "items/" + uuid.NewString(),
		ReceivedTs:       updatedTs,
		CapturedTs:       updatedTs,
		Source:           "screen",
		MimeType:         "image/png",
		ProcessingStatus: status,
	})
	require.NoError(t, err)
	return item
}

func TestRunOnceSelectsStaleNonTerminalItems(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	stale := time.Now().Add(-time.Hour).Unix()
	fresh := time.Now().Unix()

	stalePending := createItemWithStatus(t, st, store.StatusPending, stale)
	staleProcessing := createItemWithStatus(t, st, store.StatusProcessing, stale)
	staleFailed := createItemWithStatus(t, st, store.StatusFailed, stale)
	createItemWithStatus(t, st, store.StatusComplete, stale)
	createItemWithStatus(t, st, store.StatusPending, fresh)

	cutoff := time.Now().Add(-defaultGrace).Unix()
	limit := batchSize
	items, err := st.ListItems(ctx, &store.FindItem{
		ProcessingStatuses: []store.ProcessingStatus{
			store.StatusPending,
			store.StatusProcessing,
			store.StatusFailed,
		},
		UpdatedBefore: &cutoff,
		Limit:         &limit,
	})
	require.NoError(t, err)

	ids := make(map[string]bool, len(items))
	for _, item := range items {
		ids[item.ID] = true
	}
	assert.Len(t, items, 3)
	assert.True(t, ids[stalePending.ID])
	assert.True(t, ids[staleProcessing.ID])
	assert.True(t, ids[staleFailed.ID])
}

func TestRunOnceEmptyBacklog(t *testing.T) {
	st := newTestStore(t)
	createItemWithStatus(t, st, store.StatusComplete, time.Now().Add(-time.Hour).Unix())

	r := NewRunner(st, nil, "", 0)
	// With nothing stale the sweep must not touch the processor at all,
	// hence the nil processor is never dereferenced.
	require.NoError(t, r.RunOnce(context.Background()))
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, "", 0)
	assert.Equal(t, defaultSchedule, r.schedule)
	assert.Equal(t, defaultGrace, r.grace)

	r = NewRunner(nil, nil, "@every 5m", time.Minute)
	assert.Equal(t, "@every 5m", r.schedule)
	assert.Equal(t, time.Minute, r.grace)
}
