package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/clipstream/testutils"
)

func TestStore_AddAndHas(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	store := NewStore(db, nil)

	err := store.Add(1, "raw-token-a", "Firefox on Linux", "203.0.113.9", time.Now().Add(time.Hour))
	require.NoError(t, err)

	has, err := store.Has(1, "raw-token-a")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.Has(1, "raw-token-b")
	require.NoError(t, err)
	assert.False(t, has)

	t.Run("scoped to owning user", func(t *testing.T) {
		has, err := store.Has(2, "raw-token-a")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("raw token never persisted", func(t *testing.T) {
		var record RefreshSession
		require.NoError(t, db.First(&record).Error)
		assert.NotEqual(t, "raw-token-a", record.TokenHash)
		assert.Len(t, record.TokenHash, 64)
	})
}

func TestStore_Remove(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	store := NewStore(db, nil)

	require.NoError(t, store.Add(1, "raw-token-a", "", "", time.Now().Add(time.Hour)))

	removed, err := store.Remove(1, "raw-token-a")
	require.NoError(t, err)
	assert.True(t, removed)

	t.Run("second remove reports nothing deleted", func(t *testing.T) {
		removed, err := store.Remove(1, "raw-token-a")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("missing token reports nothing deleted", func(t *testing.T) {
		removed, err := store.Remove(1, "never-stored")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestStore_Clear(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	store := NewStore(db, nil)

	require.NoError(t, store.Add(1, "token-1", "", "", time.Now().Add(time.Hour)))
	require.NoError(t, store.Add(1, "token-2", "", "", time.Now().Add(time.Hour)))
	require.NoError(t, store.Add(2, "token-3", "", "", time.Now().Add(time.Hour)))

	count, err := store.Clear(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	has, err := store.Has(2, "token-3")
	require.NoError(t, err)
	assert.True(t, has, "other users' sessions must survive")
}

func TestStore_CleanupExpired(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	store := NewStore(db, nil)

	require.NoError(t, store.Add(1, "live", "", "", time.Now().Add(time.Hour)))
	require.NoError(t, store.Add(1, "stale", "", "", time.Now().Add(-time.Minute)))

	count, err := store.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	has, err := store.Has(1, "live")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_ListByUser(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	store := NewStore(db, nil)

	require.NoError(t, store.Add(1, "live", "Chrome on macOS", "", time.Now().Add(time.Hour)))
	require.NoError(t, store.Add(1, "stale", "", "", time.Now().Add(-time.Minute)))

	sessions, err := store.ListByUser(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "expired sessions are not listed")
	assert.Equal(t, "Chrome on macOS", sessions[0].Device)
}

// Two concurrent removals of the same token must not both win; the
// delete's rows-affected count is the rotation decision point.
func TestStore_ConcurrentRemoveSingleWinner(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshSession{})
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := NewStore(db, nil)
	require.NoError(t, store.Add(1, "contested", "", "", time.Now().Add(time.Hour)))

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed, err := store.Remove(1, "contested")
			require.NoError(t, err)
			wins <- removed
		}()
	}

	wg.Wait()
	close(wins)

	winners := 0
	for removed := range wins {
		if removed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
