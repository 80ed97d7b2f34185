package db

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_OpenAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "ledger.db")

	db, err := Open(dbPath)
	require.NoError(t, err)

	// Missing parent dirs are created
	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
	assert.NoError(t, db.Close())
}

func TestDB_ReopenKeepsEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.LogAgentEvent("sut-01", EventAgentLaunched, "pid=42"))
	db.Close()

	db, err = Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	events, err := db.GetRecentAgentEvents(10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDB_LogAgentEvent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.LogAgentEvent("sut-01", EventAgentLaunched, "pid=1234"))

	events, err := db.GetRecentAgentEvents(1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "sut-01", e.Identity)
	assert.Equal(t, EventAgentLaunched, e.EventType)
	assert.Equal(t, "pid=1234", e.Details)
	assert.False(t, e.Timestamp.IsZero(), "timestamp must be set")
}

func TestDB_GetRecentAgentEvents_NewestFirstAndLimited(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.LogAgentEvent(fmt.Sprintf("sut-%d", i), EventAgentLaunched, ""))
	}

	events, err := db.GetRecentAgentEvents(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "sut-4", events[0].Identity)
	assert.Equal(t, "sut-2", events[2].Identity)
}

func TestDB_GetLastAgentEventPerIdentity(t *testing.T) {
	db := openTestDB(t)

	db.LogAgentEvent("sut-b", EventAgentLaunched, "pid=10")
	db.LogAgentEvent("sut-a", EventAgentLaunched, "pid=11")
	db.LogAgentEvent("sut-b", EventAgentExited, "exit_code=1")
	db.LogAgentEvent("sut-c", EventAgentLaunchFailed, "exec: not found")

	events, err := db.GetLastAgentEventPerIdentity()
	require.NoError(t, err)
	require.Len(t, events, 3)

	var got []string
	for _, e := range events {
		got = append(got, e.Identity+":"+e.EventType)
	}
	assert.Equal(t, []string{
		"sut-a:" + EventAgentLaunched,
		"sut-b:" + EventAgentExited,
		"sut-c:" + EventAgentLaunchFailed,
	}, got)
}

func TestDB_LogSupervisorEvent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.LogSupervisorEvent(EventSupervisorStart, "units=3"))
	require.NoError(t, db.LogSupervisorEvent(EventSupervisorKill, ""))

	events, err := db.GetRecentSupervisorEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSupervisorKill, events[0].EventType)
	assert.Empty(t, events[0].Details)
	assert.Equal(t, "units=3", events[1].Details)
}

func TestDB_ConcurrentAgentEvents(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.LogAgentEvent(fmt.Sprintf("sut-%02d", i), EventAgentExited, "exit_code=0")
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	events, err := db.GetLastAgentEventPerIdentity()
	require.NoError(t, err)
	assert.Len(t, events, 20)
}

func TestDB_EmptyTables(t *testing.T) {
	db := openTestDB(t)

	agents, err := db.GetRecentAgentEvents(10)
	require.NoError(t, err)
	assert.Empty(t, agents)

	sup, err := db.GetRecentSupervisorEvents(10)
	require.NoError(t, err)
	assert.Empty(t, sup)
}
