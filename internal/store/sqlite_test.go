package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codingbear/mcrouter/internal/routing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcrouter.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadRoutesRoundTrip(t *testing.T) {
	db := openTestDB(t)

	routes := map[string]routing.Upstream{
		"example.com": {Host: "10.0.0.1", Port: 25565},
		"other.net":   {Host: "10.0.0.2", Port: 25566},
	}
	require.NoError(t, db.SaveAll(routes))

	loaded, err := db.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, routes, loaded)
}

func TestSaveAllReplacesPreviousContents(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveAll(map[string]routing.Upstream{
		"old.example": {Host: "1.1.1.1", Port: 1},
	}))
	require.NoError(t, db.SaveAll(map[string]routing.Upstream{
		"new.example": {Host: "2.2.2.2", Port: 2},
	}))

	loaded, err := db.LoadAll()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	_, hasOld := loaded["old.example"]
	assert.False(t, hasOld)
	assert.Equal(t, routing.Upstream{Host: "2.2.2.2", Port: 2}, loaded["new.example"])
}

func TestRecordAndListAdmissions(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordAdmission(time.Now(), "1.2.3.4", "example.com", "alice", "uuid-1", "10.0.0.1:25565"))
	require.NoError(t, db.RecordAdmission(time.Now(), "5.6.7.8", "other.net", "", "", "10.0.0.2:25566"))

	all, err := db.ListAdmissions("", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "other.net", all[0].Domain) // newest first

	scoped, err := db.ListAdmissions("example.com", 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "alice", scoped[0].Username)
	assert.Equal(t, "uuid-1", scoped[0].UUID)
}

func TestListAdmissionsRespectsLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordAdmission(time.Now(), "1.2.3.4", "example.com", "p", "u", "h:1"))
	}

	rows, err := db.ListAdmissions("", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
