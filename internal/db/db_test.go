package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsAbsentOnFirstRun(t *testing.T) {
	db := newTestDB(t)

	token, err := db.LoadCredential()
	require.NoError(t, err)
	assert.Empty(t, token)

	_, _, ok, err := db.LoadSelection()
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = db.LoadCacheTTLMinutes()
	require.NoError(t, err)
	assert.False(t, ok)

	limit, err := db.LoadItemLimit()
	require.NoError(t, err)
	assert.Nil(t, limit)
}

func TestSetSettingUpserts(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SetSetting("k", "one"))
	require.NoError(t, db.SetSetting("k", "two"))

	v, ok, err := db.GetSetting("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, db.DeleteSetting("k"))
	_, ok, err = db.GetSetting("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTypedSettings(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SaveCredential("ghp_secret"))
	token, err := db.LoadCredential()
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", token)
	require.NoError(t, db.DeleteCredential())
	token, err = db.LoadCredential()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, db.SaveSelection("wesm", "repo-pulse"))
	owner, name, ok, err := db.LoadSelection()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wesm", owner)
	assert.Equal(t, "repo-pulse", name)
	require.NoError(t, db.ClearSelection())
	_, _, ok, err = db.LoadSelection()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SaveCacheTTLMinutes(45))
	minutes, ok, err := db.LoadCacheTTLMinutes()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 45, minutes)

	limit := 250
	require.NoError(t, db.SaveItemLimit(&limit))
	got, err := db.LoadItemLimit()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 250, *got)

	require.NoError(t, db.SaveItemLimit(nil))
	got, err = db.LoadItemLimit()
	require.NoError(t, err)
	assert.Nil(t, got)
}

type snapshotItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestSnapshotRoundTripAndExpiry(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	in := []snapshotItem{{ID: 1, Name: "v1.0"}, {ID: 2, Name: "v1.1"}}
	require.NoError(t, db.SaveSnapshot("o", "r", "releases", in, 30*time.Minute))

	var out []snapshotItem
	found, err := db.LoadSnapshot("o", "r", "releases", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)

	found, err = db.LoadSnapshot("o", "r", "issues", &out)
	require.NoError(t, err)
	assert.False(t, found)

	now = now.Add(31 * time.Minute)
	found, err = db.LoadSnapshot("o", "r", "releases", &out)
	require.NoError(t, err)
	assert.False(t, found)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&n))
	assert.Zero(t, n, "expired snapshot is deleted")
}

func TestDeleteSnapshotsIsScopedToRepository(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SaveSnapshot("o", "r", "labels", []string{"bug"}, time.Hour))
	require.NoError(t, db.SaveSnapshot("o", "r", "issues", []string{}, time.Hour))
	require.NoError(t, db.SaveSnapshot("o", "r10", "labels", []string{"docs"}, time.Hour))

	require.NoError(t, db.DeleteSnapshots("o", "r"))

	var labels []string
	found, err := db.LoadSnapshot("o", "r", "labels", &labels)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = db.LoadSnapshot("o", "r10", "labels", &labels)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"docs"}, labels)
}
