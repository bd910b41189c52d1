package db

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesm/argh/internal/models"
	"github.com/wesm/argh/internal/normalize"
)

func snapshotOf(t *testing.T, raw string) *models.Snapshot {
	t.Helper()
	var issues []*github.Issue
	require.NoError(t, json.Unmarshal([]byte(raw), &issues))
	snap, err := normalize.Normalize(issues, nil, nil)
	require.NoError(t, err)
	return snap
}

func buildStore(t *testing.T, raw string) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "octo_widgets.db")
	_, err := Build(context.Background(), path, snapshotOf(t, raw), nil)
	require.NoError(t, err)
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func count(t *testing.T, store *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, store.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

const scenario = `[
	{"id":1,"number":1,"title":"a","state":"open","created_at":"2024-01-05T00:00:00Z",
	 "labels":[{"id":10,"name":"bug","color":"f00"}]},
	{"id":2,"number":2,"title":"b","state":"closed","created_at":"2024-01-20T00:00:00Z",
	 "pull_request":{},"draft":false,"labels":[{"id":10,"name":"bug","color":"f00"}]}
]`

func TestBuild_Scenario(t *testing.T) {
	store := buildStore(t, scenario)

	assert.Equal(t, 1, count(t, store, "issues"))
	assert.Equal(t, 1, count(t, store, "pull_requests"))
	assert.Equal(t, 1, count(t, store, "labels"))
	assert.Equal(t, 2, count(t, store, "issue_labels"))

	var createdAt string
	var login *string
	require.NoError(t, store.QueryRow("SELECT created_at, user_login FROM issues WHERE id = 1").Scan(&createdAt, &login))
	assert.Equal(t, "2024-01-05T00:00:00Z", createdAt)
	assert.Nil(t, login)

	ctx := context.Background()
	issues, err := store.MonthlySummary(ctx, models.KindIssue)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug"}, issues.Labels)
	assert.Equal(t, []models.MonthlyBucket{
		{Month: "2024-01", Open: 1, Closed: 0, Labels: map[string]int{"bug": 1}},
	}, issues.Buckets)

	prs, err := store.MonthlySummary(ctx, models.KindPullRequest)
	require.NoError(t, err)
	assert.Equal(t, []models.MonthlyBucket{
		{Month: "2024-01", Open: 0, Closed: 1, Labels: map[string]int{"bug": 1}},
	}, prs.Buckets)
}

func TestBuild_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report an empty snapshot as no data", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.db")
		_, err := Build(ctx, path, &models.Snapshot{}, nil)
		assert.ErrorIs(t, err, models.ErrNoData)
		assert.NoFileExists(t, path)
	})

	t.Run("Should reject duplicate ids and keep the previous store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dup.db")
		_, err := Build(ctx, path, snapshotOf(t, scenario), nil)
		require.NoError(t, err)

		_, err = Build(ctx, path, snapshotOf(t, `[{"id":5},{"id":5}]`), nil)
		require.ErrorIs(t, err, models.ErrSchemaViolation)
		assert.NoFileExists(t, path+".tmp")

		store, err := Open(path)
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, 1, count(t, store, "issues"))
	})

	t.Run("Should refuse to build while another build holds the lock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locked.db")
		held := flock.New(path + ".lock")
		locked, err := held.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer held.Unlock()

		_, err = Build(ctx, path, snapshotOf(t, scenario), nil)
		assert.ErrorIs(t, err, ErrLocked)
		assert.ErrorIs(t, err, models.ErrStore)
	})

	t.Run("Should report a missing store as no data", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
		assert.ErrorIs(t, err, models.ErrNoData)
	})
}

func TestBuild_SpecialCharactersInPath(t *testing.T) {
	ctx := context.Background()
	for _, dir := range []string{"out#1", "out?x=1", "out%20a", "with space"} {
		t.Run(dir, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), dir, "db", "octo_widgets.db")
			_, err := Build(ctx, path, snapshotOf(t, scenario), nil)
			require.NoError(t, err)
			assert.FileExists(t, path)

			store, err := Open(path)
			require.NoError(t, err)
			defer store.Close()

			freq, err := store.LabelFrequency(ctx, models.KindIssue)
			require.NoError(t, err)
			assert.Equal(t, []models.LabelFrequency{{Label: "bug", Count: 1}}, freq)
		})
	}
}

func TestOpen_ReadOnly(t *testing.T) {
	store := buildStore(t, scenario)
	_, err := store.Exec("DELETE FROM issues")
	assert.Error(t, err)
	assert.Equal(t, 1, count(t, store, "issues"))
}

func TestLoadSnapshot_RollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := New(filepath.Join(t.TempDir(), "rollback.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Initialize(ctx))

	snap := snapshotOf(t, scenario)
	snap.ResourceLabels = append(snap.ResourceLabels, snap.ResourceLabels[0])

	_, err = store.LoadSnapshot(ctx, snap)
	require.ErrorIs(t, err, models.ErrSchemaViolation)
	assert.Equal(t, 0, count(t, store, "issues"))
	assert.Equal(t, 0, count(t, store, "labels"))
}

func TestBuild_Discussions(t *testing.T) {
	answered := true
	snap := &models.Snapshot{Discussions: []models.Discussion{
		{Number: 1, Title: "Roadmap", IsAnswered: &answered, Category: "Ideas", UpvoteCount: 3},
		{Number: 2, Title: "Ghost"},
	}}
	path := filepath.Join(t.TempDir(), "discussions.db")

	stats, err := Build(context.Background(), path, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Discussions)

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	var isAnswered *bool
	require.NoError(t, store.QueryRow("SELECT is_answered FROM discussions WHERE number = 2").Scan(&isAnswered))
	assert.Nil(t, isAnswered)
}

func TestBuild_RemovesStaleTemp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.db")
	require.NoError(t, os.WriteFile(path+".tmp", []byte("not a database"), 0644))

	_, err := Build(context.Background(), path, snapshotOf(t, scenario), nil)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}
