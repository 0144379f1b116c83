package systemdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "meltano.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "default", uri: "", want: "/proj/.meltano/meltano.db"},
		{name: "relative", uri: "sqlite:///data/sys.db", want: "/proj/data/sys.db"},
		{name: "absolute", uri: "sqlite:////var/lib/tapline.db", want: "/var/lib/tapline.db"},
		{name: "postgres", uri: "postgresql://localhost/meltano", wantErr: true},
		{name: "no path", uri: "sqlite:///", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolvePath(tt.uri, "/proj")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "meltano.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SetState(context.Background(), "dev:a-to-b", []byte(`{"bookmarks":{}}`)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	got, err := db.GetState(context.Background(), "dev:a-to-b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"bookmarks":{}}`, string(got))
	assert.Equal(t, path, db.Path())
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	require.Error(t, err)
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", upSection(content))
	assert.Equal(t, "CREATE TABLE b (y INT);", upSection("CREATE TABLE b (y INT);"))
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.StartRun(ctx, "run-1", "dev:tap-iterable-to-target-jsonl", start))

	run, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.True(t, run.EndedAt.IsZero())
	assert.Zero(t, run.Duration())

	require.NoError(t, db.FinishRun(ctx, "run-1", start.Add(90*time.Second), nil))
	run, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, 90*time.Second, run.Duration())
	assert.Empty(t, run.Error)

	require.NoError(t, db.StartRun(ctx, "run-2", "dev:tap-iterable-to-target-jsonl", start.Add(time.Hour)))
	require.NoError(t, db.FinishRun(ctx, "run-2", start.Add(2*time.Hour), errors.New("tap exited 1")))
	run, err = db.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "tap exited 1", run.Error)
}

func TestFinishUnknownRun(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	err := db.FinishRun(context.Background(), "missing", time.Now(), nil)
	require.ErrorIs(t, err, ErrRunNotFound)

	_, err = db.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestStartRunValidation(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	require.Error(t, db.StartRun(context.Background(), "", "x", time.Now()))
	require.Error(t, db.StartRun(context.Background(), "id", " ", time.Now()))
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.StartRun(ctx, "a", "dev:x-to-y", base))
	require.NoError(t, db.StartRun(ctx, "b", "prod:x-to-y", base.Add(time.Minute)))
	require.NoError(t, db.StartRun(ctx, "c", "dev:x-to-y", base.Add(2*time.Minute)))

	all, err := db.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	dev, err := db.ListRuns(ctx, "dev:x-to-y", 1)
	require.NoError(t, err)
	require.Len(t, dev, 1)
	assert.Equal(t, "c", dev[0].ID)

	_, err = db.ListRuns(ctx, "", 0)
	require.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetState(ctx, "dev:a-to-b")
	require.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, db.SetState(ctx, "dev:a-to-b", []byte(`{"v":1}`)))
	require.NoError(t, db.SetState(ctx, "dev:a-to-b", []byte(`{"v":2}`)))
	require.NoError(t, db.SetState(ctx, "dev:c-to-d", []byte(`{}`)))

	got, err := db.GetState(ctx, "dev:a-to-b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))

	ids, err := db.StateIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev:a-to-b", "dev:c-to-d"}, ids)

	require.NoError(t, db.ClearState(ctx, "dev:a-to-b"))
	require.NoError(t, db.ClearState(ctx, "dev:a-to-b"))
	_, err = db.GetState(ctx, "dev:a-to-b")
	require.ErrorIs(t, err, ErrStateNotFound)
}
