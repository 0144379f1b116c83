package statestore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/tapline/internal/systemdb"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	objects map[string][]byte
	mu      sync.Mutex
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	db, err := systemdb.Open(filepath.Join(t.TempDir(), "meltano.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Backend{
		"systemdb": NewSystemDB(db),
		"file":     NewFile(filepath.Join(t.TempDir(), "state")),
		"s3":       NewS3(newFakeS3(), "bucket", "/meltano/state/"),
	}
}

func TestBackendContract(t *testing.T) {
	t.Parallel()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := backend.Get(ctx, "dev:tap-iterable-to-target-jsonl")
			require.ErrorIs(t, err, ErrStateNotFound)

			ids, err := backend.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, ids)

			state := []byte(`{"bookmarks":{"users":{"replication_key_value":"2024-01-01"}}}`)
			require.NoError(t, backend.Set(ctx, "dev:tap-iterable-to-target-jsonl", state))
			require.NoError(t, backend.Set(ctx, "prod:tap-iterable-to-target-jsonl", []byte(`{}`)))

			got, err := backend.Get(ctx, "dev:tap-iterable-to-target-jsonl")
			require.NoError(t, err)
			assert.JSONEq(t, string(state), string(got))

			ids, err = backend.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"dev:tap-iterable-to-target-jsonl", "prod:tap-iterable-to-target-jsonl"}, ids)

			ids, err = backend.List(ctx, "dev:*")
			require.NoError(t, err)
			assert.Equal(t, []string{"dev:tap-iterable-to-target-jsonl"}, ids)

			require.NoError(t, backend.Clear(ctx, "dev:tap-iterable-to-target-jsonl"))
			require.NoError(t, backend.Clear(ctx, "dev:tap-iterable-to-target-jsonl"))
			_, err = backend.Get(ctx, "dev:tap-iterable-to-target-jsonl")
			require.ErrorIs(t, err, ErrStateNotFound)
		})
	}
}

func TestBackendsRejectInvalidState(t *testing.T) {
	t.Parallel()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.ErrorIs(t, backend.Set(ctx, "id", []byte(`[1,2]`)), ErrInvalidState)
			require.ErrorIs(t, backend.Set(ctx, "id", []byte(`not json`)), ErrInvalidState)
			require.ErrorIs(t, backend.Set(ctx, " ", []byte(`{}`)), ErrInvalidStateID)
		})
	}
}

func TestS3KeyLayout(t *testing.T) {
	t.Parallel()

	client := newFakeS3()
	backend := NewS3(client, "bucket", "meltano/state")
	require.NoError(t, backend.Set(context.Background(), "dev:a-to-b", []byte(`{}`)))

	_, ok := client.objects["meltano/state/dev:a-to-b/state.json"]
	assert.True(t, ok, "objects: %v", client.objects)
}

func TestFileEscapesIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend := NewFile(dir)
	require.NoError(t, backend.Set(context.Background(), "dev/a:b", []byte(`{}`)))

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, dir, filepath.Dir(matches[0]))

	ids, err := backend.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev/a:b"}, ids)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	db, err := systemdb.Open(filepath.Join(t.TempDir(), "meltano.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	backend, err := Open(ctx, "", db, "/proj")
	require.NoError(t, err)
	assert.IsType(t, &SystemDB{}, backend)

	backend, err = Open(ctx, "systemdb", db, "/proj")
	require.NoError(t, err)
	assert.IsType(t, &SystemDB{}, backend)

	_, err = Open(ctx, "systemdb", nil, "/proj")
	require.ErrorIs(t, err, ErrUnsupportedURI)

	backend, err = Open(ctx, "file:///var/state", nil, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "/var/state", backend.(*File).Dir())

	backend, err = Open(ctx, "file://.meltano/state", nil, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "/proj/.meltano/state", backend.(*File).Dir())

	_, err = Open(ctx, "gs://bucket/prefix", nil, "/proj")
	require.ErrorIs(t, err, ErrUnsupportedURI)

	_, err = Open(ctx, "s3:///prefix", nil, "/proj")
	require.ErrorIs(t, err, ErrUnsupportedURI)
}

func TestDefaultStateID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dev:tap-iterable-to-target-jsonl", DefaultStateID("dev", "tap-iterable", "target-jsonl"))
	assert.Equal(t, "tap-iterable-to-target-jsonl", DefaultStateID("", "tap-iterable", "target-jsonl"))
}
