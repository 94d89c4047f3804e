package etl

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// flakyStore wraps the memory store with scripted failures.
type flakyStore struct {
	*blobstore.Memory
	puts       atomic.Int32
	failPuts   int32
	invisible  bool
	failBucket bool
}

func (s *flakyStore) EnsureBucket(ctx context.Context, bucket string) error {
	if s.failBucket {
		return etlerr.Errorf(etlerr.KindConfiguration, "ensure bucket", "bucket %q belongs to another project", bucket)
	}
	return s.Memory.EnsureBucket(ctx, bucket)
}

func (s *flakyStore) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	if n := s.puts.Add(1); n <= s.failPuts {
		return etlerr.New(etlerr.KindTransport, "put "+key, errors.New("connection reset by peer"))
	}
	return s.Memory.Put(ctx, bucket, key, r)
}

func (s *flakyStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if s.invisible {
		return false, nil
	}
	return s.Memory.Exists(ctx, bucket, key)
}

func newFlakyStore(t *testing.T) *flakyStore {
	t.Helper()
	s := &flakyStore{Memory: blobstore.NewMemory()}
	require.NoError(t, s.Memory.EnsureBucket(context.Background(), "events"))
	return s
}

func writeLocal(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("id,name\n1,a\n"), 0o644))
	return p
}

func TestUploadFile_GivesUpAfterFailedVerification(t *testing.T) {
	store := newFlakyStore(t)
	store.invisible = true
	up := NewUploader(store, "events", 3, 0, time.Second, 1)
	path := writeLocal(t, t.TempDir(), "20250411120000_events.csv")

	var outcome = up.UploadFile(context.Background(), path)

	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, int32(3), store.puts.Load())
	assert.True(t, outcome.Failed())
	assert.Equal(t, etlerr.KindVerification.String(), outcome.Kind)
	assert.FileExists(t, path, "unverified uploads keep the local copy")
}

func TestUploadFile_RetriesTransientFailure(t *testing.T) {
	store := newFlakyStore(t)
	store.failPuts = 2
	up := NewUploader(store, "events", 3, time.Millisecond, time.Second, 1)
	path := writeLocal(t, t.TempDir(), "20250411120000_events.csv")

	outcome := up.UploadFile(context.Background(), path)

	assert.False(t, outcome.Failed(), outcome.Error)
	assert.Equal(t, 3, outcome.Attempts)
	ok, err := store.Exists(context.Background(), "events", "20250411120000_events.csv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, path)
}

func TestUploadFile_FirstSuccessStops(t *testing.T) {
	store := newFlakyStore(t)
	up := NewUploader(store, "events", 3, time.Hour, time.Second, 1)
	path := writeLocal(t, t.TempDir(), "a.csv")

	outcome := up.UploadFile(context.Background(), path)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int32(1), store.puts.Load())
}

func TestUploadFile_MissingLocalFileIsNotRetried(t *testing.T) {
	store := newFlakyStore(t)
	up := NewUploader(store, "events", 3, 0, time.Second, 1)

	outcome := up.UploadFile(context.Background(), filepath.Join(t.TempDir(), "gone.csv"))
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, etlerr.KindNotFound.String(), outcome.Kind)
}

func TestUploadBatch_IndependentOutcomes(t *testing.T) {
	store := newFlakyStore(t)
	store.failPuts = 1
	up := NewUploader(store, "events", 1, 0, time.Second, 1)
	dir := t.TempDir()
	paths := []string{writeLocal(t, dir, "a.csv"), writeLocal(t, dir, "b.csv"), writeLocal(t, dir, "c.csv")}

	outcomes := up.UploadBatch(context.Background(), paths)
	require.Len(t, outcomes, 3)

	failed := 0
	for i, o := range outcomes {
		assert.Equal(t, filepath.Base(paths[i]), o.Name)
		if o.Failed() {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	keys, err := store.List(context.Background(), "events", "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestUploader_PrepareRejectsForeignBucket(t *testing.T) {
	store := newFlakyStore(t)
	store.failBucket = true
	err := NewUploader(store, "events", 3, 0, time.Second, 1).Prepare(context.Background())
	assert.Equal(t, etlerr.KindConfiguration, etlerr.KindOf(err))
}
