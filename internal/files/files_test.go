package files

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/cloudsync/internal/models"
	"github.com/alexjbarnes/cloudsync/internal/remote"
	"github.com/alexjbarnes/cloudsync/internal/storage"
	"github.com/alexjbarnes/cloudsync/internal/store"
)

const (
	testOwner = "alice"
	testSpace = "s1"
	testBase  = "https://cloud.example/dav/s1"
)

type stubResolver struct{ base string }

func (s stubResolver) BaseURLFor(_ context.Context, _ string) (string, error) {
	return s.base, nil
}

type testEnv struct {
	repo   *Repository
	store  *store.Store
	disk   *storage.Provider
	source *remote.MockSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	source := remote.NewMockSource(ctrl)

	st, err := store.Open(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	disk, err := storage.NewProvider(t.TempDir())
	require.NoError(t, err)

	repo := NewRepository(source, st, disk, stubResolver{base: testBase}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return &testEnv{repo: repo, store: st, disk: disk, source: source}
}

// seedFolder persists a folder record.
func (e *testEnv) seedFolder(t *testing.T, remotePath, remoteID string) models.FileRecord {
	t.Helper()

	rec := models.FileRecord{
		RemoteID:   remoteID,
		Owner:      testOwner,
		SpaceID:    testSpace,
		RemotePath: remotePath,
		MimeType:   models.FolderMimeType,
	}
	require.NoError(t, e.store.Save(&rec))

	return rec
}

// seedFile persists a file record.
func (e *testEnv) seedFile(t *testing.T, remotePath, remoteID, etag string) models.FileRecord {
	t.Helper()

	rec := models.FileRecord{
		RemoteID:   remoteID,
		Owner:      testOwner,
		SpaceID:    testSpace,
		RemotePath: remotePath,
		MimeType:   "text/plain",
		Length:     4,
		ModifiedAt: 1700000000000,
		Etag:       etag,
	}
	require.NoError(t, e.store.Save(&rec))

	return rec
}

// cacheBytes writes content at the record's default storage path and
// persists the updated storage path.
func (e *testEnv) cacheBytes(t *testing.T, rec *models.FileRecord, content string) {
	t.Helper()

	path := e.disk.DefaultPath(rec.Owner, rec.SpaceID, rec.RemotePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rec.StoragePath = path
	require.NoError(t, e.store.Save(rec))
}

// mustFileByPath fetches a record that must exist.
func (e *testEnv) mustFileByPath(t *testing.T, remotePath string) *models.FileRecord {
	t.Helper()

	rec, err := e.store.FileByPath(testOwner, testSpace, remotePath)
	require.NoError(t, err)
	require.NotNil(t, rec, "expected record at %s", remotePath)

	return rec
}

// mustBeGone asserts no record exists at the path.
func (e *testEnv) mustBeGone(t *testing.T, remotePath string) {
	t.Helper()

	rec, err := e.store.FileByPath(testOwner, testSpace, remotePath)
	require.NoError(t, err)
	require.Nil(t, rec, "expected no record at %s", remotePath)
}

func folderEntry(remotePath, remoteID, etag string) remote.Entry {
	return remote.Entry{
		RemoteID:   remoteID,
		RemotePath: remotePath,
		MimeType:   models.FolderMimeType,
		Etag:       etag,
	}
}

func fileEntry(remotePath, remoteID, etag string, modifiedAt int64) remote.Entry {
	return remote.Entry{
		RemoteID:   remoteID,
		RemotePath: remotePath,
		MimeType:   "text/plain",
		Length:     4,
		ModifiedAt: modifiedAt,
		Etag:       etag,
	}
}
