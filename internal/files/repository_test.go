package files

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/cloudsync/internal/errors"
	"github.com/alexjbarnes/cloudsync/internal/models"
)

func TestCreateFolder(t *testing.T) {
	env := newTestEnv(t)

	parent := env.seedFolder(t, "/docs/", "d1")
	require.NoError(t, env.store.SetAvailableOffline(parent.ID, models.AvailableOffline))
	parent.AvailableOffline = models.AvailableOffline

	env.source.EXPECT().CreateFolder(gomock.Any(), testBase, "/docs/reports/").Return("d-new", nil)

	created, err := env.repo.CreateFolder(context.Background(), parent, "reports")
	require.NoError(t, err)

	assert.Equal(t, "d-new", created.RemoteID)
	assert.Equal(t, parent.ID, created.ParentID)
	assert.True(t, created.IsFolder())
	assert.Equal(t, models.AvailableOfflineParent, created.AvailableOffline)

	env.mustFileByPath(t, "/docs/reports/")
}

func TestCreateFolder_RemoteFailure(t *testing.T) {
	env := newTestEnv(t)

	parent := env.seedFolder(t, "/docs/", "d1")

	env.source.EXPECT().CreateFolder(gomock.Any(), testBase, "/docs/reports/").Return("", errors.ErrConflict)

	_, err := env.repo.CreateFolder(context.Background(), parent, "reports")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)

	env.mustBeGone(t, "/docs/reports/")
}

func TestFileByPath_SynthesizesRoot(t *testing.T) {
	env := newTestEnv(t)

	root, err := env.repo.FileByPath(testOwner, testSpace, models.RootPath)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.True(t, root.IsFolder())
	assert.NotZero(t, root.ID)

	again, err := env.repo.FileByPath(testOwner, testSpace, models.RootPath)
	require.NoError(t, err)
	assert.Equal(t, root.ID, again.ID, "the root is created once")
}

func TestFileByPath_MissingNonRoot(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.repo.FileByPath(testOwner, testSpace, "/nope.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFileByID(t *testing.T) {
	env := newTestEnv(t)

	file := env.seedFile(t, "/a.txt", "f1", "e1")

	got, err := env.repo.FileByID(file.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", got.RemotePath)

	_, err = env.repo.FileByID(9999)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSetAvailableOffline_PinPropagatesToDescendants(t *testing.T) {
	env := newTestEnv(t)

	folder := env.seedFolder(t, "/proj/", "d1")
	env.seedFile(t, "/proj/a.txt", "f1", "e1")
	env.seedFolder(t, "/proj/sub/", "d2")
	env.seedFile(t, "/proj/sub/b.txt", "f2", "e2")

	pinned := env.seedFile(t, "/proj/pinned.txt", "f3", "e3")
	require.NoError(t, env.store.SetAvailableOffline(pinned.ID, models.AvailableOffline))

	require.NoError(t, env.repo.SetAvailableOffline(folder, models.AvailableOffline))

	assert.Equal(t, models.AvailableOffline, env.mustFileByPath(t, "/proj/").AvailableOffline)
	assert.Equal(t, models.AvailableOfflineParent, env.mustFileByPath(t, "/proj/a.txt").AvailableOffline)
	assert.Equal(t, models.AvailableOfflineParent, env.mustFileByPath(t, "/proj/sub/").AvailableOffline)
	assert.Equal(t, models.AvailableOfflineParent, env.mustFileByPath(t, "/proj/sub/b.txt").AvailableOffline)
	assert.Equal(t, models.AvailableOffline, env.mustFileByPath(t, "/proj/pinned.txt").AvailableOffline,
		"explicit pins stay explicit")
}

func TestSetAvailableOffline_UnpinClearsInheritedOnly(t *testing.T) {
	env := newTestEnv(t)

	folder := env.seedFolder(t, "/proj/", "d1")
	env.seedFile(t, "/proj/a.txt", "f1", "e1")

	pinned := env.seedFile(t, "/proj/pinned.txt", "f2", "e2")
	require.NoError(t, env.store.SetAvailableOffline(pinned.ID, models.AvailableOffline))

	require.NoError(t, env.repo.SetAvailableOffline(folder, models.AvailableOffline))
	require.NoError(t, env.repo.SetAvailableOffline(folder, models.NotAvailableOffline))

	assert.Equal(t, models.NotAvailableOffline, env.mustFileByPath(t, "/proj/").AvailableOffline)
	assert.Equal(t, models.NotAvailableOffline, env.mustFileByPath(t, "/proj/a.txt").AvailableOffline)
	assert.Equal(t, models.AvailableOffline, env.mustFileByPath(t, "/proj/pinned.txt").AvailableOffline)
}

func TestMarkLocalChange(t *testing.T) {
	env := newTestEnv(t)

	file := env.seedFile(t, "/a.txt", "f1", "e1")
	env.cacheBytes(t, &file, "1234")

	require.NoError(t, os.WriteFile(file.StoragePath, []byte("longer content"), 0o600))

	require.NoError(t, env.repo.MarkLocalChange(file.StoragePath))

	changed := env.mustFileByPath(t, "/a.txt")
	assert.Equal(t, int64(len("longer content")), changed.Length)
	assert.True(t, changed.NeedsThumbnail)
	assert.Equal(t, "e1", changed.Etag, "a local edit does not advance the etag")
}

func TestMarkLocalChange_UntrackedPathIgnored(t *testing.T) {
	env := newTestEnv(t)

	path := env.disk.DefaultPath(testOwner, testSpace, "/stray.txt")
	require.NoError(t, os.MkdirAll(env.disk.Root(), 0o700))

	assert.NoError(t, env.repo.MarkLocalChange(path))
	assert.NoError(t, env.repo.MarkLocalChange("/outside/everything"))
}

func TestWatchFolder_EmitsOnRefresh(t *testing.T) {
	env := newTestEnv(t)

	folder := env.seedFolder(t, "/docs/", "d1")

	snapshots, cancel := env.repo.WatchFolder(folder)
	defer cancel()

	// Initial snapshot is empty.
	initial := <-snapshots
	assert.Empty(t, initial)

	env.seedFile(t, "/docs/a.txt", "f1", "e1")

	next := <-snapshots
	require.Len(t, next, 1)
	assert.Equal(t, "/docs/a.txt", next[0].RemotePath)
}
