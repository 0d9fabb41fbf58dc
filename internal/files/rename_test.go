package files

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/cloudsync/internal/errors"
)

func TestRenameFile_CollisionDetectedBeforeRemoteCall(t *testing.T) {
	env := newTestEnv(t)

	a := env.seedFile(t, "/docs/a.txt", "f1", "e1")
	env.seedFile(t, "/docs/b.txt", "f2", "e2")

	// No Rename expectation: the collision must fail before any remote
	// side effect.
	err := env.repo.RenameFile(context.Background(), a, "b.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	env.mustFileByPath(t, "/docs/a.txt")
	env.mustFileByPath(t, "/docs/b.txt")
}

func TestRenameFile_RelocatesRecordAndBytes(t *testing.T) {
	env := newTestEnv(t)

	a := env.seedFile(t, "/docs/a.txt", "f1", "e1")
	env.cacheBytes(t, &a, "payload")

	env.source.EXPECT().Rename(gomock.Any(), testBase, "/docs/a.txt", "/docs/z.txt").Return(nil)

	err := env.repo.RenameFile(context.Background(), a, "z.txt")
	require.NoError(t, err)

	env.mustBeGone(t, "/docs/a.txt")

	renamed := env.mustFileByPath(t, "/docs/z.txt")
	assert.Equal(t, a.ID, renamed.ID)

	wantStorage := env.disk.RenamedPath(a.StoragePath, "z.txt")
	assert.Equal(t, wantStorage, renamed.StoragePath)

	data, readErr := os.ReadFile(wantStorage)
	require.NoError(t, readErr)
	assert.Equal(t, "payload", string(data))
}

func TestRenameFile_Folder(t *testing.T) {
	env := newTestEnv(t)

	folder := env.seedFolder(t, "/docs/old/", "d1")
	env.seedFile(t, "/docs/old/x.txt", "f1", "e1")

	env.source.EXPECT().Rename(gomock.Any(), testBase, "/docs/old/", "/docs/new/").Return(nil)

	err := env.repo.RenameFile(context.Background(), folder, "new")
	require.NoError(t, err)

	env.mustBeGone(t, "/docs/old/")
	env.mustBeGone(t, "/docs/old/x.txt")
	env.mustFileByPath(t, "/docs/new/")
	env.mustFileByPath(t, "/docs/new/x.txt")
}

func TestRenameFile_FolderRelocatesCachedChild(t *testing.T) {
	env := newTestEnv(t)

	folder := env.seedFolder(t, "/docs/old/", "d1")
	require.Empty(t, folder.StoragePath)

	child := env.seedFile(t, "/docs/old/x.txt", "f1", "e1")
	env.cacheBytes(t, &child, "xx")

	env.source.EXPECT().Rename(gomock.Any(), testBase, "/docs/old/", "/docs/new/").Return(nil)

	require.NoError(t, env.repo.RenameFile(context.Background(), folder, "new"))

	moved := env.mustFileByPath(t, "/docs/new/x.txt")
	wantStorage := env.disk.DefaultPath(testOwner, testSpace, "/docs/new/x.txt")
	assert.Equal(t, wantStorage, moved.StoragePath)

	data, err := os.ReadFile(wantStorage)
	require.NoError(t, err)
	assert.Equal(t, "xx", string(data))
}

func TestRenameFile_RemoteFailureLeavesLocalUntouched(t *testing.T) {
	env := newTestEnv(t)

	a := env.seedFile(t, "/docs/a.txt", "f1", "e1")

	env.source.EXPECT().Rename(gomock.Any(), testBase, "/docs/a.txt", "/docs/z.txt").Return(errors.ErrConflict)

	err := env.repo.RenameFile(context.Background(), a, "z.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)

	env.mustFileByPath(t, "/docs/a.txt")
	env.mustBeGone(t, "/docs/z.txt")
}
