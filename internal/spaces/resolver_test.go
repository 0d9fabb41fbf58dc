package spaces

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/cloudsync/internal/errors"
	"github.com/alexjbarnes/cloudsync/internal/models"
)

type fakeLister struct {
	spaces []models.Space
	err    error
	calls  int
}

func (f *fakeLister) Spaces(_ context.Context, _ string) ([]models.Space, error) {
	f.calls++
	return f.spaces, f.err
}

func TestBaseURLFor_EmptySpaceIsLegacyAccount(t *testing.T) {
	lister := &fakeLister{}
	r := NewResolver(lister, "https://cloud.example/api")

	base, err := r.BaseURLFor(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example/api", base)
	assert.Zero(t, lister.calls)
}

func TestBaseURLFor_ResolvesAndCaches(t *testing.T) {
	lister := &fakeLister{spaces: []models.Space{
		{ID: "s1", Name: "Personal", WebDavURL: "https://cloud.example/dav/s1"},
		{ID: "s2", Name: "Shares", WebDavURL: "https://cloud.example/dav/s2"},
	}}
	r := NewResolver(lister, "https://cloud.example/api")

	base, err := r.BaseURLFor(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example/dav/s2", base)

	// Both spaces were cached by the single listing.
	base, err = r.BaseURLFor(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example/dav/s1", base)
	assert.Equal(t, 1, lister.calls)
}

func TestBaseURLFor_UnknownSpace(t *testing.T) {
	lister := &fakeLister{spaces: []models.Space{
		{ID: "s1", WebDavURL: "https://cloud.example/dav/s1"},
	}}
	r := NewResolver(lister, "https://cloud.example/api")

	_, err := r.BaseURLFor(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestBaseURLFor_ListerErrorPropagates(t *testing.T) {
	lister := &fakeLister{err: stderrors.New("server down")}
	r := NewResolver(lister, "https://cloud.example/api")

	_, err := r.BaseURLFor(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server down")
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	lister := &fakeLister{spaces: []models.Space{
		{ID: "s1", WebDavURL: "https://cloud.example/dav/s1"},
	}}
	r := NewResolver(lister, "https://cloud.example/api")

	_, err := r.BaseURLFor(context.Background(), "s1")
	require.NoError(t, err)

	r.Invalidate()

	_, err = r.BaseURLFor(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}
