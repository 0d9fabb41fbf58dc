// Package remote talks to the cloud file service. The Source interface
// is the contract the file repository consumes; Client implements it
// over the service's JSON API. All operations take the space-scoped
// base URL resolved by the spaces resolver, because a single account
// may span multiple storage spaces.
package remote

import (
	"context"

	"github.com/alexjbarnes/cloudsync/internal/models"
)

//go:generate mockgen -destination=mock_source.go -package=remote . Source

// Entry is one item of a remote listing or metadata read.
type Entry struct {
	RemoteID   string `json:"id"`
	RemotePath string `json:"path"`
	MimeType   string `json:"mimeType"`
	Length     int64  `json:"length"`
	ModifiedAt int64  `json:"modifiedAt"` // unix milliseconds
	Etag       string `json:"etag"`

	// SpaceID is not sent by the server; the caller stamps every entry
	// with the space id it requested.
	SpaceID string `json:"-"`
}

// IsFolder reports whether the entry describes a directory.
func (e *Entry) IsFolder() bool {
	return e.MimeType == models.FolderMimeType
}

// Source performs remote file operations against a space-scoped base
// URL. Implementations report vanished items as errors.ErrNotFound and
// vanished targets or version mismatches as errors.ErrConflict, matched
// with errors.Is.
type Source interface {
	// ListFolder returns the folder's own metadata as the first element
	// followed by its direct children.
	ListFolder(ctx context.Context, baseURL, remotePath string) ([]Entry, error)

	// ReadFile returns the metadata of a single remote file or folder.
	ReadFile(ctx context.Context, baseURL, remotePath string) (*Entry, error)

	// CreateFolder creates a remote folder and returns its remote id.
	CreateFolder(ctx context.Context, baseURL, remotePath string) (string, error)

	// Copy copies a remote file or folder and returns the remote id of
	// the created copy.
	Copy(ctx context.Context, baseURL, sourcePath, targetPath string) (string, error)

	// Move moves a remote file or folder to a new path.
	Move(ctx context.Context, baseURL, sourcePath, targetPath string) error

	// Rename renames a remote file or folder in place.
	Rename(ctx context.Context, baseURL, oldPath, newPath string) error

	// Delete removes a remote file or folder (recursively for folders).
	Delete(ctx context.Context, baseURL, remotePath string) error

	// AvailablePath returns a collision-free variant of the candidate
	// path, verified against the server.
	AvailablePath(ctx context.Context, baseURL, candidatePath string, isFolder bool) (string, error)
}
