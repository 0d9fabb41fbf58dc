// Package models holds the file-domain records shared by the store, the
// remote source, and the file repository.
package models

import "strings"

const (
	// FolderMimeType is the mime type sentinel marking a directory record.
	FolderMimeType = "DIR"

	// PathSeparator separates segments in remote paths. Remote paths are
	// always slash-separated regardless of the local OS.
	PathSeparator = "/"

	// RootPath is the remote path of the root folder of every
	// (owner, space) scope.
	RootPath = "/"
)

// AvailableOfflineStatus is the tri-state offline pin of a record.
type AvailableOfflineStatus int

const (
	// NotAvailableOffline means the record is not pinned.
	NotAvailableOffline AvailableOfflineStatus = iota

	// AvailableOffline means the user pinned this record explicitly.
	AvailableOffline

	// AvailableOfflineParent means an ancestor folder is pinned and the
	// record inherits its pin from it.
	AvailableOfflineParent
)

// IsAvailableOffline reports whether the record should be kept in sync
// locally, either by an explicit pin or an inherited one.
func (s AvailableOfflineStatus) IsAvailableOffline() bool {
	return s != NotAvailableOffline
}

func (s AvailableOfflineStatus) String() string {
	switch s {
	case AvailableOffline:
		return "pinned"
	case AvailableOfflineParent:
		return "inherited"
	default:
		return "none"
	}
}

// FileRecord is the persisted metadata of one remote file or folder.
//
// ID is the store-assigned surrogate id; 0 means the record has not been
// persisted yet. RemoteID is assigned by the server and may be empty for
// records created locally that have not round-tripped through the server.
// SpaceID "" denotes a legacy single-space account.
type FileRecord struct {
	ID       uint64 `json:"id"`
	RemoteID string `json:"remoteId"`
	Owner    string `json:"owner"`
	SpaceID  string `json:"spaceId"`
	ParentID uint64 `json:"parentId"`

	// RemotePath is slash-separated; a trailing slash marks a directory.
	RemotePath string `json:"remotePath"`

	MimeType   string `json:"mimeType"`
	Length     int64  `json:"length"`
	ModifiedAt int64  `json:"modifiedAt"` // unix milliseconds

	// Etag is the content version last verified against local content.
	// Empty means the content has not been synchronized yet; discovering
	// a changed listing entry deliberately leaves it empty rather than
	// adopting the listing's etag.
	Etag string `json:"etag"`

	// Local-only state. These fields never come from the server and must
	// survive reconciliation.
	StoragePath      string                 `json:"storagePath"`  // "" = not downloaded
	ConflictEtag     string                 `json:"conflictEtag"` // "" = no unresolved conflict
	AvailableOffline AvailableOfflineStatus `json:"availableOffline"`
	NeedsThumbnail   bool                   `json:"needsThumbnail"`
	TransferID       string                 `json:"transferId"` // "" = no transfer in flight
}

// IsFolder reports whether the record is a directory.
func (f *FileRecord) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// HasConflict reports whether the record carries an unresolved edit
// conflict marker.
func (f *FileRecord) HasConflict() bool {
	return f.ConflictEtag != ""
}

// HasLocalCopy reports whether the record's bytes are cached on disk.
func (f *FileRecord) HasLocalCopy() bool {
	return f.StoragePath != ""
}

// FileName returns the last path segment, ignoring the directory
// trailing slash. The root folder's name is "/".
func (f *FileRecord) FileName() string {
	return PathFileName(f.RemotePath)
}

// ParentPath returns the remote path of the record's parent folder,
// always with a trailing slash. The root folder is its own parent.
func (f *FileRecord) ParentPath() string {
	return PathParent(f.RemotePath)
}

// BestIdentity returns the key used to match a local record against a
// freshly listed remote entry: the remote id when the server has
// assigned one, else the remote path. Matching by remote id first
// tolerates server-side renames and moves without losing local state.
func (f *FileRecord) BestIdentity() string {
	if f.RemoteID != "" {
		return f.RemoteID
	}

	return f.RemotePath
}

// PathFileName returns the last segment of a slash-separated remote
// path, ignoring a directory's trailing slash.
func PathFileName(remotePath string) string {
	trimmed := strings.TrimSuffix(remotePath, PathSeparator)
	if trimmed == "" {
		return RootPath
	}

	if idx := strings.LastIndex(trimmed, PathSeparator); idx >= 0 {
		return trimmed[idx+1:]
	}

	return trimmed
}

// PathParent returns the parent path of a slash-separated remote path,
// always with a trailing slash. The parent of the root is the root.
func PathParent(remotePath string) string {
	trimmed := strings.TrimSuffix(remotePath, PathSeparator)
	if trimmed == "" {
		return RootPath
	}

	idx := strings.LastIndex(trimmed, PathSeparator)
	if idx <= 0 {
		return RootPath
	}

	return trimmed[:idx+1]
}

// JoinPath appends a file name to a folder path, adding the trailing
// slash when the joined entry is itself a folder.
func JoinPath(folderPath, name string, isFolder bool) string {
	if !strings.HasSuffix(folderPath, PathSeparator) {
		folderPath += PathSeparator
	}

	joined := folderPath + name
	if isFolder {
		joined += PathSeparator
	}

	return joined
}

// Space describes one storage space of an account as reported by the
// server's spaces listing.
type Space struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WebDavURL string `json:"webDavUrl"`
}
