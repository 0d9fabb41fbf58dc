// Package files implements the synchronization core: it keeps the remote
// server, the local metadata store, and the on-disk cache consistent
// through folder refresh, copy, move, delete, and rename operations.
//
// Every operation mutates the remote side first and the local side
// second, so a failure never leaves local state claiming something the
// server does not have.
package files

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alexjbarnes/cloudsync/internal/errors"
	"github.com/alexjbarnes/cloudsync/internal/models"
	"github.com/alexjbarnes/cloudsync/internal/remote"
	"github.com/alexjbarnes/cloudsync/internal/storage"
	"github.com/alexjbarnes/cloudsync/internal/store"
)

// BaseURLResolver resolves a space id to the base URL remote operations
// in that space must use. The empty space id is the legacy non-spaces
// account and resolves to the account base URL.
type BaseURLResolver interface {
	BaseURLFor(ctx context.Context, spaceID string) (string, error)
}

// Repository coordinates the remote source, the metadata store, and the
// on-disk cache.
type Repository struct {
	source   remote.Source
	store    *store.Store
	disk     *storage.Provider
	resolver BaseURLResolver
	logger   *slog.Logger
}

// NewRepository creates a Repository over the given collaborators.
func NewRepository(source remote.Source, st *store.Store, disk *storage.Provider, resolver BaseURLResolver, logger *slog.Logger) *Repository {
	return &Repository{
		source:   source,
		store:    st,
		disk:     disk,
		resolver: resolver,
		logger:   logger,
	}
}

// RefreshFolder fetches the remote listing of a folder and merges it
// into the local record set so the store exactly mirrors the remote
// children, preserving all local-only state. It returns the merged
// child set.
func (r *Repository) RefreshFolder(ctx context.Context, owner, spaceID, folderPath string) ([]models.FileRecord, error) {
	baseURL, err := r.resolver.BaseURLFor(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	entries, err := r.source.ListFolder(ctx, baseURL, folderPath)
	if err != nil {
		return nil, fmt.Errorf("refreshing %s: %w", folderPath, err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: listing for %s is missing the folder itself", errors.ErrAPIResponse, folderPath)
	}

	for i := range entries {
		entries[i].SpaceID = spaceID
	}

	self, listed := entries[0], entries[1:]

	localFolder, err := r.store.FileByPath(owner, spaceID, folderPath)
	if err != nil {
		return nil, err
	}

	folder := recordFromEntry(self, owner)
	folder.RemotePath = folderPath

	if localFolder != nil {
		folder.ID = localFolder.ID
		folder.ParentID = localFolder.ParentID
		copyLocalState(&folder, localFolder)
	}

	var merged []*models.FileRecord

	if localFolder == nil {
		// First sync: every remote child is new.
		for _, entry := range listed {
			child := recordFromEntry(entry, owner)
			child.NeedsThumbnail = !child.IsFolder()

			merged = append(merged, &child)
		}
	} else {
		merged, err = r.mergeChildren(folder, listed, owner, spaceID, folderPath)
		if err != nil {
			return nil, err
		}
	}

	anyConflict := false

	for _, child := range merged {
		if child.HasConflict() {
			anyConflict = true
			break
		}
	}

	if !anyConflict {
		folder.ConflictEtag = ""
	}

	if err := r.store.ReplaceFolder(&folder, merged); err != nil {
		return nil, fmt.Errorf("persisting refresh of %s: %w", folderPath, err)
	}

	r.logger.Debug("folder refreshed",
		slog.String("path", folderPath),
		slog.String("space", spaceID),
		slog.Int("children", len(merged)),
	)

	children := make([]models.FileRecord, len(merged))
	for i, child := range merged {
		children[i] = *child
	}

	return children, nil
}

// mergeChildren reconciles the listed remote children against the
// folder's existing local children.
func (r *Repository) mergeChildren(folder models.FileRecord, listed []remote.Entry, owner, spaceID, folderPath string) ([]*models.FileRecord, error) {
	existing, err := r.store.FolderContent(owner, spaceID, folderPath)
	if err != nil {
		return nil, err
	}

	// One lookup keyed by best identity, consumed on match. Whatever is
	// left over after the pass no longer exists remotely.
	lookup := make(map[string]*models.FileRecord, len(existing))
	for i := range existing {
		lookup[existing[i].BestIdentity()] = &existing[i]
	}

	parentPinned := folder.AvailableOffline.IsAvailableOffline()

	var merged []*models.FileRecord

	for _, entry := range listed {
		child := recordFromEntry(entry, owner)

		match := r.consumeMatch(lookup, entry)
		if match == nil {
			child.NeedsThumbnail = !child.IsFolder()
			child.Etag = ""

			if parentPinned {
				child.AvailableOffline = models.AvailableOfflineParent
			}

			merged = append(merged, &child)

			continue
		}

		child.ID = match.ID
		child.ParentID = match.ParentID
		copyLocalState(&child, match)
		child.Etag = match.Etag

		if !child.IsFolder() && entry.ModifiedAt != match.ModifiedAt {
			child.NeedsThumbnail = true
		}

		if parentPinned && child.AvailableOffline == models.NotAvailableOffline {
			child.AvailableOffline = models.AvailableOfflineParent
		}

		if match.RemotePath != child.RemotePath {
			if err := r.relocateRenamed(match, &child); err != nil {
				return nil, err
			}
		}

		merged = append(merged, &child)
	}

	for _, orphan := range lookup {
		if orphan.HasConflict() {
			if err := r.store.ClearConflict(orphan.ID); err != nil {
				return nil, err
			}
		}

		if err := r.deleteLocalRecursive(orphan); err != nil {
			return nil, fmt.Errorf("removing vanished %s: %w", orphan.RemotePath, err)
		}
	}

	return merged, nil
}

// consumeMatch removes and returns the local child matching a remote
// entry, by remote id first and remote path second.
func (r *Repository) consumeMatch(lookup map[string]*models.FileRecord, entry remote.Entry) *models.FileRecord {
	if entry.RemoteID != "" {
		if match, ok := lookup[entry.RemoteID]; ok {
			delete(lookup, entry.RemoteID)
			return match
		}
	}

	if match, ok := lookup[entry.RemotePath]; ok {
		delete(lookup, entry.RemotePath)
		return match
	}

	return nil
}

// relocateRenamed handles a child that came back from the server under a
// new remote path (matched by remote id). The old row is removed so the
// store holds a single row for the record, and cached bytes follow the
// recomputed storage path.
func (r *Repository) relocateRenamed(old, fresh *models.FileRecord) error {
	if err := r.store.Delete(old.ID); err != nil {
		return fmt.Errorf("dropping stale row %s: %w", old.RemotePath, err)
	}

	if !old.HasLocalCopy() {
		return nil
	}

	newStorage := r.disk.DefaultPath(fresh.Owner, fresh.SpaceID, fresh.RemotePath)
	if err := r.disk.Move(old.StoragePath, newStorage); err != nil {
		return err
	}

	fresh.StoragePath = newStorage

	r.logger.Debug("relocated cache after remote rename",
		slog.String("from", old.RemotePath),
		slog.String("to", fresh.RemotePath),
	)

	return nil
}

// CopyFiles copies each source into the target folder, best effort per
// item. A vanished target aborts the whole batch; a vanished source
// drops only that item and is re-raised only for single-item batches.
func (r *Repository) CopyFiles(ctx context.Context, sources []models.FileRecord, target models.FileRecord) error {
	baseURL, err := r.resolver.BaseURLFor(ctx, target.SpaceID)
	if err != nil {
		return err
	}

	for i := range sources {
		src := &sources[i]

		finalPath, err := r.availableTargetPath(ctx, baseURL, src, &target)
		if err != nil {
			return err
		}

		remoteID, err := r.source.Copy(ctx, baseURL, src.RemotePath, finalPath)
		if err != nil {
			done, err := r.recoverBatchError(err, src, &target, len(sources))
			if done {
				return err
			}

			continue
		}

		rec := models.FileRecord{
			RemoteID:   remoteID,
			Owner:      target.Owner,
			SpaceID:    target.SpaceID,
			ParentID:   target.ID,
			RemotePath: finalPath,
			MimeType:   src.MimeType,
			Length:     src.Length,
			ModifiedAt: src.ModifiedAt,
		}

		if !rec.IsFolder() {
			rec.NeedsThumbnail = true
		}

		if target.AvailableOffline.IsAvailableOffline() {
			rec.AvailableOffline = models.AvailableOfflineParent
		}

		if err := r.store.Save(&rec); err != nil {
			return fmt.Errorf("saving copy of %s: %w", src.RemotePath, err)
		}
	}

	return nil
}

// MoveFiles moves each source into the target folder, best effort per
// item, with the same failure policy as CopyFiles. Cached bytes follow
// the record to its new storage path, and a conflict marker is carried
// across the relocation.
func (r *Repository) MoveFiles(ctx context.Context, sources []models.FileRecord, target models.FileRecord) error {
	baseURL, err := r.resolver.BaseURLFor(ctx, target.SpaceID)
	if err != nil {
		return err
	}

	for i := range sources {
		src := &sources[i]

		finalPath, err := r.availableTargetPath(ctx, baseURL, src, &target)
		if err != nil {
			return err
		}

		if err := r.source.Move(ctx, baseURL, src.RemotePath, finalPath); err != nil {
			done, err := r.recoverBatchError(err, src, &target, len(sources))
			if done {
				return err
			}

			continue
		}

		// A folder row often carries no storage path of its own while
		// cached descendants below it do. Fall back to the deterministic
		// location for both sides so descendant rows and bytes still
		// follow the move.
		oldStorage := src.StoragePath
		newStorage := ""

		if src.HasLocalCopy() || src.IsFolder() {
			if oldStorage == "" {
				oldStorage = r.disk.DefaultPath(src.Owner, src.SpaceID, src.RemotePath)
			}

			newStorage = r.disk.DefaultPath(src.Owner, src.SpaceID, finalPath)
		}

		// The conflict marker is detached before the relocation is
		// written and reattached after, so it is never bound to a row
		// that is about to disappear.
		conflict := src.ConflictEtag
		if conflict != "" {
			if err := r.store.ClearConflict(src.ID); err != nil {
				return err
			}
		}

		if err := r.store.MoveSubtree(src.ID, finalPath, oldStorage, newStorage); err != nil {
			return fmt.Errorf("persisting move of %s: %w", src.RemotePath, err)
		}

		if conflict != "" {
			if err := r.store.SetConflict(src.ID, conflict); err != nil {
				return err
			}
		}

		if newStorage != "" {
			if err := r.disk.Move(oldStorage, newStorage); err != nil {
				return err
			}
		}
	}

	return nil
}

// availableTargetPath computes the collision-free destination path for a
// source record inside the target folder.
func (r *Repository) availableTargetPath(ctx context.Context, baseURL string, src, target *models.FileRecord) (string, error) {
	candidate := models.JoinPath(target.RemotePath, src.FileName(), src.IsFolder())

	finalPath, err := r.source.AvailablePath(ctx, baseURL, candidate, src.IsFolder())
	if err != nil {
		return "", fmt.Errorf("resolving destination for %s: %w", src.RemotePath, err)
	}

	return finalPath, nil
}

// recoverBatchError applies the batch failure policy for copy and move.
// done = true stops the batch and surfaces the returned error; done =
// false means the item was dropped and the batch continues.
func (r *Repository) recoverBatchError(err error, src, target *models.FileRecord, batchSize int) (bool, error) {
	switch {
	case stderrors.Is(err, errors.ErrConflict):
		// The target folder is gone; the whole batch is invalid.
		if purgeErr := r.deleteLocalRecursive(target); purgeErr != nil {
			return true, purgeErr
		}

		return true, err
	case stderrors.Is(err, errors.ErrNotFound):
		if dropErr := r.deleteLocalRecursive(src); dropErr != nil {
			return true, dropErr
		}

		if batchSize == 1 {
			return true, err
		}

		r.logger.Info("skipping vanished source",
			slog.String("path", src.RemotePath),
			slog.String("error", err.Error()),
		)

		return false, nil
	default:
		return true, err
	}
}

// DeleteFiles deletes each record. With removeOnlyLocalCopy the remote
// and the database row are kept and only cached bytes are evicted;
// otherwise the remote item is deleted first and the record removed,
// recursively for folders. A remote not-found is already the desired
// outcome and is re-raised only for single-item batches.
func (r *Repository) DeleteFiles(ctx context.Context, records []models.FileRecord, removeOnlyLocalCopy bool) error {
	for i := range records {
		rec := &records[i]

		if removeOnlyLocalCopy {
			if err := r.evictLocalCopy(rec); err != nil {
				return err
			}

			continue
		}

		baseURL, err := r.resolver.BaseURLFor(ctx, rec.SpaceID)
		if err != nil {
			return err
		}

		err = r.source.Delete(ctx, baseURL, rec.RemotePath)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return fmt.Errorf("deleting %s: %w", rec.RemotePath, err)
		}

		if err != nil {
			r.logger.Info("remote item already gone",
				slog.String("path", rec.RemotePath),
			)
		}

		if rec.HasConflict() {
			if clearErr := r.store.ClearConflict(rec.ID); clearErr != nil {
				return clearErr
			}
		}

		if localErr := r.deleteLocalRecursive(rec); localErr != nil {
			return localErr
		}

		if err != nil && len(records) == 1 {
			return fmt.Errorf("deleting %s: %w", rec.RemotePath, err)
		}
	}

	return nil
}

// deleteLocalRecursive removes a record and, for folders, all its
// descendants from the store and the cache, children before parents.
func (r *Repository) deleteLocalRecursive(rec *models.FileRecord) error {
	if rec.IsFolder() {
		children, err := r.store.FolderContent(rec.Owner, rec.SpaceID, rec.RemotePath)
		if err != nil {
			return err
		}

		for i := range children {
			if err := r.deleteLocalRecursive(&children[i]); err != nil {
				return err
			}
		}
	}

	if err := r.disk.Delete(rec.StoragePath); err != nil {
		return err
	}

	return r.store.Delete(rec.ID)
}

// evictLocalCopy drops cached bytes while keeping the database row, so
// the content can be downloaded again later. Folder eviction recurses.
func (r *Repository) evictLocalCopy(rec *models.FileRecord) error {
	if rec.IsFolder() {
		children, err := r.store.FolderContent(rec.Owner, rec.SpaceID, rec.RemotePath)
		if err != nil {
			return err
		}

		for i := range children {
			if err := r.evictLocalCopy(&children[i]); err != nil {
				return err
			}
		}
	}

	if !rec.HasLocalCopy() && !rec.HasConflict() {
		return nil
	}

	if err := r.disk.Delete(rec.StoragePath); err != nil {
		return err
	}

	rec.StoragePath = ""
	rec.ConflictEtag = ""

	return r.store.Save(rec)
}

// RenameFile renames a record in place. A sibling already occupying the
// new name fails with ErrAlreadyExists before any remote call, so a
// collision never causes a partial rename.
func (r *Repository) RenameFile(ctx context.Context, rec models.FileRecord, newName string) error {
	newPath := models.JoinPath(rec.ParentPath(), newName, rec.IsFolder())

	occupant, err := r.store.FileByPath(rec.Owner, rec.SpaceID, newPath)
	if err != nil {
		return err
	}

	if occupant != nil {
		return fmt.Errorf("%w: %s", errors.ErrAlreadyExists, newPath)
	}

	baseURL, err := r.resolver.BaseURLFor(ctx, rec.SpaceID)
	if err != nil {
		return err
	}

	if err := r.source.Rename(ctx, baseURL, rec.RemotePath, newPath); err != nil {
		return fmt.Errorf("renaming %s: %w", rec.RemotePath, err)
	}

	// Same storage fallback as MoveFiles: a folder row without a storage
	// path can still shelter cached descendants that must be relocated.
	oldStorage := rec.StoragePath
	newStorage := ""

	if rec.HasLocalCopy() || rec.IsFolder() {
		if oldStorage == "" {
			oldStorage = r.disk.DefaultPath(rec.Owner, rec.SpaceID, rec.RemotePath)
		}

		newStorage = r.disk.RenamedPath(oldStorage, newName)
	}

	if err := r.store.MoveSubtree(rec.ID, newPath, oldStorage, newStorage); err != nil {
		return fmt.Errorf("persisting rename of %s: %w", rec.RemotePath, err)
	}

	if newStorage != "" {
		if err := r.disk.Move(oldStorage, newStorage); err != nil {
			return err
		}
	}

	return nil
}

// CreateFolder creates a remote folder inside the parent and inserts
// its local record.
func (r *Repository) CreateFolder(ctx context.Context, parent models.FileRecord, name string) (*models.FileRecord, error) {
	newPath := models.JoinPath(parent.RemotePath, name, true)

	baseURL, err := r.resolver.BaseURLFor(ctx, parent.SpaceID)
	if err != nil {
		return nil, err
	}

	remoteID, err := r.source.CreateFolder(ctx, baseURL, newPath)
	if err != nil {
		return nil, fmt.Errorf("creating folder %s: %w", newPath, err)
	}

	rec := models.FileRecord{
		RemoteID:   remoteID,
		Owner:      parent.Owner,
		SpaceID:    parent.SpaceID,
		ParentID:   parent.ID,
		RemotePath: newPath,
		MimeType:   models.FolderMimeType,
		ModifiedAt: time.Now().UnixMilli(),
	}

	if parent.AvailableOffline.IsAvailableOffline() {
		rec.AvailableOffline = models.AvailableOfflineParent
	}

	if err := r.store.Save(&rec); err != nil {
		return nil, fmt.Errorf("saving folder %s: %w", newPath, err)
	}

	return &rec, nil
}

// FileByPath returns the record at a remote path. The root folder of a
// scope is synthesized on first access so a fresh account can be
// refreshed without any prior state.
func (r *Repository) FileByPath(owner, spaceID, remotePath string) (*models.FileRecord, error) {
	rec, err := r.store.FileByPath(owner, spaceID, remotePath)
	if err != nil {
		return nil, err
	}

	if rec != nil {
		return rec, nil
	}

	if remotePath != models.RootPath {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, remotePath)
	}

	root := &models.FileRecord{
		Owner:      owner,
		SpaceID:    spaceID,
		RemotePath: models.RootPath,
		MimeType:   models.FolderMimeType,
	}

	if err := r.store.Save(root); err != nil {
		return nil, fmt.Errorf("creating root record: %w", err)
	}

	return root, nil
}

// FileByID returns the record with the given surrogate id.
func (r *Repository) FileByID(id uint64) (*models.FileRecord, error) {
	rec, err := r.store.FileByID(id)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, fmt.Errorf("%w: record %d", errors.ErrNotFound, id)
	}

	return rec, nil
}

// FolderContent returns the direct children of a folder.
func (r *Repository) FolderContent(folder models.FileRecord) ([]models.FileRecord, error) {
	return r.store.FolderContent(folder.Owner, folder.SpaceID, folder.RemotePath)
}

// WatchFolder streams the folder's content, re-emitting a snapshot
// whenever the store changes underneath it. The returned cancel
// function releases the stream.
func (r *Repository) WatchFolder(folder models.FileRecord) (<-chan []models.FileRecord, func()) {
	return r.store.WatchFolder(folder.Owner, folder.SpaceID, folder.RemotePath)
}

// SetAvailableOffline updates a record's offline pin. Pinning a folder
// marks every descendant as inheriting the pin; unpinning clears
// inherited descendants while leaving explicit pins alone.
func (r *Repository) SetAvailableOffline(rec models.FileRecord, status models.AvailableOfflineStatus) error {
	if err := r.store.SetAvailableOffline(rec.ID, status); err != nil {
		return err
	}

	if !rec.IsFolder() {
		return nil
	}

	return r.propagatePin(&rec, status.IsAvailableOffline())
}

func (r *Repository) propagatePin(folder *models.FileRecord, pinned bool) error {
	children, err := r.store.FolderContent(folder.Owner, folder.SpaceID, folder.RemotePath)
	if err != nil {
		return err
	}

	for i := range children {
		child := &children[i]

		switch {
		case pinned && child.AvailableOffline == models.NotAvailableOffline:
			if err := r.store.SetAvailableOffline(child.ID, models.AvailableOfflineParent); err != nil {
				return err
			}
		case !pinned && child.AvailableOffline == models.AvailableOfflineParent:
			if err := r.store.SetAvailableOffline(child.ID, models.NotAvailableOffline); err != nil {
				return err
			}
		}

		if child.IsFolder() && child.AvailableOffline != models.AvailableOffline {
			if err := r.propagatePin(child, pinned); err != nil {
				return err
			}
		}
	}

	return nil
}

// MarkLocalChange reflects a local edit of a cached file into its
// record: size and timestamp are refreshed from disk and the thumbnail
// marked stale. Paths that do not map to a tracked record are ignored.
func (r *Repository) MarkLocalChange(storagePath string) error {
	owner, spaceID, remotePath, ok := r.disk.RemotePathFor(storagePath)
	if !ok {
		return nil
	}

	rec, err := r.store.FileByPath(owner, spaceID, remotePath)
	if err != nil {
		return err
	}

	if rec == nil || !rec.HasLocalCopy() {
		return nil
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("inspecting local change at %s: %w", storagePath, err)
	}

	rec.Length = info.Size()
	rec.ModifiedAt = info.ModTime().UnixMilli()
	rec.NeedsThumbnail = true

	return r.store.Save(rec)
}

// recordFromEntry builds a local record from a remote listing entry.
func recordFromEntry(entry remote.Entry, owner string) models.FileRecord {
	return models.FileRecord{
		RemoteID:   entry.RemoteID,
		Owner:      owner,
		SpaceID:    entry.SpaceID,
		RemotePath: entry.RemotePath,
		MimeType:   entry.MimeType,
		Length:     entry.Length,
		ModifiedAt: entry.ModifiedAt,
		Etag:       entry.Etag,
	}
}

// copyLocalState carries the local-only fields of an existing record
// onto freshly fetched remote metadata.
func copyLocalState(fresh, existing *models.FileRecord) {
	fresh.StoragePath = existing.StoragePath
	fresh.ConflictEtag = existing.ConflictEtag
	fresh.AvailableOffline = existing.AvailableOffline
	fresh.NeedsThumbnail = existing.NeedsThumbnail
	fresh.TransferID = existing.TransferID
}
