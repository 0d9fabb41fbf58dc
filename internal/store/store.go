// Package store persists file metadata records in a bbolt database.
//
// Records are scoped by (owner, space id): each scope gets a path bucket
// mapping remote path to the JSON-encoded record. A global id index maps
// store-assigned surrogate ids back to their scope and path so point
// lookups by id work without knowing the scope.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/alexjbarnes/cloudsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the database directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

// idIndexBucket maps surrogate id (8-byte big endian) to an idRef.
var idIndexBucket = []byte("ids")

func pathBucket(owner, spaceID string) []byte {
	return []byte("files:" + owner + ":" + spaceID + ":path")
}

// idRef locates the scope and path a surrogate id currently points at.
type idRef struct {
	Owner   string `json:"owner"`
	SpaceID string `json:"spaceId"`
	Path    string `json:"path"`
}

// Store wraps a bbolt database holding all file metadata records.
type Store struct {
	db *bolt.DB

	subMu gosync.Mutex
	subs  []*subscription
}

// Open opens the store database at the given path, creating it and its
// parent directory if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(idIndexBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database and all live folder streams.
func (s *Store) Close() error {
	s.subMu.Lock()
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
	s.subMu.Unlock()

	return s.db.Close()
}

// FileByPath returns the record at a remote path, or nil if not found.
func (s *Store) FileByPath(owner, spaceID, remotePath string) (*models.FileRecord, error) {
	var rec *models.FileRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(pathBucket(owner, spaceID))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(remotePath))
		if v == nil {
			return nil
		}

		rec = &models.FileRecord{}

		return json.Unmarshal(v, rec)
	})

	return rec, err
}

// FileByID returns the record with the given surrogate id, or nil if
// not found.
func (s *Store) FileByID(id uint64) (*models.FileRecord, error) {
	var rec *models.FileRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		ref, err := lookupID(tx, id)
		if err != nil || ref == nil {
			return err
		}

		b := tx.Bucket(pathBucket(ref.Owner, ref.SpaceID))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(ref.Path))
		if v == nil {
			return nil
		}

		rec = &models.FileRecord{}

		return json.Unmarshal(v, rec)
	})

	return rec, err
}

// FolderContent returns the direct children of a folder path within one
// (owner, space) scope. The folder record itself is not included.
func (s *Store) FolderContent(owner, spaceID, folderPath string) ([]models.FileRecord, error) {
	var children []models.FileRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(pathBucket(owner, spaceID))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		prefix := []byte(folderPath)

		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), folderPath); k, v = c.Next() {
			if !isDirectChild(folderPath, string(k)) {
				continue
			}

			var rec models.FileRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record %s: %w", k, err)
			}

			children = append(children, rec)
		}

		return nil
	})

	return children, err
}

// Save upserts a single record keyed by its remote path, assigning a
// surrogate id if the record has none. The record's ID field is updated
// in place. Path changes must go through MoveSubtree so the old row and
// the id index stay consistent.
func (s *Store) Save(rec *models.FileRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return saveRecord(tx, rec)
	})
	if err != nil {
		return err
	}

	s.notifyScope(rec.Owner, rec.SpaceID)

	return nil
}

// ReplaceFolder persists a folder entity and its merged child set as one
// unit. Child ids are assigned in the same transaction. Rows for
// children no longer present are not touched here; the repository
// removes vanished children explicitly before calling this.
func (s *Store) ReplaceFolder(folder *models.FileRecord, children []*models.FileRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := saveRecord(tx, folder); err != nil {
			return err
		}

		for _, child := range children {
			child.ParentID = folder.ID
			if err := saveRecord(tx, child); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.notifyScope(folder.Owner, folder.SpaceID)

	return nil
}

// Delete removes the record with the given id from the store. Records
// of descendants are not touched; recursive removal is driven by the
// repository so cached bytes are evicted alongside each row.
func (s *Store) Delete(id uint64) error {
	var owner, spaceID string

	err := s.db.Update(func(tx *bolt.Tx) error {
		ref, err := lookupID(tx, id)
		if err != nil {
			return err
		}

		if ref == nil {
			return nil // already gone
		}

		owner, spaceID = ref.Owner, ref.SpaceID

		if b := tx.Bucket(pathBucket(ref.Owner, ref.SpaceID)); b != nil {
			if err := b.Delete([]byte(ref.Path)); err != nil {
				return err
			}
		}

		return tx.Bucket(idIndexBucket).Delete(itob(id))
	})
	if err != nil {
		return err
	}

	if owner != "" {
		s.notifyScope(owner, spaceID)
	}

	return nil
}

// MoveSubtree rewrites a record's remote path and storage path. For
// folders, every descendant row has its path prefix and storage path
// prefix rewritten in the same transaction so the database never holds
// a split tree. The storage prefixes are passed separately from the
// record because a folder row may carry no storage path of its own
// while cached descendants below it do; the caller supplies the
// deterministic on-disk prefix for both sides of the move.
func (s *Store) MoveSubtree(id uint64, newPath, oldStoragePrefix, newStoragePrefix string) error {
	var owner, spaceID string

	err := s.db.Update(func(tx *bolt.Tx) error {
		ref, err := lookupID(tx, id)
		if err != nil {
			return err
		}

		if ref == nil {
			return fmt.Errorf("moving record %d: id not found", id)
		}

		owner, spaceID = ref.Owner, ref.SpaceID

		b := tx.Bucket(pathBucket(ref.Owner, ref.SpaceID))
		if b == nil {
			return fmt.Errorf("moving record %d: scope bucket missing", id)
		}

		oldPath := ref.Path

		rec, err := getRecord(b, oldPath)
		if err != nil || rec == nil {
			if err == nil {
				err = fmt.Errorf("moving record %d: row missing at %s", id, oldPath)
			}

			return err
		}

		rec.RemotePath = newPath
		if rec.StoragePath != "" {
			rec.StoragePath = newStoragePrefix
		}

		if err := replaceRow(tx, b, oldPath, rec); err != nil {
			return err
		}

		if !rec.IsFolder() {
			return nil
		}

		// Rewrite every descendant row. Collect first: mutating a bucket
		// during cursor iteration is not allowed.
		type moved struct {
			oldKey string
			rec    *models.FileRecord
		}

		var pending []moved

		c := b.Cursor()
		for k, v := c.Seek([]byte(oldPath)); k != nil && strings.HasPrefix(string(k), oldPath); k, v = c.Next() {
			if string(k) == newPath {
				continue // the folder row itself, already rewritten
			}

			var child models.FileRecord
			if err := json.Unmarshal(v, &child); err != nil {
				return fmt.Errorf("decoding record %s: %w", k, err)
			}

			child.RemotePath = newPath + strings.TrimPrefix(child.RemotePath, oldPath)
			if oldStoragePrefix != "" && newStoragePrefix != "" && child.StoragePath != "" {
				child.StoragePath = newStoragePrefix + strings.TrimPrefix(child.StoragePath, oldStoragePrefix)
			}

			pending = append(pending, moved{oldKey: string(k), rec: &child})
		}

		for _, m := range pending {
			if err := replaceRow(tx, b, m.oldKey, m.rec); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.notifyScope(owner, spaceID)

	return nil
}

// SetConflict attaches a conflict marker to the record with the given id.
func (s *Store) SetConflict(id uint64, etag string) error {
	return s.updateRecord(id, func(rec *models.FileRecord) {
		rec.ConflictEtag = etag
	})
}

// ClearConflict removes the conflict marker from the record with the
// given id.
func (s *Store) ClearConflict(id uint64) error {
	return s.updateRecord(id, func(rec *models.FileRecord) {
		rec.ConflictEtag = ""
	})
}

// SetAvailableOffline updates the offline pin status of a record.
func (s *Store) SetAvailableOffline(id uint64, status models.AvailableOfflineStatus) error {
	return s.updateRecord(id, func(rec *models.FileRecord) {
		rec.AvailableOffline = status
	})
}

// updateRecord applies a single-row read-modify-write by id.
func (s *Store) updateRecord(id uint64, mutate func(*models.FileRecord)) error {
	var owner, spaceID string

	err := s.db.Update(func(tx *bolt.Tx) error {
		ref, err := lookupID(tx, id)
		if err != nil {
			return err
		}

		if ref == nil {
			return fmt.Errorf("updating record %d: id not found", id)
		}

		owner, spaceID = ref.Owner, ref.SpaceID

		b := tx.Bucket(pathBucket(ref.Owner, ref.SpaceID))
		if b == nil {
			return fmt.Errorf("updating record %d: scope bucket missing", id)
		}

		rec, err := getRecord(b, ref.Path)
		if err != nil || rec == nil {
			if err == nil {
				err = fmt.Errorf("updating record %d: row missing at %s", id, ref.Path)
			}

			return err
		}

		mutate(rec)

		return putRecord(b, rec)
	})
	if err != nil {
		return err
	}

	s.notifyScope(owner, spaceID)

	return nil
}

// --- transaction helpers ---

func saveRecord(tx *bolt.Tx, rec *models.FileRecord) error {
	b, err := tx.CreateBucketIfNotExists(pathBucket(rec.Owner, rec.SpaceID))
	if err != nil {
		return err
	}

	ids := tx.Bucket(idIndexBucket)

	if rec.ID == 0 {
		seq, err := ids.NextSequence()
		if err != nil {
			return fmt.Errorf("assigning record id: %w", err)
		}

		rec.ID = seq
	}

	ref, err := json.Marshal(idRef{Owner: rec.Owner, SpaceID: rec.SpaceID, Path: rec.RemotePath})
	if err != nil {
		return err
	}

	if err := ids.Put(itob(rec.ID), ref); err != nil {
		return err
	}

	return putRecord(b, rec)
}

func getRecord(b *bolt.Bucket, path string) (*models.FileRecord, error) {
	v := b.Get([]byte(path))
	if v == nil {
		return nil, nil
	}

	rec := &models.FileRecord{}
	if err := json.Unmarshal(v, rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", path, err)
	}

	return rec, nil
}

func putRecord(b *bolt.Bucket, rec *models.FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return b.Put([]byte(rec.RemotePath), data)
}

// replaceRow deletes the old row, writes the record under its new path,
// and repoints the id index.
func replaceRow(tx *bolt.Tx, b *bolt.Bucket, oldKey string, rec *models.FileRecord) error {
	if err := b.Delete([]byte(oldKey)); err != nil {
		return err
	}

	if err := putRecord(b, rec); err != nil {
		return err
	}

	ref, err := json.Marshal(idRef{Owner: rec.Owner, SpaceID: rec.SpaceID, Path: rec.RemotePath})
	if err != nil {
		return err
	}

	return tx.Bucket(idIndexBucket).Put(itob(rec.ID), ref)
}

func lookupID(tx *bolt.Tx, id uint64) (*idRef, error) {
	v := tx.Bucket(idIndexBucket).Get(itob(id))
	if v == nil {
		return nil, nil
	}

	ref := &idRef{}
	if err := json.Unmarshal(v, ref); err != nil {
		return nil, fmt.Errorf("decoding id index entry %d: %w", id, err)
	}

	return ref, nil
}

func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)

	return b
}

// isDirectChild reports whether childPath is an immediate child of
// folderPath: strictly below it, with no intermediate segment.
func isDirectChild(folderPath, childPath string) bool {
	if childPath == folderPath {
		return false
	}

	rel := strings.TrimPrefix(childPath, folderPath)
	rel = strings.TrimSuffix(rel, models.PathSeparator)

	return rel != "" && !strings.Contains(rel, models.PathSeparator)
}
