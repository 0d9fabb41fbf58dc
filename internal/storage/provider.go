// Package storage manages the on-device cache of file bytes. It computes
// deterministic storage paths from (owner, space, remote path), performs
// the byte-level side of move/delete operations, and guards every path
// against traversal out of the cache root.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"golang.org/x/text/unicode/norm"
)

const (
	// cacheDirPerm is the permission mode for directories created inside
	// the cache. Cached content is private to the local user.
	cacheDirPerm = fs.FileMode(0o700)

	// legacySpaceDir is the per-owner subdirectory used for accounts that
	// predate storage spaces (space id "").
	legacySpaceDir = "legacy"
)

// Provider manages cached file bytes under a single cache root.
// Mutating operations are serialized by an exclusive lock so a move
// never races a delete for the same subtree.
type Provider struct {
	root string
	mu   gosync.Mutex
}

// NewProvider creates a Provider rooted at the given directory, creating
// it if it does not exist. The directory must be an absolute path
// (resolved at config load time).
func NewProvider(root string) (*Provider, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root must not be empty")
	}

	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("cache root must be absolute, got %q", root)
	}

	if err := os.MkdirAll(root, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", root, err)
	}

	// Canonicalize the root so the symlink check in resolve compares real
	// paths against a real path (the root itself may live behind a
	// symlink, e.g. /tmp on some systems).
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache root %s: %w", root, err)
	}

	return &Provider{root: realRoot}, nil
}

// Root returns the cache root directory.
func (p *Provider) Root() string {
	return p.root
}

// DefaultPath computes the deterministic storage path for a record:
// <root>/<owner>/<space|legacy>/<remote path>. The remote path is NFC
// normalized so the same logical file always maps to the same location
// regardless of how the server encoded it.
func (p *Provider) DefaultPath(owner, spaceID, remotePath string) string {
	space := spaceID
	if space == "" {
		space = legacySpaceDir
	}

	rel := normalizeRemotePath(remotePath)

	return filepath.Join(p.root, owner, space, filepath.FromSlash(rel))
}

// RenamedPath computes the storage path implied by keeping the parent
// directory of the old storage path and substituting the file name.
func (p *Provider) RenamedPath(oldStoragePath, newName string) string {
	return filepath.Join(filepath.Dir(oldStoragePath), newName)
}

// RemotePathFor maps a storage path back to its (owner, space, remote
// path) scope. It is the inverse of DefaultPath, used by the cache
// watcher to attribute local edits to records. ok is false for paths
// outside the root or too shallow to carry a scope.
func (p *Provider) RemotePathFor(storagePath string) (owner, spaceID, remotePath string, ok bool) {
	rel, err := filepath.Rel(p.root, storagePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", "", false
	}

	parts := strings.SplitN(filepath.ToSlash(rel), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}

	owner = parts[0]

	spaceID = parts[1]
	if spaceID == legacySpaceDir {
		spaceID = ""
	}

	return owner, spaceID, "/" + parts[2], true
}

// Delete removes cached bytes at the given storage path. Directories are
// removed with their contents. A missing path is not an error: eviction
// of never-downloaded records is a no-op.
func (p *Provider) Delete(storagePath string) error {
	if storagePath == "" {
		return nil
	}

	abs, err := p.resolve(storagePath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("removing cached bytes at %s: %w", storagePath, err)
	}

	return nil
}

// Move relocates cached bytes to a new storage path, creating parent
// directories as needed. Missing source bytes are not an error: the
// record may simply never have been downloaded.
func (p *Provider) Move(oldStoragePath, newStoragePath string) error {
	oldAbs, err := p.resolve(oldStoragePath)
	if err != nil {
		return err
	}

	newAbs, err := p.resolve(newStoragePath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(oldAbs); os.IsNotExist(err) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), cacheDirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", newStoragePath, err)
	}

	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("moving cached bytes %s -> %s: %w", oldStoragePath, newStoragePath, err)
	}

	return nil
}

// resolve validates that a storage path stays inside the cache root,
// rejecting null bytes, ".." segments, paths outside the root, and
// symlinks that escape the root.
func (p *Provider) resolve(storagePath string) (string, error) {
	if storagePath == "" {
		return "", fmt.Errorf("empty storage path")
	}

	if strings.ContainsRune(storagePath, 0) {
		return "", fmt.Errorf("storage path contains null byte: %q", storagePath)
	}

	for _, seg := range strings.Split(filepath.ToSlash(storagePath), "/") {
		if seg == ".." {
			return "", fmt.Errorf("storage path contains ..: %q", storagePath)
		}
	}

	abs := storagePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.root, abs)
	}

	rootPrefix := p.root + string(os.PathSeparator)

	if abs != p.root && !strings.HasPrefix(abs, rootPrefix) {
		return "", fmt.Errorf("path traversal blocked: %q resolves outside cache root", storagePath)
	}

	// Resolve symlinks and verify the real path stays within the root.
	// This prevents a symlink at any path component from escaping the cache.
	realPath, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The target may not exist yet (move destination for a new
		// location). Check the parent directory instead. If the parent is
		// a symlink pointing outside, that is still a traversal.
		if os.IsNotExist(err) {
			parentReal, pErr := filepath.EvalSymlinks(filepath.Dir(abs))
			if pErr != nil {
				// Parent doesn't exist either. MkdirAll will create it,
				// and the prefix check above already passed.
				return abs, nil //nolint:nilerr // intentional: parent will be created by MkdirAll
			}

			if parentReal != p.root && !strings.HasPrefix(parentReal+string(os.PathSeparator), rootPrefix) {
				return "", fmt.Errorf("symlink traversal blocked: parent of %q resolves to %q outside cache root", storagePath, parentReal)
			}

			return abs, nil
		}

		return "", fmt.Errorf("resolving symlinks for %q: %w", storagePath, err)
	}

	if realPath != p.root && !strings.HasPrefix(realPath, rootPrefix) {
		return "", fmt.Errorf("symlink traversal blocked: %q resolves to %q outside cache root", storagePath, realPath)
	}

	return abs, nil
}

// normalizeRemotePath normalizes a remote path for storage-path
// computation: forward slashes only, collapsed separators, no leading
// or trailing slash, Unicode NFC.
func normalizeRemotePath(remotePath string) string {
	remotePath = strings.ReplaceAll(remotePath, "\\", "/")

	var b strings.Builder

	prevSlash := false

	for _, r := range remotePath {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	remotePath = strings.Trim(b.String(), "/")

	return norm.NFC.String(remotePath)
}
