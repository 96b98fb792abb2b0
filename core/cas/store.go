// Package cas stores alignment artifacts by content hash.
//
// Blobs live at <root>/blobs/sha256/<first2>/<hash>. A BLAKE3 digest of each
// blob can be registered as a pointer to its SHA-256 address, so artifacts
// are addressable by either hash. Writes are atomic and idempotent, which
// makes a Store safe for concurrent use by several transfer jobs.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// hexPattern matches a lowercase 256-bit hex digest.
var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root string
}

// NewStore opens (creating if needed) a store rooted at root.
func NewStore(root string) (*Store, error) {
	blobDir := filepath.Join(root, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, errors.NewIO("create", blobDir, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Store writes data and returns its SHA-256 hash. Storing existing content is
// a no-op.
func (s *Store) Store(data []byte) (string, error) {
	hash := Hash(data)
	if err := writeOnce(s.pathForHash(hash), data); err != nil {
		return "", err
	}
	return hash, nil
}

// Retrieve returns the blob stored under a SHA-256 hash.
func (s *Store) Retrieve(hash string) ([]byte, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathForHash(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("blob", hash)
		}
		return nil, errors.NewIO("read blob", hash, err)
	}
	return data, nil
}

// Exists reports whether a blob with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	if validateHash(hash) != nil {
		return false
	}
	_, err := os.Stat(s.pathForHash(hash))
	return err == nil
}

// Verify re-hashes the stored blob and reports a ValidationError when its
// content no longer matches its address.
func (s *Store) Verify(hash string) error {
	data, err := s.Retrieve(hash)
	if err != nil {
		return err
	}
	if got := Hash(data); got != hash {
		v := errors.NewValidation("blob", "content hash "+got+" does not match address")
		v.Value = hash
		return v
	}
	return nil
}

// List returns the SHA-256 hashes of all stored blobs, sorted.
func (s *Store) List() ([]string, error) {
	var hashes []string
	dir := filepath.Join(s.root, "blobs", "sha256")
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hexPattern.MatchString(d.Name()) {
			hashes = append(hashes, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("walk", dir, err)
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (s *Store) pathForHash(hash string) string {
	return filepath.Join(s.root, "blobs", "sha256", hash[:2], hash)
}

func validateHash(hash string) error {
	if !hexPattern.MatchString(hash) {
		v := errors.NewValidation("hash", "not a lowercase 64-character hex digest")
		v.Value = hash
		return v
	}
	return nil
}

// Hash computes the SHA-256 hash of data without storing it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// writeOnce atomically writes data to path unless path already exists.
func writeOnce(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.NewIO("create temp file in", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
