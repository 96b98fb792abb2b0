package cas

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// HashResult holds both addresses of a stored blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// blake3Pointer is the content of <root>/blobs/blake3/<first2>/<blake3>.json.
type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// StoreWithBlake3 stores data and registers its BLAKE3 pointer.
func (s *Store) StoreWithBlake3(data []byte) (*HashResult, error) {
	sha, err := s.Store(data)
	if err != nil {
		return nil, err
	}
	b3 := Blake3Hash(data)

	pointer, err := json.Marshal(blake3Pointer{SHA256: sha})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode BLAKE3 pointer")
	}
	if err := writeOnce(s.pointerPath(b3), pointer); err != nil {
		return nil, errors.Wrap(err, "failed to create BLAKE3 pointer")
	}
	return &HashResult{SHA256: sha, BLAKE3: b3}, nil
}

// LookupBlake3 returns the SHA-256 address registered for a BLAKE3 hash.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if err := validateHash(blake3Hash); err != nil {
		return "", err
	}
	path := s.pointerPath(blake3Hash)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("blake3 pointer", blake3Hash)
		}
		return "", errors.NewIO("read", path, err)
	}

	var p blake3Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		perr := errors.NewParse("JSON", path, err.Error())
		perr.Err = err
		return "", perr
	}
	return p.SHA256, nil
}

// RetrieveByBlake3 retrieves a blob by its BLAKE3 hash.
func (s *Store) RetrieveByBlake3(blake3Hash string) ([]byte, error) {
	sha, err := s.LookupBlake3(blake3Hash)
	if err != nil {
		return nil, err
	}
	return s.Retrieve(sha)
}

func (s *Store) pointerPath(blake3Hash string) string {
	return filepath.Join(s.root, "blobs", "blake3", blake3Hash[:2], blake3Hash+".json")
}

// Blake3Hash computes the BLAKE3 hash of data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
