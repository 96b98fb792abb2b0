package cas

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	aerrors "github.com/FocuswithJustin/annotransfer/core/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestStoreRetrieve(t *testing.T) {
	s := newTestStore(t)
	data := []byte(`{"1":[[2,[0,10]]]}`)

	hash, err := s.Store(data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if hash != Hash(data) {
		t.Errorf("hash = %s, want %s", hash, Hash(data))
	}
	if !s.Exists(hash) {
		t.Error("Exists = false after Store")
	}

	got, err := s.Retrieve(hash)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Retrieve = %q", got)
	}

	again, err := s.Store(data)
	if err != nil || again != hash {
		t.Errorf("second Store = %s, %v", again, err)
	}
}

func TestRetrieveErrors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Retrieve("not-a-hash")
	if !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("invalid hash error = %v", err)
	}
	_, err = s.Retrieve(Hash([]byte("absent")))
	if !errors.Is(err, aerrors.ErrNotFound) {
		t.Errorf("missing blob error = %v", err)
	}
	if s.Exists("XYZ") {
		t.Error("Exists accepted an invalid hash")
	}
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.Store([]byte("segments"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(hash); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err := os.WriteFile(s.pathForHash(hash), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(hash); !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("Verify after tampering = %v", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Store([]byte("a"))
	b, _ := s.Store([]byte("b"))

	hashes, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("List = %v", hashes)
	}
	want := map[string]bool{a: true, b: true}
	for _, h := range hashes {
		if !want[h] {
			t.Errorf("unexpected hash %s", h)
		}
	}
	if hashes[0] > hashes[1] {
		t.Errorf("List not sorted: %v", hashes)
	}
}

func TestStoreRenameFailure(t *testing.T) {
	s := newTestStore(t)
	orig := osRename
	osRename = func(string, string) error { return errors.New("disk full") }
	defer func() { osRename = orig }()

	_, err := s.Store([]byte("x"))
	var ioErr *aerrors.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Store error = %v, want IOError", err)
	}
	// No temp files are left behind.
	entries, _ := os.ReadDir(filepath.Dir(s.pathForHash(Hash([]byte("x")))))
	if len(entries) != 0 {
		t.Errorf("leftover files: %v", entries)
	}
}

func TestConcurrentStore(t *testing.T) {
	s := newTestStore(t)
	data := []byte("shared artifact")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.StoreWithBlake3(data); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent store: %v", err)
	}
	if err := s.Verify(Hash(data)); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}
