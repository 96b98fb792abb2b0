package bundle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/FocuswithJustin/annotransfer/core/cas"
	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Bundle is an unpacked bundle: a manifest plus a blob store in one
// directory.
type Bundle struct {
	root     string
	Manifest *Manifest
	store    *cas.Store
}

// New creates an empty bundle in root.
func New(root, requestID string) (*Bundle, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.NewIO("create directory", root, err)
	}
	store, err := cas.NewStore(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob store")
	}
	m := NewManifest()
	m.RequestID = requestID
	return &Bundle{root: root, Manifest: m, store: store}, nil
}

// Root returns the bundle directory.
func (b *Bundle) Root() string {
	return b.root
}

// AddJSON encodes v and records it under a unique name.
func (b *Bundle) AddJSON(name, kind string, v any) (*Artifact, error) {
	if name == "" {
		return nil, errors.NewValidation("name", "artifact name is required")
	}
	if _, exists := b.Manifest.Artifact(name); exists {
		ve := errors.NewValidation("name", "artifact already exists")
		ve.Value = name
		return nil, ve
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode artifact %s", name)
	}
	res, err := b.store.StoreWithBlake3(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store artifact")
	}

	a := &Artifact{
		Name:      name,
		Kind:      kind,
		Hashes:    ArtifactHashes{SHA256: res.SHA256, BLAKE3: res.BLAKE3},
		SizeBytes: int64(len(data)),
	}
	b.Manifest.Artifacts = append(b.Manifest.Artifacts, a)
	return a, nil
}

// Read returns the stored bytes of an artifact.
func (b *Bundle) Read(name string) ([]byte, error) {
	a, ok := b.Manifest.Artifact(name)
	if !ok {
		return nil, errors.NewNotFound("artifact", name)
	}
	return b.store.Retrieve(a.Hashes.SHA256)
}

// Verify re-hashes every artifact and checks its recorded size and BLAKE3
// digest.
func (b *Bundle) Verify() error {
	for _, a := range b.Manifest.Artifacts {
		if err := b.store.Verify(a.Hashes.SHA256); err != nil {
			return errors.Wrapf(err, "artifact %s", a.Name)
		}
		data, err := b.store.Retrieve(a.Hashes.SHA256)
		if err != nil {
			return errors.Wrapf(err, "artifact %s", a.Name)
		}
		if int64(len(data)) != a.SizeBytes {
			return errors.NewValidation("size_bytes", fmt.Sprintf("artifact %s is %d bytes, manifest says %d", a.Name, len(data), a.SizeBytes))
		}
		if got := cas.Blake3Hash(data); got != a.Hashes.BLAKE3 {
			return errors.NewValidation("blake3", fmt.Sprintf("artifact %s has BLAKE3 %s, manifest says %s", a.Name, got, a.Hashes.BLAKE3))
		}
	}
	return nil
}
