// Package bundle packages the outputs of a transfer job (mappings,
// serialized segments, aligned displays) with a manifest into a single
// compressed archive that can be verified later.
package bundle

import (
	"encoding/json"
	"time"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Version is the current bundle format version.
const Version = "1.0.0"

// Artifact kinds.
const (
	KindMapping  = "mapping"
	KindSegments = "segments"
	KindAligned  = "aligned"
)

// Manifest is manifest.json at the root of a bundle.
type Manifest struct {
	BundleVersion string      `json:"bundle_version"`
	CreatedAt     string      `json:"created_at"`
	RequestID     string      `json:"request_id,omitempty"`
	Job           string      `json:"job,omitempty"`
	Artifacts     []*Artifact `json:"artifacts"`
}

// Artifact is one JSON document in a bundle.
type Artifact struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Hashes    ArtifactHashes `json:"hashes"`
	SizeBytes int64          `json:"size_bytes"`
}

// ArtifactHashes contains the hashes for an artifact.
type ArtifactHashes struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// NewManifest returns an empty manifest stamped with the current time.
func NewManifest() *Manifest {
	return &Manifest{
		BundleVersion: Version,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Artifacts:     []*Artifact{},
	}
}

// Artifact returns the artifact with the given name.
func (m *Manifest) Artifact(name string) (*Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// ToJSON encodes the manifest.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest decodes and sanity-checks a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		perr := errors.NewParse("JSON", "manifest.json", err.Error())
		perr.Err = err
		return nil, perr
	}
	if m.BundleVersion == "" {
		return nil, errors.NewValidation("bundle_version", "manifest has no bundle version")
	}
	seen := make(map[string]bool, len(m.Artifacts))
	for _, a := range m.Artifacts {
		if seen[a.Name] {
			v := errors.NewValidation("artifacts", "duplicate artifact name")
			v.Value = a.Name
			return nil, v
		}
		seen[a.Name] = true
	}
	return &m, nil
}
