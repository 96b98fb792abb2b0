// Package migrate moves a layer's annotations onto another rendering's base
// text.
//
// Alignment only compares spans over one shared base, so every cross-rendering
// comparison starts by migrating the source layer onto the target's base. The
// migrated layer is a scoped resource: it is acquired through a Migrator, read
// exactly once, and released before the caller continues.
package migrate

import (
	"context"
	"sync"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/layer"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
	"github.com/FocuswithJustin/annotransfer/internal/validation"
)

// Kind is the role of a rendering.
type Kind string

const (
	KindRoot               Kind = "root"
	KindRootDisplay        Kind = "root_display"
	KindCommentary         Kind = "commentary"
	KindCommentaryDisplay  Kind = "commentary_display"
	KindTranslation        Kind = "translation"
	KindTranslationDisplay Kind = "translation_display"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRoot, KindRootDisplay, KindCommentary, KindCommentaryDisplay, KindTranslation, KindTranslationDisplay:
		return true
	}
	return false
}

// LayerOptions returns the metadata keys used to extract a layer of kind k.
// Commentary layers are numbered by position and carry index ranges; every
// other kind is numbered by root index.
func (k Kind) LayerOptions() layer.Options {
	if k == KindCommentary {
		return layer.CommentaryOptions
	}
	return layer.SegmentationOptions
}

// Rendering identifies one rendering: its segmentation layer file and the
// base text the layer's offsets refer to.
type Rendering struct {
	ID        string `toml:"id" yaml:"id" json:"id"`
	Kind      Kind   `toml:"kind" yaml:"kind" json:"kind"`
	LayerPath string `toml:"layer" yaml:"layer" json:"layer"`
	BasePath  string `toml:"base" yaml:"base" json:"base,omitempty"`
}

// Validate checks the rendering can be used in file names and has a layer.
func (r Rendering) Validate() error {
	if err := validation.ValidateID("id", r.ID); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		v := errors.NewValidation("kind", "unknown rendering kind")
		v.Value = string(r.Kind)
		return v
	}
	if r.LayerPath == "" {
		return errors.NewValidation("layer", "rendering "+r.ID+" has no layer path")
	}
	return validation.ValidatePath("layer", r.LayerPath)
}

// Migrator produces src's segmentation layer re-anchored onto tgt's base.
// The returned Handle must be released by the caller.
type Migrator interface {
	Migrate(ctx context.Context, src, tgt Rendering) (*Handle, error)
}

// Handle is a migrated layer file. Release deletes whatever the migrator
// created for it; it is idempotent and safe to call from defers.
type Handle struct {
	path    string
	owned   bool
	release func() error

	once sync.Once
	err  error
}

// NewHandle returns a handle for path. release may be nil when the handle
// does not own the file.
func NewHandle(path string, release func() error) *Handle {
	return &Handle{path: path, owned: release != nil, release: release}
}

// Path returns the migrated layer file.
func (h *Handle) Path() string {
	return h.path
}

// Owned reports whether Release deletes the file.
func (h *Handle) Owned() bool {
	return h.owned
}

// Release frees the migrated layer. Only the first call does any work; later
// calls return the first call's error.
func (h *Handle) Release() error {
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release()
		}
	})
	return h.err
}

// Extract migrates src onto tgt's base, reads the migrated layer once and
// releases it on every exit path, including extraction errors and panics.
// The layer is named after src. A failed release is returned when extraction
// succeeded; otherwise the extraction error wins.
func Extract(ctx context.Context, m Migrator, src, tgt Rendering, opts layer.Options) (l align.Layer, err error) {
	h, err := m.Migrate(ctx, src, tgt)
	if err != nil {
		return align.Layer{}, errors.Wrapf(err, "migrate %s onto %s", src.ID, tgt.ID)
	}
	defer func() {
		rerr := h.Release()
		logging.MigrationReleased(ctx, h.Path(), h.Owned(), rerr)
		if rerr != nil && err == nil {
			l, err = align.Layer{}, errors.Wrapf(rerr, "release migrated layer %s", h.Path())
		}
	}()

	r, err := layer.Open(h.Path())
	if err != nil {
		return align.Layer{}, err
	}
	return layer.Extract(ctx, r, src.ID, opts)
}
