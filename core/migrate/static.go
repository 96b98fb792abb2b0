package migrate

import (
	"context"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Static serves layers that were migrated ahead of time. The layer of src
// migrated onto tgt's base lives at <Dir>/<tgt.ID>/<src.ID><Ext>. Handles do
// not own these files.
type Static struct {
	Dir string
	Ext string // defaults to ".json"
}

// Path returns where the migrated layer of src onto tgt is expected.
func (s Static) Path(src, tgt Rendering) string {
	ext := s.Ext
	if ext == "" {
		ext = ".json"
	}
	return filepath.Join(s.Dir, tgt.ID, src.ID+ext)
}

// Migrate looks up the pre-migrated layer file.
func (s Static) Migrate(ctx context.Context, src, tgt Rendering) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := tgt.Validate(); err != nil {
		return nil, err
	}

	path := s.Path(src, tgt)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("migrated layer", path)
		}
		return nil, errors.NewIO("stat", path, err)
	}
	return NewHandle(path, nil), nil
}
