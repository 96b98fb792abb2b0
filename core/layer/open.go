package layer

import (
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Open returns a file Reader chosen by the file extension (.json or .xml).
// The file is not read until Records is called.
func Open(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONFile{Path: path}, nil
	case ".xml":
		return XMLFile{Path: path}, nil
	default:
		v := errors.NewValidation("path", "unsupported layer file extension")
		v.Value = path
		return nil, v
	}
}
