package migrate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Command template placeholders.
const (
	PlaceholderSrcLayer = "{src_layer}"
	PlaceholderSrcBase  = "{src_base}"
	PlaceholderTgtLayer = "{tgt_layer}"
	PlaceholderTgtBase  = "{tgt_base}"
	PlaceholderOut      = "{out}"
)

// Exec runs an external base-update tool for every migration. Each element of
// Command may contain placeholders, which are substituted before the command
// runs:
//
//	base-update --layer {src_layer} --from {src_base} --to {tgt_base} -o {out}
//
// The tool must write the migrated layer to {out}, a path inside a private
// temporary directory that the returned Handle deletes.
type Exec struct {
	Command []string
	TempDir string // parent for private directories; os.TempDir() when empty
	Ext     string // extension of {out}; defaults to ".json"
}

// ParseCommand splits a command template on whitespace.
func ParseCommand(s string) []string {
	return strings.Fields(s)
}

// Migrate runs the command and returns a handle owning its output.
func (e Exec) Migrate(ctx context.Context, src, tgt Rendering) (*Handle, error) {
	if len(e.Command) == 0 {
		return nil, errors.NewValidation("migrate_command", "no base-update command configured")
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := tgt.Validate(); err != nil {
		return nil, err
	}

	ext := e.Ext
	if ext == "" {
		ext = ".json"
	}
	dir, err := os.MkdirTemp(e.TempDir, "migrate-"+tgt.ID+"-*")
	if err != nil {
		return nil, errors.NewIO("create temp dir in", e.TempDir, err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }
	out := filepath.Join(dir, src.ID+ext)

	r := strings.NewReplacer(
		PlaceholderSrcLayer, src.LayerPath,
		PlaceholderSrcBase, src.BasePath,
		PlaceholderTgtLayer, tgt.LayerPath,
		PlaceholderTgtBase, tgt.BasePath,
		PlaceholderOut, out,
	)
	args := make([]string, len(e.Command))
	for i, a := range e.Command {
		args[i] = r.Replace(a)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("base-update %s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("base-update %s: %w", args[0], err)
	}

	if _, err := os.Stat(out); err != nil {
		cleanup()
		return nil, errors.NewIO("read migrated layer", out, err)
	}
	return NewHandle(out, cleanup), nil
}
