package bundle

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/annotransfer/core/cas"
	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Injectable functions for testing
var (
	gzipNewWriterLevel = gzip.NewWriterLevel
	xzNewWriter        = xz.NewWriter
	xzNewReader        = xz.NewReader
	gzipNewReader      = gzip.NewReader
)

// CompressionType specifies the compression algorithm for bundle archives.
type CompressionType string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ CompressionType = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip CompressionType = "gzip"
)

// PackOptions configures bundle packing.
type PackOptions struct {
	// Compression specifies the compression algorithm. Defaults to XZ.
	Compression CompressionType
}

// DefaultPackOptions returns the default packing options (XZ compression).
func DefaultPackOptions() *PackOptions {
	return &PackOptions{Compression: CompressionXZ}
}

// Pack writes manifest.json followed by every artifact blob into a
// compressed tar archive.
func (b *Bundle) Pack(archivePath string, opts *PackOptions) (err error) {
	if opts == nil {
		opts = DefaultPackOptions()
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return errors.NewIO("create", archivePath, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.NewIO("close", archivePath, cerr)
		}
	}()

	var cw io.WriteCloser
	switch opts.Compression {
	case CompressionGzip:
		cw, err = gzipNewWriterLevel(file, gzip.BestCompression)
	case CompressionXZ, "":
		cw, err = xzNewWriter(file)
	default:
		return errors.NewValidation("compression", fmt.Sprintf("unsupported compression %q", opts.Compression))
	}
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", opts.Compression, err)
	}

	tw := tar.NewWriter(cw)

	manifestData, err := b.Manifest.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := writeToTar(tw, "manifest.json", manifestData); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	written := make(map[string]bool)
	for _, a := range b.Manifest.Artifacts {
		sha := a.Hashes.SHA256
		if written[sha] {
			continue
		}
		written[sha] = true
		data, err := b.store.Retrieve(sha)
		if err != nil {
			return errors.Wrapf(err, "artifact %s", a.Name)
		}
		if err := writeToTar(tw, blobPath(sha), data); err != nil {
			return fmt.Errorf("failed to write artifact %s: %w", a.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return nil
}

// DetectCompression reads the magic bytes of an archive.
func DetectCompression(archivePath string) (CompressionType, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", errors.NewIO("open", archivePath, err)
	}
	defer file.Close()

	magic := make([]byte, 6)
	n, err := io.ReadFull(file, magic)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", errors.NewIO("read magic bytes", archivePath, err)
	}
	switch {
	case n >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		return CompressionGzip, nil
	case n == 6 && string(magic) == "\xfd7zXZ\x00":
		return CompressionXZ, nil
	}
	v := errors.NewValidation("archive", "unknown compression format")
	v.Value = archivePath
	return "", v
}

// Unpack extracts an archive into destDir and opens it as a Bundle. Entries
// that would escape destDir are rejected.
func Unpack(archivePath, destDir string) (*Bundle, error) {
	compression, err := DetectCompression(archivePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, errors.NewIO("create directory", destDir, err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.NewIO("open", archivePath, err)
	}
	defer file.Close()

	var r io.Reader
	switch compression {
	case CompressionGzip:
		gz, err := gzipNewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	default:
		xr, err := xzNewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	}

	tr := tar.NewReader(r)
	var manifest *Manifest
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !filepath.IsLocal(header.Name) {
			v := errors.NewValidation("archive", "entry escapes bundle directory")
			v.Value = header.Name
			return nil, v
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		dest := filepath.Join(destDir, filepath.FromSlash(header.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, errors.NewIO("create directory", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return nil, errors.NewIO("write", dest, err)
		}

		if header.Name == "manifest.json" {
			if manifest, err = ParseManifest(data); err != nil {
				return nil, err
			}
		}
	}
	if manifest == nil {
		return nil, errors.NewNotFound("manifest.json", archivePath)
	}

	store, err := cas.NewStore(destDir)
	if err != nil {
		return nil, err
	}
	return &Bundle{root: destDir, Manifest: manifest, store: store}, nil
}

func blobPath(sha string) string {
	return path.Join("blobs", "sha256", sha[:2], sha)
}

func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
