// Command annotransfer carries segment-level annotations across renderings
// of the same text.
// It maps layers, composes mappings, runs transfer jobs from a manifest and
// manages the SQLite layer store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/bundle"
	"github.com/FocuswithJustin/annotransfer/core/layer"
	"github.com/FocuswithJustin/annotransfer/core/layerdb"
	"github.com/FocuswithJustin/annotransfer/core/sqlite"
	"github.com/FocuswithJustin/annotransfer/core/transfer"
	"github.com/FocuswithJustin/annotransfer/internal/config"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
	"github.com/FocuswithJustin/annotransfer/internal/mapcache"
)

const version = "0.1.0"

// stdout receives command output. Logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for annotransfer.
var CLI struct {
	Map     MapCmd      `cmd:"" help:"Map the segments of one layer onto another over the same base"`
	Compose ComposeCmd  `cmd:"" help:"Compose two mapping files"`
	Run     RunCmd      `cmd:"" help:"Run the transfer jobs of a manifest in order"`
	Batch   BatchCmd    `cmd:"" help:"Run the transfer jobs of a manifest concurrently"`
	Layers  LayersGroup `cmd:"" help:"SQLite layer store operations"`
	Bundle  BundleGroup `cmd:"" help:"Result bundle operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// LayersGroup contains layer store operations.
type LayersGroup struct {
	Import LayersImportCmd `cmd:"" help:"Import a JSON or XML layer file into the store"`
	List   LayersListCmd   `cmd:"" help:"List stored layers"`
	Export LayersExportCmd `cmd:"" help:"Export a stored layer as a JSON layer file"`
	Delete LayersDeleteCmd `cmd:"" help:"Delete a stored layer"`
}

// BundleGroup contains result bundle operations.
type BundleGroup struct {
	Verify BundleVerifyCmd `cmd:"" help:"Verify a packed result bundle"`
}

// MapCmd maps a source layer onto a target layer.
type MapCmd struct {
	Src           string `required:"" help:"Source layer (file path, or layer id with --db)"`
	Tgt           string `required:"" help:"Target layer (file path, or layer id with --db)"`
	DB            string `name:"db" help:"Read layers from this SQLite store" type:"path"`
	SrcIndexKey   string `help:"Metadata key of the source segment index (empty numbers by position)" default:"root_idx_mapping"`
	SrcMappingKey string `help:"Metadata key of the source index range"`
	TgtIndexKey   string `help:"Metadata key of the target segment index" default:"root_idx_mapping"`
	Out           string `help:"Write the mapping to this file instead of stdout" type:"path"`
}

func (c *MapCmd) Run(ctx context.Context) error {
	var db *layerdb.DB
	if c.DB != "" {
		var err error
		db, err = layerdb.Open(ctx, c.DB)
		if err != nil {
			return fmt.Errorf("failed to open layer store: %w", err)
		}
		defer db.Close()
	}

	src, err := loadLayer(ctx, db, c.Src, layer.Options{IndexKey: c.SrcIndexKey, MappingKey: c.SrcMappingKey})
	if err != nil {
		return err
	}
	tgt, err := loadLayer(ctx, db, c.Tgt, layer.Options{IndexKey: c.TgtIndexKey})
	if err != nil {
		return err
	}

	return writeJSON(c.Out, align.MapLayers(src, tgt))
}

// ComposeCmd chains two mappings.
type ComposeCmd struct {
	First  string `required:"" help:"Mapping from source to middle" type:"existingfile"`
	Second string `required:"" help:"Mapping from middle to target" type:"existingfile"`
	Full   bool   `help:"Keep every target of the middle index instead of the first"`
	Out    string `help:"Write the mapping to this file instead of stdout" type:"path"`
}

func (c *ComposeCmd) Run() error {
	first, err := readMapping(c.First)
	if err != nil {
		return err
	}
	second, err := readMapping(c.Second)
	if err != nil {
		return err
	}
	policy := align.ComposeFirst
	if c.Full {
		policy = align.ComposeFull
	}
	return writeJSON(c.Out, align.Compose(first, second, policy))
}

// RunCmd runs manifest jobs one after another.
type RunCmd struct {
	Manifest string `arg:"" help:"Job manifest (.toml, .yaml)" type:"existingfile"`
	Job      string `help:"Run only the named job"`
}

func (c *RunCmd) Run(ctx context.Context) error {
	cfg, jobs, err := loadJobs(c.Manifest, c.Job)
	if err != nil {
		return err
	}
	t, err := newTransfer(cfg)
	if err != nil {
		return err
	}

	var all []*transfer.Result
	for _, job := range jobs {
		results, err := runJob(ctx, t, job)
		if err != nil {
			return err
		}
		all = append(all, results...)
	}
	return writeJSON("", all)
}

// BatchCmd runs manifest jobs concurrently. Each job's operations stay
// sequential.
type BatchCmd struct {
	Manifest string `arg:"" help:"Job manifest (.toml, .yaml)" type:"existingfile"`
	Jobs     int    `help:"Maximum concurrent jobs (default from manifest)"`
}

func (c *BatchCmd) Run(ctx context.Context) error {
	cfg, jobs, err := loadJobs(c.Manifest, "")
	if err != nil {
		return err
	}
	t, err := newTransfer(cfg)
	if err != nil {
		return err
	}

	limit := cfg.Workers
	if c.Jobs > 0 {
		limit = c.Jobs
	}

	perJob := make([][]*transfer.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		g.Go(func() error {
			results, err := runJob(gctx, t, job)
			if err != nil {
				return err
			}
			perJob[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []*transfer.Result
	for _, results := range perJob {
		all = append(all, results...)
	}
	logging.InfoContext(ctx, "batch finished", "jobs", len(jobs), "workers", limit)
	return writeJSON("", all)
}

// LayersImportCmd imports a layer file into the store.
type LayersImportCmd struct {
	Path string `arg:"" help:"JSON or XML layer file" type:"existingfile"`
	DB   string `name:"db" required:"" help:"SQLite layer store" type:"path"`
	ID   string `name:"id" help:"Layer id (default: file name without extension)"`
}

func (c *LayersImportCmd) Run(ctx context.Context) error {
	id := c.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	}

	r, err := layer.Open(c.Path)
	if err != nil {
		return err
	}
	records, err := r.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read layer file: %w", err)
	}

	db, err := layerdb.Open(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("failed to open layer store: %w", err)
	}
	defer db.Close()

	if err := db.Import(ctx, id, records); err != nil {
		return fmt.Errorf("failed to import layer: %w", err)
	}
	fmt.Fprintf(stdout, "Imported: %s (%d segments)\n", id, len(records))
	return nil
}

// LayersListCmd lists stored layers.
type LayersListCmd struct {
	DB string `name:"db" required:"" help:"SQLite layer store" type:"path"`
}

func (c *LayersListCmd) Run(ctx context.Context) error {
	db, err := layerdb.Open(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("failed to open layer store: %w", err)
	}
	defer db.Close()

	infos, err := db.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(stdout, "No layers stored.")
		return nil
	}
	fmt.Fprintf(stdout, "Layers in %s (%s):\n", c.DB, sqlite.DriverName())
	for _, info := range infos {
		fmt.Fprintf(stdout, "  %-30s %6d segments  %s\n", info.ID, info.Segments, info.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// LayersExportCmd writes a stored layer as a JSON layer file.
type LayersExportCmd struct {
	ID  string `arg:"" help:"Layer id"`
	DB  string `name:"db" required:"" help:"SQLite layer store" type:"path"`
	Out string `required:"" help:"Output JSON file" type:"path"`
}

func (c *LayersExportCmd) Run(ctx context.Context) error {
	db, err := layerdb.Open(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("failed to open layer store: %w", err)
	}
	defer db.Close()

	r, err := db.Reader(ctx, c.ID)
	if err != nil {
		return err
	}
	records, err := r.Records(ctx)
	if err != nil {
		return err
	}
	if err := layer.WriteJSONFile(c.Out, c.ID, records); err != nil {
		return fmt.Errorf("failed to write layer file: %w", err)
	}
	fmt.Fprintf(stdout, "Exported: %s -> %s\n", c.ID, c.Out)
	return nil
}

// LayersDeleteCmd removes a stored layer.
type LayersDeleteCmd struct {
	ID string `arg:"" help:"Layer id"`
	DB string `name:"db" required:"" help:"SQLite layer store" type:"path"`
}

func (c *LayersDeleteCmd) Run(ctx context.Context) error {
	db, err := layerdb.Open(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("failed to open layer store: %w", err)
	}
	defer db.Close()

	if err := db.Delete(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted: %s\n", c.ID)
	return nil
}

// BundleVerifyCmd unpacks a bundle and re-hashes every artifact.
type BundleVerifyCmd struct {
	Archive string `arg:"" help:"Packed bundle (.tar.xz, .tar.gz)" type:"existingfile"`
}

func (c *BundleVerifyCmd) Run() error {
	tempDir, err := os.MkdirTemp("", "annotransfer-verify-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	b, err := bundle.Unpack(c.Archive, tempDir)
	if err != nil {
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	if err := b.Verify(); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Fprintf(stdout, "Bundle: %s\n", c.Archive)
	fmt.Fprintf(stdout, "  Job: %s\n", b.Manifest.Job)
	fmt.Fprintf(stdout, "  Request ID: %s\n", b.Manifest.RequestID)
	for _, a := range b.Manifest.Artifacts {
		fmt.Fprintf(stdout, "  %-40s %-9s %s\n", a.Name, a.Kind, a.Hashes.SHA256)
	}
	fmt.Fprintf(stdout, "Verified %d artifacts.\n", len(b.Manifest.Artifacts))
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "annotransfer version %s (sqlite: %s)\n", version, sqlite.DriverName())
	return nil
}

func loadLayer(ctx context.Context, db *layerdb.DB, ref string, opts layer.Options) (align.Layer, error) {
	var (
		r   layer.Reader
		err error
	)
	if db != nil {
		r, err = db.Reader(ctx, ref)
	} else {
		r, err = layer.Open(ref)
	}
	if err != nil {
		return align.Layer{}, err
	}
	return layer.Extract(ctx, r, ref, opts)
}

func readMapping(path string) (align.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	var m align.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping %s: %w", path, err)
	}
	return m, nil
}

// writeJSON writes v as indented JSON to path, or to stdout when path is
// empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func loadJobs(manifest, name string) (*config.Config, []transfer.Job, error) {
	cfg, err := config.Load(manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	cfg.InitLogging()

	if name == "" {
		return cfg, cfg.Jobs, nil
	}
	job, err := cfg.Job(name)
	if err != nil {
		return nil, nil, err
	}
	return cfg, []transfer.Job{job}, nil
}

func newTransfer(cfg *config.Config) (*transfer.Transfer, error) {
	opts := []transfer.Option{transfer.WithChapter(cfg.Chapter)}
	if cfg.CacheDir != "" {
		cache, err := mapcache.Open(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open mapping cache: %w", err)
		}
		opts = append(opts, transfer.WithCache(cache))
	}
	return transfer.New(cfg.Migrator(), opts...), nil
}

// runJob runs one job and packs its results when the job names an output
// archive.
func runJob(ctx context.Context, t *transfer.Transfer, job transfer.Job) ([]*transfer.Result, error) {
	results, err := t.RunJob(ctx, job)
	if err != nil {
		return nil, err
	}
	if job.Output == "" {
		return results, nil
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	workDir, err := os.MkdirTemp("", "annotransfer-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	if _, err := transfer.WriteBundle(job, results, workDir, job.Output); err != nil {
		return nil, fmt.Errorf("failed to write bundle for %s: %w", job.Name, err)
	}
	logging.InfoContext(ctx, "bundle written", "job", job.Name, "path", job.Output)
	return results, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&CLI,
		kong.Name("annotransfer"),
		kong.Description("Annotation transfer across renderings of the same text"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}
