package transfer

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/bundle"
	aerrors "github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/layer"
	"github.com/FocuswithJustin/annotransfer/core/migrate"
	"github.com/FocuswithJustin/annotransfer/internal/mapcache"
)

type fixture struct {
	dir      string
	migrator migrate.Static
	job      Job
}

type rec struct {
	start, end int
	text       string
	key        string
}

func write(t *testing.T, path string, recs []rec) {
	t.Helper()
	records := make([]layer.Record, len(recs))
	for i, r := range recs {
		records[i] = layer.Record{Start: r.start, End: r.end, Text: r.text}
		if r.key != "" {
			records[i].Metadata = map[string]string{layer.MetaRootIndex: r.key}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := layer.WriteJSONFile(path, filepath.Base(path), records); err != nil {
		t.Fatal(err)
	}
}

// newFixture lays out a root with a display edition, a commentary and a
// translation with its own display edition. Migrated layers are served by a
// Static migrator.
//
//	root on display base: 1=[0,8) 2=[8,20) 3=[20,22)
//	display:              1=[0,8) 2=[8,14) 3=[14,20) 4=[20,22)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, migrator: migrate.Static{Dir: filepath.Join(dir, "migrated")}}

	rendering := func(id string, kind migrate.Kind) migrate.Rendering {
		return migrate.Rendering{ID: id, Kind: kind, LayerPath: filepath.Join(dir, id+".json")}
	}
	f.job = Job{
		Name:               "sample",
		Operations:         Operations,
		Root:               rendering("root", migrate.KindRoot),
		RootDisplay:        rendering("display", migrate.KindRootDisplay),
		Commentary:         rendering("commentary", migrate.KindCommentary),
		Translation:        rendering("translation", migrate.KindTranslation),
		TranslationDisplay: rendering("translation_display", migrate.KindTranslationDisplay),
	}

	write(t, f.job.Root.LayerPath, []rec{
		{0, 5, "r1", "1"}, {5, 10, "r2", "2"}, {10, 15, "\n", "3"},
	})
	write(t, f.migrator.Path(f.job.Root, f.job.RootDisplay), []rec{
		{0, 8, "r1", "1"}, {8, 20, "r2", "2"}, {20, 22, "\n", "3"},
	})
	write(t, f.job.RootDisplay.LayerPath, []rec{
		{0, 8, "d1", "1"}, {8, 14, "d2", "2"}, {14, 20, "d3", "3"}, {20, 22, "  ", "4"},
	})
	write(t, f.job.Commentary.LayerPath, []rec{
		{0, 5, "c-one", "1"},
		{5, 10, "c-two", "2-3"},
		{10, 12, "\n\n", "1"},
		{12, 18, "c-four", "9"},
		{18, 24, "c-five", "3"},
	})
	write(t, f.job.Translation.LayerPath, []rec{
		{0, 6, "t-one", "1"}, {6, 14, "t-two", "2"}, {14, 20, "t-three", "3"},
	})
	write(t, f.migrator.Path(f.job.TranslationDisplay, f.job.Translation), []rec{
		{0, 10, "td1", "1"}, {10, 20, "td2", "2"},
	})
	return f
}

func target(index, start, end int) align.Target {
	return align.Target{Index: index, Span: align.Span{Start: start, End: end}}
}

func TestRootMapping(t *testing.T) {
	f := newFixture(t)
	tr := New(f.migrator)

	got, err := tr.RootMapping(context.Background(), f.job.Root, f.job.RootDisplay)
	if err != nil {
		t.Fatalf("RootMapping failed: %v", err)
	}
	want := align.Mapping{
		{Source: 1, Targets: []align.Target{target(1, 0, 8)}},
		{Source: 2, Targets: []align.Target{target(2, 8, 14), target(3, 14, 20)}},
		{Source: 3, Targets: []align.Target{target(4, 20, 22)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RootMapping mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslationMapping(t *testing.T) {
	f := newFixture(t)
	tr := New(f.migrator)

	got, err := tr.TranslationMapping(context.Background(), f.job.Translation, f.job.TranslationDisplay)
	if err != nil {
		t.Fatalf("TranslationMapping failed: %v", err)
	}
	want := align.Mapping{
		{Source: 1, Targets: []align.Target{target(1, 0, 6), target(2, 6, 14)}},
		{Source: 2, Targets: []align.Target{target(2, 6, 14), target(3, 14, 20)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TranslationMapping mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeCommentary(t *testing.T) {
	f := newFixture(t)
	got, err := New(f.migrator).SerializeCommentary(context.Background(), f.job.Root, f.job.RootDisplay, f.job.Commentary)
	if err != nil {
		t.Fatalf("SerializeCommentary failed: %v", err)
	}
	want := []string{
		"<1><1>c-one",
		"<1><2>c-two",
		"\n\n",   // blank text
		"c-four", // unknown root index
		"c-five", // root segment is blank
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SerializeCommentary mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignedDisplayCommentary(t *testing.T) {
	f := newFixture(t)
	got, err := New(f.migrator).AlignedDisplayCommentary(context.Background(), f.job.Root, f.job.RootDisplay, f.job.Commentary)
	if err != nil {
		t.Fatalf("AlignedDisplayCommentary failed: %v", err)
	}
	want := [][]string{{"c-one"}, {"c-two"}, nil, nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AlignedDisplayCommentary mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeTranslation(t *testing.T) {
	f := newFixture(t)
	got, err := New(f.migrator, WithChapter(3)).SerializeTranslation(context.Background(), f.job.Root, f.job.RootDisplay, f.job.Translation)
	if err != nil {
		t.Fatalf("SerializeTranslation failed: %v", err)
	}
	want := []string{"<3><1>t-one", "<3><2>t-two", "t-three"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SerializeTranslation mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignedDisplayTranslation(t *testing.T) {
	f := newFixture(t)
	got, err := New(f.migrator).AlignedDisplayTranslation(context.Background(), f.job.Root, f.job.RootDisplay, f.job.Translation)
	if err != nil {
		t.Fatalf("AlignedDisplayTranslation failed: %v", err)
	}
	want := [][]string{{"t-one"}, {"t-two"}, nil, nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AlignedDisplayTranslation mismatch (-want +got):\n%s", diff)
	}
}

func TestKindMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.migrator).RootMapping(context.Background(), f.job.RootDisplay, f.job.Root)
	if !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("RootMapping error = %v, want ErrInvalidInput", err)
	}
}

func TestMissingMigratedLayer(t *testing.T) {
	f := newFixture(t)
	m := migrate.Static{Dir: filepath.Join(f.dir, "elsewhere")}
	_, err := New(m).RootMapping(context.Background(), f.job.Root, f.job.RootDisplay)
	if !errors.Is(err, aerrors.ErrNotFound) {
		t.Errorf("RootMapping error = %v, want ErrNotFound", err)
	}
}

func TestExecMigratorReleased(t *testing.T) {
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not available")
	}
	f := newFixture(t)
	tmp := t.TempDir()
	m := migrate.Exec{
		Command: []string{"cp", f.migrator.Path(f.job.Root, f.job.RootDisplay), "{out}"},
		TempDir: tmp,
	}
	got, err := New(m).RootMapping(context.Background(), f.job.Root, f.job.RootDisplay)
	if err != nil {
		t.Fatalf("RootMapping failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("RootMapping has %d entries", len(got))
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("migrated layer not released: %v", entries)
	}
}

func TestMappingCache(t *testing.T) {
	f := newFixture(t)
	cache, err := mapcache.Open(filepath.Join(f.dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	tr := New(f.migrator, WithCache(cache))
	ctx := context.Background()

	first, err := tr.RootMapping(ctx, f.job.Root, f.job.RootDisplay)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.RootMapping(ctx, f.job.Root, f.job.RootDisplay)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached mapping differs (-first +second):\n%s", diff)
	}
	entries, err := os.ReadDir(filepath.Join(f.dir, "cache", "mappings"))
	if err != nil || len(entries) != 1 {
		t.Errorf("cache entries = %v, %v", entries, err)
	}
}

func TestRunJobAndBundle(t *testing.T) {
	f := newFixture(t)
	n := 0
	tr := New(f.migrator, WithIDGenerator(func() string {
		n++
		return "req-" + strconv.Itoa(n)
	}))

	results, err := tr.RunJob(context.Background(), f.job)
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if len(results) != len(Operations) {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if res.Operation != Operations[i] {
			t.Errorf("result %d is %s, want %s", i, res.Operation, Operations[i])
		}
		if res.RequestID != "req-1" {
			t.Errorf("result %d request id = %q, want req-1", i, res.RequestID)
		}
	}

	archive := filepath.Join(f.dir, "sample.tar.xz")
	if _, err := WriteBundle(f.job, results, filepath.Join(f.dir, "work"), archive); err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}
	b, err := bundle.Unpack(archive, filepath.Join(f.dir, "unpacked"))
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if err := b.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
	if b.Manifest.Job != "sample" || b.Manifest.RequestID != "req-1" {
		t.Errorf("manifest = %+v", b.Manifest)
	}
	if len(b.Manifest.Artifacts) != len(Operations) {
		t.Errorf("bundle has %d artifacts", len(b.Manifest.Artifacts))
	}
	data, err := b.Read("sample.root_mapping.json")
	if err != nil {
		t.Fatal(err)
	}
	var m align.Mapping
	if err := m.UnmarshalJSON(data); err != nil {
		t.Fatalf("mapping artifact: %v", err)
	}
	if len(m) != 3 {
		t.Errorf("mapping artifact has %d entries", len(m))
	}
}

func TestJobValidate(t *testing.T) {
	f := newFixture(t)

	job := f.job
	job.Operations = []Operation{OpSerializeCommentary}
	job.Translation = migrate.Rendering{}
	if err := job.Validate(); err != nil {
		t.Errorf("commentary-only job: %v", err)
	}

	job.Operations = []Operation{OpSerializeTranslation}
	if err := job.Validate(); !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("missing translation: %v", err)
	}

	job.Operations = []Operation{"bogus"}
	if err := job.Validate(); !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("unknown operation: %v", err)
	}

	job.Operations = nil
	if err := job.Validate(); !errors.Is(err, aerrors.ErrInvalidInput) {
		t.Errorf("no operations: %v", err)
	}
}
