// Package transfer carries segment alignment between the renderings of one
// text: a root and its display edition, a commentary on the root, and a
// translation with its own display edition.
//
// Every operation migrates the layers it compares onto one base text,
// extracts them, maps or composes them with package align and releases the
// migrated layers before returning. Operations are synchronous; independent
// calls may run concurrently on one Transfer.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/layer"
	"github.com/FocuswithJustin/annotransfer/core/migrate"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
	"github.com/FocuswithJustin/annotransfer/internal/mapcache"
)

// Transfer runs alignment operations through one Migrator.
type Transfer struct {
	migrator migrate.Migrator
	cache    *mapcache.Cache
	chapter  int
	options  map[migrate.Kind]layer.Options
	newID    func() string
}

// Option configures a Transfer.
type Option func(*Transfer)

// WithCache reuses mappings across calls. A nil cache disables caching.
func WithCache(c *mapcache.Cache) Option {
	return func(t *Transfer) { t.cache = c }
}

// WithChapter sets the chapter written in front of anchored segments.
func WithChapter(chapter int) Option {
	return func(t *Transfer) { t.chapter = chapter }
}

// WithLayerOptions overrides the metadata keys used to extract layers of
// one kind.
func WithLayerOptions(kind migrate.Kind, opts layer.Options) Option {
	return func(t *Transfer) { t.options[kind] = opts }
}

// WithIDGenerator replaces the request id source (uuid by default).
func WithIDGenerator(f func() string) Option {
	return func(t *Transfer) { t.newID = f }
}

// New returns a Transfer that migrates layers with m.
func New(m migrate.Migrator, opts ...Option) *Transfer {
	t := &Transfer{
		migrator: m,
		chapter:  align.DefaultChapter,
		options:  make(map[migrate.Kind]layer.Options),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// begin attaches a request id to ctx unless one is already present.
func (t *Transfer) begin(ctx context.Context) (context.Context, string) {
	if id := logging.GetRequestID(ctx); id != "" {
		return ctx, id
	}
	id := t.newID()
	return logging.WithRequestID(ctx, id), id
}

func (t *Transfer) layerOptions(kind migrate.Kind) layer.Options {
	if opts, ok := t.options[kind]; ok {
		return opts
	}
	return kind.LayerOptions()
}

// load extracts a rendering's own layer over its own base.
func (t *Transfer) load(ctx context.Context, r migrate.Rendering) (align.Layer, error) {
	if err := r.Validate(); err != nil {
		return align.Layer{}, err
	}
	reader, err := layer.Open(r.LayerPath)
	if err != nil {
		return align.Layer{}, err
	}
	return layer.Extract(ctx, reader, r.ID, t.layerOptions(r.Kind))
}

// mapOnto migrates src onto tgt's base and maps it against tgt's layer.
// The migrated layer is released before the mapping is computed.
func (t *Transfer) mapOnto(ctx context.Context, src, tgt migrate.Rendering) (align.Mapping, align.Layer, error) {
	start := time.Now()
	migrated, err := migrate.Extract(ctx, t.migrator, src, tgt, t.layerOptions(src.Kind))
	if err != nil {
		return nil, align.Layer{}, err
	}
	target, err := t.load(ctx, tgt)
	if err != nil {
		return nil, align.Layer{}, err
	}

	key := mapcache.KeyFor(migrated, target)
	m, hit, err := t.cache.Get(ctx, key)
	if err != nil {
		logging.WarnContext(ctx, "mapping cache read failed", "error", err.Error())
	}
	if !hit {
		m = align.MapLayers(migrated, target)
		if err := t.cache.Put(ctx, key, m); err != nil {
			logging.WarnContext(ctx, "mapping cache write failed", "error", err.Error())
		}
	}
	logging.AlignmentStep(ctx, "map", src.ID, tgt.ID, len(m), time.Since(start), "cached", hit)
	return m, target, nil
}

func (t *Transfer) serializer() align.Serializer {
	return align.Serializer{Chapter: t.chapter}
}

func requireKind(r migrate.Rendering, role string, kinds ...migrate.Kind) error {
	for _, k := range kinds {
		if r.Kind == k {
			return nil
		}
	}
	v := errors.NewValidation(role, "rendering "+r.ID+" has kind "+string(r.Kind)+", want "+string(kinds[0]))
	v.Value = string(r.Kind)
	return v
}
