// Package layer extracts align.Layer values from annotation stores.
//
// An annotation store is anything that can list a rendering's annotations in
// a stable order, each with base offsets, text and a flat key/value metadata
// set. Every rendering type (root, display, commentary, translation) goes
// through the same Extract function; only the Options naming the metadata
// fields differ.
package layer

import (
	"context"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// MetaRootIndex is the metadata key that carries root segment indices.
const MetaRootIndex = "root_idx_mapping"

// Record is one annotation as read from a store.
type Record struct {
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"data,omitempty"`
}

// Reader is the annotation store contract. Records must come back in the
// same order on every call for the same layer.
type Reader interface {
	Records(ctx context.Context) ([]Record, error)
}

// Static is an in-memory Reader.
type Static []Record

// Records returns a copy of the records.
func (s Static) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Record, len(s))
	copy(out, s)
	return out, nil
}

// Options names the metadata fields Extract reads.
type Options struct {
	// IndexKey holds the segment's own index. When empty, segments are
	// numbered by 1-based position in the store.
	IndexKey string `toml:"index_key" yaml:"index_key"`

	// MappingKey holds the upstream index-range string. When empty, or when
	// a record lacks the key, the segment maps through its own index.
	MappingKey string `toml:"mapping_key" yaml:"mapping_key"`
}

// SegmentationOptions reads root, display and translation layers, whose
// segments are numbered by the root index stored with each annotation.
var SegmentationOptions = Options{IndexKey: MetaRootIndex}

// CommentaryOptions reads commentary layers: segments are numbered by
// position and point at root segments through an index range.
var CommentaryOptions = Options{MappingKey: MetaRootIndex}

// Extract reads every record from r and builds a validated layer.
//
// A record missing IndexKey, or carrying a non-integer value there, fails
// with a ValidationError or ParseError. Span and index-range problems fail
// with InvalidSpanError and MalformedRangeError.
func Extract(ctx context.Context, r Reader, name string, opts Options) (align.Layer, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return align.Layer{}, errors.Wrapf(err, "read layer %s", name)
	}

	segs := make([]align.Segment, 0, len(records))
	for i, rec := range records {
		index := i + 1
		if opts.IndexKey != "" {
			raw, ok := rec.Metadata[opts.IndexKey]
			if !ok {
				v := errors.NewValidation(opts.IndexKey, "annotation "+strconv.Itoa(i)+" in layer "+name+" has no index")
				return align.Layer{}, v
			}
			index, err = strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				perr := errors.NewParse("index", name, "metadata "+opts.IndexKey+"="+strconv.Quote(raw)+" is not an integer")
				perr.Err = err
				return align.Layer{}, perr
			}
		}

		seg := align.Segment{
			Index: index,
			Span:  align.Span{Start: rec.Start, End: rec.End},
			Text:  rec.Text,
		}
		if opts.MappingKey != "" {
			seg.IndexMapping = rec.Metadata[opts.MappingKey]
		}
		segs = append(segs, seg)
	}

	return align.NewLayer(name, segs)
}

// FromLayer turns a layer back into records, writing each segment's index
// and index mapping under the keys named by opts.
func FromLayer(l align.Layer, opts Options) []Record {
	out := make([]Record, 0, l.Len())
	for _, seg := range l.Segments() {
		rec := Record{
			Start: seg.Span.Start,
			End:   seg.Span.End,
			Text:  seg.Text,
		}
		if opts.IndexKey != "" || (opts.MappingKey != "" && seg.IndexMapping != "") {
			rec.Metadata = make(map[string]string, 2)
		}
		if opts.IndexKey != "" {
			rec.Metadata[opts.IndexKey] = strconv.Itoa(seg.Index)
		}
		if opts.MappingKey != "" && seg.IndexMapping != "" {
			rec.Metadata[opts.MappingKey] = seg.IndexMapping
		}
		out = append(out, rec)
	}
	return out
}
