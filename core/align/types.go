package align

import (
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// Span is a half-open interval [Start, End) of character offsets over a
// shared base text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of offsets covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Validate checks Start >= 0 and Start < End. The returned error carries no
// segment index; callers that know it should use validateSpan.
func (s Span) Validate() error {
	return validateSpan(0, s)
}

func validateSpan(index int, s Span) error {
	switch {
	case s.Start < 0 || s.End < 0:
		return errors.NewInvalidSpan(index, s.Start, s.End, "negative offset")
	case s.Start == s.End:
		return errors.NewInvalidSpan(index, s.Start, s.End, "zero-length span")
	case s.Start > s.End:
		return errors.NewInvalidSpan(index, s.Start, s.End, "start after end")
	}
	return nil
}

// Segment is one unit of a rendering.
type Segment struct {
	// Index is unique within the segment's layer.
	Index int `json:"index"`

	// Span locates the segment in the base text.
	Span Span `json:"span"`

	// Text is the rendered text of the segment.
	Text string `json:"text"`

	// IndexMapping optionally lists upstream indices this segment
	// corresponds to, in ParseIndexRange form ("3,5-7").
	IndexMapping string `json:"index_mapping,omitempty"`
}

// Keys returns the upstream indices of the segment: the parsed IndexMapping
// when present, otherwise the segment's own Index.
func (s Segment) Keys() ([]int, error) {
	if strings.TrimSpace(s.IndexMapping) == "" {
		return []int{s.Index}, nil
	}
	return ParseIndexRange(s.IndexMapping)
}

// IsBlank reports whether text is empty or only whitespace and newlines.
// Blank segments are never anchored.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Layer is the validated, ordered set of segments of one rendering over one
// base text. A Layer is immutable once built; the zero value is an empty
// layer.
type Layer struct {
	// Name identifies the rendering in errors and logs.
	Name string

	segments []Segment
	byIndex  map[int]int
	keys     map[int][]int
}

// NewLayer validates segs and builds a Layer. Spans must satisfy
// 0 <= Start < End, indices must be unique and every IndexMapping must parse.
// The input slice is copied.
func NewLayer(name string, segs []Segment) (Layer, error) {
	l := Layer{
		Name:     name,
		segments: make([]Segment, len(segs)),
		byIndex:  make(map[int]int, len(segs)),
		keys:     make(map[int][]int, len(segs)),
	}
	copy(l.segments, segs)

	for i, seg := range l.segments {
		if err := validateSpan(seg.Index, seg.Span); err != nil {
			var spanErr *errors.InvalidSpanError
			if errors.As(err, &spanErr) {
				spanErr.Layer = name
			}
			return Layer{}, err
		}
		if _, dup := l.byIndex[seg.Index]; dup {
			v := errors.NewValidation("index", "duplicate segment index in layer "+name)
			v.Value = strconv.Itoa(seg.Index)
			return Layer{}, v
		}
		keys, err := seg.Keys()
		if err != nil {
			return Layer{}, errors.Wrapf(err, "segment %d in layer %s", seg.Index, name)
		}
		l.byIndex[seg.Index] = i
		l.keys[seg.Index] = keys
	}
	return l, nil
}

// MustLayer is like NewLayer but panics on error. It is intended for tests
// and static fixtures.
func MustLayer(name string, segs []Segment) Layer {
	l, err := NewLayer(name, segs)
	if err != nil {
		panic("align: " + err.Error())
	}
	return l
}

// Len returns the number of segments.
func (l Layer) Len() int {
	return len(l.segments)
}

// Segments returns the segments in layer (store) order. The slice must not
// be modified.
func (l Layer) Segments() []Segment {
	return l.segments
}

// Sorted returns a copy of the segments ordered by Index ascending.
func (l Layer) Sorted() []Segment {
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Lookup returns the segment with the given index.
func (l Layer) Lookup(index int) (Segment, bool) {
	i, ok := l.byIndex[index]
	if !ok {
		return Segment{}, false
	}
	return l.segments[i], true
}

// Keys returns the parsed upstream indices of the segment with the given
// index (see Segment.Keys).
func (l Layer) Keys(index int) ([]int, bool) {
	k, ok := l.keys[index]
	return k, ok
}
