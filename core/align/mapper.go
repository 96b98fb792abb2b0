package align

// Overlaps reports whether a target span corresponds to a source span.
//
// The match holds when the target starts inside the source, ends inside the
// source, or strictly contains it. Spans that only touch at an edge never
// match. The predicate is directional: swapping the arguments does not in
// general give the inverse relation, so callers name their source and
// target explicitly.
func Overlaps(src, tgt Span) bool {
	if tgt.Start == src.End || tgt.End == src.Start {
		return false
	}
	startsInside := src.Start <= tgt.Start && tgt.Start < src.End
	endsInside := src.Start < tgt.End && tgt.End <= src.End
	contains := tgt.Start < src.Start && tgt.End > src.End
	return startsInside || endsInside || contains
}

// MapLayers maps every source segment to the target segments that overlap
// it. Targets keep target-layer order; the result is sorted by source index
// and contains every source index, with an empty list when nothing overlaps.
//
// Both layers must already be expressed over the same base offsets.
func MapLayers(src, tgt Layer) Mapping {
	targets := tgt.Segments()
	out := make(Mapping, 0, src.Len())
	for _, s := range src.Sorted() {
		matched := []Target{}
		for _, t := range targets {
			if Overlaps(s.Span, t.Span) {
				matched = append(matched, Target{Index: t.Index, Span: t.Span})
			}
		}
		out = append(out, Entry{Source: s.Index, Targets: matched})
	}
	return out
}

// MapSegments validates raw segment lists as layers and maps them. Invalid
// spans fail with an InvalidSpanError before any mapping is computed.
func MapSegments(src, tgt []Segment) (Mapping, error) {
	srcLayer, err := NewLayer("source", src)
	if err != nil {
		return nil, err
	}
	tgtLayer, err := NewLayer("target", tgt)
	if err != nil {
		return nil, err
	}
	return MapLayers(srcLayer, tgtLayer), nil
}
