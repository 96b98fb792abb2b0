// Package align implements the segmentation alignment engine.
//
// Two renderings of one text (a root and its display edition, a commentary
// and the root it comments on, a translation and its display edition) carry
// independently numbered segments. Once one rendering's layer has been
// migrated onto the other's base text, both layers are lists of half-open
// character spans over the same sequence, and this package turns them into an
// index correspondence.
//
// # Core Types
//
//   - Span: half-open [Start, End) range of base offsets
//   - Segment: one indexed span with its text and optional upstream index range
//   - Layer: validated, ordered segments of one rendering
//   - Mapping: source index -> ordered targets, sorted by source index
//
// # Operations
//
//   - ParseIndexRange parses "3,5-7" style metadata into indices
//   - MapLayers computes the overlap Mapping between two layers
//   - Compose chains two Mappings through a shared middle index space
//   - Invert groups sources under each target they map to
//   - Serialize and SerializeChain render "<chapter><index>text" segments
//   - AlignedDisplay collects source texts per target segment
//
// Every function here is pure; nothing is cached or logged.
//
// # Example
//
//	root, _ := align.NewLayer("root", []align.Segment{
//	    {Index: 1, Span: align.Span{Start: 0, End: 10}, Text: "foo"},
//	    {Index: 2, Span: align.Span{Start: 10, End: 20}, Text: "bar"},
//	})
//	display, _ := align.NewLayer("display", []align.Segment{
//	    {Index: 1, Span: align.Span{Start: 0, End: 15}, Text: "X"},
//	})
//	m := align.MapLayers(root, display) // {1:[[1,[0,15]]], 2:[[1,[0,15]]]}
package align
