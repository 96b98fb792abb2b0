package align

import (
	"strconv"
	"strings"
)

// DefaultChapter is the chapter number written in front of every anchored
// segment. Downstream consumers expect a single chapter.
const DefaultChapter = 1

// Tag renders one anchored segment: <chapter><index>text.
func Tag(chapter, index int, text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 12)
	sb.WriteByte('<')
	sb.WriteString(strconv.Itoa(chapter))
	sb.WriteString("><")
	sb.WriteString(strconv.Itoa(index))
	sb.WriteByte('>')
	sb.WriteString(text)
	return sb.String()
}

// Hop is one step of a serialization chain: the mapping from the current
// index space into the next, and the layer that owns the next index space.
type Hop struct {
	Mapping Mapping
	Layer   Layer
}

// Serializer renders layers under another rendering's numbering.
type Serializer struct {
	// Chapter is written in front of every anchored segment.
	Chapter int
}

// Serialize renders src under the numbering of upstream using m
// (src index -> upstream index). See Serializer.Chain for the rules.
func Serialize(src Layer, m Mapping, upstream Layer) []string {
	return Serializer{Chapter: DefaultChapter}.Chain(src, Hop{Mapping: m, Layer: upstream})
}

// SerializeChain renders src through several hops with the default chapter.
func SerializeChain(src Layer, hops ...Hop) []string {
	return Serializer{Chapter: DefaultChapter}.Chain(src, hops...)
}

// Chain renders one string per src segment in index order. A segment is
// anchored to the index reached by following the first match through every
// hop. It is written raw, without an anchor, when its own text is blank,
// when any hop has no correspondence, or when any hop lands on a missing or
// blank segment.
func (s Serializer) Chain(src Layer, hops ...Hop) []string {
	segs := src.Sorted()
	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		if idx, ok := s.resolve(seg, hops); ok {
			out = append(out, Tag(s.Chapter, idx, seg.Text))
		} else {
			out = append(out, seg.Text)
		}
	}
	return out
}

func (s Serializer) resolve(seg Segment, hops []Hop) (int, bool) {
	if IsBlank(seg.Text) || len(hops) == 0 {
		return 0, false
	}
	cur := seg.Index
	for _, hop := range hops {
		t, ok := FirstMatch(hop.Mapping, cur)
		if !ok {
			return 0, false
		}
		up, ok := hop.Layer.Lookup(t.Index)
		if !ok || IsBlank(up.Text) {
			return 0, false
		}
		cur = t.Index
	}
	return cur, true
}

// AlignedDisplay lists, for every target segment in index order, the source
// texts whose mapping (src index -> target index) reaches it. Blank source
// texts are skipped and identical texts kept once. The entry is nil, meaning
// no data, when the target text is blank or nothing maps to it.
func AlignedDisplay(src Layer, m Mapping, target Layer) [][]string {
	inv := Invert(m)
	segs := target.Sorted()
	out := make([][]string, len(segs))
	for i, tgt := range segs {
		if IsBlank(tgt.Text) {
			continue
		}
		sources, _ := inv.Lookup(tgt.Index)
		var texts []string
		seen := make(map[string]bool, len(sources))
		for _, idx := range sources {
			seg, ok := src.Lookup(idx)
			if !ok || IsBlank(seg.Text) || seen[seg.Text] {
				continue
			}
			seen[seg.Text] = true
			texts = append(texts, seg.Text)
		}
		out[i] = texts
	}
	return out
}
