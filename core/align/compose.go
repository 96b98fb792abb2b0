package align

import (
	"sort"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// ComposePolicy selects how much of the second mapping's list is kept when
// two mappings are chained.
type ComposePolicy int

const (
	// ComposeFull keeps every target the middle index maps to.
	ComposeFull ComposePolicy = iota

	// ComposeFirst keeps only the first target of the middle index.
	ComposeFirst
)

// FirstMatch is the "take first index" policy: of all targets listed for a
// source index, only the first (lowest, in discovery order) is used. It
// returns false when the index is unknown or has no target.
func FirstMatch(m Mapping, source int) (Target, bool) {
	targets, ok := m.Lookup(source)
	if !ok || len(targets) == 0 {
		return Target{}, false
	}
	return targets[0], true
}

// RequireFirst is FirstMatch for callers that cannot proceed without a
// correspondence.
func RequireFirst(m Mapping, source int) (Target, error) {
	t, ok := FirstMatch(m, source)
	if !ok {
		return Target{}, errors.NewMissingCorrespondence(source)
	}
	return t, nil
}

// Firsts reduces every entry of m to its FirstMatch target. Entries with no
// target keep an empty list.
func Firsts(m Mapping) Mapping {
	out := make(Mapping, 0, len(m))
	for _, e := range m {
		targets := []Target{}
		if len(e.Targets) > 0 {
			targets = append(targets, e.Targets[0])
		}
		out = append(out, Entry{Source: e.Source, Targets: targets})
	}
	return out
}

// Compose chains a (source -> mid) with b (mid -> target). Each source index
// follows its first mid index into b. A source with no mid index, or whose
// mid index is missing from b or maps to nothing there, gets an empty list.
// The result has exactly a's source indices in ascending order, even when a
// or b were built out of order.
func Compose(a, b Mapping, policy ComposePolicy) Mapping {
	mids := make(map[int][]Target, len(b))
	for _, e := range b {
		if _, dup := mids[e.Source]; !dup {
			mids[e.Source] = e.Targets
		}
	}

	out := make(Mapping, 0, len(a))
	for _, e := range a {
		composed := []Target{}
		if len(e.Targets) > 0 {
			if targets := mids[e.Targets[0].Index]; len(targets) > 0 {
				if policy == ComposeFirst {
					targets = targets[:1]
				}
				composed = append(composed, targets...)
			}
		}
		out = append(out, Entry{Source: e.Source, Targets: composed})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Group lists the source indices that map to one target index.
type Group struct {
	Target  int
	Sources []int
}

// Inverse is a target -> sources multimap sorted by target index.
type Inverse []Group

// Lookup returns the sources grouped under a target index.
func (inv Inverse) Lookup(target int) ([]int, bool) {
	i := sort.Search(len(inv), func(i int) bool { return inv[i].Target >= target })
	if i < len(inv) && inv[i].Target == target {
		return inv[i].Sources, true
	}
	return nil, false
}

// Invert builds the reverse multimap of a mapping. Every target index listed
// for any source collects that source. Sources keep first-seen order and a
// (target, source) pair is recorded once.
func Invert(m Mapping) Inverse {
	groups := make(map[int]*Group)
	seen := make(map[[2]int]bool)
	for _, e := range m {
		for _, t := range e.Targets {
			pair := [2]int{t.Index, e.Source}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			g, ok := groups[t.Index]
			if !ok {
				g = &Group{Target: t.Index}
				groups[t.Index] = g
			}
			g.Sources = append(g.Sources, e.Source)
		}
	}

	out := make(Inverse, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// FromIndexRanges builds the mapping implied by a layer's IndexMapping
// metadata, such as a commentary's references to root segments. Each source
// segment maps to the upstream segments named by its keys, in key order.
// Keys that do not exist upstream are dropped.
func FromIndexRanges(src, upstream Layer) Mapping {
	out := make(Mapping, 0, src.Len())
	for _, s := range src.Sorted() {
		targets := []Target{}
		keys, _ := src.Keys(s.Index)
		for _, k := range keys {
			if up, ok := upstream.Lookup(k); ok {
				targets = append(targets, Target{Index: up.Index, Span: up.Span})
			}
		}
		out = append(out, Entry{Source: s.Index, Targets: targets})
	}
	return out
}
