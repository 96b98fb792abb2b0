package align

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Target is one corresponding segment in the target rendering.
type Target struct {
	Index int
	Span  Span
}

// MarshalJSON encodes the target as [index, [start, end]].
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{t.Index, [2]int{t.Span.Start, t.Span.End}})
}

// UnmarshalJSON decodes the [index, [start, end]] form.
func (t *Target) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("target must have 2 elements, got %d", len(raw))
	}
	var span [2]int
	if err := json.Unmarshal(raw[0], &t.Index); err != nil {
		return fmt.Errorf("target index: %w", err)
	}
	if err := json.Unmarshal(raw[1], &span); err != nil {
		return fmt.Errorf("target span: %w", err)
	}
	t.Span = Span{Start: span[0], End: span[1]}
	return nil
}

// Entry holds the targets of one source index. An empty Targets list means
// no correspondence was found.
type Entry struct {
	Source  int
	Targets []Target
}

// Mapping is the source-index -> targets correspondence, sorted by source
// index ascending with one entry per source index.
type Mapping []Entry

// NewMapping sorts entries by source index. Duplicate source indices are
// rejected.
func NewMapping(entries []Entry) (Mapping, error) {
	m := make(Mapping, len(entries))
	copy(m, entries)
	sort.SliceStable(m, func(i, j int) bool { return m[i].Source < m[j].Source })
	for i := 1; i < len(m); i++ {
		if m[i].Source == m[i-1].Source {
			return nil, fmt.Errorf("duplicate source index %d in mapping", m[i].Source)
		}
	}
	return m, nil
}

// Lookup returns the targets of a source index. ok is false when the index
// is not part of the mapping's domain; an empty list with ok true means the
// index has no correspondence.
func (m Mapping) Lookup(source int) (targets []Target, ok bool) {
	i := sort.Search(len(m), func(i int) bool { return m[i].Source >= source })
	if i < len(m) && m[i].Source == source {
		return m[i].Targets, true
	}
	return nil, false
}

// Sources returns the source indices in order.
func (m Mapping) Sources() []int {
	out := make([]int, len(m))
	for i, e := range m {
		out[i] = e.Source
	}
	return out
}

// Unmapped returns the source indices with no target.
func (m Mapping) Unmapped() []int {
	var out []int
	for _, e := range m {
		if len(e.Targets) == 0 {
			out = append(out, e.Source)
		}
	}
	return out
}

// MarshalJSON writes the mapping as an object keyed by source index in
// ascending order: {"1": [[2, [0, 10]]], "2": []}.
func (m Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.Itoa(e.Source))
		buf.WriteString(`":`)
		targets := e.Targets
		if targets == nil {
			targets = []Target{}
		}
		data, err := json.Marshal(targets)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON. Keys are
// re-sorted numerically.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	var raw map[string][]Target
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entries := make([]Entry, 0, len(raw))
	for key, targets := range raw {
		src, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("mapping key %q is not an integer", key)
		}
		if targets == nil {
			targets = []Target{}
		}
		entries = append(entries, Entry{Source: src, Targets: targets})
	}
	sorted, err := NewMapping(entries)
	if err != nil {
		return err
	}
	*m = sorted
	return nil
}
