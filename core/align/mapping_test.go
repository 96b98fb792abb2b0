package align

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMappingJSONFormat(t *testing.T) {
	m := Mapping{
		{Source: 1, Targets: []Target{{Index: 2, Span: Span{0, 10}}, {Index: 3, Span: Span{10, 25}}}},
		{Source: 2, Targets: nil},
		{Source: 10, Targets: []Target{}},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	want := `{"1":[[2,[0,10]],[3,[10,25]]],"2":[],"10":[]}`
	if string(data) != want {
		t.Errorf("json.Marshal = %s, want %s", data, want)
	}
}

func TestMappingUnmarshalSortsNumerically(t *testing.T) {
	var m Mapping
	input := `{"10":[[1,[0,5]]],"2":[],"1":[[4,[5,9]]]}`
	if err := json.Unmarshal([]byte(input), &m); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}

	want := Mapping{
		{Source: 1, Targets: []Target{{Index: 4, Span: Span{5, 9}}}},
		{Source: 2, Targets: []Target{}},
		{Source: 10, Targets: []Target{{Index: 1, Span: Span{0, 5}}}},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Unmarshal mismatch (-want +got):\n%s", diff)
	}
}

func TestMappingUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"non-integer key", `{"a":[]}`},
		{"short target", `{"1":[[2]]}`},
		{"bad span", `{"1":[[2,"x"]]}`},
		{"not an object", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Mapping
			if err := json.Unmarshal([]byte(tt.input), &m); err == nil {
				t.Errorf("json.Unmarshal(%s) expected error", tt.input)
			}
		})
	}
}

func TestNewMappingRejectsDuplicates(t *testing.T) {
	_, err := NewMapping([]Entry{{Source: 1}, {Source: 1}})
	if err == nil {
		t.Fatalf("expected duplicate source error")
	}

	m, err := NewMapping([]Entry{{Source: 3}, {Source: 1}})
	if err != nil {
		t.Fatalf("NewMapping error: %v", err)
	}
	if diff := cmp.Diff([]int{1, 3}, m.Sources()); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}
