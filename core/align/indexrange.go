package align

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// indexRangeGrammar is the participle grammar for index-range metadata.
// Examples: "3", "3,5-7", "2-2", " 1 , 4-6 "
//
//nolint:govet // participle grammar tags are not standard struct tags
type indexRangeGrammar struct {
	Items []*rangeItem `parser:"@@ ( \",\" @@ )*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type rangeItem struct {
	Start int  `parser:"@Int"`
	End   *int `parser:"( \"-\" @Int )?"`
}

var indexRangeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[,\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// MaxRangeIndices bounds how many indices one index-range string may expand
// to.
const MaxRangeIndices = 100000

var tokenPattern = regexp.MustCompile(`^[0-9]+(\s*-\s*[0-9]+)?$`)

var indexRangeParser = participle.MustBuild[indexRangeGrammar](
	participle.Lexer(indexRangeLexer),
	participle.Elide("Whitespace"),
)

// ParseIndexRange parses a comma-separated list of indices and inclusive
// ranges into a sorted list. Duplicates across tokens are kept.
//
//	ParseIndexRange("3,5-7") // [3 5 6 7]
//	ParseIndexRange("2-2")   // [2]
//	ParseIndexRange("a-b")   // MalformedRangeError
func ParseIndexRange(s string) ([]int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.NewMalformedRange(s, "", "empty index range")
	}

	parsed, err := indexRangeParser.ParseString("", trimmed)
	if err != nil {
		merr := errors.NewMalformedRange(s, tokenAt(trimmed), "expected integer or start-end range")
		merr.Err = err
		return nil, merr
	}

	var out []int
	for _, item := range parsed.Items {
		if item.End == nil {
			if len(out) >= MaxRangeIndices {
				return nil, errors.NewMalformedRange(s, strconv.Itoa(item.Start), "range expands to more than "+strconv.Itoa(MaxRangeIndices)+" indices")
			}
			out = append(out, item.Start)
			continue
		}
		if *item.End < item.Start {
			token := strconv.Itoa(item.Start) + "-" + strconv.Itoa(*item.End)
			return nil, errors.NewMalformedRange(s, token, "range start is greater than end")
		}
		if *item.End-item.Start >= MaxRangeIndices-len(out) {
			token := strconv.Itoa(item.Start) + "-" + strconv.Itoa(*item.End)
			return nil, errors.NewMalformedRange(s, token, "range expands to more than "+strconv.Itoa(MaxRangeIndices)+" indices")
		}
		for i := item.Start; i <= *item.End; i++ {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out, nil
}

// tokenAt returns the first comma-separated token of s that is neither an
// integer nor a start-end range.
func tokenAt(s string) string {
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if !tokenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

// FormatIndexRange renders indices in the compact form read by
// ParseIndexRange, collapsing consecutive runs: [3 5 6 7] -> "3,5-7".
// Duplicate indices are written once.
func FormatIndexRange(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	var sb strings.Builder
	runStart, prev := sorted[0], sorted[0]
	flush := func() {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(runStart))
		if prev != runStart {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(prev))
		}
	}
	for _, v := range sorted[1:] {
		switch {
		case v == prev:
		case v == prev+1:
			prev = v
		default:
			flush()
			runStart, prev = v, v
		}
	}
	flush()
	return sb.String()
}
