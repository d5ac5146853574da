// Package pagination computes the page indicators shown under a list view.
package pagination

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultMaxVisible is the number of consecutive pages shown around the
// current page.
const DefaultMaxVisible = 5

// EllipsisMarker is how a collapsed gap of pages is rendered.
const EllipsisMarker = "…"

// Indicator is one element of a pagination window: a page number or a gap.
type Indicator struct {
	Page     int
	Ellipsis bool
}

// PageOf returns the indicator for page n.
func PageOf(n int) Indicator { return Indicator{Page: n} }

// Gap returns the ellipsis indicator.
func Gap() Indicator { return Indicator{Ellipsis: true} }

func (i Indicator) String() string {
	if i.Ellipsis {
		return EllipsisMarker
	}
	return strconv.Itoa(i.Page)
}

// MarshalJSON renders a page as a number and a gap as the ellipsis string.
func (i Indicator) MarshalJSON() ([]byte, error) {
	if i.Ellipsis {
		return json.Marshal(EllipsisMarker)
	}
	return json.Marshal(i.Page)
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (i *Indicator) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*i = Indicator{Page: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != EllipsisMarker {
		return fmt.Errorf("pagination: unknown indicator %q", s)
	}
	*i = Indicator{Ellipsis: true}
	return nil
}

// Window returns the ordered page indicators for current out of total pages.
// When total fits in maxVisible every page is listed. Otherwise a run of
// maxVisible pages centred on current is shown, with the first and last
// page attached at either end and an ellipsis wherever pages are skipped.
//
// total <= 0 yields an empty window. maxVisible < 1 falls back to
// DefaultMaxVisible and current is clamped to [1, total].
func Window(current, total, maxVisible int) []Indicator {
	if total <= 0 {
		return []Indicator{}
	}
	if maxVisible < 1 {
		maxVisible = DefaultMaxVisible
	}
	current = max(1, min(current, total))

	if total <= maxVisible {
		out := make([]Indicator, 0, total)
		for p := 1; p <= total; p++ {
			out = append(out, PageOf(p))
		}
		return out
	}

	start := max(1, current-maxVisible/2)
	end := start + maxVisible - 1
	if end > total {
		end = total
		start = end - maxVisible + 1
	}

	out := make([]Indicator, 0, maxVisible+4)
	switch {
	case start > 2:
		out = append(out, PageOf(1), Gap())
	case start == 2:
		out = append(out, PageOf(1))
	}
	for p := start; p <= end; p++ {
		out = append(out, PageOf(p))
	}
	switch {
	case end < total-1:
		out = append(out, Gap(), PageOf(total))
	case end == total-1:
		out = append(out, PageOf(total))
	}
	return out
}
