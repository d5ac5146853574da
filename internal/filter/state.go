// Package filter holds the search, date range and status filters of a list
// view and serializes them into marketplace query parameters.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of FromDate and ToDate.
const DateLayout = "2006-01-02"

// Status is the tri-state status filter.
type Status int

const (
	StatusAny Status = iota
	StatusActive
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	}
	return "any"
}

// ParseStatus parses "any", "active" or "suspended". The empty string is
// StatusAny.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return StatusAny, nil
	case "active", "true":
		return StatusActive, nil
	case "suspended", "inactive", "false":
		return StatusSuspended, nil
	}
	return StatusAny, fmt.Errorf("filter: unknown status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParamNames maps filter fields to query parameter names for one
// collection. StatusInverted negates the status value for collections whose
// flag is "suspended" rather than "active".
type ParamNames struct {
	Search         string
	FromDate       string
	ToDate         string
	Status         string
	StatusInverted bool
	Page           string
	Limit          string
}

// DefaultParamNames returns the parameter names used by the marketplace API.
func DefaultParamNames() ParamNames {
	return ParamNames{
		Search:   "search",
		FromDate: "fromDate",
		ToDate:   "toDate",
		Status:   "status",
		Page:     "page",
		Limit:    "limit",
	}
}

func (n ParamNames) orDefault() ParamNames {
	d := DefaultParamNames()
	if n.Search == "" {
		n.Search = d.Search
	}
	if n.FromDate == "" {
		n.FromDate = d.FromDate
	}
	if n.ToDate == "" {
		n.ToDate = d.ToDate
	}
	if n.Status == "" {
		n.Status = d.Status
	}
	if n.Page == "" {
		n.Page = d.Page
	}
	if n.Limit == "" {
		n.Limit = d.Limit
	}
	return n
}

// State is the filter state of one list view. Each setter is an independent
// mutation; the owner decides when to refetch.
type State struct {
	SearchText string     `json:"search"`
	FromDate   *time.Time `json:"from_date,omitempty"`
	ToDate     *time.Time `json:"to_date,omitempty"`
	Status     Status     `json:"status"`
}

func (s *State) SetSearchText(text string) { s.SearchText = text }
func (s *State) SetFromDate(d *time.Time)  { s.FromDate = truncateDate(d) }
func (s *State) SetToDate(d *time.Time)    { s.ToDate = truncateDate(d) }
func (s *State) SetStatus(st Status)       { s.Status = st }

// Reset returns every filter to its default.
func (s *State) Reset() { *s = State{} }

// IsZero reports whether every filter is at its default.
func (s State) IsZero() bool {
	return strings.TrimSpace(s.SearchText) == "" && s.FromDate == nil && s.ToDate == nil && s.Status == StatusAny
}

// Equal reports whether two states select the same rows.
func (s State) Equal(o State) bool {
	return s.SearchText == o.SearchText &&
		sameDate(s.FromDate, o.FromDate) &&
		sameDate(s.ToDate, o.ToDate) &&
		s.Status == o.Status
}

// ToQueryParams serializes the state. Keys whose field is at its default
// are omitted.
func (s State) ToQueryParams(names ParamNames) map[string]string {
	names = names.orDefault()
	out := make(map[string]string, 4)
	if text := strings.TrimSpace(s.SearchText); text != "" {
		out[names.Search] = text
	}
	if s.FromDate != nil {
		out[names.FromDate] = s.FromDate.Format(DateLayout)
	}
	if s.ToDate != nil {
		out[names.ToDate] = s.ToDate.Format(DateLayout)
	}
	if s.Status != StatusAny {
		active := s.Status == StatusActive
		if names.StatusInverted {
			active = !active
		}
		if active {
			out[names.Status] = "true"
		} else {
			out[names.Status] = "false"
		}
	}
	return out
}

// ParseDate parses a DateLayout date. The empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("filter: invalid date %q: %w", s, err)
	}
	return &t, nil
}

func truncateDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	y, m, day := d.Date()
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
