// Package session hosts list-view controllers for signed-in admins. Each
// open view is a Session owned by one subject; the Registry keeps them
// alive between requests and evicts idle ones.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/model"
)

// ErrInvalidValues is returned when submitted form values are not a JSON
// object.
var ErrInvalidValues = errors.New("session: form values must be a JSON object")

// View is the entity-independent face of a list-view controller used by
// the HTTP layer.
type View interface {
	Mount(ctx context.Context) error
	Wait(ctx context.Context) error
	Reload()
	Snapshot() any
	Form() listview.FormState
	ApplyFilters(p FilterPatch) error
	SetPage(n int)
	OpenForm(entityID string) *model.Failure
	CloseForm()
	SubmitForm(ctx context.Context, raw []byte) (*model.Failure, error)
	ToggleStatus(ctx context.Context, rowID string) *model.Failure
	Delete(ctx context.Context, rowID string, confirm listview.Confirmer) (bool, *model.Failure)
	Close()
}

// FilterPatch carries the filter changes of one request. Nil members are
// left alone. Reset is applied before the other members.
type FilterPatch struct {
	Search   *string `json:"search,omitempty"`
	FromDate *string `json:"from_date,omitempty"`
	ToDate   *string `json:"to_date,omitempty"`
	Status   *string `json:"status,omitempty"`
	PageSize *int    `json:"page_size,omitempty"`
	Reset    bool    `json:"reset,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p FilterPatch) Empty() bool {
	return !p.Reset && p.Search == nil && p.FromDate == nil && p.ToDate == nil &&
		p.Status == nil && p.PageSize == nil
}

type boundView[T model.Entity[T]] struct {
	c *listview.Controller[T]
}

// Bind adapts a controller to View.
func Bind[T model.Entity[T]](c *listview.Controller[T]) View {
	return &boundView[T]{c: c}
}

func (v *boundView[T]) Mount(ctx context.Context) error { return v.c.Mount(ctx) }
func (v *boundView[T]) Wait(ctx context.Context) error  { return v.c.Wait(ctx) }
func (v *boundView[T]) Reload()                         { v.c.Reload() }
func (v *boundView[T]) Snapshot() any                   { return v.c.Snapshot() }
func (v *boundView[T]) Form() listview.FormState        { return v.c.Snapshot().Form }
func (v *boundView[T]) SetPage(n int)                   { v.c.SetPage(n) }
func (v *boundView[T]) CloseForm()                      { v.c.CloseForm() }
func (v *boundView[T]) Close()                          { v.c.Close() }

// ApplyFilters validates the whole patch before changing anything, then
// applies each change as its own mutation.
func (v *boundView[T]) ApplyFilters(p FilterPatch) error {
	from, err := parseDate("from_date", p.FromDate)
	if err != nil {
		return err
	}
	to, err := parseDate("to_date", p.ToDate)
	if err != nil {
		return err
	}
	var status filter.Status
	if p.Status != nil {
		if status, err = filter.ParseStatus(*p.Status); err != nil {
			return err
		}
	}
	if p.PageSize != nil && *p.PageSize <= 0 {
		return fmt.Errorf("session: page_size must be positive, got %d", *p.PageSize)
	}

	if p.Reset {
		v.c.ResetFilters()
	}
	if p.Search != nil {
		v.c.SetSearchText(*p.Search)
	}
	if p.FromDate != nil {
		v.c.SetFromDate(from)
	}
	if p.ToDate != nil {
		v.c.SetToDate(to)
	}
	if p.Status != nil {
		v.c.SetStatus(status)
	}
	if p.PageSize != nil {
		v.c.SetPageSize(*p.PageSize)
	}
	return nil
}

func (v *boundView[T]) OpenForm(entityID string) *model.Failure {
	if entityID == "" {
		v.c.OpenCreateForm()
		return nil
	}
	return v.c.OpenEditForm(entityID)
}

// SubmitForm decodes raw as the form values. Numbers keep their literal
// form so they reach the marketplace unchanged.
func (v *boundView[T]) SubmitForm(ctx context.Context, raw []byte) (*model.Failure, error) {
	values, err := decodeValues(raw)
	if err != nil {
		return nil, err
	}
	return v.c.SubmitForm(ctx, values), nil
}

func (v *boundView[T]) ToggleStatus(ctx context.Context, rowID string) *model.Failure {
	return v.c.ToggleStatus(ctx, rowID)
}

func (v *boundView[T]) Delete(ctx context.Context, rowID string, confirm listview.Confirmer) (bool, *model.Failure) {
	return v.c.Delete(ctx, rowID, confirm)
}

func decodeValues(raw []byte) (model.Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrInvalidValues
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values model.Payload
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValues, err)
	}
	return values, nil
}

func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	d, err := filter.ParseDate(*s)
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", field, err)
	}
	return d, nil
}
