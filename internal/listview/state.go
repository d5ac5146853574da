package listview

import (
	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/internal/pagination"
	"github.com/pitabwire/marketdesk/model"
)

// LoadState is the state of the list itself.
type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadLoaded  LoadState = "loaded"
	LoadError   LoadState = "error"
)

// SubmitState is the state of the create/edit form.
type SubmitState string

const (
	SubmitReady      SubmitState = "ready"
	SubmitSubmitting SubmitState = "submitting"
	SubmitError      SubmitState = "error"
)

// FormMode tells whether the open form creates or edits an entity.
type FormMode string

const (
	FormCreate FormMode = "create"
	FormEdit   FormMode = "edit"
)

// LoadingState holds the three independent busy flags of a view. A row
// action never sets ListLoading and a form submission never blocks rows.
type LoadingState struct {
	ListLoading       bool     `json:"list_loading"`
	FormSubmitting    bool     `json:"form_submitting"`
	RowActionInFlight bool     `json:"row_action_in_flight"`
	RowsInFlight      []string `json:"rows_in_flight"`
}

// FormState is the create/edit form of a view. Values keep what the admin
// typed across failed submissions.
type FormState struct {
	Open        bool                `json:"open"`
	Mode        FormMode            `json:"mode,omitempty"`
	EntityID    string              `json:"entity_id,omitempty"`
	Values      model.Payload       `json:"values,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	Message     string              `json:"message,omitempty"`

	id uint64
}

// Snapshot is an immutable copy of a controller's state. Items is shared
// with the controller but never modified in place.
type Snapshot[T model.Entity[T]] struct {
	Collection string                 `json:"collection"`
	Query      filter.ListQuery       `json:"query"`
	Items      []T                    `json:"items"`
	TotalItems int                    `json:"total_items"`
	TotalPages int                    `json:"total_pages"`
	Window     []pagination.Indicator `json:"pagination"`

	Load    LoadState    `json:"load_state"`
	Submit  SubmitState  `json:"submit_state"`
	Loading LoadingState `json:"loading"`

	// Error is the last list load failure; it is cleared by the next
	// applied fetch. ActionError is the last row action failure.
	Error       *model.Failure `json:"error,omitempty"`
	ActionError *model.Failure `json:"action_error,omitempty"`

	Form FormState `json:"form"`

	// Seq is the latest fetch issued and AppliedSeq the one whose result is
	// on screen. Version increases with every state change.
	Seq        uint64 `json:"seq"`
	AppliedSeq uint64 `json:"applied_seq"`
	Version    uint64 `json:"version"`
}

// Row returns the item with the given id.
func (s Snapshot[T]) Row(id string) (T, bool) {
	for _, it := range s.Items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}
