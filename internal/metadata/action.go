package metadata

import (
	"net/http"

	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/model"
)

// Endpoint templates the frontend fills in. {viewId} is the open view,
// {rowId} the entity id of a listed row.
const (
	FormEndpoint   = "/ui/views/{viewId}/form"
	StatusEndpoint = "/ui/views/{viewId}/rows/{rowId}/status"
	RowEndpoint    = "/ui/views/{viewId}/rows/{rowId}"
)

// ActionProvider resolves the toolbar and row actions of a collection,
// dropping the ones the admin may not perform.
type ActionProvider struct{}

// NewActionProvider creates a new ActionProvider.
func NewActionProvider() *ActionProvider {
	return &ActionProvider{}
}

// ResolveActions returns the toolbar actions and the per-row actions.
func (p *ActionProvider) ResolveActions(caps model.CapabilitySet, def model.CollectionDefinition) (actions, rowActions []model.ActionDescriptor) {
	bind := def.Capabilities
	hasForm := len(def.Form) > 0

	if hasForm && caps.Allows(bind.Create) {
		actions = append(actions, model.ActionDescriptor{
			ID:       model.ActionCreate,
			Label:    "New",
			Icon:     "add",
			Style:    "primary",
			Method:   http.MethodPost,
			Endpoint: FormEndpoint,
		})
	}

	if hasForm && caps.Allows(bind.Update) {
		rowActions = append(rowActions, model.ActionDescriptor{
			ID:       model.ActionUpdate,
			Label:    "Edit",
			Icon:     "edit",
			Method:   http.MethodPost,
			Endpoint: FormEndpoint,
		})
	}

	if caps.Allows(bind.Toggle) {
		label := "Toggle status"
		if def.Status.LabelActive != "" && def.Status.LabelInactive != "" {
			label = def.Status.LabelActive + " / " + def.Status.LabelInactive
		}
		rowActions = append(rowActions, model.ActionDescriptor{
			ID:       model.ActionToggle,
			Label:    label,
			Icon:     "toggle_on",
			Method:   http.MethodPost,
			Endpoint: StatusEndpoint,
		})
	}

	if caps.Allows(bind.Delete) {
		rowActions = append(rowActions, model.ActionDescriptor{
			ID:           model.ActionDelete,
			Label:        "Delete",
			Icon:         "delete",
			Style:        "danger",
			Method:       http.MethodDelete,
			Endpoint:     RowEndpoint,
			Confirmation: confirmationFor(def),
		})
	}

	return actions, rowActions
}

// confirmationFor returns the delete dialog. Deletion always asks.
func confirmationFor(def model.CollectionDefinition) *model.ConfirmationDescriptor {
	c := def.ConfirmDelete
	if c == nil || c.Message == "" {
		return &model.ConfirmationDescriptor{
			Title:   "Delete",
			Message: listview.DefaultDeletePrompt,
			Confirm: "Delete",
			Cancel:  "Cancel",
			Style:   "danger",
		}
	}
	return &model.ConfirmationDescriptor{
		Title:   c.Title,
		Message: c.Message,
		Confirm: c.Confirm,
		Cancel:  c.Cancel,
		Style:   c.Style,
	}
}
