package metadata

import (
	"fmt"
	"net/url"

	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/model"
)

// Filter control names. They match the keys accepted when a view's filters
// are patched.
const (
	FilterSearch   = "search"
	FilterFromDate = "from_date"
	FilterToDate   = "to_date"
	FilterStatus   = "status"
)

// CollectionProvider resolves collection definitions into descriptors.
type CollectionProvider struct {
	registry *definition.Registry
	actions  *ActionProvider
}

// NewCollectionProvider creates a CollectionProvider backed by registry.
func NewCollectionProvider(registry *definition.Registry, actions *ActionProvider) *CollectionProvider {
	return &CollectionProvider{registry: registry, actions: actions}
}

// GetCollection resolves the descriptor of collection id. Returns an error
// with code NOT_FOUND or FORBIDDEN.
func (p *CollectionProvider) GetCollection(caps model.CapabilitySet, id string) (model.CollectionDescriptor, error) {
	def, ok := p.registry.Get(id)
	if !ok {
		return model.CollectionDescriptor{}, model.NewNotFoundError(
			fmt.Sprintf("collection %q not found", id),
		)
	}
	if !caps.Allows(def.Capabilities.View) {
		return model.CollectionDescriptor{}, model.NewForbiddenError(
			fmt.Sprintf("insufficient capabilities for collection %q", id),
		)
	}

	desc := model.CollectionDescriptor{
		ID:                def.ID,
		Entity:            def.Entity,
		Title:             def.Title,
		PageSize:          def.PageSize,
		SearchPlaceholder: def.SearchPlaceholder,
		Columns:           resolveColumns(def),
		Filters:           resolveFilters(def),
		ViewsEndpoint:     "/ui/collections/" + url.PathEscape(def.ID) + "/views",
	}
	if len(def.Form) > 0 && (caps.Allows(def.Capabilities.Create) || caps.Allows(def.Capabilities.Update)) {
		desc.Form = resolveForm(def.Form)
	}
	desc.Actions, desc.RowActions = p.actions.ResolveActions(caps, def)

	return desc, nil
}

func resolveColumns(def model.CollectionDefinition) []model.ColumnDescriptor {
	cols := make([]model.ColumnDescriptor, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = model.ColumnDescriptor{
			Field:  c.Field,
			Label:  c.Label,
			Type:   c.Type,
			Format: c.Format,
			Width:  c.Width,
		}
		if c.Type == "status" {
			cols[i].StatusMap = statusMap(def.Status)
		}
	}
	return cols
}

// statusMap labels the raw boolean the marketplace stores. Inverted
// collections store "suspended", so true means inactive.
func statusMap(s model.StatusDefinition) map[string]string {
	active, inactive := labelsOf(s)
	if s.Inverted {
		return map[string]string{"true": inactive, "false": active}
	}
	return map[string]string{"true": active, "false": inactive}
}

func labelsOf(s model.StatusDefinition) (active, inactive string) {
	active, inactive = s.LabelActive, s.LabelInactive
	if active == "" {
		active = "Active"
	}
	if inactive == "" {
		inactive = "Inactive"
	}
	return active, inactive
}

func resolveFilters(def model.CollectionDefinition) []model.FilterDescriptor {
	active, inactive := labelsOf(def.Status)
	return []model.FilterDescriptor{
		{Field: FilterSearch, Label: "Search", Type: "text"},
		{Field: FilterFromDate, Label: "From", Type: "date"},
		{Field: FilterToDate, Label: "To", Type: "date"},
		{
			Field: FilterStatus,
			Label: "Status",
			Type:  "select",
			Options: []model.OptionDescriptor{
				{Label: "All", Value: filter.StatusAny.String()},
				{Label: active, Value: filter.StatusActive.String()},
				{Label: inactive, Value: filter.StatusSuspended.String()},
			},
			Default: filter.StatusAny.String(),
		},
	}
}
