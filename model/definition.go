package model

// DefinitionFile is the root structure of a definition file. Each file
// declares one or more admin collections.
type DefinitionFile struct {
	Version     string                 `yaml:"version"     json:"version"`
	Collections []CollectionDefinition `yaml:"collections" json:"collections"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// CollectionDefinition describes one remote collection managed through a
// list view: where it lives, how its status is encoded, which columns and
// form fields it exposes and which capabilities gate its actions.
type CollectionDefinition struct {
	ID                string                  `yaml:"id"                 json:"id"`
	Entity            string                  `yaml:"entity"             json:"entity"`
	Title             string                  `yaml:"title"              json:"title"`
	Path              string                  `yaml:"path"               json:"path"`
	Group             string                  `yaml:"group"              json:"group,omitempty"`
	Icon              string                  `yaml:"icon"               json:"icon,omitempty"`
	Order             int                     `yaml:"order"              json:"order"`
	PageSize          int                     `yaml:"page_size"          json:"page_size"`
	SearchPlaceholder string                  `yaml:"search_placeholder" json:"search_placeholder,omitempty"`
	Status            StatusDefinition        `yaml:"status"             json:"status"`
	Columns           []ColumnDefinition      `yaml:"columns"            json:"columns"`
	Form              []FieldDefinition       `yaml:"form"               json:"form,omitempty"`
	ConfirmDelete     *ConfirmationDefinition `yaml:"confirm_delete"     json:"confirm_delete,omitempty"`
	Capabilities      CapabilityBindings      `yaml:"capabilities"       json:"capabilities"`
	Operations        OperationBindings       `yaml:"operations"         json:"operations"`
}

// StatusDefinition describes how the tri-state status filter is sent to the
// marketplace. Inverted collections store "suspended" rather than "active",
// so the wire value is negated.
type StatusDefinition struct {
	Param         string `yaml:"param"          json:"param"`
	Inverted      bool   `yaml:"inverted"       json:"inverted"`
	LabelActive   string `yaml:"label_active"   json:"label_active"`
	LabelInactive string `yaml:"label_inactive" json:"label_inactive"`
}

// ColumnDefinition describes a table column.
type ColumnDefinition struct {
	Field  string `yaml:"field"  json:"field"`
	Label  string `yaml:"label"  json:"label"`
	Type   string `yaml:"type"   json:"type"`
	Format string `yaml:"format" json:"format,omitempty"`
	Width  string `yaml:"width"  json:"width,omitempty"`
}

// FieldDefinition describes a single input in the create/edit form.
type FieldDefinition struct {
	Field       string                `yaml:"field"       json:"field"`
	Label       string                `yaml:"label"       json:"label"`
	Type        string                `yaml:"type"        json:"type"`
	Required    bool                  `yaml:"required"    json:"required,omitempty"`
	CreateOnly  bool                  `yaml:"create_only" json:"create_only,omitempty"`
	Placeholder string                `yaml:"placeholder" json:"placeholder,omitempty"`
	HelpText    string                `yaml:"help_text"   json:"help_text,omitempty"`
	Validation  *ValidationDefinition `yaml:"validation"  json:"validation,omitempty"`
	Options     []StaticOption        `yaml:"options"     json:"options,omitempty"`
}

// ValidationDefinition describes client-side validation rules for a field.
type ValidationDefinition struct {
	MinLength *int     `yaml:"min_length" json:"min_length,omitempty"`
	MaxLength *int     `yaml:"max_length" json:"max_length,omitempty"`
	Min       *float64 `yaml:"min"        json:"min,omitempty"`
	Max       *float64 `yaml:"max"        json:"max,omitempty"`
	Pattern   string   `yaml:"pattern"    json:"pattern,omitempty"`
	Message   string   `yaml:"message"    json:"message,omitempty"`
}

// StaticOption is a label/value pair for select fields.
type StaticOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// ConfirmationDefinition describes a confirmation dialog.
type ConfirmationDefinition struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
	Confirm string `yaml:"confirm" json:"confirm"`
	Cancel  string `yaml:"cancel"  json:"cancel,omitempty"`
	Style   string `yaml:"style"   json:"style,omitempty"`
}

// CapabilityBindings names the capability required for each action. An
// empty binding leaves the action ungated.
type CapabilityBindings struct {
	View   string `yaml:"view"   json:"view,omitempty"`
	Create string `yaml:"create" json:"create,omitempty"`
	Update string `yaml:"update" json:"update,omitempty"`
	Delete string `yaml:"delete" json:"delete,omitempty"`
	Toggle string `yaml:"toggle" json:"toggle,omitempty"`
}

// For returns the capability bound to action.
func (b CapabilityBindings) For(action string) string {
	switch action {
	case ActionView:
		return b.View
	case ActionCreate:
		return b.Create
	case ActionUpdate:
		return b.Update
	case ActionDelete:
		return b.Delete
	case ActionToggle:
		return b.Toggle
	}
	return ""
}

// OperationBindings names the marketplace OpenAPI operation behind each
// action. They are only used to cross-check definitions against the
// marketplace document.
type OperationBindings struct {
	List   string `yaml:"list"   json:"list,omitempty"`
	Create string `yaml:"create" json:"create,omitempty"`
	Update string `yaml:"update" json:"update,omitempty"`
	Delete string `yaml:"delete" json:"delete,omitempty"`
	Toggle string `yaml:"toggle" json:"toggle,omitempty"`
}

// Declared returns the non-empty operation ids keyed by action name.
func (o OperationBindings) Declared() map[string]string {
	out := make(map[string]string, 5)
	for action, id := range map[string]string{
		"list":       o.List,
		ActionCreate: o.Create,
		ActionUpdate: o.Update,
		ActionDelete: o.Delete,
		ActionToggle: o.Toggle,
	} {
		if id != "" {
			out[action] = id
		}
	}
	return out
}
