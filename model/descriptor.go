package model

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is a single node in the navigation tree.
type NavigationNode struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Icon     string           `json:"icon"`
	Route    string           `json:"route,omitempty"`
	Children []NavigationNode `json:"children"`
}

// CollectionDescriptor is the resolved collection metadata sent to the
// frontend. Only actions the admin may perform are listed.
type CollectionDescriptor struct {
	ID                string             `json:"id"`
	Entity            string             `json:"entity"`
	Title             string             `json:"title"`
	PageSize          int                `json:"page_size"`
	SearchPlaceholder string             `json:"search_placeholder,omitempty"`
	Columns           []ColumnDescriptor `json:"columns"`
	Filters           []FilterDescriptor `json:"filters"`
	Form              *FormDescriptor    `json:"form,omitempty"`
	Actions           []ActionDescriptor `json:"actions,omitempty"`
	RowActions        []ActionDescriptor `json:"row_actions,omitempty"`
	ViewsEndpoint     string             `json:"views_endpoint"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field     string            `json:"field"`
	Label     string            `json:"label"`
	Type      string            `json:"type"`
	Format    string            `json:"format,omitempty"`
	Width     string            `json:"width,omitempty"`
	StatusMap map[string]string `json:"status_map,omitempty"`
}

// FilterDescriptor describes a resolved filter control.
type FilterDescriptor struct {
	Field   string             `json:"field"`
	Label   string             `json:"label"`
	Type    string             `json:"type"`
	Options []OptionDescriptor `json:"options,omitempty"`
	Default any                `json:"default,omitempty"`
}

// OptionDescriptor is a resolved option for dropdowns and filters.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FormDescriptor is the resolved create/edit form.
type FormDescriptor struct {
	Fields []FieldDescriptor `json:"fields"`
}

// FieldDescriptor is a resolved form field sent to the frontend.
type FieldDescriptor struct {
	Field       string                `json:"field"`
	Label       string                `json:"label"`
	Type        string                `json:"type"`
	Required    bool                  `json:"required"`
	CreateOnly  bool                  `json:"create_only,omitempty"`
	Validation  *ValidationDescriptor `json:"validation,omitempty"`
	Options     []OptionDescriptor    `json:"options,omitempty"`
	Placeholder string                `json:"placeholder,omitempty"`
	HelpText    string                `json:"help_text,omitempty"`
}

// ValidationDescriptor describes client-side validation rules.
type ValidationDescriptor struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// ActionDescriptor is a resolved action sent to the frontend.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Icon         string                  `json:"icon,omitempty"`
	Style        string                  `json:"style,omitempty"`
	Method       string                  `json:"method"`
	Endpoint     string                  `json:"endpoint"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
	Cancel  string `json:"cancel,omitempty"`
	Style   string `json:"style,omitempty"`
}
