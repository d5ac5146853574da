package definition

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/pitabwire/marketdesk/internal/openapi"
	"github.com/pitabwire/marketdesk/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// MaxPageSize bounds collection page sizes.
const MaxPageSize = 200

var validColumnTypes = map[string]bool{
	"text": true, "number": true, "currency": true, "date": true,
	"datetime": true, "boolean": true, "status": true, "image": true,
}

var validFieldTypes = map[string]bool{
	"text": true, "textarea": true, "number": true, "email": true, "phone": true,
	"password": true, "select": true, "checkbox": true, "date": true,
}

// allowedMethods lists the HTTP methods each bound operation may use.
var allowedMethods = map[string][]string{
	"list":             {"GET"},
	model.ActionCreate: {"POST"},
	model.ActionUpdate: {"PUT", "PATCH"},
	model.ActionDelete: {"DELETE"},
	model.ActionToggle: {"PATCH", "PUT", "POST"},
}

// Validator validates definitions structurally and against the marketplace
// OpenAPI document.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definition files. The index may be nil to skip
// OpenAPI checks.
func (v *Validator) Validate(files []model.DefinitionFile, index *openapi.Index) []VError {
	var errs []VError
	seen := make(map[string]string)

	for i, file := range files {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if file.SourceFile != "" {
			prefix = file.SourceFile
		}
		if len(file.Collections) == 0 {
			errs = append(errs, VError{Path: prefix + ".collections", Code: "REQUIRED", Message: "at least one collection is required"})
		}
		for j, c := range file.Collections {
			cp := fmt.Sprintf("%s.collections[%d]", prefix, j)
			if c.ID != "" {
				if first, dup := seen[c.ID]; dup {
					errs = append(errs, VError{
						Path:    cp + ".id",
						Code:    "DUPLICATE",
						Message: fmt.Sprintf("collection %q already defined at %s", c.ID, first),
					})
				} else {
					seen[c.ID] = cp
				}
			}
			errs = append(errs, v.validateCollection(cp, c, index)...)
		}
	}
	return errs
}

func (v *Validator) validateCollection(prefix string, c model.CollectionDefinition, index *openapi.Index) []VError {
	var errs []VError

	if c.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if c.Entity == "" {
		errs = append(errs, VError{Path: prefix + ".entity", Code: "REQUIRED", Message: "entity is required"})
	} else if !slices.Contains(model.EntityKinds, c.Entity) {
		errs = append(errs, VError{
			Path:    prefix + ".entity",
			Code:    "INVALID_ENUM",
			Message: fmt.Sprintf("unknown entity %q, expected one of %s", c.Entity, strings.Join(model.EntityKinds, ", ")),
		})
	}
	if c.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}

	switch {
	case c.Path == "":
		errs = append(errs, VError{Path: prefix + ".path", Code: "REQUIRED", Message: "path is required"})
	case !strings.HasPrefix(c.Path, "/") || strings.ContainsAny(c.Path, "?# "):
		errs = append(errs, VError{Path: prefix + ".path", Code: "INVALID_PATH", Message: fmt.Sprintf("path %q must be an absolute path without query", c.Path)})
	}

	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: fmt.Sprintf("page_size must be 1-%d", MaxPageSize)})
	}

	if c.Status.Param == "" {
		errs = append(errs, VError{Path: prefix + ".status.param", Code: "REQUIRED", Message: "status.param is required"})
	}

	if len(c.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}
	for i, col := range c.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if col.Field == "" {
			errs = append(errs, VError{Path: cp + ".field", Code: "REQUIRED", Message: "field is required"})
		}
		if !validColumnTypes[col.Type] {
			errs = append(errs, VError{Path: cp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid column type %q", col.Type)})
		}
	}

	for i, f := range c.Form {
		errs = append(errs, v.validateField(fmt.Sprintf("%s.form[%d]", prefix, i), f)...)
	}

	if c.ID != "" {
		bindings := c.Capabilities
		for _, action := range []string{model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete, model.ActionToggle} {
			name := bindings.For(action)
			if name != "" && name != "*" && !strings.HasPrefix(name, c.ID+":") {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.capabilities.%s", prefix, action),
					Code:    "NAMESPACE_MISMATCH",
					Message: fmt.Sprintf("capability %q does not match collection %q", name, c.ID),
				})
			}
		}
	}

	if index != nil {
		errs = append(errs, v.validateOperations(prefix+".operations", c.Operations, index)...)
	}

	return errs
}

func (v *Validator) validateField(prefix string, f model.FieldDefinition) []VError {
	var errs []VError

	if f.Field == "" {
		errs = append(errs, VError{Path: prefix + ".field", Code: "REQUIRED", Message: "field is required"})
	}
	if f.Label == "" {
		errs = append(errs, VError{Path: prefix + ".label", Code: "REQUIRED", Message: "label is required"})
	}
	if !validFieldTypes[f.Type] {
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", f.Type)})
	}
	if f.Type == "select" && len(f.Options) == 0 {
		errs = append(errs, VError{Path: prefix + ".options", Code: "REQUIRED", Message: "select fields need options"})
	}
	if f.Validation != nil && f.Validation.Pattern != "" {
		if _, err := regexp.Compile(f.Validation.Pattern); err != nil {
			errs = append(errs, VError{Path: prefix + ".validation.pattern", Code: "INVALID_PATTERN", Message: err.Error()})
		}
	}

	return errs
}

func (v *Validator) validateOperations(prefix string, ops model.OperationBindings, index *openapi.Index) []VError {
	var errs []VError

	declared := ops.Declared()
	actions := make([]string, 0, len(declared))
	for action := range declared {
		actions = append(actions, action)
	}
	slices.Sort(actions)

	for _, action := range actions {
		id := declared[action]
		op, ok := index.Operation(id)
		if !ok {
			errs = append(errs, VError{
				Path:    prefix + "." + action,
				Code:    "OPERATION_NOT_FOUND",
				Message: fmt.Sprintf("operation %q not found in marketplace document", id),
			})
			continue
		}
		if !slices.Contains(allowedMethods[action], op.Method) {
			errs = append(errs, VError{
				Path:    prefix + "." + action,
				Code:    "OPERATION_METHOD",
				Message: fmt.Sprintf("operation %q uses %s, %s expects %s", id, op.Method, action, strings.Join(allowedMethods[action], " or ")),
			})
		}
	}

	return errs
}
