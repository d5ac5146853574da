// Package openapi indexes the marketplace OpenAPI document by operationId.
// The index is used to cross-check collection definitions and to reject
// form payloads the marketplace would refuse before they are sent.
package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one indexed marketplace operation.
type Operation struct {
	ID           string
	Method       string
	PathTemplate string
	// RequestSchema is the application/json request body schema, if any.
	RequestSchema *openapi3.Schema
}

// Index is an in-memory index of operations keyed by operationId. It is
// read-only after Load.
type Index struct {
	operations map[string]Operation
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{operations: make(map[string]Operation)}
}

// Load parses and validates the document at path and indexes it.
func (idx *Index) Load(path string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("openapi: loading %s: %w", path, err)
	}
	return idx.index(doc, path)
}

// LoadData is Load for an in-memory document.
func (idx *Index) LoadData(data []byte) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("openapi: parsing document: %w", err)
	}
	return idx.index(doc, "document")
}

func (idx *Index) index(doc *openapi3.T, name string) error {
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("openapi: validating %s: %w", name, err)
	}

	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			var schema *openapi3.Schema
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				if ct := op.RequestBody.Value.Content.Get("application/json"); ct != nil && ct.Schema != nil {
					schema = ct.Schema.Value
				}
			}
			idx.operations[op.OperationID] = Operation{
				ID:            op.OperationID,
				Method:        strings.ToUpper(method),
				PathTemplate:  path,
				RequestSchema: schema,
			}
		}
	}
	return nil
}

// Operation returns the operation with the given id.
func (idx *Index) Operation(id string) (Operation, bool) {
	op, ok := idx.operations[id]
	return op, ok
}

// OperationIDs returns every indexed operationId, sorted.
func (idx *Index) OperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed operations.
func (idx *Index) Len() int {
	return len(idx.operations)
}

// ValidatePayload checks a form payload against the request schema of
// operation id. It returns per-field messages, or nil when the payload is
// acceptable or the operation has no JSON body schema. Unknown operations
// are not checked.
func (idx *Index) ValidatePayload(id string, payload map[string]any) map[string][]string {
	op, ok := idx.operations[id]
	if !ok || op.RequestSchema == nil {
		return nil
	}
	schema := op.RequestSchema

	out := make(map[string][]string)
	for _, name := range schema.Required {
		if v, ok := payload[name]; !ok || v == nil {
			out[name] = append(out[name], "is required")
		}
	}

	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, ok := schema.Properties[name]
		if !ok || prop.Value == nil || payload[name] == nil {
			continue
		}
		err := prop.Value.VisitJSON(normalize(payload[name]), openapi3.MultiErrors())
		for _, msg := range schemaMessages(err) {
			out[name] = append(out[name], msg)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// normalize converts decoded JSON numbers to float64 for schema checks.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func schemaMessages(err error) []string {
	if err == nil {
		return nil
	}
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		var out []string
		for _, e := range multi {
			out = append(out, schemaMessages(e)...)
		}
		return out
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) && se.Reason != "" {
		return []string{se.Reason}
	}
	return []string{err.Error()}
}
