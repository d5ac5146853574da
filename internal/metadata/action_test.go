package metadata

import (
	"net/http"
	"testing"

	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/model"
)

func actionIDs(actions []model.ActionDescriptor) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.ID
	}
	return out
}

func TestActionProvider_ResolveActions(t *testing.T) {
	categories := testCollections()[0]
	companies := testCollections()[1]

	tests := []struct {
		name     string
		def      model.CollectionDefinition
		caps     model.CapabilitySet
		wantTop  []string
		wantRows []string
	}{
		{"full access", categories, model.CapabilitySet{"categories:*": true},
			[]string{"create"}, []string{"update", "toggle", "delete"}},
		{"view only", categories, model.CapabilitySet{"categories:view": true},
			[]string{}, []string{}},
		{"toggle only", categories, model.CapabilitySet{"categories:toggle": true},
			[]string{}, []string{"toggle"}},
		{"no form means no create or edit", companies, model.CapabilitySet{"*": true},
			[]string{}, []string{"toggle", "delete"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			top, rows := NewActionProvider().ResolveActions(tt.caps, tt.def)
			if got := actionIDs(top); len(got) != len(tt.wantTop) {
				t.Errorf("actions = %v, want %v", got, tt.wantTop)
			}
			got := actionIDs(rows)
			if len(got) != len(tt.wantRows) {
				t.Fatalf("row actions = %v, want %v", got, tt.wantRows)
			}
			for i := range got {
				if got[i] != tt.wantRows[i] {
					t.Errorf("row actions = %v, want %v", got, tt.wantRows)
				}
			}
		})
	}
}

func TestActionProvider_delete(t *testing.T) {
	_, rows := NewActionProvider().ResolveActions(model.CapabilitySet{"*": true}, testCollections()[1])
	del := rows[len(rows)-1]
	if del.Method != http.MethodDelete || del.Endpoint != RowEndpoint {
		t.Errorf("delete = %s %s", del.Method, del.Endpoint)
	}
	if del.Confirmation == nil || del.Confirmation.Message != "Remove it?" {
		t.Errorf("Confirmation = %+v", del.Confirmation)
	}
}

func TestActionProvider_delete_defaultConfirmation(t *testing.T) {
	_, rows := NewActionProvider().ResolveActions(model.CapabilitySet{"*": true}, testCollections()[0])
	del := rows[len(rows)-1]
	if del.Confirmation == nil || del.Confirmation.Message != listview.DefaultDeletePrompt {
		t.Errorf("Confirmation = %+v, want default prompt", del.Confirmation)
	}
}

func TestActionProvider_toggleLabel(t *testing.T) {
	_, rows := NewActionProvider().ResolveActions(model.CapabilitySet{"categories:toggle": true}, testCollections()[0])
	if rows[0].Label != "Shown / Hidden" {
		t.Errorf("Label = %q", rows[0].Label)
	}
	if rows[0].Endpoint != StatusEndpoint || rows[0].Method != http.MethodPost {
		t.Errorf("toggle = %s %s", rows[0].Method, rows[0].Endpoint)
	}
}
