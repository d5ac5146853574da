// Package metadata turns collection definitions into the navigation tree and
// collection descriptors the admin frontend renders, filtered by the
// signed-in admin's capabilities.
package metadata

import (
	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/model"
)

// ImportsNodeID is the navigation id of the bulk import screen.
const ImportsNodeID = "imports"

// MenuProvider builds a NavigationTree from definitions filtered by
// capabilities.
type MenuProvider struct {
	registry *definition.Registry
}

// NewMenuProvider creates a MenuProvider backed by the given definition
// registry.
func NewMenuProvider(registry *definition.Registry) *MenuProvider {
	return &MenuProvider{registry: registry}
}

// GetMenu builds the navigation tree. Collections sharing a group are nested
// under one node; ungrouped collections are top-level items. Groups are
// placed where their first collection sorts.
func (p *MenuProvider) GetMenu(caps model.CapabilitySet) model.NavigationTree {
	var nodes []model.NavigationNode
	groupAt := make(map[string]int)

	for _, c := range p.registry.All() {
		if !caps.Allows(c.Capabilities.View) {
			continue
		}
		leaf := model.NavigationNode{
			ID:       c.ID,
			Label:    c.Title,
			Icon:     c.Icon,
			Route:    "/" + c.ID,
			Children: []model.NavigationNode{},
		}
		if c.Group == "" {
			nodes = append(nodes, leaf)
			continue
		}
		i, ok := groupAt[c.Group]
		if !ok {
			i = len(nodes)
			groupAt[c.Group] = i
			nodes = append(nodes, model.NavigationNode{ID: "group:" + c.Group, Label: c.Group})
		}
		nodes[i].Children = append(nodes[i].Children, leaf)
	}

	if caps.Has(model.CapabilityImportUsers) {
		nodes = append(nodes, model.NavigationNode{
			ID:       ImportsNodeID,
			Label:    "Imports",
			Icon:     "upload",
			Route:    "/" + ImportsNodeID,
			Children: []model.NavigationNode{},
		})
	}

	if nodes == nil {
		nodes = []model.NavigationNode{}
	}
	return model.NavigationTree{Items: nodes}
}
