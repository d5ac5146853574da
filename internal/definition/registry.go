package definition

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/marketdesk/internal/openapi"
	"github.com/pitabwire/marketdesk/model"
)

// snapshot is an immutable set of collections indexed by ID.
type snapshot struct {
	collections map[string]model.CollectionDefinition
	ordered     []model.CollectionDefinition
	checksum    string
}

// Registry is a read-optimized, thread-safe store of all loaded
// collections. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definition files.
func NewRegistry(files []model.DefinitionFile) *Registry {
	r := &Registry{}
	r.Replace(files)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from files. Later files win on duplicate collection ids; run the
// Validator first to reject them.
func (r *Registry) Replace(files []model.DefinitionFile) {
	s := &snapshot{collections: make(map[string]model.CollectionDefinition)}

	var checksumParts []string
	for _, file := range files {
		checksumParts = append(checksumParts, file.Checksum)
		for _, c := range file.Collections {
			s.collections[c.ID] = c
		}
	}

	s.ordered = make([]model.CollectionDefinition, 0, len(s.collections))
	for _, c := range s.collections {
		s.ordered = append(s.ordered, c)
	}
	slices.SortFunc(s.ordered, func(a, b model.CollectionDefinition) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(a.ID, b.ID)
	})

	slices.Sort(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the collection with the given ID.
func (r *Registry) Get(id string) (model.CollectionDefinition, bool) {
	c, ok := r.current().collections[id]
	return c, ok
}

// All returns every collection sorted by Order, then ID.
func (r *Registry) All() []model.CollectionDefinition {
	return slices.Clone(r.current().ordered)
}

// Len returns the number of loaded collections.
func (r *Registry) Len() int {
	return len(r.current().collections)
}

// Checksum returns the combined checksum of all loaded definition files.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// ReloadError is returned by Reload when the new definitions fail
// validation. The registry keeps serving the previous snapshot.
type ReloadError struct {
	Errors []VError
}

func (e *ReloadError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("definition: %d validation errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Reload loads directories, validates them against index (which may be
// nil) and swaps the snapshot only if everything is valid.
func (r *Registry) Reload(directories []string, index *openapi.Index) error {
	files, err := NewLoader().LoadAll(directories)
	if err != nil {
		return fmt.Errorf("definition: %w", err)
	}
	if verrs := NewValidator().Validate(files, index); len(verrs) > 0 {
		return &ReloadError{Errors: verrs}
	}
	r.Replace(files)
	return nil
}
