package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/resource"
	"github.com/pitabwire/marketdesk/internal/session"
	"github.com/pitabwire/marketdesk/model"
)

// maxBodyBytes caps JSON request bodies of view routes.
const maxBodyBytes = 1 << 20

// ViewBuilder builds the list view of a collection. *session.Factory
// implements it.
type ViewBuilder interface {
	Build(ctx context.Context, def model.CollectionDefinition, tokens resource.TokenSource) (session.View, error)
}

// viewResponse is the body of every view route. Failure repeats the
// outcome of the operation the request carried out, if it failed.
type viewResponse struct {
	ViewID     string         `json:"view_id"`
	Collection string         `json:"collection"`
	Snapshot   any            `json:"snapshot"`
	Failure    *model.Failure `json:"failure,omitempty"`
}

func respondView(w http.ResponseWriter, status int, sess *session.Session, failure *model.Failure) {
	WriteJSON(w, status, newViewResponse(sess, failure))
}

func newViewResponse(sess *session.Session, failure *model.Failure) viewResponse {
	return viewResponse{
		ViewID:     sess.ID,
		Collection: sess.Collection,
		Snapshot:   sess.View.Snapshot(),
		Failure:    failure,
	}
}

// settle waits for the view's fetches to finish so the response shows the
// latest applied result. When ctx ends first the current state is used.
func settle(ctx context.Context, v session.View) {
	_ = v.Wait(ctx)
}

// viewFor looks up the admin's session named in the route together with
// the definition of its collection, and checks action against it. An
// empty action only requires the view capability.
func viewFor(w http.ResponseWriter, r *http.Request, views *session.Registry, defs *definition.Registry, action string) (*session.Session, bool) {
	sess, err := views.Get(r.Context(), chi.URLParam(r, "viewId"))
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	def, ok := defs.Get(sess.Collection)
	if !ok {
		WriteNotFound(w, r, fmt.Sprintf("collection %q is no longer defined", sess.Collection))
		return nil, false
	}
	caps := CapabilitiesFrom(r.Context())
	if !caps.Allows(def.Capabilities.View) {
		WriteForbidden(w, r, "Not allowed to view this collection")
		return nil, false
	}
	if action != "" && !caps.Allows(def.Capabilities.For(action)) {
		WriteForbidden(w, r, fmt.Sprintf("Not allowed to %s in this collection", action))
		return nil, false
	}
	return sess, true
}

func handleOpenView(defs *definition.Registry, views *session.Registry, builder ViewBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collectionID := chi.URLParam(r, "collection")
		def, ok := defs.Get(collectionID)
		if !ok {
			WriteNotFound(w, r, fmt.Sprintf("collection %q not found", collectionID))
			return
		}
		if !CapabilitiesFrom(r.Context()).Allows(def.Capabilities.View) {
			WriteForbidden(w, r, "Not allowed to view this collection")
			return
		}

		sess, err := views.Open(r.Context(), def.ID, func(tokens *session.TokenHolder) (session.View, error) {
			return builder.Build(r.Context(), def, tokens)
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}

		_ = sess.View.Mount(r.Context())
		respondView(w, http.StatusCreated, sess, nil)
	}
}

func handleGetView(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, "")
		if !ok {
			return
		}
		if r.URL.Query().Get("wait") == "true" {
			settle(r.Context(), sess.View)
		}
		respondView(w, http.StatusOK, sess, nil)
	}
}

func handleApplyFilters(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, "")
		if !ok {
			return
		}

		var patch session.FilterPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			WriteError(w, r, err)
			return
		}
		if patch.Empty() {
			WriteError(w, r, model.NewBadRequestError("filter patch changes nothing"))
			return
		}
		if err := sess.View.ApplyFilters(patch); err != nil {
			WriteError(w, r, model.NewBadRequestError(err.Error()))
			return
		}

		settle(r.Context(), sess.View)
		respondView(w, http.StatusOK, sess, nil)
	}
}

type pageRequest struct {
	Page int `json:"page"`
}

func handleSetPage(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, "")
		if !ok {
			return
		}

		var req pageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.Page < 1 {
			WriteValidationError(w, r, []model.FieldError{{
				Field: "page", Code: "RANGE", Message: "page must be 1 or greater",
			}})
			return
		}

		sess.View.SetPage(req.Page)
		settle(r.Context(), sess.View)
		respondView(w, http.StatusOK, sess, nil)
	}
}

func handleReloadView(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, "")
		if !ok {
			return
		}
		sess.View.Reload()
		settle(r.Context(), sess.View)
		respondView(w, http.StatusOK, sess, nil)
	}
}

func handleCloseView(views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := views.Close(r.Context(), chi.URLParam(r, "viewId")); err != nil {
			WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeJSON strictly decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}

// readBody reads the request body, which may be empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewBadRequestError("request body too large")
		}
		return nil, model.NewBadRequestError("unreadable request body")
	}
	return raw, nil
}
