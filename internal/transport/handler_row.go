package transport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/internal/session"
	"github.com/pitabwire/marketdesk/model"
)

func handleToggleStatus(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, model.ActionToggle)
		if !ok {
			return
		}
		failure := sess.View.ToggleStatus(r.Context(), chi.URLParam(r, "rowId"))
		respondView(w, http.StatusOK, sess, failure)
	}
}

// handleDeleteRow deletes a row once the caller confirms with
// "X-Confirm: true". Without it the prompt is returned as a
// CONFIRMATION_REQUIRED error and nothing is sent to the marketplace.
func handleDeleteRow(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, model.ActionDelete)
		if !ok {
			return
		}

		confirmed, _ := strconv.ParseBool(r.Header.Get("X-Confirm"))
		prompt := listview.DefaultDeletePrompt
		confirm := listview.ConfirmFunc(func(_ context.Context, p string) bool {
			if p != "" {
				prompt = p
			}
			return confirmed
		})

		deleted, failure := sess.View.Delete(r.Context(), chi.URLParam(r, "rowId"), confirm)
		if !deleted && failure == nil {
			WriteError(w, r, model.NewConfirmationRequiredError(prompt))
			return
		}
		if deleted {
			settle(r.Context(), sess.View)
		}
		respondView(w, http.StatusOK, sess, failure)
	}
}
