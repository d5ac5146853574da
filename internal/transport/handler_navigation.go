package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/marketdesk/internal/metadata"
)

func handleNavigation(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, menu.GetMenu(CapabilitiesFrom(r.Context())))
	}
}

func handleCollection(collections *metadata.CollectionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		desc, err := collections.GetCollection(CapabilitiesFrom(r.Context()), chi.URLParam(r, "collection"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}
