package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/idempotency"
	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/session"
	"github.com/pitabwire/marketdesk/model"
)

type openFormRequest struct {
	EntityID string `json:"entity_id"`
}

// handleOpenForm opens the create form, or the edit form of entity_id.
func handleOpenForm(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := readBody(w, r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		var req openFormRequest
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
				return
			}
		}

		action := model.ActionCreate
		if req.EntityID != "" {
			action = model.ActionUpdate
		}
		sess, ok := viewFor(w, r, views, defs, action)
		if !ok {
			return
		}

		failure := sess.View.OpenForm(req.EntityID)
		respondView(w, http.StatusOK, sess, failure)
	}
}

func handleCloseForm(defs *definition.Registry, views *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, views, defs, "")
		if !ok {
			return
		}
		sess.View.CloseForm()
		respondView(w, http.StatusOK, sess, nil)
	}
}

// formSubmission carries what handleSubmitForm needs besides the view
// lookup.
type formSubmission struct {
	defs    *definition.Registry
	views   *session.Registry
	store   idempotency.Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// handleSubmitForm submits the open form with the request body as its
// values. A request carrying X-Idempotency-Key that repeats an earlier
// successful submission is answered with the stored response, even though
// the form has closed since.
func handleSubmitForm(fs formSubmission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := viewFor(w, r, fs.views, fs.defs, "")
		if !ok {
			return
		}

		raw, err := readBody(w, r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var storeKey, inputHash string
		if key := r.Header.Get("X-Idempotency-Key"); key != "" && fs.store != nil {
			storeKey = idempotency.Key(sess.SubjectID, sess.Collection, key)
			inputHash = idempotency.HashInput(raw)
			rec, found, err := fs.store.Check(r.Context(), storeKey, inputHash)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			if found {
				fs.metrics.RecordIdempotencyReplay()
				w.Header().Set("X-Idempotent-Replay", "true")
				writeRaw(w, rec.Status, rec.Body)
				return
			}
		}

		form := sess.View.Form()
		if !form.Open {
			WriteError(w, r, model.NewFormNotOpenError())
			return
		}
		def, _ := fs.defs.Get(sess.Collection)
		action := model.ActionCreate
		if form.Mode == listview.FormEdit {
			action = model.ActionUpdate
		}
		if !CapabilitiesFrom(r.Context()).Allows(def.Capabilities.For(action)) {
			WriteForbidden(w, r, "Not allowed to "+action+" in this collection")
			return
		}

		failure, err := sess.View.SubmitForm(r.Context(), raw)
		if err != nil {
			if errors.Is(err, session.ErrInvalidValues) {
				WriteError(w, r, model.NewBadRequestError("form values must be a JSON object"))
				return
			}
			WriteError(w, r, err)
			return
		}
		settle(r.Context(), sess.View)

		body, err := json.Marshal(newViewResponse(sess, failure))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if failure == nil && storeKey != "" {
			rec := idempotency.Record{InputHash: inputHash, Status: http.StatusOK, Body: body}
			if err := fs.store.Save(r.Context(), storeKey, rec, fs.ttl); err != nil {
				observability.RequestLogger(r.Context(), fs.logger).Warn("idempotency record not saved",
					zap.String("view_id", sess.ID),
					zap.Error(err),
				)
			}
		}
		writeRaw(w, http.StatusOK, body)
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write(body)
}
