package listview

import (
	"context"
	"encoding/json"
	"maps"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/model"
)

// OpenCreateForm opens an empty create form, discarding any open form.
func (c *Controller[T]) OpenCreateForm() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.openFormLocked(FormCreate, "", model.Payload{})
	c.commitAndNotify()
}

// OpenEditForm opens an edit form pre-filled with the listed row.
func (c *Controller[T]) OpenEditForm(id string) *model.Failure {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageClosed)
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageRowMissing)
	}
	c.openFormLocked(FormEdit, id, payloadOf(c.items[idx]))
	c.commitAndNotify()
	return nil
}

// CloseForm discards the open form. A submission still in flight finishes
// and still refreshes the list, but its outcome no longer touches the form.
func (c *Controller[T]) CloseForm() {
	c.mu.Lock()
	c.formSeq++
	c.form = FormState{id: c.formSeq}
	c.submit = SubmitReady
	c.commitAndNotify()
}

func (c *Controller[T]) openFormLocked(mode FormMode, id string, values model.Payload) {
	c.formSeq++
	c.form = FormState{
		Open:     true,
		Mode:     mode,
		EntityID: id,
		Values:   values,
		id:       c.formSeq,
	}
	c.submit = SubmitReady
}

// SubmitForm sends values as a create or an update, depending on the open
// form. On success the form closes and the current query is refetched. On
// failure the form stays open with the values kept and the server's
// message and field errors attached.
func (c *Controller[T]) SubmitForm(ctx context.Context, values model.Payload) *model.Failure {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageClosed)
	case !c.form.Open:
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageNoForm)
	case c.submitting:
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageFormPending)
	}
	c.submitting = true
	c.submit = SubmitSubmitting
	c.form.Values = values.Clone()
	c.form.FieldErrors = nil
	c.form.Message = ""
	mode, entityID, formID := c.form.Mode, c.form.EntityID, c.form.id
	c.commitAndNotify()

	var res model.Result[T]
	if mode == FormEdit {
		res = c.client.Update(ctx, entityID, values.Clone())
	} else {
		res = c.client.Create(ctx, values.Clone())
	}

	c.mu.Lock()
	c.submitting = false
	outcome := "success"
	if !res.OK() {
		outcome = string(res.Failure.Kind)
	}
	c.metrics.RecordFormSubmit(c.collection, string(mode), outcome)

	// The list is refetched after any successful write, even when the form
	// it came from is gone.
	if res.OK() && !c.closed {
		c.fetchLocked(c.query)
	}

	if c.form.id != formID {
		c.logger.Debug("form replaced during submission", zap.String("mode", string(mode)))
		c.commitAndNotify()
		return res.Failure
	}

	if !res.OK() {
		c.submit = SubmitError
		c.form.FieldErrors = maps.Clone(res.Failure.FieldErrors)
		c.form.Message = res.Failure.Message
		c.commitAndNotify()
		return res.Failure
	}

	c.formSeq++
	c.form = FormState{id: c.formSeq}
	c.submit = SubmitReady
	c.commitAndNotify()
	return nil
}

// payloadOf renders an entity as form values using its JSON names.
func payloadOf(v any) model.Payload {
	out := model.Payload{}
	raw, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
