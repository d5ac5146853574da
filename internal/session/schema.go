package session

import (
	"context"

	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/model"
)

// MessageInvalidForm is the form-level message of a locally rejected
// submission.
const MessageInvalidForm = "Please correct the highlighted fields."

// SchemaChecker checks a payload against the request schema of a
// marketplace operation. *openapi.Index implements it.
type SchemaChecker interface {
	ValidatePayload(operationID string, payload map[string]any) map[string][]string
}

// checkedResource rejects create and update payloads the marketplace
// document says the server would refuse, without a network call.
type checkedResource[T any] struct {
	listview.Resource[T]
	checker  SchemaChecker
	createOp string
	updateOp string
}

func withSchemaCheck[T any](r listview.Resource[T], checker SchemaChecker, ops model.OperationBindings) listview.Resource[T] {
	if checker == nil || (ops.Create == "" && ops.Update == "") {
		return r
	}
	return &checkedResource[T]{Resource: r, checker: checker, createOp: ops.Create, updateOp: ops.Update}
}

func (r *checkedResource[T]) Create(ctx context.Context, payload model.Payload) model.Result[T] {
	if f := r.check(r.createOp, payload); f != nil {
		return model.Fail[T](f)
	}
	return r.Resource.Create(ctx, payload)
}

func (r *checkedResource[T]) Update(ctx context.Context, id string, payload model.Payload) model.Result[T] {
	if f := r.check(r.updateOp, payload); f != nil {
		return model.Fail[T](f)
	}
	return r.Resource.Update(ctx, id, payload)
}

func (r *checkedResource[T]) check(op string, payload model.Payload) *model.Failure {
	if op == "" {
		return nil
	}
	fields := r.checker.ValidatePayload(op, payload)
	if len(fields) == 0 {
		return nil
	}
	return &model.Failure{
		Kind:        model.FailureValidation,
		Message:     MessageInvalidForm,
		FieldErrors: fields,
	}
}
