package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/model"
)

// envelope is the marketplace's uniform response wrapper. Every field is
// optional: bare entities and bare arrays are also accepted.
type envelope struct {
	Success    *bool           `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Error      json.RawMessage `json:"error"`
	Errors     json.RawMessage `json:"errors"`
	Pagination *pageInfo       `json:"pagination"`
}

type pageInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// parseEnvelope decodes body as an envelope. ok is false when body is not
// a JSON object.
func parseEnvelope(body []byte) (env envelope, ok bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

// hasData reports whether the envelope carried a non-null data member.
func (e envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// errorMessage returns the best human-readable message in the envelope.
func (e envelope) errorMessage() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if len(e.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

// rejectionFrom converts a non-2xx response, or a 2xx carrying
// success:false, into a server_rejection or validation failure.
func rejectionFrom(resp Response) *model.Failure {
	f := &model.Failure{Kind: model.FailureServerRejection, StatusCode: resp.StatusCode}
	if env, ok := parseEnvelope(resp.Body); ok {
		f.Message = env.errorMessage()
		f.FieldErrors = parseFieldErrors(env.Errors)
	}
	for field := range f.FieldErrors {
		if field != "" {
			f.Kind = model.FailureValidation
			break
		}
	}
	if f.Message == "" {
		f.Message = fallbackMessage(resp.StatusCode)
	}
	return f
}

func fallbackMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Your session has expired. Please sign in again."
	case http.StatusForbidden:
		return "You are not allowed to perform this action."
	case http.StatusNotFound:
		return "The requested record no longer exists."
	}
	return model.MessageServerFailure
}

// parseFieldErrors accepts the shapes the marketplace uses for per-field
// messages: {field: "msg"}, {field: ["msg"]}, [{field, message}],
// [{path|param, msg}] and ["msg"]. Messages without a field land under "".
func parseFieldErrors(raw json.RawMessage) map[string][]string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	out := make(map[string][]string)

	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return nil
		}
		for field, v := range obj {
			out[field] = append(out[field], messagesOf(v)...)
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return nil
		}
		for _, item := range items {
			field, msg := fieldEntry(item)
			if msg != "" {
				out[field] = append(out[field], msg)
			}
		}
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			out[""] = []string{s}
		}
	}

	for k, v := range out {
		if len(v) == 0 {
			delete(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func messagesOf(v json.RawMessage) []string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []string
	if json.Unmarshal(v, &list) == nil {
		msgs := list[:0]
		for _, m := range list {
			if m != "" {
				msgs = append(msgs, m)
			}
		}
		return msgs
	}
	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(v, &obj) == nil {
		if m := firstNonEmpty(obj.Message, obj.Msg); m != "" {
			return []string{m}
		}
	}
	return nil
}

func fieldEntry(item json.RawMessage) (field, msg string) {
	var s string
	if json.Unmarshal(item, &s) == nil {
		return "", s
	}
	var e struct {
		Field   string `json:"field"`
		Path    string `json:"path"`
		Param   string `json:"param"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(item, &e) != nil {
		return "", ""
	}
	return firstNonEmpty(e.Field, e.Path, e.Param), firstNonEmpty(e.Message, e.Msg)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// decodeEntity decodes a success body, unwrapping the envelope's data
// member when present. An empty body or an envelope without data yields
// the zero value.
func decodeEntity[T any](body []byte) (T, error) {
	var out T
	payload := body
	if env, ok := parseEnvelope(body); ok {
		if !env.hasData() {
			if env.Success != nil {
				return out, nil
			}
		} else {
			payload = env.Data
		}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("resource: decode entity: %w", err)
	}
	return out, nil
}

// decodePage decodes {data: [...], pagination: {...}} or a bare array.
// TotalPages is recomputed from the total and the requested page size and
// items beyond the page size are dropped.
func decodePage[T any](body []byte, q filter.ListQuery) (model.ListResult[T], error) {
	var (
		items []T
		info  *pageInfo
	)
	if env, ok := parseEnvelope(body); ok {
		if env.hasData() {
			if err := json.Unmarshal(env.Data, &items); err != nil {
				return model.ListResult[T]{}, fmt.Errorf("resource: decode page items: %w", err)
			}
		}
		info = env.Pagination
	} else if err := json.Unmarshal(body, &items); err != nil {
		return model.ListResult[T]{}, fmt.Errorf("resource: decode page: %w", err)
	}

	size := q.PageSize
	if size <= 0 {
		size = filter.DefaultPageSize
	}
	if len(items) > size {
		items = items[:size]
	}
	if items == nil {
		items = []T{}
	}

	total := len(items)
	page := q.Page
	if info != nil {
		total = info.Total
		if info.Page > 0 {
			page = info.Page
		}
	}
	if total < len(items) {
		total = len(items)
	}

	return model.ListResult[T]{
		Items:      items,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: model.TotalPagesFor(total, size),
	}, nil
}
