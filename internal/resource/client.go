package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/model"
)

// Client is a typed client for one marketplace collection endpoint such as
// /categories or /salons. Every method returns a model.Result and never a
// Go error: transport problems, server rejections and missing tokens are
// all normalized into a model.Failure.
type Client[T any] struct {
	exec   *Executor
	path   string
	tokens TokenSource
	params filter.ParamNames
	logger *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	params filter.ParamNames
	logger *zap.Logger
}

// WithParamNames overrides the query parameter names, e.g. to invert the
// status filter for collections exposing isSuspended.
func WithParamNames(names filter.ParamNames) ClientOption {
	return func(o *clientOptions) { o.params = names }
}

// WithLogger sets the logger used for rejected calls.
func WithLogger(l *zap.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient creates a client for the collection at path.
func NewClient[T any](exec *Executor, path string, tokens TokenSource, opts ...ClientOption) *Client[T] {
	o := clientOptions{params: filter.DefaultParamNames(), logger: exec.logger}
	for _, opt := range opts {
		opt(&o)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client[T]{
		exec:   exec,
		path:   "/" + strings.Trim(path, "/"),
		tokens: tokens,
		params: o.params,
		logger: o.logger,
	}
}

// Path returns the collection path.
func (c *Client[T]) Path() string { return c.path }

// FetchPage lists one page of the collection. A token is attached when one
// is available but is not required.
func (c *Client[T]) FetchPage(ctx context.Context, q filter.ListQuery) model.Result[model.ListResult[T]] {
	resp, f := c.call(ctx, Request{
		Method: http.MethodGet,
		Path:   c.path,
		Query:  q.Values(c.params),
		Token:  c.tokens.Token(ctx),
	})
	if f != nil {
		return model.Fail[model.ListResult[T]](f)
	}
	page, err := decodePage[T](resp.Body, q)
	if err != nil {
		return model.Fail[model.ListResult[T]](c.malformed(err))
	}
	return model.Succeed(page)
}

// Create posts a new entity.
func (c *Client[T]) Create(ctx context.Context, payload model.Payload) model.Result[T] {
	return c.mutateEntity(ctx, http.MethodPost, c.path, payload)
}

// Update replaces the entity identified by id.
func (c *Client[T]) Update(ctx context.Context, id string, payload model.Payload) model.Result[T] {
	return c.mutateEntity(ctx, http.MethodPut, c.itemPath(id), payload)
}

// ToggleStatus flips the active/suspended flag of the entity identified by id.
func (c *Client[T]) ToggleStatus(ctx context.Context, id string) model.Result[T] {
	return c.mutateEntity(ctx, http.MethodPatch, c.itemPath(id)+"/status", nil)
}

// Remove deletes the entity identified by id.
func (c *Client[T]) Remove(ctx context.Context, id string) model.Result[struct{}] {
	token, f := c.requireToken(ctx)
	if f != nil {
		return model.Fail[struct{}](f)
	}
	if _, f := c.call(ctx, Request{Method: http.MethodDelete, Path: c.itemPath(id), Token: token, Resource: c.path + "/{id}"}); f != nil {
		return model.Fail[struct{}](f)
	}
	return model.Succeed(struct{}{})
}

func (c *Client[T]) mutateEntity(ctx context.Context, method, path string, payload model.Payload) model.Result[T] {
	token, f := c.requireToken(ctx)
	if f != nil {
		return model.Fail[T](f)
	}

	req := Request{Method: method, Path: path, Token: token, Resource: c.resourceLabel(path)}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return model.Fail[T](&model.Failure{
				Kind:    model.FailurePrecondition,
				Message: "The form contains values that cannot be sent.",
			})
		}
		req.Body = body
	}

	resp, f := c.call(ctx, req)
	if f != nil {
		return model.Fail[T](f)
	}
	entity, err := decodeEntity[T](resp.Body)
	if err != nil {
		return model.Fail[T](c.malformed(err))
	}
	return model.Succeed(entity)
}

// call executes req and maps transport errors and rejections to failures.
func (c *Client[T]) call(ctx context.Context, req Request) (Response, *model.Failure) {
	if req.Resource == "" {
		req.Resource = c.path
	}
	resp, err := c.exec.Do(ctx, req)
	if err != nil {
		c.logger.Warn("marketplace call failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Bool("circuit_open", errors.Is(err, ErrCircuitOpen)),
			zap.Error(err),
		)
		return Response{}, model.NewTransportFailure()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f := rejectionFrom(resp)
		c.logger.Info("marketplace rejected call",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(f.Kind)),
		)
		return Response{}, f
	}
	if env, ok := parseEnvelope(resp.Body); ok && env.Success != nil && !*env.Success {
		f := rejectionFrom(resp)
		return Response{}, f
	}
	return resp, nil
}

func (c *Client[T]) requireToken(ctx context.Context) (string, *model.Failure) {
	token := strings.TrimSpace(c.tokens.Token(ctx))
	if token == "" {
		return "", model.NewPreconditionFailure(model.MessageMissingToken)
	}
	return token, nil
}

func (c *Client[T]) malformed(err error) *model.Failure {
	c.logger.Warn("marketplace returned an unreadable body", zap.String("path", c.path), zap.Error(err))
	return &model.Failure{Kind: model.FailureServerRejection, Message: model.MessageServerFailure}
}

func (c *Client[T]) itemPath(id string) string {
	return c.path + "/" + url.PathEscape(id)
}

func (c *Client[T]) resourceLabel(path string) string {
	switch {
	case path == c.path:
		return c.path
	case strings.HasSuffix(path, "/status"):
		return c.path + "/{id}/status"
	default:
		return c.path + "/{id}"
	}
}
