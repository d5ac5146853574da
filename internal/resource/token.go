package resource

import "context"

// TokenSource provides the bearer token attached to marketplace calls. The
// client never obtains or refreshes tokens itself; an empty string means
// no admin is signed in.
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) string

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return TokenFunc(func(context.Context) string { return tok })
}
