package tools

import "context"

// Caller identifies the person and chat on whose behalf a tool call
// runs. Tools that touch per-user state read it from the context.
type Caller struct {
	UserID int64
	ChatID int64
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
