package httpapi

import (
	"context"
	"time"
)

// serverBaseCtx is canceled on process shutdown. Defaults to Background.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context that request work is joined
// with, so shutdown cancels in-flight inference.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// inferContext derives the context for a synchronous inference handler.
func inferContext(reqCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(reqCtx, serverBaseCtx)
	if inferTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
