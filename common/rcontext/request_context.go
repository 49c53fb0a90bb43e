package rcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

func Initial() RequestContext {
	return RequestContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
	}.populate()
}

type RequestContext struct {
	context.Context

	// Also stored on the context object itself
	Log *logrus.Entry // se.logger
}

func (c RequestContext) populate() RequestContext {
	c.Context = context.WithValue(c.Context, "se.logger", c.Log)
	return c
}

func (c RequestContext) ReplaceLogger(log *logrus.Entry) RequestContext {
	ctx := context.WithValue(c.Context, "se.logger", log)
	return RequestContext{
		Context: ctx,
		Log:     log,
	}
}

func (c RequestContext) LogWithFields(fields logrus.Fields) RequestContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}

// WithContext swaps the underlying context (for example a cancellable child) while keeping the logger.
func (c RequestContext) WithContext(ctx context.Context) RequestContext {
	return RequestContext{
		Context: ctx,
		Log:     c.Log,
	}.populate()
}

// WithCancel is context.WithCancel for a RequestContext.
func (c RequestContext) WithCancel() (RequestContext, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	return c.WithContext(ctx), cancel
}
