package workflow

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapAdapter bridges Temporal's keyval logger onto the global zap logger so
// workflow and SDK logs share one output stream.
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapAdapter wraps a zap logger for the Temporal SDK.
func NewZapAdapter(logger *zap.Logger) log.Logger {
	// Skip the adapter frame so call sites are attributed correctly.
	return &zapAdapter{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *zapAdapter) Debug(msg string, keyvals ...interface{}) {
	a.sugar.Debugw(msg, keyvals...)
}

func (a *zapAdapter) Info(msg string, keyvals ...interface{}) {
	a.sugar.Infow(msg, keyvals...)
}

func (a *zapAdapter) Warn(msg string, keyvals ...interface{}) {
	a.sugar.Warnw(msg, keyvals...)
}

func (a *zapAdapter) Error(msg string, keyvals ...interface{}) {
	a.sugar.Errorw(msg, keyvals...)
}
