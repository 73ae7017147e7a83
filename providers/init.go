package providers

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// logger returns the package logger. It is safe to call while SetLogger runs.
func logger() *zap.Logger {
	return current.Load()
}

// SetLogger injects the process logger. Binaries call it once at startup;
// the verification pipeline never does.
func SetLogger(l *zap.Logger) {
	if l != nil {
		current.Store(l.With(zap.String("package", "providers")))
	}
}
