package utils

import "go.uber.org/zap"

// KeyValueLogger adapts zap.Logger to the Info/Error(msg, keysAndValues...)
// interface the services, the dispatcher and the HTTP layer log through.
// zap.SugaredLogger's own Info/Error take variadic args, not a message plus
// pairs, so it cannot be passed directly.
type KeyValueLogger struct {
	sugar *zap.SugaredLogger
}

// NewKeyValueLogger wraps logger; a nil logger logs nowhere
func NewKeyValueLogger(logger *zap.Logger) *KeyValueLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyValueLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *KeyValueLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *KeyValueLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
