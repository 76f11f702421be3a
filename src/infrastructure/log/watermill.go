package log

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"
)

// watermillLogger routes watermill router and pub/sub output through logr.
type watermillLogger struct {
	l logr.Logger
}

// NewWatermillLogger returns a watermill.LoggerAdapter writing to the
// global logger under the given name.
func NewWatermillLogger(name string) watermill.LoggerAdapter {
	return &watermillLogger{l: logger.WithName(name)}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error(err, msg, flatten(fields)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Info(msg, flatten(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.V(1).Info(msg, flatten(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.V(2).Info(msg, flatten(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{l: w.l.WithValues(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
