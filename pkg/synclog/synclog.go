// Package synclog wraps zerolog with a structured-error logging shape used
// by cmd/libsyncd to report a failed sync (the reconciliation engine logs
// through its own injected zerolog.Logger and does not call it), grounded on
// the teacher's pkg/content error/logging conventions (ContentError's
// Code/Cause shape, reused directly as pkg/syncerr.SyncError).
package synclog

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/mediasync/libsync/pkg/syncerr"
)

// New builds a zerolog.Logger writing to w (os.Stderr if nil) at level,
// tagged with a component field so multi-table daemons can filter by it.
func New(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// Event logs err at a level chosen by its syncerr.Code: transport and
// FK-unresolved errors are warnings (expected to clear on retry),
// everything else is an error. Non-SyncError causes are always logged
// as errors.
func Event(log zerolog.Logger, msg string, err error) {
	se, ok := err.(*syncerr.SyncError)
	if !ok {
		log.Error().Err(err).Msg(msg)
		return
	}

	evt := log.Error()
	if se.Code == syncerr.CodeTransport || se.Code == syncerr.CodeFKUnresolved {
		evt = log.Warn()
	}
	evt.Str("code", string(se.Code)).
		Str("table", se.Table).
		Bool("retryable", se.Retryable).
		Err(se.Unwrap()).
		Msg(se.Message)
}
