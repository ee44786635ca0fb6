package logging

import (
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// Standardized attribute keys used across the daemon.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldWorkerID  = "worker_id"
	FieldEvent     = "event"
	FieldSession   = "session"
	FieldAttempt   = "attempt"
	FieldDuration  = "duration"
)

func JobID(id int) Attr { return slog.Int(FieldJobID, id) }

func WorkerID(id int) Attr { return slog.Int(FieldWorkerID, id) }
