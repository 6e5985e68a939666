package logging

import (
	"context"
	"log/slog"
	"time"

	"trackreel/internal/services"
)

// Attr aliases slog.Attr so callers only import this package.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Stage(value string) Attr { return slog.String(FieldStage, value) }

func ItemID(value string) Attr { return slog.String(FieldItemID, value) }

func EventType(value string) Attr { return slog.String(FieldEventType, value) }

// Impact describes what a warning means for the run.
func Impact(value string) Attr { return slog.String(FieldImpact, value) }

// Hint names the next step for the operator.
func Hint(value string) Attr { return slog.String(FieldErrorHint, value) }

// Error logs err under "error". A nil error is rendered as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Failure expands a classified error into its error, kind, and hint fields.
func Failure(err error) []Attr {
	attrs := []Attr{Error(err)}
	details := services.Details(err)
	if details.Kind != "" {
		attrs = append(attrs, slog.String(FieldErrorKind, string(details.Kind)))
	}
	if details.Hint != "" {
		attrs = append(attrs, Hint(details.Hint))
	}
	return attrs
}

// Args converts attrs for the variadic slog.Logger methods.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger { return slog.New(slog.DiscardHandler) }

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

func withDefaults(attrs []Attr, defaults ...Attr) []Attr {
	for _, d := range defaults {
		found := false
		for _, a := range attrs {
			if a.Key == d.Key {
				found = true
				break
			}
		}
		if !found {
			attrs = append(attrs, d)
		}
	}
	return attrs
}

// WarnWithContext logs a warning that always carries event_type, error_hint,
// and impact. Missing fields get generic defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		EventType(eventType),
		Hint("check logs for details"),
		Impact("run continues"),
	)
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, EventType(eventType), Hint("check logs for details"))
	logger.Error(msg, Args(attrs...)...)
}

// WithContext adds the run, stage, and track tags carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	var attrs []Attr
	if v, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRunID, v))
	}
	if v, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, Stage(v))
	}
	if v, ok := services.ItemIDFromContext(ctx); ok {
		attrs = append(attrs, ItemID(v))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}
