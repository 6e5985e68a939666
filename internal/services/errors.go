package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Kind classifies failures reported by external collaborators.
type Kind string

const (
	KindUnknown       Kind = "unknown"
	KindAuth          Kind = "auth"
	KindRateLimited   Kind = "rate_limited"
	KindContentPolicy Kind = "content_policy"
	KindNetwork       Kind = "network"
	KindEncoding      Kind = "encoding"
	KindFormat        Kind = "format"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindStore         Kind = "store"
)

// ServiceError carries a classified failure with the operator hint shown to users.
type ServiceError struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Code      string
	marker    error
	cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	prefix := string(e.Kind)
	if e.marker != nil {
		prefix = e.marker.Error()
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, detail)
}

// Unwrap exposes both the marker and the underlying cause to errors.Is/As.
func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.marker != nil {
		out = append(out, e.marker)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Kind:      kindForMarker(marker),
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		marker:    marker,
		cause:     err,
	}
}

// Classify builds a collaborator error of the given kind. The hint defaults to
// the standard next action for the kind.
func Classify(kind Kind, stage, operation, message string, err error) error {
	if kind == "" {
		kind = KindUnknown
	}
	return &ServiceError{
		Kind:      kind,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Hint:      DefaultHint(kind),
		marker:    markerForKind(kind),
		cause:     err,
	}
}

// WithHint overrides the suggested next action on a classified error.
func WithHint(err error, hint string) error {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}
	clone := *svcErr
	clone.Hint = strings.TrimSpace(hint)
	return &clone
}

// WithCode attaches a collaborator-specific code (HTTP status, API error code).
func WithCode(err error, code string) error {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}
	clone := *svcErr
	clone.Code = strings.TrimSpace(code)
	return &clone
}

// ErrorDetails is the user-facing projection of a failure.
type ErrorDetails struct {
	Kind      Kind   `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Code      string `json:"code,omitempty"`
	Cause     error  `json:"-"`
}

// Details extracts classification fields from err. Unclassified errors are
// reported as KindUnknown with their text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details := ErrorDetails{
			Kind:      svcErr.Kind,
			Stage:     svcErr.Stage,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
			Hint:      svcErr.Hint,
			Code:      svcErr.Code,
			Cause:     svcErr.cause,
		}
		if details.Message == "" {
			details.Message = buildDetail(svcErr.Stage, svcErr.Operation, "")
		}
		if details.Hint == "" {
			details.Hint = DefaultHint(details.Kind)
		}
		return details
	}
	kind := KindUnknown
	for marker, k := range markerKinds {
		if errors.Is(err, marker) {
			kind = k
			break
		}
	}
	return ErrorDetails{
		Kind:    kind,
		Message: strings.TrimSpace(err.Error()),
		Hint:    DefaultHint(kind),
		Cause:   err,
	}
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	return Details(err).Kind
}

// Permanent reports whether retrying err is unlikely to help without operator action.
func Permanent(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindContentPolicy, KindConfiguration, KindValidation:
		return true
	default:
		return false
	}
}

// DefaultHint returns the suggested next action for a failure kind.
func DefaultHint(kind Kind) string {
	switch kind {
	case KindAuth:
		return "check image.api_key in config or OPENAI_API_KEY"
	case KindRateLimited:
		return "wait a few minutes, then rerun with --retry-failed"
	case KindContentPolicy:
		return "adjust the style template or track prompt, then retry"
	case KindNetwork, KindTimeout:
		return "check network connectivity, then rerun with --retry-failed"
	case KindEncoding:
		return "run 'trackreel doctor' to verify ffmpeg, then retry"
	case KindFormat:
		return "verify the audio file is readable by ffprobe"
	case KindValidation:
		return "check the inputs for this track"
	case KindConfiguration:
		return "run 'trackreel config validate'"
	case KindNotFound:
		return "rerun with --only-scan to resync files"
	case KindStore:
		return "ensure no other trackreel process is running"
	default:
		return "check logs for details"
	}
}

var markerKinds = map[error]Kind{
	ErrValidation:    KindValidation,
	ErrConfiguration: KindConfiguration,
	ErrNotFound:      KindNotFound,
	ErrTimeout:       KindTimeout,
	ErrExternalTool:  KindUnknown,
	ErrTransient:     KindUnknown,
}

func kindForMarker(marker error) Kind {
	if kind, ok := markerKinds[marker]; ok {
		return kind
	}
	return KindUnknown
}

func markerForKind(kind Kind) error {
	switch kind {
	case KindValidation, KindContentPolicy:
		return ErrValidation
	case KindConfiguration, KindAuth:
		return ErrConfiguration
	case KindNotFound:
		return ErrNotFound
	case KindTimeout:
		return ErrTimeout
	case KindRateLimited, KindNetwork, KindStore:
		return ErrTransient
	default:
		return ErrExternalTool
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
