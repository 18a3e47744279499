package failure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	TransientNetwork Kind = iota
	ServiceRejected
	Unauthorized
	JobFailed
	JobTimedOut
	DownloadFailed
	ExtractFailed
	RetryExhausted
	Interrupted
	Preflight
	Config
	Unknown
)

// Error is the single error type of the orchestration engine. The Kind
// decides how callers react: retry, fail one document, or abort the batch.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "TransientNetwork"
	case ServiceRejected:
		return "ServiceRejected"
	case Unauthorized:
		return "Unauthorized"
	case JobFailed:
		return "JobFailed"
	case JobTimedOut:
		return "JobTimedOut"
	case DownloadFailed:
		return "DownloadFailed"
	case ExtractFailed:
		return "ExtractFailed"
	case RetryExhausted:
		return "RetryExhausted"
	case Interrupted:
		return "Interrupted"
	case Preflight:
		return "Preflight"
	case Config:
		return "Config"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of the outermost *Error in err's chain. Context
// cancellation without a wrapping *Error counts as Interrupted.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Interrupted
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return IsKind(err, TransientNetwork)
}

// IsBatchFatal reports whether err must stop the whole batch rather than
// a single document.
func IsBatchFatal(err error) bool {
	return IsKind(err, Unauthorized)
}

// Message returns the human-facing reason for a document failure: the
// message of the innermost *Error that carries one, so that a remote
// "corrupt" survives any number of wrapping layers.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := ""
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok && e.Message != "" {
			msg = e.Message
		}
	}
	if msg == "" {
		return err.Error()
	}
	return msg
}
