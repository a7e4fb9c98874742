package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the closed set of failure classes the collector dispatches on
type Kind string

const (
	KindValidation Kind = "validation"
	KindAccess     Kind = "access"
	KindTransient  Kind = "transient"
	KindThrottled  Kind = "throttled"
	KindStorage    Kind = "storage"
	KindCancelled  Kind = "cancelled"
	KindConflict   Kind = "conflict"
	KindUnknown    Kind = "unknown"
)

// Error carries a Kind alongside the operation that failed
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kinded is implemented by errors from other packages that know their class,
// such as the source client's HTTP errors.
type Kinded interface {
	ErrorKind() Kind
}

// New builds an *Error of the given kind
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op string, err error) *Error {
	return New(KindValidation, op, "", err)
}

func Access(op, message string, err error) *Error {
	return New(KindAccess, op, message, err)
}

func Transient(op string, err error) *Error {
	return New(KindTransient, op, "", err)
}

func Throttled(op, message string, err error) *Error {
	return New(KindThrottled, op, message, err)
}

func Storage(op string, err error) *Error {
	return New(KindStorage, op, "", err)
}

func Conflict(op, message string) *Error {
	return New(KindConflict, op, message, nil)
}

var throttlePhrases = []string{
	"please wait",
	"try again later",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many requests",
}

// status 429 spelled out in a message, e.g. "HTTP 429" or "status code: 429"
var throttleStatus = regexp.MustCompile(`(?i)\b(?:status|http|code)\D{0,3}429\b`)

// IsThrottleMessage reports whether msg reads like an upstream throttling notice
func IsThrottleMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range throttlePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return throttleStatus.MatchString(msg)
}

// Classify maps any error to exactly one Kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if stderrors.As(err, &e) && e.Kind != KindUnknown {
		return e.Kind
	}

	var kinded Kinded
	if stderrors.As(err, &kinded) {
		if k := kinded.ErrorKind(); k != KindUnknown {
			return k
		}
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}

	if IsThrottleMessage(err.Error()) {
		return KindThrottled
	}

	return KindUnknown
}

// Is reports whether err classifies as kind
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// IsRetryable reports whether the source client may retry an error of this kind on its own
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransient:
		return true
	default:
		return false
	}
}

// Errorf is a shorthand for an *Error whose message is formatted
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, args...), nil)
}
