// Package failure classifies turn failures and renders them as plain language.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds of turn failure. Every kind is scoped to one turn; the conversation
// always continues.
var (
	ErrUngrounded       = errors.New("ungrounded request")
	ErrExtraction       = errors.New("extraction failed")
	ErrAmbiguous        = errors.New("ambiguous reference")
	ErrMissingReference = errors.New("missing required reference")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStore            = errors.New("store error")
)

// Error is a classified turn failure. Msg is safe to show to the user.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns a failure of kind with a user-facing message.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause as kind.
func Wrap(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

var kinds = []error{
	ErrUngrounded, ErrExtraction, ErrAmbiguous, ErrMissingReference,
	ErrValidation, ErrNotFound, ErrStore,
}

// KindOf returns the failure kind of err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

var defaultMessages = map[error]string{
	ErrUngrounded:       "I couldn't load your projects and tasks right now. Please try again in a moment.",
	ErrExtraction:       "Sorry, I couldn't understand that. Could you rephrase it?",
	ErrAmbiguous:        "Could you clarify which task, project or person you mean?",
	ErrMissingReference: "I need the task ID to do that.",
	ErrValidation:       "That request is missing something I need.",
	ErrNotFound:         "I couldn't find that task.",
	ErrStore:            "The change could not be saved.",
}

// UserMessage renders err as one plain-language sentence. An explicit Msg is
// used as is; otherwise the kind's default applies, and store failures append
// the underlying message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Msg != "" {
			return fe.Msg
		}
		msg := defaultMessages[fe.Kind]
		if fe.Kind == ErrStore && fe.Err != nil {
			msg += " " + fe.Err.Error()
		}
		if msg != "" {
			return msg
		}
	}
	if k := KindOf(err); k != nil {
		return defaultMessages[k]
	}
	return "Something went wrong. Please try again."
}

// HTTPStatus maps a failure to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation, ErrMissingReference, ErrAmbiguous:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrExtraction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
