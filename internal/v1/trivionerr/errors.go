// Package trivionerr defines the typed error kinds shared across the room,
// registry, transport and httpapi packages so that callers at the edge
// (websocket frames, REST responses) can map a failure to a stable wire code
// without string matching.
package trivionerr

import "errors"

// Kind classifies a domain error. The zero value is never used directly.
type Kind string

const (
	KindNameInvalid       Kind = "name_invalid"
	KindNameTaken         Kind = "name_taken"
	KindAdminExists       Kind = "admin_exists"
	KindRoomNotFound      Kind = "room_not_found"
	KindBadPassword       Kind = "bad_password"
	KindPhaseViolation    Kind = "phase_violation"
	KindNotAuthorized     Kind = "not_authorized"
	KindAlreadyAnswered   Kind = "already_answered"
	KindOptionOutOfRange  Kind = "option_out_of_range"
	KindCapacityExhausted Kind = "capacity_exhausted"
	KindNotConnected      Kind = "not_connected"
	KindUnknownTag        Kind = "unknown_tag"
	KindMalformedPayload  Kind = "malformed_payload"
)

// Error is a domain error carrying a stable Kind alongside a human message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New constructs an *Error for the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err is not one of
// ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
