package core

import "errors"

// Drop codes label frames and requests the session discards. They appear in
// logs and as metric labels.
const (
	CodeMalformedPayload = "malformed_payload"
	CodeUnknownType      = "unknown_type"
	CodeTransportClosed  = "transport_closed"
	CodeNotRegistered    = "not_registered"
	CodeNotInChannel     = "not_in_channel"
	CodeEncodeFailed     = "encode_failed"
	CodeNotChatLine      = "not_chat_line"
)

var (
	ErrNotRegistered     = errors.New("not registered")
	ErrNotInChannel      = errors.New("not in channel")
	ErrConnectionFailure = errors.New("connection failure")
	ErrTransportClosed   = errors.New("transport closed")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrEmptyUserName     = errors.New("user name is required")
)

// DropError pairs a drop code with the error that caused it.
type DropError struct {
	Code string
	Err  error
}

func (e *DropError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// Dropped wraps err with a drop code.
func Dropped(code string, err error) *DropError {
	return &DropError{Code: code, Err: err}
}
