package hub

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	ErrChannelNotFound      = xerrors.New("channel does not exist")
	ErrInvalidSignature     = xerrors.New("invalid signature")
	ErrUnsupportedPrincipal = xerrors.New("exactly one principal must be the hub owner")
	ErrNoPending            = xerrors.New("no pending transfer for channel")
	ErrSecretMismatch       = xerrors.New("secret does not match the hashed secret")
	ErrPendingTransfer      = xerrors.New("channel already has a pending transfer")
)

// RequestError is malformed client input.
type RequestError struct {
	Field string
	Msg   string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func badRequest(field string, format string, args ...interface{}) error {
	return &RequestError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
