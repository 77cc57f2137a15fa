package api

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the client packages. Background sync swallows
// and logs these; user-initiated operations propagate them to the caller.
var (
	ErrAuthMissing       = errors.New("admin credential is missing")
	ErrCredentialRequest = errors.New("upload credential request failed")
	ErrTransfer          = errors.New("file transfer failed")
	ErrConfirmation      = errors.New("upload confirmation failed")
	ErrFetchFailed       = errors.New("project fetch failed")
	ErrTokenMismatch     = errors.New("stored credential does not match token")
)

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d path=%s", e.Code, e.Path)
}
