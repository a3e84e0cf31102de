package services

import (
	"errors"
	"fmt"

	"cardapio/internal/repositories"
)

var (
	// ErrEmptyCart is returned when an order is submitted from an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrSubmissionInProgress is returned while another submission of the
	// same cart has not finished.
	ErrSubmissionInProgress = errors.New("order submission already in progress")
	// ErrEmailTaken is returned by sign-up for an existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by sign-in for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned for a token past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidToken is returned for a malformed or badly signed token.
	ErrInvalidToken = errors.New("invalid token")
)

// AuthError is returned when credentials or a session are rejected.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "auth: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

// WriteKind identifies the remote write that failed.
type WriteKind string

const (
	KindOrderCreation     WriteKind = "OrderCreation"
	KindOrderItemsPersist WriteKind = "OrderItemsPersist"
	KindMenuSave          WriteKind = "MenuSave"
)

// RemoteWriteError is returned when the backend rejects a write or cannot
// be reached. For KindOrderItemsPersist, OrderID names the order that was
// created without items and Orphaned tells whether it is still stored.
type RemoteWriteError struct {
	Kind     WriteKind
	OrderID  int64
	Orphaned bool
	Err      error
}

func (e *RemoteWriteError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("%s failed for order %d: %v", e.Kind, e.OrderID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// Is matches any RemoteWriteError of the same Kind, so callers can test
// errors.Is(err, ErrOrderCreation).
func (e *RemoteWriteError) Is(target error) bool {
	t, ok := target.(*RemoteWriteError)
	return ok && t.Kind == e.Kind
}

var (
	ErrOrderCreation     = &RemoteWriteError{Kind: KindOrderCreation}
	ErrOrderItemsPersist = &RemoteWriteError{Kind: KindOrderItemsPersist}
	ErrMenuSave          = &RemoteWriteError{Kind: KindMenuSave}
)

// UploadError is returned when a menu picture could not be stored.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DecodeError reports a malformed backend response.
type DecodeError = repositories.DecodeError
