package client

import (
	"errors"
	"time"

	"messaging-core/internal/models"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrDeliveryTimeout  = errors.New("message was not acknowledged in time")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// Class separates errors the UI should keep showing from ones that clear
// themselves once the connection recovers.
type Class int

const (
	ClassTransient Class = iota
	ClassPersistent
)

// TransientErrorClearAfter is how long a transient error stays visible
// before the manager clears it.
const TransientErrorClearAfter = 6 * time.Second

// Notice is a user-facing error surfaced by the connection manager.
type Notice struct {
	Err   error
	Code  models.ErrorCode
	Class Class
}

// Classify maps wire-level error codes to their surfacing class.
// Authentication and authorization failures stay on screen; everything
// else is assumed to recover.
func Classify(code models.ErrorCode) Class {
	switch code {
	case models.CodeAuthenticationFailed, models.CodeAuthorizationFailed:
		return ClassPersistent
	default:
		return ClassTransient
	}
}
