package session

import (
	"errors"
	"fmt"

	"github.com/marmos91/storagecloud/pkg/directory"
)

var (
	// ErrInvalidIdentity is returned when an operation needs an account but
	// the identity is not bound to one. It matches directory.ErrUnauthorized.
	ErrInvalidIdentity = fmt.Errorf("identity not bound to an account: %w", directory.ErrUnauthorized)

	// ErrRateLimited is returned when a username has too many recent failed
	// password logins.
	ErrRateLimited = errors.New("too many failed login attempts")
)
