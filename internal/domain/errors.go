package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrMemberNotFound    = errors.New("member not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotAMember        = errors.New("not a member")
	ErrMissingPermission = errors.New("missing permission")
)

// ConfigurationError is fatal at startup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// AuthenticationError rejects a bad or expired credential. Clients must
// re-authenticate.
type AuthenticationError struct {
	Reason  string
	Expired bool
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthenticated
}

type AuthorizationKind int

const (
	NotAMember AuthorizationKind = iota + 1
	MissingPermission
)

func (k AuthorizationKind) String() string {
	switch k {
	case NotAMember:
		return "not_a_member"
	case MissingPermission:
		return "missing_permission"
	default:
		return "forbidden"
	}
}

// AuthorizationError is terminal for the request that produced it.
type AuthorizationError struct {
	Kind     AuthorizationKind
	SpaceID  string
	UserID   string
	Required Permission
}

func NewNotAMemberError(spaceID, userID string) *AuthorizationError {
	return &AuthorizationError{Kind: NotAMember, SpaceID: spaceID, UserID: userID}
}

func NewMissingPermissionError(spaceID, userID string, required Permission) *AuthorizationError {
	return &AuthorizationError{Kind: MissingPermission, SpaceID: spaceID, UserID: userID, Required: required}
}

func (e *AuthorizationError) Error() string {
	if e.Kind == MissingPermission {
		return fmt.Sprintf("user %s is missing %s in space %s", e.UserID, e.Required, e.SpaceID)
	}
	return fmt.Sprintf("user %s is not a member of space %s", e.UserID, e.SpaceID)
}

func (e *AuthorizationError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return true
	case ErrNotAMember:
		return e.Kind == NotAMember
	case ErrMissingPermission:
		return e.Kind == MissingPermission
	}
	return false
}

// TransientDeliveryError reports one failed write to one connection. It is
// logged and never retried.
type TransientDeliveryError struct {
	ConnectionID string
	Room         string
	Err          error
}

func (e *TransientDeliveryError) Error() string {
	return fmt.Sprintf("delivery to connection %s in room %s failed: %v", e.ConnectionID, e.Room, e.Err)
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

// HandlerError wraps a failed or panicking event subscriber.
type HandlerError struct {
	Event      EventName
	Subscriber string
	Err        error
	Panic      any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("subscriber %q panicked handling %s: %v", e.Subscriber, e.Event, e.Panic)
	}
	return fmt.Sprintf("subscriber %q failed handling %s: %v", e.Subscriber, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
