package domain

import "context"

// SessionReader gives controllers read access to the current session.
// The generation changes on every save or clear.
type SessionReader interface {
	Snapshot() (Session, uint64)
}

// SessionInvalidator drops a session the server rejected. Only the auth
// controller implements it, since it is the only session writer besides the
// store itself.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, generation uint64)
}

// Messages renders user-facing text.
type Messages interface {
	ErrorMessage(err error) string
	T(key string, data map[string]any) string
}
