package checkin

// Domain error taxonomy. Handlers map these onto HTTP status codes; the
// reconciler returns anything else wrapped as-is so the worker retries.

// NotFoundError signals an unresolvable id.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// ValidationError signals malformed, duplicate, or expired-code input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthorizationError signals a role or enrollment mismatch, or a closed
// registration window.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// ConflictError signals a concurrent duplicate-insert race surfaced by the
// storage layer's uniqueness constraint.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }
