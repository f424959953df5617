package store

import "errors"

var (
	// ErrNotFound is returned by backends when a document doesn't exist.
	ErrNotFound = errors.New("bomberhub: document not found")

	// ErrAlreadyExists is returned by backends when creating an existing document.
	ErrAlreadyExists = errors.New("bomberhub: document already exists")

	// ErrFailedPrecondition is returned by backends when a write precondition fails.
	ErrFailedPrecondition = errors.New("bomberhub: precondition failed")

	// ErrInvalidAddress is returned when an address is missing a collection or a required id.
	ErrInvalidAddress = errors.New("bomberhub: invalid document address")

	// ErrBatchClosed is returned for operations issued after Commit.
	ErrBatchClosed = errors.New("bomberhub: batch is closed")

	// ErrCursorNotFound is returned when a startAfter/endBefore document doesn't exist.
	ErrCursorNotFound = errors.New("bomberhub: cursor document not found")

	// ErrUnsupportedConstraint is returned when a constraint is not allowed in the query mode.
	ErrUnsupportedConstraint = errors.New("bomberhub: unsupported query constraint")

	// ErrInvalidOperator is returned for where operators the store does not know.
	ErrInvalidOperator = errors.New("bomberhub: invalid where operator")

	// ErrSchema is returned when a type cannot be described by a schema.
	ErrSchema = errors.New("bomberhub: invalid schema")

	// ErrDecode is returned when a raw document cannot be reconciled with its schema.
	ErrDecode = errors.New("bomberhub: cannot decode document")
)
