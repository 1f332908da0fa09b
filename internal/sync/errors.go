package sync

import "errors"

// Sync core errors
var (
	// ErrInvalidRequest indicates a malformed pull/push body or mutation
	// arguments that failed schema validation. Rejected before any
	// transaction; no mutation sequence number is consumed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownMutation indicates a mutation name outside the closed set
	// of supported mutations. Validation error, never a silent no-op.
	ErrUnknownMutation = errors.New("unknown mutation")

	// ErrUnauthorized indicates that a client group or entity belongs to a
	// different user. Aborts the enclosing transaction with no state change.
	ErrUnauthorized = errors.New("authorization error")

	// ErrMutationFromFuture indicates a mutation ID ahead of the expected
	// next ID: the client is desynchronized. Fatal for the mutation stream;
	// the caller must not retry automatically.
	ErrMutationFromFuture = errors.New("mutation id is from the future")

	// ErrOwnershipMismatch indicates that client-supplied arguments claim a
	// different owner than the authenticated user. Handler execution error.
	ErrOwnershipMismatch = errors.New("user id mismatch")

	// ErrFleetingFolderExists indicates the one-fleeting-folder-per-workspace
	// domain rule was violated. Handler execution error.
	ErrFleetingFolderExists = errors.New("workspace already has a fleeting folder")
)
