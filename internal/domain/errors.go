// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrValidation indicates malformed caller input. Never retried.
var ErrValidation = errors.New("validation failed")

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent mutation of the same resource.
var ErrConflict = errors.New("conflict: resource is being modified by another request")

// ErrNoPreviousRevision is returned when a rollback has fewer than two revisions to choose from.
var ErrNoPreviousRevision = errors.New("no previous revision available for rollback")

// ErrRevisionImageMissing is returned when the rollback target carries no image reference.
var ErrRevisionImageMissing = errors.New("rollback target revision has no image")

// ErrUpstream indicates a transient failure of an external collaborator.
var ErrUpstream = errors.New("upstream service error")

// ErrTimeout indicates an external call did not complete in time. Treated as transient.
var ErrTimeout = errors.New("upstream call timed out")

// ErrConfirmationMismatch is returned when a confirmation token does not match the suspended task.
var ErrConfirmationMismatch = errors.New("confirmation token does not match")

// ErrConfirmationExpired is returned when a confirmation token has outlived its TTL.
var ErrConfirmationExpired = errors.New("confirmation token expired")

// ErrNoFilesAvailable is returned when every file fetch of a fan-out failed.
var ErrNoFilesAvailable = errors.New("no files available")

// ErrInvalidTransition is returned for a task state change the state machine forbids.
var ErrInvalidTransition = errors.New("invalid task state transition")

// ErrUnauthorized is returned when a caller presents no valid credential.
var ErrUnauthorized = errors.New("unauthorized")
