// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist or belongs
// to a different tenant.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed or missing required input,
// detected before any I/O.
var ErrValidation = errors.New("validation failed")

// ErrAccessDenied indicates the actor's role does not permit the
// requested operation.
var ErrAccessDenied = errors.New("access denied")

// ErrTaskForbidden indicates the actor may not act on this particular
// task (for example a performer touching another performer's task).
var ErrTaskForbidden = errors.New("task is forbidden for this actor")

// ErrIncorrectState indicates a task row whose state does not match
// any known state.
var ErrIncorrectState = errors.New("incorrect task state")

// ErrIncorrectTransition indicates the requested transition does not
// exist for the actor's role and the task's currently persisted state.
var ErrIncorrectTransition = errors.New("incorrect task state transition")

// ErrReferenceTypeNotFound indicates an unknown reference type name at
// a dispatch point.
var ErrReferenceTypeNotFound = errors.New("reference type not found")

// ErrPersistence wraps storage-layer failures translated at the
// adapter boundary. Raw driver errors never cross it.
var ErrPersistence = errors.New("persistence failed")
