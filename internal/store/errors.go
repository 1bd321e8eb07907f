// ABOUTME: Sentinel errors shared by every layer of tallkotte
// ABOUTME: Callers classify failures with errors.Is against these values

package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails a precondition
var ErrValidation = errors.New("validation failed")

// ErrTimeout is returned when a run does not complete within the wait bound
var ErrTimeout = errors.New("timed out waiting for run")

// ErrBackend is returned when the conversational backend fails
var ErrBackend = errors.New("backend error")

// ErrStore is returned when persisting to the document store fails
var ErrStore = errors.New("store write failed")
