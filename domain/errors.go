package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every expected business failure carries one of these tags so
// callers can map it to a response without inspecting error strings.
// Invariant violations (e.g. two relay rows for one actor URI) are not part of
// this taxonomy: they panic instead of being handed back, so they are never
// masked.
type ErrorKind string

const (
	KindNotFound ErrorKind = "not_found"
	KindConflict ErrorKind = "conflict"
	KindLookup   ErrorKind = "lookup"
)

// NotFoundError reports an absent aggregate. Always recoverable by the caller.
type NotFoundError struct {
	Aggregate string
	Key       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Aggregate, e.Key)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// ConflictError reports an attempt to create something that already exists.
// Creation paths treat it as an idempotent outcome, not a fault.
type ConflictError struct {
	Aggregate string
	Key       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Aggregate, e.Key)
}

func (e *ConflictError) Kind() ErrorKind { return KindConflict }

// LookupError reports a failed remote metadata fetch (peer actor documents).
// No state is mutated when it is returned.
type LookupError struct {
	URI string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("actor lookup failed for %s: %v", e.URI, e.Err)
}

func (e *LookupError) Kind() ErrorKind { return KindLookup }

func (e *LookupError) Unwrap() error { return e.Err }

func ErrRelayNotFound(key string) error  { return &NotFoundError{Aggregate: AggregateRelay, Key: key} }
func ErrFollowNotFound(key string) error { return &NotFoundError{Aggregate: AggregateFollow, Key: key} }
func ErrPostNotFound(key string) error   { return &NotFoundError{Aggregate: AggregatePost, Key: key} }
func ErrActorNotFound(key string) error  { return &NotFoundError{Aggregate: AggregateActor, Key: key} }

func ErrRelayAlreadyExists(key string) error {
	return &ConflictError{Aggregate: AggregateRelay, Key: key}
}
func ErrAlreadyFollowing(key string) error {
	return &ConflictError{Aggregate: AggregateFollow, Key: key}
}
func ErrAlreadyLiked(key string) error { return &ConflictError{Aggregate: AggregateLike, Key: key} }
func ErrAlreadyMuted(key string) error { return &ConflictError{Aggregate: AggregateMute, Key: key} }
func ErrAlreadyReacted(key string) error {
	return &ConflictError{Aggregate: AggregateReaction, Key: key}
}

func ErrRelayActorLookup(uri string, err error) error {
	return &LookupError{URI: uri, Err: err}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsLookup reports whether err is (or wraps) a LookupError.
func IsLookup(err error) bool {
	var l *LookupError
	return errors.As(err, &l)
}
