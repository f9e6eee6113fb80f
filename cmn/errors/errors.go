// Package errors holds the two error taxonomies that flow through the
// core (spec §7): the protocol Result returned by the object-model/CoAP
// layers, and the IPC-facing ApiError returned to applications, plus the
// mapping function between them. Every constructor wraps with
// github.com/pkg/errors the same way the teacher wraps the bulk of its
// own error paths, so a propagated error keeps a stack trace for logging
// without changing the taxonomy's external (comparable) shape.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is the LwM2M/CoAP protocol result taxonomy (spec §7).
type Result int

const (
	Success Result = iota
	ResCreated
	ResDeleted
	ResChanged
	ResContent
	BadRequest
	Unauthorized
	Forbidden
	NotFound
	MethodNotAllowed
	InternalError
	OutOfMemory
	AlreadyRegistered
	MismatchedDefinition
	AlreadyCreated
	Unsupported
	Unspecified
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case ResCreated:
		return "Created"
	case ResDeleted:
		return "Deleted"
	case ResChanged:
		return "Changed"
	case ResContent:
		return "Content"
	case BadRequest:
		return "BadRequest"
	case Unauthorized:
		return "Unauthorized"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "NotFound"
	case MethodNotAllowed:
		return "MethodNotAllowed"
	case InternalError:
		return "InternalError"
	case OutOfMemory:
		return "OutOfMemory"
	case AlreadyRegistered:
		return "AlreadyRegistered"
	case MismatchedDefinition:
		return "MismatchedDefinition"
	case AlreadyCreated:
		return "AlreadyCreated"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unspecified"
	}
}

// ResultErr wraps a Result as an error so call chains can return plain
// `error` while callers that care can still recover the taxonomy via
// AsResult.
type ResultErr struct {
	Result Result
	Cause  error
}

func (e *ResultErr) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Result, e.Cause)
	}
	return e.Result.String()
}

func (e *ResultErr) Unwrap() error { return e.Cause }

// NewResult builds a ResultErr, stack-wrapping cause (if any) with
// pkg/errors so log output retains the originating frame.
func NewResult(r Result, cause error) error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &ResultErr{Result: r, Cause: cause}
}

// AsResult extracts the Result code carried by err, defaulting to
// Unspecified for plain errors that never went through NewResult.
func AsResult(err error) Result {
	if err == nil {
		return Success
	}
	var re *ResultErr
	if errors.As(err, &re) {
		return re.Result
	}
	return Unspecified
}

// ApiError is the IPC-facing taxonomy (spec §7).
type ApiError int

const (
	ApiSuccess ApiError = iota
	PathNotFound
	PathInvalid
	RangeInvalid
	CannotCreate
	CannotDelete
	SubscriptionInvalid
	IPCError
	ApiInternal
	ApiUnspecified
)

func (a ApiError) String() string {
	switch a {
	case ApiSuccess:
		return "Success"
	case PathNotFound:
		return "PathNotFound"
	case PathInvalid:
		return "PathInvalid"
	case RangeInvalid:
		return "RangeInvalid"
	case CannotCreate:
		return "CannotCreate"
	case CannotDelete:
		return "CannotDelete"
	case SubscriptionInvalid:
		return "SubscriptionInvalid"
	case IPCError:
		return "IPCError"
	case ApiInternal:
		return "Internal"
	default:
		return "Unspecified"
	}
}

// ToApiError maps a protocol Result to an IPC ApiError, using dflt for
// results that have no unambiguous counterpart (spec §7 example:
// MethodNotAllowed -> PathInvalid, which callers pass explicitly).
func ToApiError(r Result, dflt ApiError) ApiError {
	switch r {
	case Success, ResCreated, ResDeleted, ResChanged, ResContent:
		return ApiSuccess
	case NotFound:
		return PathNotFound
	case BadRequest:
		return PathInvalid
	case OutOfMemory, InternalError:
		return ApiInternal
	case Unsupported:
		return IPCError
	default:
		return dflt
	}
}

// Wrap/Wrapf/WithStack re-export the pkg/errors helpers so downstream
// packages don't need a second import for the common case.
var (
	Wrap      = errors.Wrap
	Wrapf     = errors.Wrapf
	WithStack = errors.WithStack
	New       = errors.New
	Is        = errors.Is
	As        = errors.As
)
