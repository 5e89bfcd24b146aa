package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorClass uint8

const (
	classUnknown errorClass = iota
	classNotFound
	classConflict
	classUnavailable
)

// Error implements repositories.RepositoryError for Firestore backed repositories.
type Error struct {
	op    string
	err   error
	code  codes.Code
	class errorClass
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Code returns the gRPC status code reported by Firestore.
func (e *Error) Code() codes.Code {
	if e == nil {
		return codes.OK
	}
	return e.code
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool {
	return e != nil && e.class == classNotFound
}

// IsConflict reports whether the error represents a conflicting write, such as
// creating a document that already exists or a contended transaction.
func (e *Error) IsConflict() bool {
	return e != nil && e.class == classConflict
}

// IsAlreadyExists reports whether a create hit an existing document.
func (e *Error) IsAlreadyExists() bool {
	return e != nil && e.code == codes.AlreadyExists
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.class == classUnavailable
}

func classify(code codes.Code) errorClass {
	switch code {
	case codes.NotFound:
		return classNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return classConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return classUnavailable
	default:
		return classUnknown
	}
}

// WrapError annotates Firestore errors with repository semantics. Context
// cancellations are passed through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	if existing, ok := err.(*Error); ok {
		if op != "" && existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, err: err, code: code, class: classify(code)}
}

// IsNotFound reports whether err is a Firestore not-found error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.NotFound {
		return true
	}
	var fsErr *Error
	return errors.As(err, &fsErr) && fsErr.IsNotFound()
}

// IsAlreadyExists reports whether err was raised by creating an existing document.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	var fsErr *Error
	return errors.As(err, &fsErr) && fsErr.IsAlreadyExists()
}
