package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error model
// --------------------------------------------------------------------------

// RetCode classifies store-level failures.
type RetCode int

const (
	// 0: Operation completed successfully.
	RetCSuccess RetCode = iota
	// 1: Operation failed with an unexpected internal error.
	RetCInternalError
	// 2: Operation is not supported by the engine.
	RetCUnsupportedOperation
	// 3: Operation is invalid for the current state of the key space.
	RetCInvalidOperation
	// 4: The key holds a different value variant than the operation expects.
	RetCWrongType
)

// Error is the error type returned by KVDB implementations. The code allows
// callers to react to the failure class; the message carries detail for
// logs.
type Error struct {
	Code RetCode
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// NewError creates a store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// NewWrongTypeError creates the error engines return when an operation hits
// a key holding a different variant.
func NewWrongTypeError(key string, held ValueKind) *Error {
	return &Error{
		Code: RetCWrongType,
		Msg:  fmt.Sprintf("key %q holds a %s value", key, held),
	}
}

// IsWrongType reports whether err is a store error carrying RetCWrongType.
func IsWrongType(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCWrongType
}
