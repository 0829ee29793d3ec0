// Package errors defines the error taxonomy shared by every core component
// (model, crypto, stores/versioned, consensus, txverify, executor,
// blockprocessor, rewind). It is a trimmed form of the teacher's error
// package: an error code plus a message plus an optional wrapped cause,
// compatible with the standard library's errors.Is/errors.As.
package errors

import (
	"errors"
	"fmt"
	"reflect"
)

// ERR enumerates the stable error codes a caller can switch on. New codes
// are appended; existing codes are never renumbered.
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_INVALID_FORMAT
	ERR_INVALID_SIZE
	ERR_INVALID_VALUE
	ERR_INVALID_HEX
	ERR_NOT_FOUND
	ERR_CORRUPTED_DATA
	ERR_IO
	ERR_BAD_NONCE
	ERR_INSUFFICIENT_BALANCE
	ERR_INVALID_REFERENCE
	ERR_INVALID_SIGNATURE
	ERR_INVALID_PROOF
	ERR_UNSUPPORTED_CONTRACT_FORMAT
	ERR_FEE_TOO_LOW
	ERR_CHAIN_ID_MISMATCH
	ERR_TX_TOO_LARGE
	ERR_PARALLEL_CONFLICT
	ERR_CONTRACT_EXECUTION_FAILED
	ERR_OUT_OF_GAS
	ERR_STATE_COMMIT_FAILED
	ERR_INVALID_MERKLE_ROOT
	ERR_EMPTY_BLOCK_WITH_MERKLE_ROOT
	ERR_PARENTS_NOT_SORTED_OR_DUPLICATE
	ERR_PARENT_REACHABLE
	ERR_BAD_TIMESTAMP
	ERR_TOO_MANY_TRANSACTIONS
	ERR_BLOCK_TOO_LARGE
	ERR_SAFETY_LIMIT
	ERR_FATAL_CORRUPTION
	ERR_INVALID_ARGUMENT
)

var errName = map[ERR]string{
	ERR_UNKNOWN:                         "UNKNOWN",
	ERR_INVALID_FORMAT:                  "INVALID_FORMAT",
	ERR_INVALID_SIZE:                    "INVALID_SIZE",
	ERR_INVALID_VALUE:                   "INVALID_VALUE",
	ERR_INVALID_HEX:                     "INVALID_HEX",
	ERR_NOT_FOUND:                       "NOT_FOUND",
	ERR_CORRUPTED_DATA:                  "CORRUPTED_DATA",
	ERR_IO:                              "IO",
	ERR_BAD_NONCE:                       "BAD_NONCE",
	ERR_INSUFFICIENT_BALANCE:            "INSUFFICIENT_BALANCE",
	ERR_INVALID_REFERENCE:               "INVALID_REFERENCE",
	ERR_INVALID_SIGNATURE:               "INVALID_SIGNATURE",
	ERR_INVALID_PROOF:                   "INVALID_PROOF",
	ERR_UNSUPPORTED_CONTRACT_FORMAT:     "UNSUPPORTED_CONTRACT_FORMAT",
	ERR_FEE_TOO_LOW:                     "FEE_TOO_LOW",
	ERR_CHAIN_ID_MISMATCH:               "CHAIN_ID_MISMATCH",
	ERR_TX_TOO_LARGE:                    "TX_TOO_LARGE",
	ERR_PARALLEL_CONFLICT:               "PARALLEL_CONFLICT",
	ERR_CONTRACT_EXECUTION_FAILED:       "CONTRACT_EXECUTION_FAILED",
	ERR_OUT_OF_GAS:                      "OUT_OF_GAS",
	ERR_STATE_COMMIT_FAILED:             "STATE_COMMIT_FAILED",
	ERR_INVALID_MERKLE_ROOT:             "INVALID_MERKLE_ROOT",
	ERR_EMPTY_BLOCK_WITH_MERKLE_ROOT:    "EMPTY_BLOCK_WITH_MERKLE_ROOT",
	ERR_PARENTS_NOT_SORTED_OR_DUPLICATE: "PARENTS_NOT_SORTED_OR_DUPLICATE",
	ERR_PARENT_REACHABLE:                "PARENT_REACHABLE",
	ERR_BAD_TIMESTAMP:                   "BAD_TIMESTAMP",
	ERR_TOO_MANY_TRANSACTIONS:           "TOO_MANY_TRANSACTIONS",
	ERR_BLOCK_TOO_LARGE:                 "BLOCK_TOO_LARGE",
	ERR_SAFETY_LIMIT:                    "SAFETY_LIMIT",
	ERR_FATAL_CORRUPTION:                "FATAL_CORRUPTION",
	ERR_INVALID_ARGUMENT:                "INVALID_ARGUMENT",
}

func (c ERR) String() string {
	if n, ok := errName[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error is the sum-type error every component returns for recoverable
// failures. It never panics across a component boundary (spec §7).
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether target carries the same error code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var te *Error
	if errors.As(target, &te) {
		if e.Code == te.Code {
			return true
		}
	}
	if e.WrappedErr != nil {
		return errors.Is(e.WrappedErr, target)
	}
	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}
	if te, ok := target.(**Error); ok {
		*te = e
		return true
	}
	if e.WrappedErr != nil {
		if reflect.ValueOf(e.WrappedErr).IsValid() {
			return errors.As(e.WrappedErr, target)
		}
	}
	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an *Error, optionally wrapping a trailing error/*Error
// argument and fmt-formatting the remaining params into Message.
func New(code ERR, message string, params ...interface{}) *Error {
	var wrapped error

	if len(params) > 0 {
		last := params[len(params)-1]
		if err, ok := last.(error); ok {
			wrapped = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{Code: code, Message: message, WrappedErr: wrapped}
}

// Is delegates to the standard library so callers can compare against
// sentinel errors regardless of concrete type.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return errors.As(err, target) }

// Join concatenates non-nil error messages; used by background tasks that
// must report a batch of failures without panicking (spec §7).
func Join(errs ...error) error {
	return errors.Join(errs...)
}
