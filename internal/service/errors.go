package service

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindGateway
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindGateway:
		return "gateway"
	}
	return "internal"
}

// Error is a failure that is part of the service contract and safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrInternal replaces unexpected failures so internals never reach the caller.
var ErrInternal = &Error{Kind: KindInternal, Message: "internal server error"}

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func unauthorizedError(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func forbiddenError(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func gatewayError(msg string) error {
	return &Error{Kind: KindGateway, Message: msg}
}

// StockConflictError names the product that could not be reserved and what is left of it.
type StockConflictError struct {
	ProductID int64
	Name      string
	Available int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d", e.Name, e.Available)
}

// KindOf classifies err. Errors outside the contract are KindInternal.
func KindOf(err error) ErrorKind {
	var conflict *StockConflictError
	if errors.As(err, &conflict) {
		return KindConflict
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// isContractError reports whether err may be returned to the caller verbatim.
func isContractError(err error) bool {
	return KindOf(err) != KindInternal
}
