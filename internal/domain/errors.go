package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindPermission        ErrorKind = "permission_denied"
	KindStateInvalid      ErrorKind = "state_invalid"
	KindValidation        ErrorKind = "validation"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindExceeds           ErrorKind = "exceeds"
	KindConflict          ErrorKind = "conflict"
	KindIntegrity         ErrorKind = "integrity"
	KindNotFound          ErrorKind = "not_found"
)

// Error is the single error type returned by domain operations. Fields beyond
// Kind and Message are populated depending on the kind.
type Error struct {
	Kind    ErrorKind
	Op      string
	Field   string
	Message string

	ProductID string
	Shortage  decimal.Decimal

	Amount decimal.Decimal
	Limit  decimal.Decimal

	Key   string
	State string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInsufficientStock:
		return fmt.Sprintf("insufficient stock for product %s: short by %s", e.ProductID, e.Shortage.StringFixed(QuantityScale))
	case KindExceeds:
		return fmt.Sprintf("%s: amount %s exceeds limit %s", e.Message, e.Amount.StringFixed(MoneyScale), e.Limit.StringFixed(MoneyScale))
	case KindStateInvalid:
		if e.Message != "" && e.State != "" {
			return fmt.Sprintf("%s (state %s)", e.Message, e.State)
		}
		if e.State != "" {
			return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
		}
	case KindValidation:
		if e.Field != "" {
			return fmt.Sprintf("%s: %s", e.Field, e.Message)
		}
	case KindConflict:
		if e.Key != "" {
			return fmt.Sprintf("%s: %s", e.Message, e.Key)
		}
	case KindPermission:
		if e.Op != "" && e.Message == "" {
			return fmt.Sprintf("permission denied for %s", e.Op)
		}
	case KindIntegrity:
		if e.Message != "" {
			return "integrity violation: " + e.Message
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Is matches any *Error of the same kind so callers can use the sentinels below
// with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrPermission        = &Error{Kind: KindPermission}
	ErrStateInvalid      = &Error{Kind: KindStateInvalid}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrExceeds           = &Error{Kind: KindExceeds}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrIntegrity         = &Error{Kind: KindIntegrity}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func Permission(op string) error {
	return &Error{Kind: KindPermission, Op: op}
}

func StateInvalid(op string, state any) error {
	return &Error{Kind: KindStateInvalid, Op: op, State: fmt.Sprint(state)}
}

// StateConflict is StateInvalid with a reason beyond the state itself.
func StateConflict(op string, state any, message string) error {
	return &Error{Kind: KindStateInvalid, Op: op, State: fmt.Sprint(state), Message: message}
}

func PermissionReason(op string, message string) error {
	return &Error{Kind: KindPermission, Op: op, Message: message}
}

func Validation(field, message string) error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func InsufficientStock(productID string, shortage decimal.Decimal) error {
	return &Error{Kind: KindInsufficientStock, ProductID: productID, Shortage: shortage}
}

func Exceeds(what string, amount, limit decimal.Decimal) error {
	return &Error{Kind: KindExceeds, Message: what, Amount: amount, Limit: limit}
}

func Conflict(message, key string) error {
	return &Error{Kind: KindConflict, Message: message, Key: key}
}

func Integrity(message string) error {
	return &Error{Kind: KindIntegrity, Message: message}
}

func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}
