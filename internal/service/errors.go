package service

import "errors"

// Machine-readable rejection codes for the promo code flows.
const (
	CodePromoNotFound       = "PROMO_CODE_NOT_FOUND"
	CodePromoInactive       = "PROMO_CODE_INACTIVE"
	CodePromoExpired        = "PROMO_CODE_EXPIRED"
	CodePromoUsageLimit     = "PROMO_CODE_USAGE_LIMIT_EXCEEDED"
	CodePromoNotAvailable   = "PROMO_CODE_NOT_AVAILABLE_FOR_USER"
	CodePromoUserUsageLimit = "PROMO_CODE_USER_USAGE_LIMIT_EXCEEDED"
	CodePromoInvalid        = "PROMO_CODE_INVALID"
	CodePromoAlreadyUsed    = "PROMO_CODE_ALREADY_USED"
)

// Rejection is a business refusal with a stable machine code. Handlers map
// it to a status; the message is safe to show to callers.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

var (
	ErrPromoNotFound       = &Rejection{CodePromoNotFound, "Promo code not found"}
	ErrPromoInactive       = &Rejection{CodePromoInactive, "Promo code is inactive"}
	ErrPromoExpired        = &Rejection{CodePromoExpired, "Promo code has expired"}
	ErrPromoUsageLimit     = &Rejection{CodePromoUsageLimit, "Promo code usage limit exceeded"}
	ErrPromoNotAvailable   = &Rejection{CodePromoNotAvailable, "Promo code is not available for this user"}
	ErrPromoUserUsageLimit = &Rejection{CodePromoUserUsageLimit, "User has exceeded the maximum usage limit for this promo code"}
	ErrPromoInvalid        = &Rejection{CodePromoInvalid, "Promo code cannot be used"}
	ErrPromoAlreadyUsed    = &Rejection{CodePromoAlreadyUsed, "Promo code already used by this user"}
)

// FieldErrors collects per-field validation messages, keyed by the JSON
// field name.
type FieldErrors map[string][]string

func (e FieldErrors) Error() string { return "validation failed" }

func (e FieldErrors) Add(field, msg string) { e[field] = append(e[field], msg) }

// DomainError is a business-rule violation that is not tied to a single
// field (e.g. a percentage discount above 100).
type DomainError struct{ Message string }

func (e *DomainError) Error() string { return e.Message }

// ErrInvalidCredentials is returned by Login for an unknown email or a
// wrong password, indistinguishably.
var ErrInvalidCredentials = errors.New("invalid credentials")
