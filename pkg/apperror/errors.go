package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the coarse error class callers branch on.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindInvalidState            Kind = "invalid_state"
	KindPolicyViolation         Kind = "policy_violation"
	KindInsufficientBalance     Kind = "insufficient_balance"
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindUnauthorized            Kind = "unauthorized"
	KindInternal                Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"` // safe to show the caller
	Err        error          `json:"-"`                 // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches caller-visible context and returns e.
func (e *AppError) WithDetails(kv map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Details[k] = v
	}
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Code returns the code of the first AppError in err's chain, or "".
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// KindOf maps an error onto the taxonomy. Errors that are not AppErrors are internal.
func KindOf(err error) Kind {
	code := Code(err)
	switch {
	case code == "":
		return KindInternal
	case code == "PAY_001":
		return KindInsufficientBalance
	case code == "PAY_004", code == "WAL_001":
		return KindNotFound
	case code == "PAY_005", code == "PAY_002", code == "PAY_006", strings.HasPrefix(code, "LIM_"), code == "RATE_001":
		return KindPolicyViolation
	case strings.HasPrefix(code, "WAL_"), code == "PAY_003", strings.HasPrefix(code, "UPG_"), code == "AUTH_002":
		return KindInvalidState
	case strings.HasPrefix(code, "COL_"):
		return KindCollaboratorUnavailable
	case strings.HasPrefix(code, "SEC_"), strings.HasPrefix(code, "AUTH_"):
		return KindUnauthorized
	}
	return KindInternal
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Wallets (WAL) ----

func ErrWalletNotFound() *AppError {
	return New("WAL_001", "Wallet not found", http.StatusNotFound)
}

// ErrWalletNotActive carries the linked account so callers can redirect payments
// meant for an upgraded wallet.
func ErrWalletNotActive(status string, linkedAccountRef *string) *AppError {
	e := New("WAL_002", fmt.Sprintf("Wallet is %s", status), http.StatusConflict).
		WithDetails(map[string]any{"status": status})
	if linkedAccountRef != nil {
		e.Details["linked_account_ref"] = *linkedAccountRef
	}
	return e
}

func ErrInvalidStatusTransition(from, to string) *AppError {
	return New("WAL_003", fmt.Sprintf("Wallet cannot move from %s to %s", from, to), http.StatusConflict).
		WithDetails(map[string]any{"from": from, "to": to})
}

func ErrAccessTokenExhausted() *AppError {
	return New("WAL_004", "Could not allocate a unique access token", http.StatusServiceUnavailable)
}

func ErrWalletHasBalance(balance int64) *AppError {
	return New("WAL_005", "Wallet balance must be zero", http.StatusConflict).
		WithDetails(map[string]any{"balance": balance})
}

// ---- Payment Business Logic (PAY) ----

func ErrInsufficientBalance(available, required int64) *AppError {
	return New("PAY_001", "Insufficient balance in wallet", http.StatusPaymentRequired).
		WithDetails(map[string]any{"available": available, "required": required})
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateReference(reference string) *AppError {
	return New("PAY_003", "Reference already used for a different payment", http.StatusConflict).
		WithDetails(map[string]any{"reference": reference})
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAmountOutOfRange(amount, minimum, maximum int64) *AppError {
	return New("PAY_005", "Amount outside the allowed range for this channel", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"amount": amount, "minimum": minimum, "maximum": maximum})
}

func ErrUnsupportedChannel(channel string) *AppError {
	return New("PAY_006", fmt.Sprintf("Unsupported channel %q", channel), http.StatusBadRequest)
}

// ---- Limits (LIM) ----

func ErrDailyLimitExceeded(limit, used, requested int64) *AppError {
	return New("LIM_001", "Daily limit exceeded", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"limit": "daily", "cap": limit, "used": used, "requested": requested})
}

func ErrMonthlyLimitExceeded(limit, used, requested int64) *AppError {
	return New("LIM_002", "Monthly limit exceeded", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"limit": "monthly", "cap": limit, "used": used, "requested": requested})
}

// ---- Upgrades (UPG) ----

func ErrUpgradeInProgress() *AppError {
	return New("UPG_001", "An upgrade is already in progress for this wallet", http.StatusConflict)
}

func ErrUpgradeInvalidState(state string) *AppError {
	return New("UPG_002", fmt.Sprintf("Upgrade cannot proceed from state %s", state), http.StatusConflict).
		WithDetails(map[string]any{"state": state})
}

// ---- Collaborators (COL) ----

func ErrCollaboratorUnavailable(name string, err error) *AppError {
	return Wrap("COL_001", fmt.Sprintf("%s is unavailable", name), http.StatusServiceUnavailable, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_002", "Email already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrBusinessSuspended() *AppError {
	return New("AUTH_004", "Business account is suspended", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
