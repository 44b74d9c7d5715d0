package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindRateLimit  Kind = "rate_limit"
	KindPayment    Kind = "payment"
	KindExternal   Kind = "external_service"
	KindDatabase   Kind = "database"
	KindInternal   Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindAuth:       http.StatusUnauthorized,
	KindNotFound:   http.StatusNotFound,
	KindConflict:   http.StatusConflict,
	KindRateLimit:  http.StatusTooManyRequests,
	KindPayment:    http.StatusPaymentRequired,
	KindExternal:   http.StatusBadGateway,
	KindDatabase:   http.StatusInternalServerError,
	KindInternal:   http.StatusInternalServerError,
}

var kindCode = map[Kind]string{
	KindValidation: "validation_error",
	KindAuth:       "unauthorized",
	KindNotFound:   "not_found",
	KindConflict:   "conflict",
	KindRateLimit:  "rate_limited",
	KindPayment:    "payment_error",
	KindExternal:   "external_service_error",
	KindDatabase:   "database_error",
	KindInternal:   "internal_error",
}

// FieldError is one offending input field in a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

type Error struct {
	Status  int
	Code    string
	Kind    Kind
	Err     error
	Details []FieldError
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// New keeps the status/code form used by handlers that pick their own status.
func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Kind: kindForStatus(status), Err: err}
}

func Of(kind Kind, code string, err error) *Error {
	if code == "" {
		code = kindCode[kind]
	}
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Status: status, Code: code, Kind: kind, Err: err}
}

func Validation(code string, format string, args ...any) *Error {
	return Of(KindValidation, code, fmt.Errorf(format, args...))
}

func ValidationFields(fields []FieldError) *Error {
	e := Of(KindValidation, "", errors.New("request validation failed"))
	e.Details = fields
	return e
}

func Auth(code string, format string, args ...any) *Error {
	return Of(KindAuth, code, fmt.Errorf(format, args...))
}

func NotFound(code string, format string, args ...any) *Error {
	return Of(KindNotFound, code, fmt.Errorf(format, args...))
}

func Conflict(code string, format string, args ...any) *Error {
	return Of(KindConflict, code, fmt.Errorf(format, args...))
}

func RateLimit(code string, format string, args ...any) *Error {
	return Of(KindRateLimit, code, fmt.Errorf(format, args...))
}

func Payment(code string, format string, args ...any) *Error {
	return Of(KindPayment, code, fmt.Errorf(format, args...))
}

func External(code string, err error) *Error {
	return Of(KindExternal, code, err)
}

func Database(err error) *Error {
	return Of(KindDatabase, "", err)
}

func Internal(err error) *Error {
	return Of(KindInternal, "", err)
}

const pgUniqueViolation = "23505"

// From classifies any error into the taxonomy. Already classified errors
// pass through unchanged.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == "" {
			ae.Kind = kindForStatus(ae.Status)
		}
		return ae
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Of(KindNotFound, "", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Of(KindConflict, "", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return Of(KindConflict, "", err)
		}
		return Of(KindDatabase, "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Of(KindExternal, "", err)
	}
	return Of(KindInternal, "", err)
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return From(err).Kind == kind
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusPaymentRequired:
		return KindPayment
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindExternal
	default:
		return KindInternal
	}
}
