package errors

import (
	"context"
	stdErrors "errors"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// ErrorType is the normalized failure category surfaced to callers and logs.
type ErrorType string

const (
	TypeNetwork        ErrorType = "NETWORK"
	TypeAuthentication ErrorType = "AUTHENTICATION"
	TypeAuthorization  ErrorType = "AUTHORIZATION"
	TypeValidation     ErrorType = "VALIDATION"
	TypeNotFound       ErrorType = "NOT_FOUND"
	TypeServer         ErrorType = "SERVER"
	TypeClient         ErrorType = "CLIENT"
	TypeTimeout        ErrorType = "TIMEOUT"
	TypeRateLimit      ErrorType = "RATE_LIMIT"
	TypeUnknown        ErrorType = "UNKNOWN"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Classification is computed on demand and never persisted.
type Classification struct {
	Type        ErrorType     `json:"type"`
	Severity    Severity      `json:"severity"`
	UserMessage string        `json:"userMessage"`
	Retryable   bool          `json:"retryable"`
	RetryDelay  time.Duration `json:"retryDelayMs,omitempty"`
	LogLevel    zerolog.Level `json:"logLevel"`
}

// PostgREST reports "no rows" for single-row selects with this code.
const postgrestRowNotFound = "PGRST116"

const maxRawMessageLen = 100

var defaultsByType = map[ErrorType]Classification{
	TypeNetwork: {
		Type:        TypeNetwork,
		Severity:    SeverityMedium,
		UserMessage: "Network error. Please check your connection and try again.",
		Retryable:   true,
		RetryDelay:  2000 * time.Millisecond,
		LogLevel:    zerolog.WarnLevel,
	},
	TypeTimeout: {
		Type:        TypeTimeout,
		Severity:    SeverityMedium,
		UserMessage: "The request timed out. Please try again.",
		Retryable:   true,
		RetryDelay:  3000 * time.Millisecond,
		LogLevel:    zerolog.WarnLevel,
	},
	TypeAuthentication: {
		Type:        TypeAuthentication,
		Severity:    SeverityHigh,
		UserMessage: "Your session has expired. Please log in again.",
		LogLevel:    zerolog.WarnLevel,
	},
	TypeAuthorization: {
		Type:        TypeAuthorization,
		Severity:    SeverityHigh,
		UserMessage: "You do not have permission to perform this action.",
		LogLevel:    zerolog.WarnLevel,
	},
	TypeNotFound: {
		Type:        TypeNotFound,
		Severity:    SeverityLow,
		UserMessage: "The requested resource was not found.",
		LogLevel:    zerolog.InfoLevel,
	},
	TypeValidation: {
		Type:        TypeValidation,
		Severity:    SeverityLow,
		UserMessage: "Please check your input and try again.",
		LogLevel:    zerolog.InfoLevel,
	},
	TypeRateLimit: {
		Type:        TypeRateLimit,
		Severity:    SeverityMedium,
		UserMessage: "Too many requests. Please wait a moment and try again.",
		Retryable:   true,
		RetryDelay:  5000 * time.Millisecond,
		LogLevel:    zerolog.WarnLevel,
	},
	TypeServer: {
		Type:        TypeServer,
		Severity:    SeverityHigh,
		UserMessage: "A server error occurred. Please try again later.",
		Retryable:   true,
		RetryDelay:  5000 * time.Millisecond,
		LogLevel:    zerolog.ErrorLevel,
	},
	TypeClient: {
		Type:        TypeClient,
		Severity:    SeverityLow,
		UserMessage: "The request could not be completed.",
		LogLevel:    zerolog.WarnLevel,
	},
	TypeUnknown: {
		Type:        TypeUnknown,
		Severity:    SeverityMedium,
		UserMessage: "An unexpected error occurred. Please try again.",
		LogLevel:    zerolog.ErrorLevel,
	},
}

// dbCodeClassifications is keyed on SQLSTATE (or PostgREST) codes. Lookup is exact.
var dbCodeClassifications = map[string]Classification{
	"23505": withMessage(TypeValidation, "This record already exists."),
	"23503": withMessage(TypeValidation, "A related record could not be found."),
	"23502": withMessage(TypeValidation, "A required field is missing."),
	"42501": withMessage(TypeAuthorization, "You do not have permission to access this record."),
	postgrestRowNotFound: withMessage(TypeNotFound, "The requested record was not found."),
	"40001":              defaultsByType[TypeServer],
	"40P01":              defaultsByType[TypeServer],
	"57014":              defaultsByType[TypeTimeout],
	"53300":              defaultsByType[TypeServer],
	"XX000": {
		Type:        TypeServer,
		Severity:    SeverityCritical,
		UserMessage: "A server error occurred. Please contact support.",
		LogLevel:    zerolog.ErrorLevel,
	},
}

func withMessage(t ErrorType, msg string) Classification {
	c := defaultsByType[t]
	c.UserMessage = msg
	return c
}

// Classify maps an arbitrary error to a stable Classification. Network and timeout
// signals win first, then HTTP status, then driver codes, then the typed code. A 401
// status is the one exception: it is AUTHENTICATION even when the message mentions a
// timeout. Remaining message heuristics apply only to unstructured errors.
func Classify(err error) Classification {
	if err == nil {
		return defaultsByType[TypeUnknown]
	}
	if c, ok := classifyStructured(err); ok {
		return c
	}
	if c, ok := classifyMessage(err.Error()); ok {
		return c
	}
	return classifyUnknown(err.Error())
}

// IsRetryable reports Classify(err).Retryable.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

// RetryDelay reports Classify(err).RetryDelay.
func RetryDelay(err error) time.Duration {
	return Classify(err).RetryDelay
}

// UserMessage reports Classify(err).UserMessage.
func UserMessage(err error) string {
	return Classify(err).UserMessage
}

func classifyStructured(err error) (Classification, bool) {
	if isNetworkError(err) {
		return defaultsByType[TypeNetwork], true
	}
	if isTimeoutError(err) {
		return defaultsByType[TypeTimeout], true
	}

	status, msg, hasStatus := carriedStatus(err)
	typed := As(err)
	// 401 is authentication regardless of what the message says.
	if (hasStatus && status == 401) || (typed != nil && MetadataFor(typed.Code()).HTTPStatus == 401) {
		return defaultsByType[TypeAuthentication], true
	}
	// Network and timeout markers outrank any status: a 503 "upstream request timeout" is a timeout.
	if c, ok := classifyTransientMessage(err.Error()); ok {
		return c, true
	}
	if hasStatus {
		return classifyStatus(status, msg), true
	}
	// A driver code under a typed wrapper is more specific than the wrapper's code.
	if code, ok := dbCodeOf(err); ok {
		if c, known := dbCodeClassifications[code]; known {
			return c, true
		}
	}
	if typed != nil {
		return classifyStatus(MetadataFor(typed.Code()).HTTPStatus, typed.Message()), true
	}
	return Classification{}, false
}

func isNetworkError(err error) bool {
	if stdErrors.Is(err, syscall.ECONNREFUSED) || stdErrors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if stdErrors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	var opErr *net.OpError
	if stdErrors.As(err, &opErr) {
		return opErr.Op == "dial" && !opErr.Timeout()
	}
	return false
}

type timeouter interface {
	Timeout() bool
}

func isTimeoutError(err error) bool {
	if stdErrors.Is(err, context.DeadlineExceeded) ||
		stdErrors.Is(err, os.ErrDeadlineExceeded) ||
		stdErrors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var t timeouter
	if stdErrors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

type statusCoder interface {
	StatusCode() int
}

type httpStatuser interface {
	HTTPStatus() int
}

// carriedStatus returns the HTTP status reported by err itself and the message
// that may be passed through to users for validation failures.
func carriedStatus(err error) (int, string, bool) {
	var stripeErr *stripe.Error
	if stdErrors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 {
		return stripeErr.HTTPStatusCode, stripeErr.Msg, true
	}
	var sc statusCoder
	if stdErrors.As(err, &sc) && sc.StatusCode() > 0 {
		return sc.StatusCode(), err.Error(), true
	}
	var hs httpStatuser
	if stdErrors.As(err, &hs) && hs.HTTPStatus() > 0 {
		return hs.HTTPStatus(), err.Error(), true
	}
	return 0, "", false
}

func classifyStatus(status int, msg string) Classification {
	switch {
	case status == 408:
		return defaultsByType[TypeTimeout]
	case status == 401:
		return defaultsByType[TypeAuthentication]
	case status == 403:
		return defaultsByType[TypeAuthorization]
	case status == 404:
		return defaultsByType[TypeNotFound]
	case status == 400 || status == 422:
		return validationWithMessage(msg)
	case status == 429:
		return defaultsByType[TypeRateLimit]
	case status >= 500:
		return defaultsByType[TypeServer]
	case status >= 400:
		return defaultsByType[TypeClient]
	}
	return defaultsByType[TypeUnknown]
}

func dbCodeOf(err error) (string, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgxErr.Code, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return postgrestRowNotFound, true
	}
	return "", false
}

func classifyTransientMessage(raw string) (Classification, bool) {
	msg := strings.ToLower(raw)
	switch {
	case containsAny(msg, "network", "fetch", "econnrefused", "enotfound"):
		return defaultsByType[TypeNetwork], true
	case containsAny(msg, "timeout", "etimedout", "timed out"):
		return defaultsByType[TypeTimeout], true
	}
	return Classification{}, false
}

func classifyMessage(raw string) (Classification, bool) {
	if c, ok := classifyTransientMessage(raw); ok {
		return c, true
	}
	msg := strings.ToLower(raw)
	switch {
	case containsAny(msg, "401", "not authenticated", "unauthorized"):
		return defaultsByType[TypeAuthentication], true
	case containsAny(msg, "403", "forbidden", "permission denied"):
		return defaultsByType[TypeAuthorization], true
	case containsAny(msg, "404"):
		return defaultsByType[TypeNotFound], true
	case containsAny(msg, "400", "invalid", "required"):
		return validationWithMessage(raw), true
	case containsAny(msg, "429", "rate limit"):
		return defaultsByType[TypeRateLimit], true
	}
	return Classification{}, false
}

func validationWithMessage(msg string) Classification {
	c := defaultsByType[TypeValidation]
	if presentable(msg) {
		c.UserMessage = msg
	}
	return c
}

func classifyUnknown(msg string) Classification {
	c := defaultsByType[TypeUnknown]
	if presentable(msg) && len(msg) <= maxRawMessageLen {
		c.UserMessage = msg
	}
	return c
}

func presentable(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return false
	}
	return !looksLikeStack(trimmed)
}

func looksLikeStack(msg string) bool {
	return strings.Contains(msg, "goroutine ") ||
		strings.Contains(msg, ".go:") ||
		strings.Contains(msg, "\n\t")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
