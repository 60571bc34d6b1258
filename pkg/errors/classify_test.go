package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

type statusErr struct {
	status int
	msg    string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) StatusCode() int { return e.status }

type httpStatusErr struct{ status int }

func (e httpStatusErr) Error() string   { return fmt.Sprintf("upstream returned %d", e.status) }
func (e httpStatusErr) HTTPStatus() int { return e.status }

func TestClassifyNilIsUnknown(t *testing.T) {
	got := Classify(nil)
	if got.Type != TypeUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got.Type)
	}
	if got.Retryable {
		t.Fatalf("nil error must not be retryable")
	}
}

func TestClassifyStructuredSignals(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		delay     time.Duration
	}{
		{name: "conn refused", err: fmt.Errorf("dial stripe: %w", syscall.ECONNREFUSED), wantType: TypeNetwork, retryable: true, delay: 2 * time.Second},
		{name: "conn reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), wantType: TypeNetwork, retryable: true, delay: 2 * time.Second},
		{name: "dns not found", err: &net.DNSError{Err: "no such host", Name: "api.stripe.com", IsNotFound: true}, wantType: TypeNetwork, retryable: true, delay: 2 * time.Second},
		{name: "deadline", err: fmt.Errorf("create intent: %w", context.DeadlineExceeded), wantType: TypeTimeout, retryable: true, delay: 3 * time.Second},
		{name: "etimedout", err: syscall.ETIMEDOUT, wantType: TypeTimeout, retryable: true, delay: 3 * time.Second},
		{name: "http 408", err: statusErr{status: 408, msg: "request timeout"}, wantType: TypeTimeout, retryable: true, delay: 3 * time.Second},
		{name: "http 401", err: statusErr{status: 401, msg: "nope"}, wantType: TypeAuthentication},
		{name: "http 403", err: httpStatusErr{status: 403}, wantType: TypeAuthorization},
		{name: "http 404", err: statusErr{status: 404, msg: "missing"}, wantType: TypeNotFound},
		{name: "http 429", err: httpStatusErr{status: 429}, wantType: TypeRateLimit, retryable: true, delay: 5 * time.Second},
		{name: "http 503", err: statusErr{status: 503, msg: "unavailable"}, wantType: TypeServer, retryable: true, delay: 5 * time.Second},
		{name: "http 418", err: statusErr{status: 418, msg: "teapot"}, wantType: TypeClient},
		{name: "stripe 402", err: &stripe.Error{HTTPStatusCode: 402, Msg: "Your card was declined."}, wantType: TypeClient},
		{name: "stripe 500", err: &stripe.Error{HTTPStatusCode: 500, Msg: "internal"}, wantType: TypeServer, retryable: true, delay: 5 * time.Second},
		{name: "typed rate limit", err: New(CodeRateLimit, "slow down"), wantType: TypeRateLimit, retryable: true, delay: 5 * time.Second},
		{name: "typed not found", err: New(CodeNotFound, "payment not found"), wantType: TypeNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, wantType: TypeValidation},
		{name: "fk violation", err: &pq.Error{Code: "23503"}, wantType: TypeValidation},
		{name: "rls denied", err: &pgconn.PgError{Code: "42501"}, wantType: TypeAuthorization},
		{name: "serialization", err: &pq.Error{Code: "40001"}, wantType: TypeServer, retryable: true, delay: 5 * time.Second},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, wantType: TypeServer, retryable: true, delay: 5 * time.Second},
		{name: "statement timeout", err: &pgconn.PgError{Code: "57014"}, wantType: TypeTimeout, retryable: true, delay: 3 * time.Second},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, wantType: TypeServer, retryable: true, delay: 5 * time.Second},
		{name: "record not found", err: fmt.Errorf("load payment: %w", gorm.ErrRecordNotFound), wantType: TypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Type != tt.wantType {
				t.Fatalf("expected %s, got %s", tt.wantType, got.Type)
			}
			if got.Retryable != tt.retryable {
				t.Fatalf("expected retryable=%v, got %v", tt.retryable, got.Retryable)
			}
			if got.RetryDelay != tt.delay {
				t.Fatalf("expected delay %s, got %s", tt.delay, got.RetryDelay)
			}
		})
	}
}

func TestClassifyInternalErrorIsCritical(t *testing.T) {
	got := Classify(&pgconn.PgError{Code: "XX000"})
	if got.Type != TypeServer || got.Severity != SeverityCritical {
		t.Fatalf("expected critical server error, got %s/%s", got.Type, got.Severity)
	}
	if got.Retryable {
		t.Fatalf("XX000 must not be retryable")
	}
}

func TestClassifyStructuredStatusBeatsMessage(t *testing.T) {
	got := Classify(statusErr{status: 401, msg: "network timeout while refreshing"})
	if got.Type != TypeAuthentication {
		t.Fatalf("expected AUTHENTICATION, got %s", got.Type)
	}
}

func TestClassifyTimeoutMessageOutranksStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		delay    time.Duration
	}{
		{name: "503 upstream timeout", err: statusErr{status: 503, msg: "upstream request timeout"}, wantType: TypeTimeout, delay: 3 * time.Second},
		{name: "504 gateway timeout", err: statusErr{status: 504, msg: "gateway timeout"}, wantType: TypeTimeout, delay: 3 * time.Second},
		{name: "400 body timeout", err: statusErr{status: 400, msg: "timeout waiting for body"}, wantType: TypeTimeout, delay: 3 * time.Second},
		{name: "stripe 500 timeout", err: &stripe.Error{HTTPStatusCode: 500, Msg: "Request timeout, please retry"}, wantType: TypeTimeout, delay: 3 * time.Second},
		{name: "502 network", err: statusErr{status: 502, msg: "network unreachable"}, wantType: TypeNetwork, delay: 2 * time.Second},
		{name: "typed dependency timed out", err: New(CodeDependency, "resend timed out"), wantType: TypeTimeout, delay: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Type != tt.wantType {
				t.Fatalf("expected %s, got %s", tt.wantType, got.Type)
			}
			if !got.Retryable {
				t.Fatalf("expected retryable")
			}
			if got.RetryDelay != tt.delay {
				t.Fatalf("expected delay %s, got %s", tt.delay, got.RetryDelay)
			}
		})
	}
}

func TestClassifyUnauthorizedIgnoresTimeoutMessage(t *testing.T) {
	errs := []error{
		statusErr{status: 401, msg: "token refresh timeout"},
		&stripe.Error{HTTPStatusCode: 401, Msg: "network timeout validating key"},
		New(CodeUnauthorized, "session lookup timed out"),
	}
	for _, err := range errs {
		got := Classify(err)
		if got.Type != TypeAuthentication {
			t.Fatalf("expected AUTHENTICATION for %v, got %s", err, got.Type)
		}
		if got.Retryable {
			t.Fatalf("401 must not be retryable: %v", err)
		}
	}
}

func TestClassifyDriverCodeUnderTypedWrapper(t *testing.T) {
	tests := []struct {
		name      string
		cause     error
		wantType  ErrorType
		retryable bool
	}{
		{name: "unique violation", cause: &pgconn.PgError{Code: "23505"}, wantType: TypeValidation},
		{name: "rls denied", cause: &pgconn.PgError{Code: "42501"}, wantType: TypeAuthorization},
		{name: "internal", cause: &pgconn.PgError{Code: "XX000"}, wantType: TypeServer},
		{name: "record not found", cause: gorm.ErrRecordNotFound, wantType: TypeNotFound},
		{name: "deadlock", cause: &pq.Error{Code: "40P01"}, wantType: TypeServer, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Wrap(CodeDependency, tt.cause, "load payment"))
			if got.Type != tt.wantType {
				t.Fatalf("expected %s, got %s", tt.wantType, got.Type)
			}
			if got.Retryable != tt.retryable {
				t.Fatalf("expected retryable=%v, got %v", tt.retryable, got.Retryable)
			}
		})
	}

	critical := Classify(Wrap(CodeDependency, &pgconn.PgError{Code: "XX000"}, "settle payment"))
	if critical.Severity != SeverityCritical {
		t.Fatalf("expected CRITICAL severity, got %s", critical.Severity)
	}

	unknownCode := Classify(Wrap(CodeDependency, &pgconn.PgError{Code: "22001"}, "insert receipt"))
	if unknownCode.Type != TypeServer || !unknownCode.Retryable {
		t.Fatalf("unlisted driver code should fall back to the typed code, got %s", unknownCode.Type)
	}
}

func TestClassifyValidationPassesMessageThrough(t *testing.T) {
	got := Classify(New(CodeValidation, "amount must be positive"))
	if got.Type != TypeValidation {
		t.Fatalf("expected VALIDATION, got %s", got.Type)
	}
	if got.UserMessage != "amount must be positive" {
		t.Fatalf("unexpected user message %q", got.UserMessage)
	}

	got = Classify(&pgconn.PgError{Code: "23505"})
	if got.UserMessage != "This record already exists." {
		t.Fatalf("unexpected duplicate message %q", got.UserMessage)
	}
}

func TestClassifyMessageHeuristics(t *testing.T) {
	tests := []struct {
		msg      string
		wantType ErrorType
	}{
		{msg: "fetch failed", wantType: TypeNetwork},
		{msg: "getaddrinfo ENOTFOUND api.example.com", wantType: TypeNetwork},
		{msg: "network timeout", wantType: TypeNetwork},
		{msg: "the operation timed out", wantType: TypeTimeout},
		{msg: "request failed with 401", wantType: TypeAuthentication},
		{msg: "user not authenticated", wantType: TypeAuthentication},
		{msg: "Forbidden", wantType: TypeAuthorization},
		{msg: "permission denied for table payments", wantType: TypeAuthorization},
		{msg: "upstream said 404", wantType: TypeNotFound},
		{msg: "email is required", wantType: TypeValidation},
		{msg: "Invalid currency", wantType: TypeValidation},
		{msg: "rate limit reached", wantType: TypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := Classify(stdErrors.New(tt.msg))
			if got.Type != tt.wantType {
				t.Fatalf("expected %s for %q, got %s", tt.wantType, tt.msg, got.Type)
			}
		})
	}

	got := Classify(stdErrors.New("email is required"))
	if got.UserMessage != "email is required" {
		t.Fatalf("validation message should pass through, got %q", got.UserMessage)
	}
}

func TestClassifyUnknownMessages(t *testing.T) {
	short := Classify(stdErrors.New("something odd happened"))
	if short.Type != TypeUnknown {
		t.Fatalf("expected UNKNOWN, got %s", short.Type)
	}
	if short.UserMessage != "something odd happened" {
		t.Fatalf("short message should pass through, got %q", short.UserMessage)
	}
	if short.LogLevel != zerolog.ErrorLevel {
		t.Fatalf("expected error log level, got %s", short.LogLevel)
	}

	long := Classify(stdErrors.New(strings.Repeat("x", 150)))
	if long.UserMessage != defaultsByType[TypeUnknown].UserMessage {
		t.Fatalf("long message should fall back, got %q", long.UserMessage)
	}

	stack := Classify(stdErrors.New("panic in settle.go:42"))
	if stack.UserMessage != defaultsByType[TypeUnknown].UserMessage {
		t.Fatalf("stack-like message should fall back, got %q", stack.UserMessage)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &pq.Error{Code: "40P01"})
	if Classify(err) != Classify(err) {
		t.Fatalf("classification should be stable")
	}
}

func TestProjectionsMatchClassify(t *testing.T) {
	errs := []error{
		nil,
		syscall.ECONNREFUSED,
		New(CodeForbidden, "no"),
		stdErrors.New("rate limit"),
		stdErrors.New("mystery"),
	}
	for _, err := range errs {
		c := Classify(err)
		if IsRetryable(err) != c.Retryable {
			t.Fatalf("IsRetryable mismatch for %v", err)
		}
		if RetryDelay(err) != c.RetryDelay {
			t.Fatalf("RetryDelay mismatch for %v", err)
		}
		if UserMessage(err) != c.UserMessage {
			t.Fatalf("UserMessage mismatch for %v", err)
		}
	}
}
