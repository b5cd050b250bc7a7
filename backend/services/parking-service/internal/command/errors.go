package command

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"parkwise/backend/services/parking-service/internal/models"
)

// ErrBackendUnavailable is returned once every retry of a transient failure is spent.
var ErrBackendUnavailable = errors.New("backend unavailable")

// TransportError marks a failure to reach the backend or read its answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a non-validation failure reported by the backend.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

var transportHints = []string{
	"connection refused",
	"connection reset",
	"econnreset",
	"econnrefused",
	"network",
	"timeout",
	"unavailable",
}

// IsTransport reports whether err is a connection, timeout or network failure.
// Validation errors never are.
func IsTransport(err error) bool {
	if err == nil || models.IsValidation(err) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	// The backend answered, so the request was delivered.
	var re *RemoteError
	if errors.As(err, &re) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transportHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsTransient reports whether a read may be retried: transport failures plus gateway
// and availability responses.
func IsTransient(err error) bool {
	if IsTransport(err) {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		switch re.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
