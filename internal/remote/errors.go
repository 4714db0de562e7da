package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// SQLSTATE-style codes used in error bodies.
const (
	CodeNotNullViolation = "23502"
	CodeUniqueViolation  = "23505"
	CodeCheckViolation   = "23514"
	CodeUndefinedTable   = "42P01"
	CodeUndefinedColumn  = "42703"
	CodeInvalidText      = "22P02"
	CodeInternal         = "XX000"
	CodeUnavailable      = "57P03"
)

// Error is a failure reported by the remote repository.
type Error struct {
	Status    int    // HTTP status when the error came over the wire, else 0.
	Code      string // SQLSTATE-style code.
	Message   string
	Temporary bool // Set by the server for failures worth retrying.
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("remote")
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Status != 0 {
		b.WriteString(" (")
		b.WriteString(http.StatusText(e.Status))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// class returns the two character SQLSTATE class.
func (e *Error) class() string {
	if len(e.Code) < 2 {
		return ""
	}
	return e.Code[:2]
}

// IsPermanent reports whether retrying err cannot help: constraint (23) and
// schema (42) violations, and client errors other than 429.
func IsPermanent(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	if re.Temporary {
		return false
	}
	switch re.class() {
	case "22", "23", "42":
		return true
	}
	return re.Status >= 400 && re.Status < 500 && re.Status != http.StatusTooManyRequests
}

// IsTransient reports whether err is a network or server condition expected
// to clear: connection failures, timeouts, 5xx and 429. Cancellation by the
// caller is neither transient nor permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var re *Error
	if errors.As(err, &re) {
		if re.Temporary || re.class() == "57" || re.class() == "08" {
			return true
		}
		return re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// statusFor maps an error to the HTTP status the server responds with.
func statusFor(err error) int {
	var re *Error
	if !errors.As(err, &re) {
		return http.StatusInternalServerError
	}
	if re.Status != 0 {
		return re.Status
	}
	switch re.class() {
	case "23":
		return http.StatusConflict
	case "22", "42":
		return http.StatusBadRequest
	case "57":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
