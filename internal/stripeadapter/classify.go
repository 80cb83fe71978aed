package stripeadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/stripe/stripe-go/v76"
)

type Classification string

const (
	Transient Classification = "transient"
	Permanent Classification = "permanent"
)

// ClassifyStatus maps a provider HTTP status onto a classification.
//
//	429        transient
//	5xx        transient
//	other 4xx  permanent
//
// Anything else (including 0, no response) is transient.
func ClassifyStatus(status int) Classification {
	switch {
	case status == 429:
		return Transient
	case status >= 500:
		return Transient
	case status >= 400:
		return Permanent
	default:
		return Transient
	}
}

// Classify inspects a transfer error. Errors without an HTTP status are
// network failures (timeouts, resets, lost responses) and are transient: the
// idempotency key makes the retry safe.
func Classify(err error) (Classification, int, string) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		reason := stripeErr.Msg
		if reason == "" {
			reason = fmt.Sprintf("http %d", stripeErr.HTTPStatusCode)
		}
		if stripeErr.Code != "" {
			reason = fmt.Sprintf("%s: %s", stripeErr.Code, reason)
		}
		return ClassifyStatus(stripeErr.HTTPStatusCode), stripeErr.HTTPStatusCode, reason
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Transient, 0, "timeout: " + err.Error()
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return Transient, 0, "connection: " + err.Error()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Transient, 0, "connection closed: " + err.Error()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient, 0, "timeout: " + err.Error()
	}
	return Transient, 0, err.Error()
}
