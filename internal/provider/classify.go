package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/manash/image-gen/internal/apperr"
)

// StatusError is a non-success answer from an upstream API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
}

var contentPolicyCodes = []string{
	"moderation_blocked",
	"content_policy_violation",
	"content_filter",
	"safety",
	"prohibited_content",
	"image_safety",
}

// IsContentPolicyCode reports whether an upstream error code or finish
// reason marks a moderation rejection.
func IsContentPolicyCode(code string) bool {
	code = strings.ToLower(code)
	for _, c := range contentPolicyCodes {
		if code == c {
			return true
		}
	}
	return false
}

// Classify maps a backend failure onto an apperr kind. Only KindTransient
// is worth retrying.
func Classify(err error) apperr.Kind {
	if err == nil {
		return apperr.KindUnknown
	}
	if k := apperr.KindOf(err); k != apperr.KindUnknown {
		return k
	}
	if errors.Is(err, ErrContentPolicy) {
		return apperr.KindContentPolicy
	}
	if errors.Is(err, context.Canceled) {
		return apperr.KindUnknown
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case IsContentPolicyCode(se.Code):
			return apperr.KindContentPolicy
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode >= 500:
			return apperr.KindTransient
		default:
			return apperr.KindAPI
		}
	}

	if isTransportFailure(err) {
		return apperr.KindTransient
	}
	if errors.Is(err, ErrNoImage) {
		return apperr.KindAPI
	}
	return apperr.KindUnknown
}

func IsTransient(err error) bool {
	return Classify(err) == apperr.KindTransient
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && errors.Is(urlErr.Err, io.EOF) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	return errors.As(err, &unknownAuth)
}
