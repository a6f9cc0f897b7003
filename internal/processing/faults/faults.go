// Package faults classifies upstream metadata-call failures and decides
// whether and when they should be retried.
package faults

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

// Kind is the classified failure category of a raw upstream error.
type Kind string

const (
	KindAuth        Kind = "AUTH"
	KindRateLimit   Kind = "RATE_LIMIT"
	KindTimeout     Kind = "TIMEOUT"
	KindServerError Kind = "SERVER_ERROR"
	KindMalformed   Kind = "MALFORMED"
	KindValidation  Kind = "VALIDATION"
	KindUnknown     Kind = "UNKNOWN"
)

// Retryable reports whether a failure of this kind is worth retrying.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServerError, KindMalformed:
		return true
	default:
		return false
	}
}

// Classified is the result of classifying a raw failure. RetryHint is only
// populated when the provider supplied one (e.g. a Retry-After header).
type Classified struct {
	Kind      Kind
	RetryHint time.Duration
}

// Classify maps a raw upstream failure to a Classified kind. Signals are
// checked from most to least specific: context cancellation, HTTP status
// (googleapi), gRPC status (the genai transport), network errors, malformed
// response bodies, then a string fallback for errors that lost their type
// across wrapping.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Kind: KindUnknown}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Classified{Kind: KindTimeout}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyHTTPStatus(gerr.Code, retryAfterHint(gerr))
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return classifyGRPCCode(st.Code())
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Classified{Kind: KindTimeout}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return Classified{Kind: KindTimeout}
	}

	if errors.Is(err, domain.ErrMalformedUpstream) {
		return Classified{Kind: KindMalformed}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Classified{Kind: KindMalformed}
	}

	return classifyString(err.Error())
}

func classifyHTTPStatus(code int, hint time.Duration) Classified {
	switch {
	case code == 401:
		return Classified{Kind: KindAuth}
	case code == 429:
		return Classified{Kind: KindRateLimit, RetryHint: hint}
	case code == 400 || code == 403 || code == 404:
		return Classified{Kind: KindValidation}
	case code >= 500 && code < 600:
		return Classified{Kind: KindServerError}
	default:
		return Classified{Kind: KindUnknown}
	}
}

func classifyGRPCCode(code codes.Code) Classified {
	switch code {
	case codes.Unauthenticated:
		return Classified{Kind: KindAuth}
	case codes.ResourceExhausted:
		return Classified{Kind: KindRateLimit}
	case codes.DeadlineExceeded, codes.Canceled, codes.Unavailable:
		return Classified{Kind: KindTimeout}
	case codes.Internal, codes.DataLoss, codes.Aborted:
		return Classified{Kind: KindServerError}
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return Classified{Kind: KindValidation}
	default:
		return Classified{Kind: KindUnknown}
	}
}

// classifyString is the fallback for errors flattened to text by wrapping.
func classifyString(s string) Classified {
	lower := strings.ToLower(s)

	switch {
	case strings.Contains(s, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "api key not valid"):
		return Classified{Kind: KindAuth}
	case strings.Contains(s, "429") || strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota exceeded"):
		return Classified{Kind: KindRateLimit}
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "etimedout") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "econnreset") || strings.Contains(lower, "unreachable") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "econnrefused") ||
		strings.Contains(lower, "abort"):
		return Classified{Kind: KindTimeout}
	case strings.Contains(s, "500") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "504") ||
		strings.Contains(lower, "internal server error"):
		return Classified{Kind: KindServerError}
	case strings.Contains(lower, "malformed") || strings.Contains(lower, "unexpected token") ||
		strings.Contains(lower, "invalid json") || strings.Contains(lower, "invalid character"):
		return Classified{Kind: KindMalformed}
	case strings.Contains(s, "400") || strings.Contains(s, "403") || strings.Contains(s, "404") ||
		strings.Contains(lower, "bad request") || strings.Contains(lower, "forbidden"):
		return Classified{Kind: KindValidation}
	default:
		return Classified{Kind: KindUnknown}
	}
}

// retryAfterHint extracts a Retry-After header value in whole seconds.
func retryAfterHint(gerr *googleapi.Error) time.Duration {
	if gerr.Header == nil {
		return 0
	}
	raw := gerr.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
