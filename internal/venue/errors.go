package venue

import (
	"fmt"
	"strings"
)

// txHashMarker is the venue's stray delayed-success signal: some endpoints
// report success by raising an error whose text happens to contain a
// transaction hash rather than returning errno==0 (SPEC_FULL.md §4.5, §4.10,
// §9).
const txHashMarker = "Transaction hash:"

// ExtractTxHash reports whether s carries the delayed-success marker and, if
// so, the hash text immediately following it. Shared by ordersubmit and
// mergesplit since both surfaces observe the same venue quirk.
func ExtractTxHash(s string) (string, bool) {
	idx := strings.Index(s, txHashMarker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(s[idx+len(txHashMarker):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// Kind discriminates venue-surfaced failures so callers can branch on cause
// without string-sniffing, per SPEC_FULL.md §4.5/§7.
type Kind string

const (
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindRegionBlocked       Kind = "RegionBlocked"
	KindPriceOutOfBand      Kind = "PriceOutOfBand"
	KindSizeBelowMin        Kind = "SizeBelowMin"
	KindMarketClosed        Kind = "MarketClosed"
	KindNotFound            Kind = "NotFound"
	KindNetwork             Kind = "Network" // retryable
	KindOther               Kind = "Other"
)

// Error is the structured failure value returned by every venue operation
// that can fail for a business or transport reason. It wraps the underlying
// transport/parse error so callers can still errors.Is/errors.As through it.
type Error struct {
	Kind    Kind
	Errno   int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("venue: %s (errno=%d): %s", e.Kind, e.Errno, e.Message)
	}
	return fmt.Sprintf("venue: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the submitter/merge-split service should retry
// this failure with backoff (SPEC_FULL.md §4.5, §4.10).
func (e *Error) Retryable() bool { return e.Kind == KindNetwork }

// classifyEnvelope maps a well-known errno to a structured Kind. The venue
// has no dedicated errno for price/size/market-closed business rejections
// (SPEC_FULL.md §4.5's "PriceOutOfBand, SizeBelowMin, MarketClosed" only ever
// surface as errmsg text), so those fall back to a substring match over
// errmsg, the same "also parseable from errmsg" convention §6 documents for
// 10207. Anything still unrecognized falls through to KindOther so the
// caller still gets a typed value rather than a bare string.
func classifyEnvelope(errno int, errmsg string) *Error {
	switch errno {
	case 0:
		return nil
	case 10207:
		return &Error{Kind: KindInsufficientBalance, Errno: errno, Message: errmsg}
	case 10403:
		return &Error{Kind: KindRegionBlocked, Errno: errno, Message: errmsg}
	}

	lower := strings.ToLower(errmsg)
	switch {
	case strings.Contains(lower, "price") && (strings.Contains(lower, "out of band") || strings.Contains(lower, "out of range") || strings.Contains(lower, "invalid price")):
		return &Error{Kind: KindPriceOutOfBand, Errno: errno, Message: errmsg}
	case strings.Contains(lower, "size") && (strings.Contains(lower, "below min") || strings.Contains(lower, "minimum size") || strings.Contains(lower, "too small")):
		return &Error{Kind: KindSizeBelowMin, Errno: errno, Message: errmsg}
	case strings.Contains(lower, "market") && (strings.Contains(lower, "closed") || strings.Contains(lower, "not active") || strings.Contains(lower, "resolved")):
		return &Error{Kind: KindMarketClosed, Errno: errno, Message: errmsg}
	}

	return &Error{Kind: KindOther, Errno: errno, Message: errmsg}
}

// classifyHTTPStatus maps a transport-level HTTP status to a Kind. 502/503/504
// are retryable network faults per SPEC_FULL.md §6.
func classifyHTTPStatus(status int, body string) *Error {
	switch {
	case status == 502 || status == 503 || status == 504:
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("status %d: %s", status, body)}
	case status == 404:
		return &Error{Kind: KindNotFound, Message: body}
	case status >= 400:
		return &Error{Kind: KindOther, Message: fmt.Sprintf("status %d: %s", status, body)}
	default:
		return nil
	}
}

// wrapTransport classifies a transport-level error (dial/timeout failures
// that never reached a response) as retryable network noise.
func wrapTransport(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Cause: err}
}
