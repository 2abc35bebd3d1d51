// Package core holds the error taxonomy shared across layers (spec §7).
// Transient errors are retried locally by the layer that sees them; the
// kinds here are the ones that must be recognizable at a layer boundary —
// by the caller checking errors.Is/errors.As, not by string matching.
package core

import (
	"errors"
	"strings"
)

var (
	// ErrStaleSnapshot means an orderbook snapshot's captured_at exceeds
	// max_orderbook_age at the point of use. The caller must abort the
	// cycle rather than trade on it.
	ErrStaleSnapshot = errors.New("orderbook snapshot is stale")

	// ErrSeqRegression means a book delta's sequence number did not exceed
	// the book's current sequence number. The delta is dropped, not applied.
	ErrSeqRegression = errors.New("orderbook delta sequence regression")

	// ErrAuthFailure means the venue rejected the current authentication.
	// Callers must clear any cached auth handle and retry once.
	ErrAuthFailure = errors.New("venue authentication failed")

	// ErrVenueRejected wraps a venue's non-empty error_msg on an order
	// response.
	ErrVenueRejected = errors.New("venue rejected order")

	// ErrInsufficientBalance is the "insufficient balance / allowance"
	// sub-kind of ErrVenueRejected that triggers the 90% fallback sell.
	ErrInsufficientBalance = errors.New("insufficient balance or allowance")

	// ErrNoOpenCaptured means a market has no captured epoch-open price yet;
	// strategies that depend on one must treat this as "no signal".
	ErrNoOpenCaptured = errors.New("no epoch open price captured")

	// ErrUnrecoverableConfig means a required config value (e.g. a live-mode
	// private key) is missing. The process must exit non-zero.
	ErrUnrecoverableConfig = errors.New("unrecoverable configuration error")
)

// RejectionError carries the venue's raw error message alongside the
// classified sentinel so callers can both log the original text and
// errors.Is-match the class.
type RejectionError struct {
	Class   error
	Message string
}

func (e *RejectionError) Error() string { return e.Class.Error() + ": " + e.Message }
func (e *RejectionError) Unwrap() error { return e.Class }

// ClassifyRejection inspects a venue error string and returns a
// RejectionError classified as insufficient-balance when the text matches
// known phrasings, or a plain venue-rejected error otherwise. Venues return
// rejection reasons as free text, not structured codes, so this is
// necessarily a substring match — grounded on original_source's
// order_manager.rs fallback-to-string-matching behavior for cancel errors.
func ClassifyRejection(msg string) error {
	low := strings.ToLower(msg)
	for _, phrase := range []string{"insufficient balance", "insufficient allowance", "not enough balance"} {
		if strings.Contains(low, phrase) {
			return &RejectionError{Class: ErrInsufficientBalance, Message: msg}
		}
	}
	return &RejectionError{Class: ErrVenueRejected, Message: msg}
}
