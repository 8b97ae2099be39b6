// Package bridgeerr holds the failure kinds a cross-domain borrow can end
// with. None of them is retryable: nonces, fee quotes and permit deadlines
// are single-use or time-bound, so every error aborts the whole operation.
package bridgeerr

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NotFoundError reports a registry lookup that yielded nothing where exactly
// one deployment was required.
type NotFoundError struct {
	Kind     string
	DomainID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s deployment found on domain %d", e.Kind, e.DomainID)
}

// AmbiguousChoiceError reports several candidates for a lookup that needs
// exactly one, with no usable disambiguation.
type AmbiguousChoiceError struct {
	Kind       string
	DomainID   uint64
	Candidates []string
	Err        error
}

func (e *AmbiguousChoiceError) Error() string {
	msg := fmt.Sprintf("%d %s candidates on domain %d need disambiguation: %s",
		len(e.Candidates), e.Kind, e.DomainID, strings.Join(e.Candidates, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AmbiguousChoiceError) Unwrap() error { return e.Err }

// SigningError reports an authorization that could not be signed.
type SigningError struct {
	Kind string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing %s authorization: %v", e.Kind, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// StaleDataError reports a deadline that elapsed before it could be used.
type StaleDataError struct {
	What     string
	Deadline *big.Int
	Now      uint64
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("%s deadline %v is not after latest block time %d", e.What, e.Deadline, e.Now)
}

// FeeQuoteError reports a messaging-fee oracle that rejected the request.
type FeeQuoteError struct {
	Leg           string
	DestinationID uint16
	Err           error
}

func (e *FeeQuoteError) Error() string {
	return fmt.Sprintf("%s fee quote for destination %d: %v", e.Leg, e.DestinationID, e.Err)
}

func (e *FeeQuoteError) Unwrap() error { return e.Err }

// InconsistentStateError is a violated cross-field invariant. It marks a
// programming error and must never be retried.
type InconsistentStateError struct {
	Field  string
	Reason string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent %s: %s", e.Field, e.Reason)
}

// Inconsistent is shorthand for building an InconsistentStateError.
func Inconsistent(field, format string, args ...interface{}) error {
	return &InconsistentStateError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SubmissionError covers reverts, out-of-gas and RPC failures while
// sending the assembled call. Reason carries the revert string when the
// node returned one.
type SubmissionError struct {
	Stage  string
	TxHash common.Hash
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	var b strings.Builder
	b.WriteString("submission failed at ")
	b.WriteString(e.Stage)
	if e.TxHash != (common.Hash{}) {
		b.WriteString(" (tx ")
		b.WriteString(e.TxHash.Hex())
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": reverted: ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAmbiguous(err error) bool {
	var target *AmbiguousChoiceError
	return errors.As(err, &target)
}

func IsSigning(err error) bool {
	var target *SigningError
	return errors.As(err, &target)
}

func IsStale(err error) bool {
	var target *StaleDataError
	return errors.As(err, &target)
}

func IsFeeQuote(err error) bool {
	var target *FeeQuoteError
	return errors.As(err, &target)
}

func IsInconsistent(err error) bool {
	var target *InconsistentStateError
	return errors.As(err, &target)
}

func IsSubmission(err error) bool {
	var target *SubmissionError
	return errors.As(err, &target)
}
