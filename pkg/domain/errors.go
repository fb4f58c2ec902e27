// Package domain holds the entities and error taxonomy shared across the
// compliance pipeline (pkg/docstore, pkg/chunker, pkg/retrieval, pkg/bundle,
// pkg/compiler, pkg/applicability, pkg/extraction, pkg/verification,
// pkg/orchestrator, pkg/runcache, pkg/evidencepack, pkg/coverage).
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the way the HTTP edge and run event log
// need to see them, independent of the Go error chain that produced them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindAuthz          ErrorKind = "AUTHZ"
	KindConflict       ErrorKind = "CONFLICT"
	KindIntegrity      ErrorKind = "INTEGRITY"
	KindDependency     ErrorKind = "DEPENDENCY"
	KindProviderSchema ErrorKind = "PROVIDER_SCHEMA"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindCancelled      ErrorKind = "CANCELLED"
	KindEmptyPlan      ErrorKind = "EMPTY_PLAN"
	KindEmptyCorpus    ErrorKind = "EMPTY_CORPUS"
)

// KindError wraps an underlying error with a taxonomy kind and optional
// machine-readable reason code (e.g. a FailureReasonCode), so handlers
// can map it to an HTTP status and a one-line explanation without string
// matching.
type KindError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *KindError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewError builds a KindError, wrapping err (which may be nil for a
// standalone sentinel-style error).
func NewError(kind ErrorKind, reason string, err error) *KindError {
	return &KindError{Kind: kind, Reason: reason, Err: err}
}

// Errorf builds a KindError with a formatted message as its Err.
func Errorf(kind ErrorKind, format string, args ...interface{}) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err's chain, or "" if none is present.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// ReasonOf extracts the Reason from err's chain, or "" if none is present.
func ReasonOf(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Reason
	}
	return ""
}

// FailureReasonCode enumerates the per-datapoint verification failure
// reasons of spec §4.9/§3.
type FailureReasonCode string

const (
	ReasonChunkNotFound   FailureReasonCode = "CHUNK_NOT_FOUND"
	ReasonEmptyChunk      FailureReasonCode = "EMPTY_CHUNK"
	ReasonNumericMismatch FailureReasonCode = "NUMERIC_MISMATCH"
	ReasonBaselineMissing FailureReasonCode = "BASELINE_MISSING"
	ReasonUnitMismatch    FailureReasonCode = "UNIT_MISMATCH"
	ReasonYearMissing     FailureReasonCode = "YEAR_MISSING"
	ReasonEvidenceMissing FailureReasonCode = "EVIDENCE_MISSING"
	ReasonPhaseIn         FailureReasonCode = "PHASE_IN"
	ReasonUnknownSymbol   FailureReasonCode = "UNKNOWN_SYMBOL"
)
