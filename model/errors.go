package model

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a stable identifier for API responses and logs.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeTransition ErrorCode = "TRANSITION_ERROR"
	CodeDispatch   ErrorCode = "DISPATCH_ERROR"
	CodeProvider   ErrorCode = "PROVIDER_ERROR"
	CodeRender     ErrorCode = "RENDER_ERROR"
	CodeExpiry     ErrorCode = "EXPIRY_ERROR"
)

// ValidationError means a signer is missing required contact data.
// The signer is skipped; other signers are still dispatched.
type ValidationError struct {
	Role  SignerRole
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: signer %s is missing %s", CodeValidation, e.Role, e.Field)
}

// TransitionError is an illegal or stale contract status change.
// Nothing was written.
type TransitionError struct {
	ContractID string
	Action     string
	Expected   []ContractStatus
	Actual     ContractStatus
}

func (e *TransitionError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		expected[i] = string(s)
	}
	return fmt.Sprintf("%s: cannot %s contract %s in status %s (expected %s)",
		CodeTransition, e.Action, e.ContractID, e.Actual, strings.Join(expected, "|"))
}

// DispatchError means no signer could be dispatched. The contract stays approved.
type DispatchError struct {
	ContractID string
	Failures   map[SignerRole]error
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, role := range []SignerRole{SignerOwner, SignerTenant, SignerGuarantor} {
		if err, ok := e.Failures[role]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", role, err))
		}
	}
	return fmt.Sprintf("%s: no signer dispatched for contract %s [%s]",
		CodeDispatch, e.ContractID, strings.Join(parts, "; "))
}

// ProviderError is a network, timeout or non-2xx failure at the signature
// provider. The affected record keeps its last known status.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failed with status %d: %v", CodeProvider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", CodeProvider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RenderError is a rasterization failure. No artifact is produced.
type RenderError struct {
	SectionID string
	Reason    string
}

func (e *RenderError) Error() string {
	if e.SectionID != "" {
		return fmt.Sprintf("%s: section %s: %s", CodeRender, e.SectionID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", CodeRender, e.Reason)
}

// ExpiryError means a signer tried to complete after the request expired.
// The record is now expired and needs a fresh dispatch.
type ExpiryError struct {
	ContractID string
	Role       SignerRole
	ExpiresAt  time.Time
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("%s: signature request for %s on contract %s expired at %s",
		CodeExpiry, e.Role, e.ContractID, e.ExpiresAt.Format(time.RFC3339))
}
