package model

import (
	"fmt"
	"time"
)

// SignerRole identifies which party a signature record belongs to.
type SignerRole string

const (
	SignerOwner     SignerRole = "owner"
	SignerTenant    SignerRole = "tenant"
	SignerGuarantor SignerRole = "guarantor"
)

// ParseSignerRole validates a role from a URL or a database row.
func ParseSignerRole(s string) (SignerRole, error) {
	switch SignerRole(s) {
	case SignerOwner, SignerTenant, SignerGuarantor:
		return SignerRole(s), nil
	}
	return "", fmt.Errorf("unknown signer role %q", s)
}

// SignatureStatus is the per-signer signing status.
type SignatureStatus string

const (
	SignaturePending   SignatureStatus = "pending"
	SignatureSent      SignatureStatus = "sent"
	SignatureViewed    SignatureStatus = "viewed"
	SignatureSigned    SignatureStatus = "signed"
	SignatureRejected  SignatureStatus = "rejected"
	SignatureExpired   SignatureStatus = "expired"
	SignatureCancelled SignatureStatus = "cancelled"
)

// ParseSignatureStatus validates a persisted signature status.
func ParseSignatureStatus(s string) (SignatureStatus, error) {
	switch SignatureStatus(s) {
	case SignaturePending, SignatureSent, SignatureViewed, SignatureSigned,
		SignatureRejected, SignatureExpired, SignatureCancelled:
		return SignatureStatus(s), nil
	}
	return "", fmt.Errorf("unknown signature status %q", s)
}

// Outstanding reports whether the signer may still complete the request.
func (s SignatureStatus) Outstanding() bool {
	return s == SignaturePending || s == SignatureSent || s == SignatureViewed
}

// Final reports whether the record needs a fresh dispatch to move again.
func (s SignatureStatus) Final() bool {
	switch s {
	case SignatureSigned, SignatureRejected, SignatureExpired, SignatureCancelled:
		return true
	}
	return false
}

// SignatureRecord tracks one signer's request at the signature provider.
type SignatureRecord struct {
	ID                string          `json:"id"`
	ContractID        string          `json:"contract_id"`
	SignerType        SignerRole      `json:"signer_type"`
	SignerName        string          `json:"signer_name"`
	SignerEmail       string          `json:"signer_email"`
	ExternalRequestID string          `json:"external_request_id,omitempty"`
	SignatureURL      string          `json:"signature_url,omitempty"`
	Status            SignatureStatus `json:"status"`
	SignedAt          *time.Time      `json:"signed_at,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`

	// Audit metadata, writable even after the record is signed.
	LastError     string     `json:"last_error,omitempty"`
	Attempts      int        `json:"attempts"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired reports whether the record's signing window closed before at.
func (r *SignatureRecord) Expired(at time.Time) bool {
	return r.ExpiresAt != nil && at.After(*r.ExpiresAt)
}
