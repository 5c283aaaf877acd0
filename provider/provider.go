// Package provider abstracts the electronic-signature backend.
//
// Two implementations exist: Simulated, whose request status is a pure
// function of elapsed time, and HTTPProvider, which talks to a remote
// signing service. Both are injected into the orchestrator through the
// Provider interface.
package provider

import (
	"context"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// SendRequest asks the provider to collect one signer's signature.
type SendRequest struct {
	ContractID  string
	Role        model.SignerRole
	SignerName  string
	SignerEmail string
	Document    []byte
	Filename    string
	CallbackURL string
}

// SendResult is the provider's acknowledgement of a signing request.
type SendResult struct {
	ExternalRequestID string
	SignatureURL      string
	ExpiresAt         *time.Time
}

// Provider is the signature backend boundary. Failures are returned as
// *model.ProviderError; a non-nil error never comes with a usable result.
type Provider interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	CheckStatus(ctx context.Context, externalRequestID string) (model.SignatureStatus, error)
	Cancel(ctx context.Context, externalRequestID, reason string) (bool, error)
}

// Clock returns the current time. Tests replace it to move time forward.
type Clock func() time.Time
