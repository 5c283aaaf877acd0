package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// vendorStatuses maps every status the vendor documents to the internal
// enum. A status missing here is a provider error, never a guess.
var vendorStatuses = map[string]model.SignatureStatus{
	"created":   model.SignaturePending,
	"queued":    model.SignaturePending,
	"delivered": model.SignatureSent,
	"opened":    model.SignatureViewed,
	"completed": model.SignatureSigned,
	"declined":  model.SignatureRejected,
	"expired":   model.SignatureExpired,
	"voided":    model.SignatureCancelled,
}

// MapVendorStatus translates a vendor status word.
func MapVendorStatus(vendor string) (model.SignatureStatus, error) {
	status, ok := vendorStatuses[strings.ToLower(strings.TrimSpace(vendor))]
	if !ok {
		return "", fmt.Errorf("unmapped vendor status %q", vendor)
	}
	return status, nil
}

type HTTPProvider struct {
	config     *config.ProviderConfig
	httpClient *http.Client
}

// CreateRequestBody is the create-signing-request payload.
type CreateRequestBody struct {
	SignerName     string            `json:"signer_name"`
	SignerEmail    string            `json:"signer_email"`
	DocumentBase64 string            `json:"document_base64,omitempty"`
	Filename       string            `json:"filename,omitempty"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CreateRequestResponse is returned by the vendor on creation.
type CreateRequestResponse struct {
	ID         string     `json:"id"`
	SigningURL string     `json:"signing_url"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// StatusResponse is returned by the vendor's get-status endpoint.
type StatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type voidRequestBody struct {
	Reason string `json:"reason"`
}

type voidResponse struct {
	Voided bool `json:"voided"`
}

func NewHTTPProvider(cfg *config.ProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send creates a signing request for one signer.
func (p *HTTPProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body := CreateRequestBody{
		SignerName:  req.SignerName,
		SignerEmail: req.SignerEmail,
		Filename:    req.Filename,
		CallbackURL: req.CallbackURL,
		Metadata: map[string]string{
			"contract_id": req.ContractID,
			"signer_role": string(req.Role),
		},
	}
	if body.CallbackURL == "" {
		body.CallbackURL = p.config.CallbackURL
	}
	if len(req.Document) > 0 {
		body.DocumentBase64 = base64.StdEncoding.EncodeToString(req.Document)
	}

	var resp CreateRequestResponse
	if err := p.do(ctx, "send", http.MethodPost, "/signature-requests", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &model.ProviderError{Op: "send", Err: fmt.Errorf("response carries no request id")}
	}

	return &SendResult{
		ExternalRequestID: resp.ID,
		SignatureURL:      resp.SigningURL,
		ExpiresAt:         resp.ExpiresAt,
	}, nil
}

// CheckStatus queries the vendor status of a request.
func (p *HTTPProvider) CheckStatus(ctx context.Context, externalRequestID string) (model.SignatureStatus, error) {
	var resp StatusResponse
	path := "/signature-requests/" + url.PathEscape(externalRequestID)
	if err := p.do(ctx, "check status", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}

	status, err := MapVendorStatus(resp.Status)
	if err != nil {
		return "", &model.ProviderError{Op: "check status", Err: err}
	}
	return status, nil
}

// Cancel voids a request at the vendor.
func (p *HTTPProvider) Cancel(ctx context.Context, externalRequestID, reason string) (bool, error) {
	var resp voidResponse
	path := "/signature-requests/" + url.PathEscape(externalRequestID) + "/void"
	if err := p.do(ctx, "void", http.MethodPost, path, voidRequestBody{Reason: reason}, &resp); err != nil {
		return false, err
	}
	return resp.Voided, nil
}

// do performs one JSON round trip. Any transport failure, non-2xx status or
// undecodable body becomes a *model.ProviderError.
func (p *HTTPProvider) do(ctx context.Context, op, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return &model.ProviderError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.config.APIURL, "/")+path, reader)
	if err != nil {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &model.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("body: %s", truncate(body, 256))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &model.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
