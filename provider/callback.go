package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Signature"

// CallbackPayload is the vendor's status notification.
type CallbackPayload struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CallbackEvent is a verified notification mapped to the internal enum.
type CallbackEvent struct {
	ExternalRequestID string
	Status            model.SignatureStatus
	OccurredAt        time.Time
}

// VerifyCallback checks the body signature against the shared secret.
func VerifyCallback(headers http.Header, rawBody []byte, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(headers.Get(SignatureHeader)))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// SignCallback computes the header value for a body. Used by tests and the
// simulated webhook sender.
func SignCallback(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseCallback decodes a callback body and maps its status.
func ParseCallback(rawBody []byte) (*CallbackEvent, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("invalid callback payload: %w", err)
	}
	if payload.RequestID == "" {
		return nil, errors.New("callback payload has no request_id")
	}
	status, err := MapVendorStatus(payload.Status)
	if err != nil {
		return nil, err
	}
	return &CallbackEvent{
		ExternalRequestID: payload.RequestID,
		Status:            status,
		OccurredAt:        payload.OccurredAt,
	}, nil
}
