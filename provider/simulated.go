package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// Thresholds of the simulated signing timeline, measured from request creation.
const (
	SimulatedSentAfter    = 2 * time.Minute
	SimulatedViewedAfter  = 10 * time.Minute
	SimulatedSignedAfter  = 20 * time.Minute
	SimulatedExpiredAfter = 30 * time.Minute
)

const simulatedPrefix = "sim_"

// SimulatedStatus maps the time elapsed since a request was created to its
// status. It is pure: the same elapsed time always yields the same status.
func SimulatedStatus(elapsed time.Duration) model.SignatureStatus {
	switch {
	case elapsed < SimulatedSentAfter:
		return model.SignaturePending
	case elapsed < SimulatedViewedAfter:
		return model.SignatureSent
	case elapsed < SimulatedSignedAfter:
		return model.SignatureViewed
	case elapsed < SimulatedExpiredAfter:
		return model.SignatureSigned
	default:
		return model.SignatureExpired
	}
}

// Simulated is a provider for environments without a live signing vendor.
// The creation instant is encoded in the external request id, so status
// checks need no stored state beyond explicit cancellations.
type Simulated struct {
	now            Clock
	signingBaseURL string

	mu        sync.RWMutex
	cancelled map[string]bool
}

// NewSimulated creates a simulated provider. A nil clock uses time.Now.
func NewSimulated(signingBaseURL string, now Clock) *Simulated {
	if now == nil {
		now = time.Now
	}
	if signingBaseURL == "" {
		signingBaseURL = "https://sign.example.invalid"
	}
	return &Simulated{
		now:            now,
		signingBaseURL: strings.TrimRight(signingBaseURL, "/"),
		cancelled:      make(map[string]bool),
	}
}

// Send creates a simulated request. Addresses under the reserved .invalid
// domain are refused so callers can exercise partial dispatch failures.
func (s *Simulated) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.ProviderError{Op: "send", Err: err}
	}
	if strings.HasSuffix(strings.ToLower(req.SignerEmail), ".invalid") {
		return nil, &model.ProviderError{
			Op:         "send",
			StatusCode: http.StatusUnprocessableEntity,
			Err:        fmt.Errorf("undeliverable address %s", req.SignerEmail),
		}
	}

	created := s.now().UTC()
	id := fmt.Sprintf("%s%d_%s", simulatedPrefix, created.UnixMilli(), uuid.NewString())
	expires := created.Add(SimulatedExpiredAfter)

	return &SendResult{
		ExternalRequestID: id,
		SignatureURL:      s.signingBaseURL + "/sign/" + id,
		ExpiresAt:         &expires,
	}, nil
}

// CheckStatus derives the status from the time elapsed since creation.
func (s *Simulated) CheckStatus(ctx context.Context, externalRequestID string) (model.SignatureStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", &model.ProviderError{Op: "check status", Err: err}
	}
	created, err := SimulatedCreatedAt(externalRequestID)
	if err != nil {
		return "", &model.ProviderError{Op: "check status", StatusCode: http.StatusNotFound, Err: err}
	}

	s.mu.RLock()
	cancelled := s.cancelled[externalRequestID]
	s.mu.RUnlock()
	if cancelled {
		return model.SignatureCancelled, nil
	}

	return SimulatedStatus(s.now().Sub(created)), nil
}

// Cancel voids a simulated request. Requests already signed cannot be voided.
func (s *Simulated) Cancel(ctx context.Context, externalRequestID, _ string) (bool, error) {
	status, err := s.CheckStatus(ctx, externalRequestID)
	if err != nil {
		return false, err
	}
	if status == model.SignatureSigned || status == model.SignatureExpired {
		return false, nil
	}

	s.mu.Lock()
	s.cancelled[externalRequestID] = true
	s.mu.Unlock()
	return true, nil
}

// SimulatedCreatedAt recovers the creation instant from a simulated id.
func SimulatedCreatedAt(externalRequestID string) (time.Time, error) {
	if !strings.HasPrefix(externalRequestID, simulatedPrefix) {
		return time.Time{}, fmt.Errorf("not a simulated request id: %q", externalRequestID)
	}
	rest := strings.TrimPrefix(externalRequestID, simulatedPrefix)
	millis, _, ok := strings.Cut(rest, "_")
	if !ok {
		return time.Time{}, errors.New("malformed simulated request id")
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed simulated request id: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
