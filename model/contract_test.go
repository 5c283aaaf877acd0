package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestContractStatusConstants(t *testing.T) {
	expected := []string{"draft", "approved", "sent_to_signature", "partially_signed", "fully_signed", "cancelled"}

	for i, status := range ContractStatuses {
		if string(status) != expected[i] {
			t.Errorf("Expected '%s', got '%s'", expected[i], status)
		}
	}
}

func TestParseContractStatus(t *testing.T) {
	for _, s := range ContractStatuses {
		got, err := ParseContractStatus(string(s))
		if err != nil {
			t.Fatalf("Unexpected error for %s: %v", s, err)
		}
		if got != s {
			t.Errorf("Expected %s, got %s", s, got)
		}
	}

	if _, err := ParseContractStatus("signed"); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestContractStatusRank(t *testing.T) {
	if ContractSentToSignature.Rank() >= ContractPartiallySigned.Rank() {
		t.Error("sent_to_signature must rank below partially_signed")
	}
	if ContractPartiallySigned.Rank() >= ContractFullySigned.Rank() {
		t.Error("partially_signed must rank below fully_signed")
	}
	if ContractCancelled.Rank() != -1 {
		t.Errorf("Expected cancelled rank -1, got %d", ContractCancelled.Rank())
	}
	if !ContractFullySigned.Terminal() || !ContractCancelled.Terminal() || ContractApproved.Terminal() {
		t.Error("Unexpected terminal classification")
	}
}

func TestSignatureStatusClassification(t *testing.T) {
	tests := []struct {
		status      SignatureStatus
		outstanding bool
		final       bool
	}{
		{SignaturePending, true, false},
		{SignatureSent, true, false},
		{SignatureViewed, true, false},
		{SignatureSigned, false, true},
		{SignatureRejected, false, true},
		{SignatureExpired, false, true},
		{SignatureCancelled, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if tt.status.Outstanding() != tt.outstanding {
				t.Errorf("Outstanding() = %v, want %v", tt.status.Outstanding(), tt.outstanding)
			}
			if tt.status.Final() != tt.final {
				t.Errorf("Final() = %v, want %v", tt.status.Final(), tt.final)
			}
		})
	}
}

func TestSignatureRecordExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(30 * time.Minute)
	rec := &SignatureRecord{ExpiresAt: &expires}

	if rec.Expired(now) {
		t.Error("Record should not be expired before ExpiresAt")
	}
	if !rec.Expired(now.Add(31 * time.Minute)) {
		t.Error("Record should be expired after ExpiresAt")
	}
	if (&SignatureRecord{}).Expired(now) {
		t.Error("Record without ExpiresAt never expires")
	}
}

func TestErrorsUnwrapAndFormat(t *testing.T) {
	inner := errors.New("connection refused")
	var err error = fmt.Errorf("send: %w", &ProviderError{Op: "send", Err: inner})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatal("Expected ProviderError in chain")
	}
	if !errors.Is(err, inner) {
		t.Error("ProviderError should unwrap to its cause")
	}

	te := &TransitionError{
		ContractID: "c1",
		Action:     "approve",
		Expected:   []ContractStatus{ContractDraft},
		Actual:     ContractApproved,
	}
	want := "TRANSITION_ERROR: cannot approve contract c1 in status approved (expected draft)"
	if te.Error() != want {
		t.Errorf("Expected %q, got %q", want, te.Error())
	}
}

func TestExportFilename(t *testing.T) {
	c := &Contract{ID: "abc-123"}
	if c.ExportFilename() != "contract-abc-123.pdf" {
		t.Errorf("Unexpected filename %s", c.ExportFilename())
	}
}
