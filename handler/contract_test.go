package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

func TestContractHandlerCreate(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]any{
		"title":   "Contrato Depto 402",
		"content": []map[string]any{{"id": "s1", "title": "Partes", "body": "..."}},
		"parties": map[string]any{
			"owner":  map[string]string{"name": "Ana", "email": "ana@example.com"},
			"tenant": map[string]string{"name": "Luis", "email": "luis@example.com"},
		},
	}
	w := env.do("POST", "/api/contracts", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("Expected a generated id")
	}
	if created["status"] != string(model.ContractDraft) {
		t.Errorf("Expected draft, got %v", created["status"])
	}

	body["id"] = id
	if w := env.do("POST", "/api/contracts", body); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate id, got %d", w.Code)
	}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"content": []any{}}},
		{"section without id", map[string]any{"title": "x", "content": []map[string]any{{"title": "t", "body": "b"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do("POST", "/api/contracts", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestContractHandlerList(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "d1", model.ContractDraft)
	env.seed(t, "d2", model.ContractDraft)
	env.seed(t, "a1", model.ContractApproved)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{"all", "", http.StatusOK, 3},
		{"drafts", "?status=draft", http.StatusOK, 2},
		{"several", "?status=draft,approved", http.StatusOK, 3},
		{"none match", "?status=fully_signed", http.StatusOK, 0},
		{"unknown status", "?status=archived", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", "/api/contracts"+tt.query, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			contracts, _ := decode(t, w)["contracts"].([]any)
			if len(contracts) != tt.expectedCount {
				t.Errorf("Expected %d contracts, got %d", tt.expectedCount, len(contracts))
			}
		})
	}
}

func TestContractHandlerGet(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sent(t, "c1")

	w := env.do("GET", "/api/contracts/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decode(t, w)
	contract, _ := body["contract"].(map[string]any)
	if contract["status"] != string(model.ContractSentToSignature) {
		t.Errorf("Unexpected contract %v", contract)
	}
	if sigs, _ := body["signatures"].([]any); len(sigs) != 2 {
		t.Errorf("Expected 2 signature records, got %d", len(sigs))
	}

	w = env.do("GET", "/api/contracts/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if decode(t, w)["code"] != string(codeNotFound) {
		t.Errorf("Expected code %s", codeNotFound)
	}
}

func TestContractLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "c1", model.ContractDraft)

	steps := []struct {
		name           string
		method, path   string
		expectedStatus int
		expectedCode   string
		contract       model.ContractStatus
	}{
		{"send before approval", "POST", "/api/contracts/c1/send", http.StatusConflict, string(model.CodeTransition), model.ContractDraft},
		{"approve", "POST", "/api/contracts/c1/approve", http.StatusOK, "", model.ContractApproved},
		{"approve twice", "POST", "/api/contracts/c1/approve", http.StatusConflict, string(model.CodeTransition), model.ContractApproved},
		{"send", "POST", "/api/contracts/c1/send", http.StatusOK, "", model.ContractSentToSignature},
		{"owner signs", "POST", "/api/contracts/c1/signatures/owner/complete", http.StatusOK, "", model.ContractPartiallySigned},
		{"owner signs again", "POST", "/api/contracts/c1/signatures/owner/complete", http.StatusOK, "", model.ContractPartiallySigned},
		{"unknown role", "POST", "/api/contracts/c1/signatures/notary/complete", http.StatusBadRequest, string(codeBadRequest), model.ContractPartiallySigned},
		{"no guarantor record", "POST", "/api/contracts/c1/signatures/guarantor/complete", http.StatusNotFound, string(codeNotFound), model.ContractPartiallySigned},
		{"tenant signs", "POST", "/api/contracts/c1/signatures/tenant/complete", http.StatusOK, "", model.ContractFullySigned},
		{"cancel after signing", "POST", "/api/contracts/c1/cancel", http.StatusConflict, string(model.CodeTransition), model.ContractFullySigned},
	}

	for _, step := range steps {
		w := env.do(step.method, step.path, nil)
		if w.Code != step.expectedStatus {
			t.Fatalf("%s: expected status %d, got %d: %s", step.name, step.expectedStatus, w.Code, w.Body.String())
		}
		if step.expectedCode != "" {
			if code := decode(t, w)["code"]; code != step.expectedCode {
				t.Errorf("%s: expected code %s, got %v", step.name, step.expectedCode, code)
			}
		}
		if got := env.status(t, "c1"); got != step.contract {
			t.Fatalf("%s: expected contract %s, got %s", step.name, step.contract, got)
		}
	}
}

func TestContractHandlerSendFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "c1", model.ContractApproved)

	undeliverable := map[string]any{
		"owner":  map[string]string{"name": "Ana", "email": "ana@mail.invalid"},
		"tenant": map[string]string{"name": "Luis", "email": "luis@mail.invalid"},
	}
	w := env.do("POST", "/api/contracts/c1/send", undeliverable)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["code"] != string(model.CodeDispatch) {
		t.Errorf("Expected code %s, got %v", model.CodeDispatch, body["code"])
	}
	if _, ok := body["report"].(map[string]any); !ok {
		t.Error("Expected the dispatch report in the error body")
	}
	if got := env.status(t, "c1"); got != model.ContractApproved {
		t.Errorf("Expected contract to stay approved, got %s", got)
	}

	// One undeliverable signer is a partial dispatch.
	partial := map[string]any{
		"owner":  map[string]string{"name": "Ana", "email": "ana@example.com"},
		"tenant": map[string]string{"name": "Luis", "email": "luis@mail.invalid"},
	}
	w = env.do("POST", "/api/contracts/c1/send", partial)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	report, _ := decode(t, w)["report"].(map[string]any)
	if report["dispatched"] != float64(1) {
		t.Errorf("Expected 1 dispatched, got %v", report["dispatched"])
	}

	// Resending to the same bad address fails at the provider again.
	w = env.do("POST", "/api/contracts/c1/signatures/tenant/resend", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}
	if body := decode(t, w); body["code"] != string(model.CodeProvider) || body["signature"] == nil {
		t.Errorf("Unexpected body %v", body)
	}

	w = env.do("POST", "/api/contracts/c1/signatures/owner/resend", nil)
	if w.Code != http.StatusConflict || decode(t, w)["code"] != string(codeNotResendable) {
		t.Errorf("Expected live record to be not resendable, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/contracts/c1/send", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+env.token)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed parties, got %d", w.Code)
	}
}

func TestContractHandlerExpiryAndResend(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sent(t, "c1")
	env.clock.Advance(31 * time.Minute)

	w := env.do("POST", "/api/contracts/c1/signatures/owner/complete", nil)
	if w.Code != http.StatusGone {
		t.Fatalf("Expected status 410, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["code"] != string(model.CodeExpiry) {
		t.Error("Expected expiry code")
	}
	if rec := env.record(t, "c1", model.SignerOwner); rec.Status != model.SignatureExpired {
		t.Errorf("Expected owner record expired, got %s", rec.Status)
	}

	w = env.do("POST", "/api/contracts/c1/signatures/owner/resend", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if rec := env.record(t, "c1", model.SignerOwner); rec.Status != model.SignatureSent || rec.Attempts != 2 {
		t.Errorf("Expected a fresh request, got %s after %d attempts", rec.Status, rec.Attempts)
	}

	if w := env.do("POST", "/api/contracts/c1/signatures/owner/complete", nil); w.Code != http.StatusOK {
		t.Errorf("Expected signing the fresh request to succeed, got %d", w.Code)
	}
	if got := env.status(t, "c1"); got != model.ContractPartiallySigned {
		t.Errorf("Expected partially_signed, got %s", got)
	}
}

func TestContractHandlerPollAndRecompute(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "d1", model.ContractDraft)
	env.sent(t, "c1")

	if w := env.do("POST", "/api/contracts/d1/poll", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 polling a draft, got %d", w.Code)
	}
	if w := env.do("POST", "/api/contracts/d1/recompute", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 recomputing a draft, got %d", w.Code)
	}

	w := env.do("POST", "/api/contracts/c1/recompute", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != string(model.ContractSentToSignature) {
		t.Errorf("Unexpected recompute response %d: %s", w.Code, w.Body.String())
	}

	// The simulated provider reports signed between 20 and 30 minutes.
	env.clock.Advance(22 * time.Minute)
	w = env.do("POST", "/api/contracts/c1/poll", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	report := decode(t, w)
	if report["checked"] != float64(2) || report["updated"] != float64(2) {
		t.Errorf("Unexpected poll report %v", report)
	}
	if report["status"] != string(model.ContractFullySigned) {
		t.Errorf("Expected fully_signed, got %v", report["status"])
	}
}

func TestContractHandlerCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sent(t, "c1")

	w := env.do("POST", "/api/contracts/c1/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	for _, role := range []model.SignerRole{model.SignerOwner, model.SignerTenant} {
		if rec := env.record(t, "c1", role); rec.Status != model.SignatureCancelled {
			t.Errorf("Expected %s record cancelled, got %s", role, rec.Status)
		}
	}

	// A signer finishing after cancellation changes nothing.
	env.do("POST", "/api/contracts/c1/signatures/owner/complete", nil)
	if got := env.status(t, "c1"); got != model.ContractCancelled {
		t.Errorf("Expected cancelled, got %s", got)
	}
}

func TestContractHandlerExport(t *testing.T) {
	artifacts := &memoryArtifacts{}
	env := newTestEnv(t, artifacts)
	env.seed(t, "c1", model.ContractApproved)

	w := env.do("GET", "/api/contracts/c1/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="contract-c1.pdf"`) {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if w.Header().Get("X-Page-Count") == "" {
		t.Error("Expected X-Page-Count header")
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Expected a PDF body")
	}

	w = env.do("GET", "/api/contracts/c1/export?store=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	artifact, _ := decode(t, w)["artifact"].(map[string]any)
	if artifact["key"] != "contracts/c1/contract-c1.pdf" {
		t.Errorf("Unexpected artifact %v", artifact)
	}
	if len(artifacts.keys) != 1 {
		t.Errorf("Expected one upload, got %d", len(artifacts.keys))
	}

	if w := env.do("GET", "/api/contracts/missing/export", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestContractHandlerExportErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "c1", model.ContractDraft)

	if w := env.do("GET", "/api/contracts/c1/export?store=true", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without artifact storage, got %d", w.Code)
	}

	w := env.do("POST", "/api/contracts", map[string]any{"id": "empty", "title": "Sin contenido"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	w = env.do("GET", "/api/contracts/empty/export", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	if decode(t, w)["code"] != string(model.CodeRender) {
		t.Error("Expected render error code")
	}
}

func TestContractRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/contracts", "/api/contracts/c1", "/api/contracts/c1/export"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected health to be public, got %d", w.Code)
	}
}
