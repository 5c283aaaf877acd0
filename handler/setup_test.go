package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/middleware"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/provider"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/render"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

const testWebhookSecret = "whsec-test"

func init() {
	gin.SetMode(gin.TestMode)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryArtifacts struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryArtifacts) Put(ctx context.Context, key string, data []byte, contentType string) (*service.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return &service.Artifact{Key: key, Size: int64(len(data)), URL: "https://files.example.com/" + key}, nil
}

// testEnv is the full API over an in-memory store and the simulated provider.
type testEnv struct {
	cfg    *config.Config
	clock  *clock
	store  *service.MemoryStore
	router *gin.Engine
	token  string
}

func newTestEnv(t *testing.T, artifacts service.ArtifactStore) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 24},
		Users: []config.User{
			{Username: "agent1", Password: "secret1", Role: "agent"},
			{Username: "ops", Password: "secret2"},
		},
		Provider: config.ProviderConfig{WebhookSecret: testWebhookSecret},
	}

	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := service.NewMemoryStore(0)
	machine := service.NewStateMachine(store, clk.Now)
	orch := service.NewOrchestrator(store, provider.NewSimulated("", clk.Now), machine, service.OrchestratorOptions{
		CallbackURL:  "https://app.example.com/api/signatures/callback",
		SignatureTTL: time.Hour,
		Now:          clk.Now,
	})
	renderer, err := render.NewRenderer(render.Options{WidthPx: 300, Oversampling: 1})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	exporter := service.NewExportService(renderer, service.ExportOptions{Page: render.A4, Fit: render.FitWidth, Workers: 1}, artifacts)

	h := NewRouter(cfg, Services{Store: store, Machine: machine, Orchestrator: orch, Exporter: exporter})

	token, _, err := middleware.GenerateToken("agent1", "agent", &cfg.Auth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return &testEnv{cfg: cfg, clock: clk, store: store, router: h, token: token}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seed stores a contract directly in the given status.
func (e *testEnv) seed(t *testing.T, id string, status model.ContractStatus) {
	t.Helper()
	now := e.clock.Now()
	c := &model.Contract{
		ID:     id,
		Title:  "Contrato de arriendo " + id,
		Status: status,
		Content: []model.Section{
			{ID: "s1", Title: "Partes", Body: "Entre Ana Pérez, arrendadora, y Luis Soto, arrendatario."},
			{ID: "s2", Title: "Renta", Body: "La renta mensual se paga dentro de los primeros cinco días de cada mes."},
		},
		Parties: model.Parties{
			Owner:  model.Party{Name: "Ana Pérez", Email: "ana@example.com"},
			Tenant: model.Party{Name: "Luis Soto", Email: "luis@example.com"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateContract(context.Background(), c); err != nil {
		t.Fatalf("Failed to seed contract: %v", err)
	}
}

// sent seeds an approved contract and sends it through the API.
func (e *testEnv) sent(t *testing.T, id string) {
	t.Helper()
	e.seed(t, id, model.ContractApproved)
	if w := e.do("POST", "/api/contracts/"+id+"/send", nil); w.Code != http.StatusOK {
		t.Fatalf("Send failed with %d: %s", w.Code, w.Body.String())
	}
}

func (e *testEnv) status(t *testing.T, id string) model.ContractStatus {
	t.Helper()
	c, err := e.store.GetContract(context.Background(), id)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	return c.Status
}

func (e *testEnv) record(t *testing.T, id string, role model.SignerRole) *model.SignatureRecord {
	t.Helper()
	rec, err := e.store.GetSignature(context.Background(), id, role)
	if err != nil {
		t.Fatalf("GetSignature failed: %v", err)
	}
	return rec
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v (%s)", err, w.Body.String())
	}
	return body
}
