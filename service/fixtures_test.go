package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/provider"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider records calls and reports whatever status a test sets.
type fakeProvider struct {
	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	failFor   map[string]error
	statuses  map[string]model.SignatureStatus
	checkErr  map[string]error
	sent      []provider.SendRequest
	cancelled []string
	seq       int
	// onSend runs before each Send, outside the lock.
	onSend func(req provider.SendRequest)
}

func newFakeProvider(now func() time.Time) *fakeProvider {
	return &fakeProvider{
		now:      now,
		ttl:      30 * time.Minute,
		failFor:  map[string]error{},
		statuses: map[string]model.SignatureStatus{},
		checkErr: map[string]error{},
	}
}

func (p *fakeProvider) Send(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	if p.onSend != nil {
		p.onSend(req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[req.SignerEmail]; ok {
		return nil, err
	}
	p.seq++
	p.sent = append(p.sent, req)
	id := fmt.Sprintf("ext-%s-%d", req.Role, p.seq)
	p.statuses[id] = model.SignatureSent
	expires := p.now().Add(p.ttl)
	return &provider.SendResult{
		ExternalRequestID: id,
		SignatureURL:      "https://sign.example.com/" + id,
		ExpiresAt:         &expires,
	}, nil
}

func (p *fakeProvider) CheckStatus(ctx context.Context, id string) (model.SignatureStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.checkErr[id]; ok {
		return "", err
	}
	st, ok := p.statuses[id]
	if !ok {
		return "", &model.ProviderError{Op: "check status", StatusCode: 404, Err: errors.New("not found")}
	}
	return st, nil
}

func (p *fakeProvider) Cancel(ctx context.Context, id, reason string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, id)
	p.statuses[id] = model.SignatureCancelled
	return true, nil
}

func (p *fakeProvider) set(id string, st model.SignatureStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[id] = st
}

func (p *fakeProvider) cancelledIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cancelled...)
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fixture struct {
	store    *MemoryStore
	clock    *testClock
	provider *fakeProvider
	machine  *StateMachine
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store := NewMemoryStore(0)
	prov := newFakeProvider(clock.Now)
	machine := NewStateMachine(store, clock.Now)
	orch := NewOrchestrator(store, prov, machine, OrchestratorOptions{
		CallbackURL:  "https://app.example.com/api/signatures/callback",
		SignatureTTL: time.Hour,
		Now:          clock.Now,
	})
	return &fixture{store: store, clock: clock, provider: prov, machine: machine, orch: orch}
}

// contract creates a contract in the given status.
func (f *fixture) contract(t *testing.T, id string, status model.ContractStatus, guarantor bool) *model.Contract {
	t.Helper()
	c := newContract(id, status, guarantor)
	require.NoError(t, f.store.CreateContract(context.Background(), c))
	return c
}

// sent creates an approved contract and sends it to signature.
func (f *fixture) sent(t *testing.T, id string, guarantor bool) *model.Contract {
	t.Helper()
	f.contract(t, id, model.ContractApproved, guarantor)
	c, _, err := f.machine.SendToSignature(context.Background(), id, nil)
	require.NoError(t, err)
	require.Equal(t, model.ContractSentToSignature, c.Status)
	return c
}

func (f *fixture) record(t *testing.T, contractID string, role model.SignerRole) *model.SignatureRecord {
	t.Helper()
	rec, err := f.store.GetSignature(context.Background(), contractID, role)
	require.NoError(t, err)
	return rec
}

func (f *fixture) status(t *testing.T, contractID string) model.ContractStatus {
	t.Helper()
	c, err := f.store.GetContract(context.Background(), contractID)
	require.NoError(t, err)
	return c.Status
}
