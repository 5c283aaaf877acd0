package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

var (
	ErrContractNotFound  = errors.New("contract not found")
	ErrContractExists    = errors.New("contract already exists")
	ErrSignatureNotFound = errors.New("signature record not found")
	ErrSignatureExists   = errors.New("signature record already exists for signer")
	// ErrStatusConflict means a conditional status write found a different
	// persisted status than the one it expected.
	ErrStatusConflict = errors.New("contract status changed concurrently")
	// ErrSignatureConflict means a signature record was no longer in the
	// status the writer read it in.
	ErrSignatureConflict = errors.New("signature record changed concurrently")
)

// Store persists contracts and their signature records.
type Store interface {
	CreateContract(ctx context.Context, c *model.Contract) error
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	ListContracts(ctx context.Context, statuses ...model.ContractStatus) ([]*model.Contract, error)
	// UpdateContractStatus applies change only while the persisted status
	// equals change.From, returning ErrStatusConflict otherwise.
	UpdateContractStatus(ctx context.Context, change model.StatusChange) error

	InsertSignature(ctx context.Context, rec *model.SignatureRecord) error
	// UpdateSignature rewrites the record identified by (ContractID, SignerType)
	// only while its persisted status equals from, returning
	// ErrSignatureConflict otherwise.
	UpdateSignature(ctx context.Context, rec *model.SignatureRecord, from model.SignatureStatus) error
	DeleteSignature(ctx context.Context, contractID string, role model.SignerRole) error
	GetSignature(ctx context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, error)
	ListSignatures(ctx context.Context, contractID string) ([]*model.SignatureRecord, error)
	FindSignatureByExternalID(ctx context.Context, externalID string) (*model.SignatureRecord, error)

	Close() error
}

// MemoryStore is an in-memory Store for development and tests.
// Returned values are copies; callers never alias stored state.
type MemoryStore struct {
	mu           sync.RWMutex
	contracts    map[string]*model.Contract
	signatures   map[string]map[model.SignerRole]*model.SignatureRecord
	maxContracts int // Maximum contracts to keep, 0 = unlimited
}

func NewMemoryStore(maxContracts int) *MemoryStore {
	if maxContracts < 0 {
		maxContracts = 0
	}
	slog.Info("memory store initialized", "max_contracts", maxContracts)
	return &MemoryStore{
		contracts:    make(map[string]*model.Contract),
		signatures:   make(map[string]map[model.SignerRole]*model.SignatureRecord),
		maxContracts: maxContracts,
	}
}

func (s *MemoryStore) CreateContract(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contracts[c.ID]; exists {
		return ErrContractExists
	}
	s.contracts[c.ID] = cloneContract(c)

	s.cleanupIfNeeded()
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	return cloneContract(c), nil
}

func (s *MemoryStore) ListContracts(_ context.Context, statuses ...model.ContractStatus) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		if len(statuses) > 0 && !containsStatus(statuses, c.Status) {
			continue
		}
		result = append(result, cloneContract(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateContractStatus(_ context.Context, change model.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[change.ContractID]
	if !ok {
		return ErrContractNotFound
	}
	if c.Status != change.From {
		return ErrStatusConflict
	}

	c.Status = change.To
	if change.ApprovedAt != nil {
		c.ApprovedAt = cloneTime(change.ApprovedAt)
	}
	if change.SentToSignatureAt != nil {
		c.SentToSignatureAt = cloneTime(change.SentToSignatureAt)
	}
	if change.Parties != nil {
		c.Parties = cloneParties(*change.Parties)
	}
	c.UpdatedAt = change.At
	return nil
}

func (s *MemoryStore) InsertSignature(_ context.Context, rec *model.SignatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[rec.ContractID]; !ok {
		return ErrContractNotFound
	}
	byRole := s.signatures[rec.ContractID]
	if byRole == nil {
		byRole = make(map[model.SignerRole]*model.SignatureRecord)
		s.signatures[rec.ContractID] = byRole
	}
	if _, exists := byRole[rec.SignerType]; exists {
		return ErrSignatureExists
	}
	byRole[rec.SignerType] = cloneSignature(rec)
	return nil
}

func (s *MemoryStore) UpdateSignature(_ context.Context, rec *model.SignatureRecord, from model.SignatureStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.signatures[rec.ContractID][rec.SignerType]
	if !ok {
		return ErrSignatureNotFound
	}
	if existing.Status != from {
		return ErrSignatureConflict
	}
	updated := cloneSignature(rec)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	s.signatures[rec.ContractID][rec.SignerType] = updated
	return nil
}

func (s *MemoryStore) DeleteSignature(_ context.Context, contractID string, role model.SignerRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signatures[contractID][role]; !ok {
		return ErrSignatureNotFound
	}
	delete(s.signatures[contractID], role)
	return nil
}

func (s *MemoryStore) GetSignature(_ context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.signatures[contractID][role]
	if !ok {
		return nil, ErrSignatureNotFound
	}
	return cloneSignature(rec), nil
}

func (s *MemoryStore) ListSignatures(_ context.Context, contractID string) ([]*model.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRole := s.signatures[contractID]
	result := make([]*model.SignatureRecord, 0, len(byRole))
	for _, rec := range byRole {
		result = append(result, cloneSignature(rec))
	}
	sortByRole(result)
	return result, nil
}

func (s *MemoryStore) FindSignatureByExternalID(_ context.Context, externalID string) (*model.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, byRole := range s.signatures {
		for _, rec := range byRole {
			if rec.ExternalRequestID != "" && rec.ExternalRequestID == externalID {
				return cloneSignature(rec), nil
			}
		}
	}
	return nil, ErrSignatureNotFound
}

func (s *MemoryStore) Close() error { return nil }

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

// cleanupIfNeeded evicts the oldest terminal contracts once the store
// exceeds maxContracts. Contracts still in flight are never evicted.
// Must be called with lock held
func (s *MemoryStore) cleanupIfNeeded() {
	if s.maxContracts <= 0 || len(s.contracts) <= s.maxContracts {
		return
	}

	candidates := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		if c.Status.Terminal() {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	removeCount := len(s.contracts) - s.maxContracts
	for i := 0; i < removeCount && i < len(candidates); i++ {
		slog.Info("auto-cleaning old contract",
			"contract_id", candidates[i].ID,
			"status", candidates[i].Status,
			"created_at", candidates[i].CreatedAt,
		)
		delete(s.contracts, candidates[i].ID)
		delete(s.signatures, candidates[i].ID)
	}
}

func containsStatus(list []model.ContractStatus, s model.ContractStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var roleOrder = map[model.SignerRole]int{
	model.SignerOwner:     0,
	model.SignerTenant:    1,
	model.SignerGuarantor: 2,
}

func sortByRole(recs []*model.SignatureRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return roleOrder[recs[i].SignerType] < roleOrder[recs[j].SignerType]
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneContract(c *model.Contract) *model.Contract {
	out := *c
	out.Content = append([]model.Section(nil), c.Content...)
	out.Parties = cloneParties(c.Parties)
	out.ApprovedAt = cloneTime(c.ApprovedAt)
	out.SentToSignatureAt = cloneTime(c.SentToSignatureAt)
	return &out
}

func cloneParties(p model.Parties) model.Parties {
	if p.Guarantor != nil {
		g := *p.Guarantor
		p.Guarantor = &g
	}
	return p
}

func cloneSignature(r *model.SignatureRecord) *model.SignatureRecord {
	out := *r
	out.SignedAt = cloneTime(r.SignedAt)
	out.ExpiresAt = cloneTime(r.ExpiresAt)
	out.LastCheckedAt = cloneTime(r.LastCheckedAt)
	return &out
}
