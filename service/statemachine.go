package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
)

// ErrSendInProgress means another send for the same contract has not
// finished yet.
var ErrSendInProgress = errors.New("send to signature already in progress")

// signatureCoordinator is the part of the orchestrator the state machine
// drives during send and cancel.
type signatureCoordinator interface {
	Dispatch(ctx context.Context, c *model.Contract, parties model.Parties) (*DispatchReport, error)
	RecomputeStatus(ctx context.Context, contractID string) (model.ContractStatus, error)
	CancelOutstanding(ctx context.Context, contractID string) (int, error)
}

// StateMachine is the only writer of a contract's status. Every transition
// re-reads the persisted contract, checks its precondition and writes with a
// conditional update, so a stale caller gets a TransitionError instead of
// overwriting a newer status.
type StateMachine struct {
	store       Store
	now         func() time.Time
	coordinator signatureCoordinator

	mu      sync.Mutex
	sending map[string]struct{} // contracts with a send in flight
}

func NewStateMachine(store Store, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{store: store, now: now, sending: make(map[string]struct{})}
}

var cancellable = []model.ContractStatus{
	model.ContractDraft,
	model.ContractApproved,
	model.ContractSentToSignature,
	model.ContractPartiallySigned,
}

var recomputable = []model.ContractStatus{
	model.ContractSentToSignature,
	model.ContractPartiallySigned,
	model.ContractFullySigned,
}

// Approve moves a draft contract to approved.
func (m *StateMachine) Approve(ctx context.Context, contractID string) (*model.Contract, error) {
	return m.transition(ctx, contractID, "approve", []model.ContractStatus{model.ContractDraft}, model.ContractApproved,
		func(change *model.StatusChange) { change.ApprovedAt = &change.At })
}

// SendToSignature dispatches signing requests for an approved contract and
// moves it to sent_to_signature when at least one signer was reached. If no
// signer was reached the contract stays approved and the DispatchError is
// returned with the report. Overriding parties are stored with the status
// change. Only one send per contract runs at a time.
func (m *StateMachine) SendToSignature(ctx context.Context, contractID string, parties *model.Parties) (*model.Contract, *DispatchReport, error) {
	if m.coordinator == nil {
		return nil, nil, errors.New("state machine has no signature orchestrator")
	}
	ctx = logger.WithContractID(ctx, contractID)

	if !m.claimSend(contractID) {
		logger.Warn(ctx, "send rejected, another send is in flight")
		return nil, nil, fmt.Errorf("%s: %w", contractID, ErrSendInProgress)
	}
	defer m.releaseSend(contractID)

	c, err := m.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	expected := []model.ContractStatus{model.ContractApproved}
	if c.Status != model.ContractApproved {
		return nil, nil, m.reject(ctx, contractID, "send to signature", expected, c.Status)
	}

	signers := c.Parties
	if parties != nil {
		signers = *parties
	}

	report, err := m.coordinator.Dispatch(ctx, c, signers)
	if err != nil {
		logger.Error(ctx, "dispatch failed, contract stays approved", "error", err)
		return c, report, err
	}

	updated, err := m.write(ctx, c, "send to signature", expected, model.ContractSentToSignature,
		func(change *model.StatusChange) {
			change.SentToSignatureAt = &change.At
			change.Parties = parties
		})
	if err != nil {
		return nil, report, err
	}

	// A provider callback may have landed between dispatch and the status
	// write; it could not be applied then, so derive once more now.
	if _, err := m.coordinator.RecomputeStatus(ctx, contractID); err != nil {
		logger.Warn(ctx, "recompute after send failed", "error", err)
	}
	if fresh, err := m.store.GetContract(ctx, contractID); err == nil {
		updated = fresh
	}
	return updated, report, nil
}

// ApplyRecompute moves a contract in a signature state to target. It never
// moves draft, approved or cancelled contracts and never moves backwards.
// It reports whether a write happened.
func (m *StateMachine) ApplyRecompute(ctx context.Context, contractID string, target model.ContractStatus) (model.ContractStatus, bool, error) {
	if !target.InSignature() {
		return "", false, fmt.Errorf("recompute target %q is not a signature status", target)
	}

	c, err := m.store.GetContract(ctx, contractID)
	if err != nil {
		return "", false, err
	}
	if !c.Status.InSignature() {
		return c.Status, false, &model.TransitionError{
			ContractID: contractID,
			Action:     "recompute",
			Expected:   recomputable,
			Actual:     c.Status,
		}
	}
	if target == c.Status {
		return c.Status, false, nil
	}
	if target.Rank() < c.Status.Rank() {
		logger.Warn(ctx, "ignoring backward aggregate status", "current", c.Status, "derived", target)
		return c.Status, false, nil
	}

	change := model.StatusChange{ContractID: contractID, From: c.Status, To: target, At: m.now().UTC()}
	if err := m.store.UpdateContractStatus(ctx, change); err != nil {
		return c.Status, false, err
	}
	logger.Info(ctx, "contract status recomputed", "from", c.Status, "to", target)
	return target, true, nil
}

// Cancel moves any non-terminal contract to cancelled and voids outstanding
// signing requests.
func (m *StateMachine) Cancel(ctx context.Context, contractID string) (*model.Contract, error) {
	ctx = logger.WithContractID(ctx, contractID)

	c, err := m.transition(ctx, contractID, "cancel", cancellable, model.ContractCancelled, nil)
	if err != nil {
		return nil, err
	}
	if m.coordinator != nil {
		if n, err := m.coordinator.CancelOutstanding(ctx, contractID); err != nil {
			logger.Warn(ctx, "voiding outstanding signature requests failed", "error", err)
		} else if n > 0 {
			logger.Info(ctx, "outstanding signature requests voided", "count", n)
		}
	}
	return c, nil
}

func (m *StateMachine) transition(ctx context.Context, contractID, action string, allowed []model.ContractStatus,
	to model.ContractStatus, stamp func(*model.StatusChange)) (*model.Contract, error) {
	ctx = logger.WithContractID(ctx, contractID)

	c, err := m.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !containsStatus(allowed, c.Status) {
		return nil, m.reject(ctx, contractID, action, allowed, c.Status)
	}
	return m.write(ctx, c, action, allowed, to, stamp)
}

// write performs the conditional update from c.Status to to.
func (m *StateMachine) write(ctx context.Context, c *model.Contract, action string, allowed []model.ContractStatus,
	to model.ContractStatus, stamp func(*model.StatusChange)) (*model.Contract, error) {
	change := model.StatusChange{ContractID: c.ID, From: c.Status, To: to, At: m.now().UTC()}
	if stamp != nil {
		stamp(&change)
	}

	if err := m.store.UpdateContractStatus(ctx, change); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			actual := c.Status
			if current, gerr := m.store.GetContract(ctx, c.ID); gerr == nil {
				actual = current.Status
			}
			return nil, m.reject(ctx, c.ID, action, allowed, actual)
		}
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	logger.Info(ctx, "contract status changed", "action", action, "from", c.Status, "to", to)

	updated := *c
	updated.Status = to
	updated.UpdatedAt = change.At
	if change.ApprovedAt != nil {
		updated.ApprovedAt = change.ApprovedAt
	}
	if change.SentToSignatureAt != nil {
		updated.SentToSignatureAt = change.SentToSignatureAt
	}
	if change.Parties != nil {
		updated.Parties = *change.Parties
	}
	return &updated, nil
}

func (m *StateMachine) claimSend(contractID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.sending[contractID]; busy {
		return false
	}
	m.sending[contractID] = struct{}{}
	return true
}

func (m *StateMachine) releaseSend(contractID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sending, contractID)
}

func (m *StateMachine) reject(ctx context.Context, contractID, action string, expected []model.ContractStatus, actual model.ContractStatus) error {
	err := &model.TransitionError{ContractID: contractID, Action: action, Expected: expected, Actual: actual}
	logger.Warn(ctx, "transition rejected", "error", err)
	return err
}
