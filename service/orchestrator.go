package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/provider"
)

// maxRecomputeAttempts bounds the read-aggregate-write loop when concurrent
// callbacks keep moving the contract underneath it.
const maxRecomputeAttempts = 5

var ErrNotResendable = errors.New("signature record cannot be resent")

// DocumentSource produces the file attached to every signing request.
type DocumentSource interface {
	Document(ctx context.Context, c *model.Contract) (data []byte, filename string, err error)
}

// SignerSpec is one required signer derived from a contract's parties.
type SignerSpec struct {
	Role  model.SignerRole
	Name  string
	Email string
}

// requiredSigners is the single place that decides who must sign. A nil
// party is not required.
var requiredSigners = []struct {
	role  model.SignerRole
	party func(p *model.Parties) *model.Party
}{
	{model.SignerOwner, func(p *model.Parties) *model.Party { return &p.Owner }},
	{model.SignerTenant, func(p *model.Parties) *model.Party { return &p.Tenant }},
	{model.SignerGuarantor, func(p *model.Parties) *model.Party { return p.Guarantor }},
}

// RequiredSigners returns the signers a contract with these parties needs:
// owner and tenant always, guarantor only when present.
func RequiredSigners(parties model.Parties) []SignerSpec {
	specs := make([]SignerSpec, 0, len(requiredSigners))
	for _, rs := range requiredSigners {
		p := rs.party(&parties)
		if p == nil {
			continue
		}
		specs = append(specs, SignerSpec{Role: rs.role, Name: p.Name, Email: p.Email})
	}
	return specs
}

// Validate checks that a signer can be contacted.
func (s SignerSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &model.ValidationError{Role: s.Role, Field: "name"}
	}
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return &model.ValidationError{Role: s.Role, Field: "email"}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &model.ValidationError{Role: s.Role, Field: "email"}
	}
	return nil
}

// DispatchOutcome is the result of sending one signer's request.
type DispatchOutcome struct {
	Role              model.SignerRole      `json:"role"`
	Status            model.SignatureStatus `json:"status"`
	ExternalRequestID string                `json:"external_request_id,omitempty"`
	Error             string                `json:"error,omitempty"`
}

// DispatchReport summarizes a dispatch across all required signers.
type DispatchReport struct {
	ContractID string            `json:"contract_id"`
	Outcomes   []DispatchOutcome `json:"outcomes"`
	Dispatched int               `json:"dispatched"`
}

// PollReport summarizes one poll of outstanding records.
type PollReport struct {
	ContractID string                      `json:"contract_id"`
	Checked    int                         `json:"checked"`
	Updated    int                         `json:"updated"`
	Status     model.ContractStatus        `json:"status"`
	Errors     map[model.SignerRole]string `json:"errors,omitempty"`
}

type OrchestratorOptions struct {
	// CallbackURL is passed to the provider with every request.
	CallbackURL string
	// SignatureTTL sets ExpiresAt when the provider does not return one.
	SignatureTTL time.Duration
	Documents    DocumentSource
	Now          func() time.Time
}

// Orchestrator owns signature records: it dispatches them to the provider,
// applies status updates and derives the contract status from them.
type Orchestrator struct {
	store     Store
	provider  provider.Provider
	machine   *StateMachine
	documents DocumentSource
	callback  string
	ttl       time.Duration
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator to a state machine. The machine uses
// the orchestrator for dispatch and cancellation from then on.
func NewOrchestrator(store Store, p provider.Provider, machine *StateMachine, opts OrchestratorOptions) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		store:     store,
		provider:  p,
		machine:   machine,
		documents: opts.Documents,
		callback:  opts.CallbackURL,
		ttl:       opts.SignatureTTL,
		now:       now,
	}
	machine.coordinator = o
	return o
}

// Dispatch sends a signing request to every required signer. Each signer is
// attempted independently; failures leave that signer's record pending with
// the error recorded. Records are keyed by role, so dispatching twice never
// creates a second record for the same signer, and records for roles the
// parties no longer name are removed. A DispatchError is returned only when
// no signer was reached.
func (o *Orchestrator) Dispatch(ctx context.Context, c *model.Contract, parties model.Parties) (*DispatchReport, error) {
	ctx = logger.WithContractID(ctx, c.ID)

	var (
		doc      []byte
		filename = c.ExportFilename()
	)
	if o.documents != nil {
		var err error
		doc, filename, err = o.documents.Document(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("render signing document: %w", err)
		}
	}

	signers := RequiredSigners(parties)
	if err := o.pruneSigners(ctx, c.ID, signers); err != nil {
		return nil, err
	}

	report := &DispatchReport{ContractID: c.ID}
	failures := map[model.SignerRole]error{}

	for _, spec := range signers {
		rec, err := o.dispatchOne(ctx, c.ID, spec, doc, filename)
		outcome := DispatchOutcome{Role: spec.Role}
		if rec != nil {
			outcome.Status = rec.Status
			outcome.ExternalRequestID = rec.ExternalRequestID
		}
		if err != nil {
			outcome.Error = err.Error()
			failures[spec.Role] = err
		} else {
			report.Dispatched++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	logger.Info(ctx, "dispatch finished", "dispatched", report.Dispatched, "failed", len(failures))
	if report.Dispatched == 0 {
		return report, &model.DispatchError{ContractID: c.ID, Failures: failures}
	}
	return report, nil
}

// dispatchOne sends one signer's request and saves the record. A record that
// is signed, or already holds a live request, is returned as is. When another
// dispatch saved the signer first, the request sent here is voided.
func (o *Orchestrator) dispatchOne(ctx context.Context, contractID string, spec SignerSpec, doc []byte, filename string) (*model.SignatureRecord, error) {
	now := o.now().UTC()

	rec, err := o.store.GetSignature(ctx, contractID, spec.Role)
	switch {
	case errors.Is(err, ErrSignatureNotFound):
		rec = nil
	case err != nil:
		return nil, err
	case reusable(rec, now):
		return rec, nil
	}

	res, sendErr := o.send(ctx, contractID, spec, doc, filename)
	if sendErr != nil {
		logger.Warn(ctx, "signer not dispatched", "role", spec.Role, "error", sendErr)
	}

	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		next := o.dispatchedRecord(rec, contractID, spec, res, sendErr, now)
		if rec == nil {
			err = o.store.InsertSignature(ctx, next)
		} else {
			err = o.store.UpdateSignature(ctx, next, rec.Status)
		}
		if err == nil {
			return next, sendErr
		}
		if !errors.Is(err, ErrSignatureExists) && !errors.Is(err, ErrSignatureConflict) {
			o.voidSuperseded(ctx, spec.Role, res)
			return nil, fmt.Errorf("save %s signature: %w", spec.Role, err)
		}

		if rec, err = o.store.GetSignature(ctx, contractID, spec.Role); err != nil {
			o.voidSuperseded(ctx, spec.Role, res)
			return nil, err
		}
		if reusable(rec, now) {
			o.voidSuperseded(ctx, spec.Role, res)
			return rec, nil
		}
	}
	o.voidSuperseded(ctx, spec.Role, res)
	return nil, fmt.Errorf("save %s signature: %w", spec.Role, ErrSignatureConflict)
}

// send validates the signer and asks the provider for a signing request.
func (o *Orchestrator) send(ctx context.Context, contractID string, spec SignerSpec, doc []byte, filename string) (*provider.SendResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return o.provider.Send(ctx, provider.SendRequest{
		ContractID:  contractID,
		Role:        spec.Role,
		SignerName:  spec.Name,
		SignerEmail: spec.Email,
		Document:    doc,
		Filename:    filename,
		CallbackURL: o.callback,
	})
}

// dispatchedRecord builds the record to save after a send attempt, starting
// from base when the signer already has one.
func (o *Orchestrator) dispatchedRecord(base *model.SignatureRecord, contractID string, spec SignerSpec,
	res *provider.SendResult, sendErr error, now time.Time) *model.SignatureRecord {
	var rec *model.SignatureRecord
	if base != nil {
		rec = cloneSignature(base)
	} else {
		rec = &model.SignatureRecord{
			ID:         uuid.New().String(),
			ContractID: contractID,
			SignerType: spec.Role,
			CreatedAt:  now,
		}
	}
	rec.SignerName = spec.Name
	rec.SignerEmail = spec.Email
	rec.Attempts++
	rec.UpdatedAt = now

	if sendErr != nil {
		rec.Status = model.SignaturePending
		rec.ExternalRequestID = ""
		rec.SignatureURL = ""
		rec.SignedAt = nil
		rec.ExpiresAt = nil
		rec.LastError = sendErr.Error()
		return rec
	}

	rec.Status = model.SignatureSent
	rec.ExternalRequestID = res.ExternalRequestID
	rec.SignatureURL = res.SignatureURL
	rec.SignedAt = nil
	rec.ExpiresAt = cloneTime(res.ExpiresAt)
	if rec.ExpiresAt == nil && o.ttl > 0 {
		exp := now.Add(o.ttl)
		rec.ExpiresAt = &exp
	}
	rec.LastError = ""
	return rec
}

// reusable reports whether a record needs no new request: it is signed, or
// its current request can still be completed.
func reusable(rec *model.SignatureRecord, now time.Time) bool {
	switch rec.Status {
	case model.SignatureSigned:
		return true
	case model.SignatureSent, model.SignatureViewed:
		return rec.ExternalRequestID != "" && !rec.Expired(now)
	}
	return false
}

// voidSuperseded cancels a request that lost the race to be saved.
func (o *Orchestrator) voidSuperseded(ctx context.Context, role model.SignerRole, res *provider.SendResult) {
	if res == nil || res.ExternalRequestID == "" {
		return
	}
	if _, err := o.provider.Cancel(ctx, res.ExternalRequestID, "superseded"); err != nil {
		logger.Warn(ctx, "voiding superseded request failed", "role", role, "external_request_id", res.ExternalRequestID, "error", err)
		return
	}
	logger.Info(ctx, "superseded request voided", "role", role, "external_request_id", res.ExternalRequestID)
}

// pruneSigners removes records for roles the parties no longer require,
// voiding their live requests first.
func (o *Orchestrator) pruneSigners(ctx context.Context, contractID string, signers []SignerSpec) error {
	records, err := o.store.ListSignatures(ctx, contractID)
	if err != nil {
		return err
	}
	required := make(map[model.SignerRole]bool, len(signers))
	for _, spec := range signers {
		required[spec.Role] = true
	}
	for _, rec := range records {
		if required[rec.SignerType] {
			continue
		}
		if rec.Status.Outstanding() && rec.ExternalRequestID != "" {
			if _, err := o.provider.Cancel(ctx, rec.ExternalRequestID, "signer removed"); err != nil {
				logger.Warn(ctx, "provider cancel failed", "role", rec.SignerType, "error", err)
			}
		}
		if err := o.store.DeleteSignature(ctx, contractID, rec.SignerType); err != nil && !errors.Is(err, ErrSignatureNotFound) {
			return fmt.Errorf("remove %s signature: %w", rec.SignerType, err)
		}
		logger.Info(ctx, "signer no longer required, record removed", "role", rec.SignerType, "status", rec.Status)
	}
	return nil
}

// RecomputeStatus derives the contract status from all of its records and
// applies it. Repeating it without record changes writes nothing.
func (o *Orchestrator) RecomputeStatus(ctx context.Context, contractID string) (model.ContractStatus, error) {
	c, err := o.store.GetContract(ctx, contractID)
	if err != nil {
		return "", err
	}
	if !c.Status.InSignature() {
		return "", &model.TransitionError{ContractID: contractID, Action: "recompute", Expected: recomputable, Actual: c.Status}
	}

	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		records, err := o.store.ListSignatures(ctx, contractID)
		if err != nil {
			return "", err
		}
		target, err := Aggregate(records)
		if err != nil {
			return "", fmt.Errorf("aggregate %s: %w", contractID, err)
		}
		status, _, err := o.machine.ApplyRecompute(ctx, contractID, target)
		if errors.Is(err, ErrStatusConflict) {
			logger.Debug(ctx, "recompute raced another writer, retrying", "attempt", attempt+1)
			continue
		}
		return status, err
	}
	return "", fmt.Errorf("recompute %s: %w", contractID, ErrStatusConflict)
}

// ApplySignerUpdate records a status reported for one signer and recomputes
// the contract. Signed records never change. A signed report that arrives
// after the request expired marks the record expired and returns an
// ExpiryError.
func (o *Orchestrator) ApplySignerUpdate(ctx context.Context, contractID string, role model.SignerRole,
	status model.SignatureStatus, at time.Time) (*model.SignatureRecord, model.ContractStatus, error) {
	ctx = logger.WithContractID(ctx, contractID)

	rec, err := o.store.GetSignature(ctx, contractID, role)
	if err != nil {
		return nil, "", err
	}
	_, applyErr := o.applyStatus(ctx, rec, status, at)
	var expired *model.ExpiryError
	if applyErr != nil && !errors.As(applyErr, &expired) {
		return nil, "", applyErr
	}

	contractStatus, err := o.recomputeIfSigning(ctx, contractID)
	if err != nil {
		return rec, "", err
	}
	return rec, contractStatus, applyErr
}

// HandleCallback applies a verified provider callback.
func (o *Orchestrator) HandleCallback(ctx context.Context, event *provider.CallbackEvent) (*model.SignatureRecord, model.ContractStatus, error) {
	rec, err := o.store.FindSignatureByExternalID(ctx, event.ExternalRequestID)
	if err != nil {
		return nil, "", err
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = o.now()
	}
	return o.ApplySignerUpdate(ctx, rec.ContractID, rec.SignerType, event.Status, at)
}

// Complete marks a signer as signed now.
func (o *Orchestrator) Complete(ctx context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, model.ContractStatus, error) {
	return o.ApplySignerUpdate(ctx, contractID, role, model.SignatureSigned, o.now())
}

// Poll asks the provider for the status of every outstanding record and
// recomputes once at the end. Provider failures are recorded per signer and
// do not abort the poll.
func (o *Orchestrator) Poll(ctx context.Context, contractID string) (*PollReport, error) {
	ctx = logger.WithContractID(ctx, contractID)

	c, err := o.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.Status.InSignature() {
		return nil, &model.TransitionError{
			ContractID: contractID,
			Action:     "poll",
			Expected:   recomputable,
			Actual:     c.Status,
		}
	}

	records, err := o.store.ListSignatures(ctx, contractID)
	if err != nil {
		return nil, err
	}

	report := &PollReport{ContractID: contractID, Status: c.Status}
	now := o.now().UTC()
	for _, rec := range records {
		if !rec.Status.Outstanding() || rec.ExternalRequestID == "" {
			continue
		}
		report.Checked++

		if rec.Expired(now) {
			changed, err := o.applyStatus(ctx, rec, model.SignatureExpired, now)
			if err != nil {
				return nil, err
			}
			if changed {
				report.Updated++
			}
			continue
		}

		status, err := o.provider.CheckStatus(ctx, rec.ExternalRequestID)
		if err != nil {
			if report.Errors == nil {
				report.Errors = map[model.SignerRole]string{}
			}
			report.Errors[rec.SignerType] = err.Error()
			logger.Warn(ctx, "status check failed", "role", rec.SignerType, "error", err)

			rec.LastError = err.Error()
			rec.LastCheckedAt = &now
			rec.UpdatedAt = now
			switch err := o.store.UpdateSignature(ctx, rec, rec.Status); {
			case errors.Is(err, ErrSignatureConflict):
				// Moved by a callback meanwhile; that status wins.
			case err != nil:
				return nil, err
			}
			continue
		}

		changed, err := o.applyStatus(ctx, rec, status, now)
		var expired *model.ExpiryError
		if err != nil && !errors.As(err, &expired) {
			return nil, err
		}
		if changed {
			report.Updated++
		}
	}

	status, err := o.recomputeIfSigning(ctx, contractID)
	if err != nil {
		return nil, err
	}
	report.Status = status
	return report, nil
}

// PollAll polls every contract that is waiting for signatures.
func (o *Orchestrator) PollAll(ctx context.Context) ([]*PollReport, error) {
	contracts, err := o.store.ListContracts(ctx, model.ContractSentToSignature, model.ContractPartiallySigned)
	if err != nil {
		return nil, err
	}
	reports := make([]*PollReport, 0, len(contracts))
	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := o.Poll(ctx, c.ID)
		if err != nil {
			var te *model.TransitionError
			if errors.As(err, &te) {
				continue
			}
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Resend dispatches a fresh request for one signer whose previous request
// failed, was rejected or expired.
func (o *Orchestrator) Resend(ctx context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, model.ContractStatus, error) {
	ctx = logger.WithContractID(ctx, contractID)

	c, err := o.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, "", err
	}
	if c.Status != model.ContractSentToSignature && c.Status != model.ContractPartiallySigned {
		return nil, "", &model.TransitionError{
			ContractID: contractID,
			Action:     "resend",
			Expected:   []model.ContractStatus{model.ContractSentToSignature, model.ContractPartiallySigned},
			Actual:     c.Status,
		}
	}

	rec, err := o.store.GetSignature(ctx, contractID, role)
	if err != nil {
		return nil, "", err
	}
	switch rec.Status {
	case model.SignaturePending, model.SignatureRejected, model.SignatureExpired:
	case model.SignatureSent, model.SignatureViewed, model.SignatureSigned, model.SignatureCancelled:
		return nil, "", fmt.Errorf("%w: %s is %s", ErrNotResendable, role, rec.Status)
	default:
		return nil, "", fmt.Errorf("%w: unknown status %q", ErrNotResendable, rec.Status)
	}

	var (
		doc      []byte
		filename = c.ExportFilename()
	)
	if o.documents != nil {
		if doc, filename, err = o.documents.Document(ctx, c); err != nil {
			return nil, "", fmt.Errorf("render signing document: %w", err)
		}
	}

	spec := SignerSpec{Role: role, Name: rec.SignerName, Email: rec.SignerEmail}
	rec, sendErr := o.dispatchOne(ctx, contractID, spec, doc, filename)
	if rec == nil {
		return nil, "", sendErr
	}
	status, err := o.recomputeIfSigning(ctx, contractID)
	if err != nil {
		return rec, "", err
	}
	return rec, status, sendErr
}

// CancelOutstanding voids every unfinished request at the provider and marks
// the records cancelled. Provider failures are logged; the records are
// cancelled regardless. A record signed meanwhile stays signed.
func (o *Orchestrator) CancelOutstanding(ctx context.Context, contractID string) (int, error) {
	records, err := o.store.ListSignatures(ctx, contractID)
	if err != nil {
		return 0, err
	}
	now := o.now().UTC()
	n := 0
	for _, rec := range records {
		if !rec.Status.Outstanding() {
			continue
		}
		if rec.ExternalRequestID != "" {
			if _, err := o.provider.Cancel(ctx, rec.ExternalRequestID, "contract cancelled"); err != nil {
				logger.Warn(ctx, "provider cancel failed", "role", rec.SignerType, "error", err)
				rec.LastError = err.Error()
			}
		}
		cancelled, err := o.cancelRecord(ctx, rec, now)
		if err != nil {
			return n, err
		}
		if cancelled {
			n++
		}
	}
	return n, nil
}

func (o *Orchestrator) cancelRecord(ctx context.Context, rec *model.SignatureRecord, now time.Time) (bool, error) {
	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		from := rec.Status
		rec.Status = model.SignatureCancelled
		rec.UpdatedAt = now
		err := o.store.UpdateSignature(ctx, rec, from)
		if !errors.Is(err, ErrSignatureConflict) {
			return err == nil, err
		}
		fresh, err := o.store.GetSignature(ctx, rec.ContractID, rec.SignerType)
		if err != nil {
			return false, err
		}
		if !fresh.Status.Outstanding() {
			logger.Debug(ctx, "signature finished before cancel", "role", fresh.SignerType, "status", fresh.Status)
			return false, nil
		}
		fresh.LastError = rec.LastError
		rec = fresh
	}
	return false, fmt.Errorf("cancel %s signature: %w", rec.SignerType, ErrSignatureConflict)
}

// recordRank orders signature statuses for monotonic per-record updates.
func recordRank(s model.SignatureStatus) int {
	switch s {
	case model.SignaturePending:
		return 0
	case model.SignatureSent:
		return 1
	case model.SignatureViewed:
		return 2
	case model.SignatureSigned, model.SignatureRejected, model.SignatureExpired, model.SignatureCancelled:
		return 3
	}
	return -1
}

// applyStatus moves rec to status when allowed and persists it. Final
// records are left alone and stale lower-ranked reports are ignored. The
// write is conditional on the status rec was read in; when another writer
// got there first rec is reloaded and the report judged again.
func (o *Orchestrator) applyStatus(ctx context.Context, rec *model.SignatureRecord, status model.SignatureStatus, at time.Time) (bool, error) {
	if recordRank(status) < 0 {
		return false, &model.ProviderError{Op: "status", Err: fmt.Errorf("unknown signature status %q", status)}
	}
	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		changed, err := o.tryApplyStatus(ctx, rec, status, at)
		if !errors.Is(err, ErrSignatureConflict) {
			return changed, err
		}
		logger.Debug(ctx, "signature changed concurrently, re-reading", "role", rec.SignerType, "attempt", attempt+1)
		fresh, err := o.store.GetSignature(ctx, rec.ContractID, rec.SignerType)
		if err != nil {
			return false, err
		}
		*rec = *fresh
	}
	return false, fmt.Errorf("apply %s to %s: %w", status, rec.SignerType, ErrSignatureConflict)
}

func (o *Orchestrator) tryApplyStatus(ctx context.Context, rec *model.SignatureRecord, status model.SignatureStatus, at time.Time) (bool, error) {
	if rec.Status.Final() {
		if rec.Status != status {
			logger.Debug(ctx, "ignoring update for finished signature", "role", rec.SignerType, "current", rec.Status, "reported", status)
		}
		return false, nil
	}
	if status == rec.Status || recordRank(status) < recordRank(rec.Status) {
		return false, nil
	}

	from := rec.Status
	at = at.UTC()
	now := o.now().UTC()
	var expiryErr error
	switch {
	case status == model.SignatureSigned && rec.Expired(at):
		expiryErr = &model.ExpiryError{ContractID: rec.ContractID, Role: rec.SignerType, ExpiresAt: *rec.ExpiresAt}
		rec.Status = model.SignatureExpired
		rec.LastError = expiryErr.Error()
	case status == model.SignatureSigned:
		rec.Status = model.SignatureSigned
		rec.SignedAt = &at
		rec.LastError = ""
	default:
		rec.Status = status
	}
	rec.LastCheckedAt = &now
	rec.UpdatedAt = now

	if err := o.store.UpdateSignature(ctx, rec, from); err != nil {
		return false, err
	}
	logger.Info(ctx, "signature status updated", "role", rec.SignerType, "status", rec.Status)
	if expiryErr != nil {
		logger.Warn(ctx, "signature arrived after expiry", "role", rec.SignerType, "expires_at", rec.ExpiresAt)
	}
	return true, expiryErr
}

// recomputeIfSigning recomputes and treats a contract outside the signature
// states as nothing to do, returning its current status.
func (o *Orchestrator) recomputeIfSigning(ctx context.Context, contractID string) (model.ContractStatus, error) {
	status, err := o.RecomputeStatus(ctx, contractID)
	var te *model.TransitionError
	if errors.As(err, &te) {
		logger.Debug(ctx, "contract not in a signature state, status unchanged", "status", te.Actual)
		return te.Actual, nil
	}
	return status, err
}
