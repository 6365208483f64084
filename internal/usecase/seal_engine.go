package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

type SealEngine struct {
	Drafts    DraftRepository
	Ledger    EvidenceLedger
	Bindings  BindingResolver
	Policy    QuarantinePolicy
	Locks     Locker
	Audit     AuditLogger
	Validator DeclarationValidator
	Build     domain.BuildInfo
	Clock     Clock
	NewID     func() string
	Timeout   time.Duration
	LockTTL   time.Duration
}

// SealValidation is the completeness verdict computed from stored state.
type SealValidation struct {
	ReadyToSeal   bool                `json:"ready_to_seal"`
	MissingFields []string            `json:"missing_fields"`
	FieldErrors   []domain.FieldError `json:"field_errors,omitempty"`
}

type SealView struct {
	Draft      domain.Draft
	State      domain.SealState
	Validation SealValidation
}

func NewSealEngine(drafts DraftRepository, ledger EvidenceLedger, audit AuditLogger) *SealEngine {
	return &SealEngine{
		Drafts:  drafts,
		Ledger:  ledger,
		Audit:   audit,
		Policy:  BindingQuarantinePolicy{},
		Clock:   time.Now,
		NewID:   NewID,
		Timeout: 10 * time.Second,
		LockTTL: 30 * time.Second,
	}
}

// GetDraftForSeal reports the draft with a freshly computed readiness
// verdict. A ready flag is never taken from the client.
func (e *SealEngine) GetDraftForSeal(ctx context.Context, actor domain.Actor, draftID string) (SealView, error) {
	view, err := withDeadline(ctx, e.Timeout, func(ctx context.Context) (SealView, error) {
		draft, err := loadDraft(ctx, e.Drafts, actor, draftID)
		if err != nil {
			return SealView{}, err
		}
		view := SealView{Draft: draft, Validation: e.readiness(draft)}
		switch draft.State {
		case domain.DraftStateSealed:
			view.State = domain.SealStateSealed
			view.Validation = SealValidation{MissingFields: []string{}}
			rec, err := e.Ledger.Get(ctx, draft.EvidenceID)
			if err != nil {
				return SealView{}, err
			}
			if rec.LedgerState == domain.LedgerStateQuarantined {
				view.State = domain.SealStateQuarantined
			}
		case domain.DraftStateDraft:
			view.State = domain.SealStateDraft
			if view.Validation.ReadyToSeal {
				view.State = domain.SealStateReadyToSeal
			}
		}
		return view, nil
	})
	payload := map[string]any{}
	if err == nil {
		payload["state"] = string(view.State)
		payload["ready_to_seal"] = view.Validation.ReadyToSeal
	}
	auditOrNop(e.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftFetched, draftID, view.Draft.EvidenceID, err, payload))
	return view, err
}

func (e *SealEngine) readiness(draft domain.Draft) SealValidation {
	out := SealValidation{MissingFields: []string{}}
	res := e.Validator.ValidateForMethod(draft.Declaration, draft.Method, ValidateOptions{})
	for _, fe := range res.FieldErrors {
		if fe.Error == "required" {
			out.MissingFields = append(out.MissingFields, fe.Field)
			continue
		}
		out.FieldErrors = append(out.FieldErrors, fe)
	}
	if adapter, ok := AdapterFor(draft.Method); ok {
		out.MissingFields = append(out.MissingFields, adapter.Missing(draft)...)
		out.FieldErrors = append(out.FieldErrors, adapter.Check(draft)...)
	}
	out.ReadyToSeal = len(out.MissingFields) == 0 && len(out.FieldErrors) == 0
	return out
}

// Seal converts the draft into an immutable evidence record exactly once.
// A repeated call on a sealed draft returns the original receipt.
func (e *SealEngine) Seal(ctx context.Context, actor domain.Actor, draftID, requestID string) (domain.SealReceipt, error) {
	auditOrNop(e.Audit).Record(ctx, auditEntry(actor, domain.AuditSealRequested, draftID, "", nil, map[string]any{"request_id": requestID}))
	receipt, err := withDeadline(ctx, e.Timeout, func(ctx context.Context) (domain.SealReceipt, error) {
		return e.seal(ctx, actor, draftID, requestID)
	})
	event := domain.AuditSealCompleted
	payload := map[string]any{"request_id": requestID}
	switch {
	case err != nil:
	case receipt.Replayed:
		event = domain.AuditSealReplayed
	case receipt.LedgerState == domain.LedgerStateQuarantined:
		event = domain.AuditSealQuarantined
	}
	if err == nil {
		payload["ledger_state"] = string(receipt.LedgerState)
		payload["payload_hash_status"] = string(receipt.PayloadHashStatus)
		payload["metadata_hash_sha256"] = receipt.MetadataHashSHA256
		if receipt.QuarantineReason != nil {
			payload["quarantine_reason"] = *receipt.QuarantineReason
		}
	}
	auditOrNop(e.Audit).Record(ctx, auditEntry(actor, event, draftID, receipt.EvidenceID, err, payload))
	return receipt, err
}

func (e *SealEngine) seal(ctx context.Context, actor domain.Actor, draftID, requestID string) (domain.SealReceipt, error) {
	if strings.TrimSpace(draftID) == "" {
		return domain.SealReceipt{}, domain.ErrDraftIDMissing
	}
	if e.Locks != nil {
		unlock, err := e.Locks.Lock(ctx, "seal:"+draftID, e.lockTTL())
		if err != nil {
			return domain.SealReceipt{}, err
		}
		defer unlock()
	}

	draft, err := loadDraft(ctx, e.Drafts, actor, draftID)
	if err != nil {
		return domain.SealReceipt{}, err
	}
	if draft.State == domain.DraftStateSealed {
		return e.replay(ctx, draft)
	}

	check := e.readiness(draft)
	if !check.ReadyToSeal {
		fields := append([]domain.FieldError(nil), check.FieldErrors...)
		for _, m := range check.MissingFields {
			fields = append(fields, domain.FieldError{Field: m, Error: "required"})
		}
		sortFieldErrors(fields)
		return domain.SealReceipt{}, domain.NewValidationError(fields...)
	}
	decl := e.Validator.ValidateForMethod(draft.Declaration, draft.Method, ValidateOptions{}).Normalized

	metadataHash, canonicalDecl, err := crypto.CanonicalSHA256(decl)
	if err != nil {
		return domain.SealReceipt{}, fmt.Errorf("canonicalize declaration: %w", err)
	}
	payloadHash, err := PayloadHash(draft)
	if err != nil {
		return domain.SealReceipt{}, err
	}

	resolution, err := e.resolveBinding(ctx, draft.TenantID, decl)
	if err != nil {
		return domain.SealReceipt{}, err
	}
	decision, err := e.policy().Evaluate(ctx, domain.QuarantineInput{
		Method:      draft.Method,
		Declaration: decl,
		Binding:     resolution,
	})
	if err != nil {
		return domain.SealReceipt{}, fmt.Errorf("quarantine policy: %w", err)
	}

	now := e.now()
	rec := domain.EvidenceRecord{
		ID:                 e.newID(),
		DraftID:            draft.ID,
		TenantID:           draft.TenantID,
		OwnerID:            draft.OwnerID,
		Method:             draft.Method,
		LedgerState:        domain.LedgerStateSealed,
		PayloadHashSHA256:  payloadHash,
		MetadataHashSHA256: metadataHash,
		Declaration:        canonicalDecl,
		Attachments:        append([]domain.Attachment(nil), draft.Attachments...),
		SealedAtUTC:        now,
		RetentionEndsUTC:   decl.RetentionPolicy.RetentionEnd(now, decl.RetentionDays),
		ReviewStatus:       domain.ReviewNotReviewed,
		RequestID:          requestID,
		CorrelationID:      CorrelationID(ctx),
	}
	if decision.Quarantine {
		reason := strings.Join(decision.Reasons, "; ")
		if reason == "" {
			reason = "binding unresolved"
		}
		rec.LedgerState = domain.LedgerStateQuarantined
		rec.QuarantineReason = &reason
	}

	if err := e.Ledger.SealDraft(ctx, rec, draft.Version); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return domain.SealReceipt{}, err
		}
		// Another writer moved the draft; if it sealed, its record wins.
		current, gerr := e.Drafts.Get(ctx, draft.ID)
		if gerr == nil && current.State == domain.DraftStateSealed {
			return e.replay(ctx, current)
		}
		return domain.SealReceipt{}, err
	}
	return domain.ReceiptFromRecord(rec, nil, CorrelationID(ctx), e.Build), nil
}

func (e *SealEngine) replay(ctx context.Context, draft domain.Draft) (domain.SealReceipt, error) {
	rec, err := e.Ledger.Get(ctx, draft.EvidenceID)
	if err != nil {
		return domain.SealReceipt{}, fmt.Errorf("load sealed evidence: %w", err)
	}
	link, err := e.Ledger.GetContentLink(ctx, rec.ID)
	if err != nil {
		return domain.SealReceipt{}, err
	}
	receipt := domain.ReceiptFromRecord(rec, link, CorrelationID(ctx), e.Build)
	receipt.Replayed = true
	return receipt, nil
}

func (e *SealEngine) resolveBinding(ctx context.Context, tenantID string, decl domain.Declaration) (domain.BindingResolution, error) {
	scope, ids := decl.BindingTargets()
	res := domain.BindingResolution{Scope: scope, Requested: ids, Resolved: []domain.Binding{}, Unresolved: []string{}}
	if len(ids) == 0 {
		return res, nil
	}
	if e.Bindings == nil {
		res.Unresolved = append(res.Unresolved, ids...)
		return res, nil
	}
	resolved, err := e.Bindings.Resolve(ctx, tenantID, scope, ids)
	if err != nil {
		return domain.BindingResolution{}, fmt.Errorf("resolve binding: %w", err)
	}
	if resolved.Resolved == nil {
		resolved.Resolved = []domain.Binding{}
	}
	if resolved.Unresolved == nil {
		resolved.Unresolved = []string{}
	}
	resolved.Scope = scope
	resolved.Requested = ids
	return resolved, nil
}

// PayloadHash combines attachment digests in position order. It returns
// nil when a reference-first draft still lacks content digests.
func PayloadHash(draft domain.Draft) (*string, error) {
	digests := make([]string, 0, len(draft.Attachments))
	for _, att := range draft.Attachments {
		if att.SHA256 == nil {
			if draft.Method.ReferenceFirst() {
				return nil, nil
			}
			return nil, domain.NewValidationError(domain.FieldError{
				Field: "attachments[" + strconv.Itoa(att.Position) + "].sha256",
				Error: "required",
			})
		}
		digests = append(digests, *att.SHA256)
	}
	if len(digests) == 0 {
		if draft.Method.ReferenceFirst() {
			return nil, nil
		}
		return nil, &domain.ValidationError{Cause: domain.ErrPayloadRequired, Fields: []domain.FieldError{{Field: MissingAttachment, Error: "required"}}}
	}
	sum, err := crypto.CombineDigests(digests)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// BindingQuarantinePolicy quarantines whenever a declared target did not
// resolve. It is used when no policy engine is configured.
type BindingQuarantinePolicy struct{}

func (BindingQuarantinePolicy) Evaluate(_ context.Context, input domain.QuarantineInput) (domain.QuarantineDecision, error) {
	if len(input.Binding.Unresolved) == 0 {
		return domain.QuarantineDecision{}, nil
	}
	reasons := make([]string, 0, len(input.Binding.Unresolved))
	for _, id := range input.Binding.Unresolved {
		reasons = append(reasons, "unresolved "+strings.ToLower(string(input.Binding.Scope))+" binding: "+id)
	}
	return domain.QuarantineDecision{Quarantine: true, Reasons: reasons}, nil
}

func (e *SealEngine) policy() QuarantinePolicy {
	if e.Policy == nil {
		return BindingQuarantinePolicy{}
	}
	return e.Policy
}

func (e *SealEngine) lockTTL() time.Duration {
	if e.LockTTL <= 0 {
		return 30 * time.Second
	}
	return e.LockTTL
}

func (e *SealEngine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

func (e *SealEngine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return NewID()
}
