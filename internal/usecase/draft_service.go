package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

const sweepBatchSize = 200

// SweeperActor is recorded on drafts abandoned by the retention sweep.
var SweeperActor = domain.Actor{ID: "system:draft-sweeper"}

type DraftService struct {
	Drafts       DraftRepository
	Audit        AuditLogger
	Validator    DeclarationValidator
	Clock        Clock
	NewID        func() string
	Timeout      time.Duration
	DedupeWindow time.Duration
}

// DraftResult reports the stored draft and whether the call wrote it.
type DraftResult struct {
	Draft   domain.Draft
	Changed bool
	Notices []domain.FieldError
}

func NewDraftService(drafts DraftRepository, audit AuditLogger) *DraftService {
	return &DraftService{
		Drafts:       drafts,
		Audit:        audit,
		Clock:        time.Now,
		NewID:        NewID,
		Timeout:      10 * time.Second,
		DedupeWindow: 10 * time.Minute,
	}
}

func (s *DraftService) Create(ctx context.Context, actor domain.Actor, decl domain.Declaration) (DraftResult, error) {
	res, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (DraftResult, error) {
		return s.create(ctx, actor, decl)
	})
	payload := map[string]any{"ingestion_method": string(decl.IngestionMethod)}
	if err == nil {
		payload["deduplicated"] = !res.Changed
	}
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftCreated, res.Draft.ID, "", err, payload))
	return res, err
}

func (s *DraftService) create(ctx context.Context, actor domain.Actor, decl domain.Declaration) (DraftResult, error) {
	result := s.Validator.Validate(decl, ValidateOptions{})
	if !result.OK {
		return DraftResult{}, result.Err()
	}
	hash, err := declarationHash(result.Normalized)
	if err != nil {
		return DraftResult{}, err
	}
	now := s.now()
	if s.DedupeWindow > 0 {
		existing, err := s.Drafts.FindByDeclarationHash(ctx, actor.TenantID, actor.ID, hash, now.Add(-s.DedupeWindow))
		switch {
		case err == nil && existing.State == domain.DraftStateDraft:
			return DraftResult{Draft: existing, Notices: result.Notices}, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return DraftResult{}, err
		}
	}
	draft := domain.Draft{
		ID:              s.newID(),
		TenantID:        actor.TenantID,
		OwnerID:         actor.ID,
		Method:          result.Normalized.IngestionMethod,
		Declaration:     result.Normalized,
		DeclarationHash: hash,
		State:           domain.DraftStateDraft,
		Version:         1,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}
	if err := s.Drafts.Create(ctx, draft); err != nil {
		return DraftResult{}, err
	}
	return DraftResult{Draft: draft, Changed: true, Notices: result.Notices}, nil
}

// Update replaces the declaration of an open draft. An unchanged
// declaration produces no write.
func (s *DraftService) Update(ctx context.Context, actor domain.Actor, draftID string, decl domain.Declaration) (DraftResult, error) {
	res, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (DraftResult, error) {
		return s.update(ctx, actor, draftID, decl)
	})
	payload := map[string]any{}
	if err == nil {
		payload["changed"] = res.Changed
		payload["version"] = res.Draft.Version
	}
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftUpdated, draftID, "", err, payload))
	return res, err
}

func (s *DraftService) update(ctx context.Context, actor domain.Actor, draftID string, decl domain.Declaration) (DraftResult, error) {
	draft, err := s.loadOwned(ctx, actor, draftID)
	if err != nil {
		return DraftResult{}, err
	}
	result := s.Validator.ValidateForMethod(decl, draft.Method, ValidateOptions{})
	if !result.OK {
		return DraftResult{}, result.Err()
	}
	hash, err := declarationHash(result.Normalized)
	if err != nil {
		return DraftResult{}, err
	}
	if hash == draft.DeclarationHash {
		return DraftResult{Draft: draft, Notices: result.Notices}, nil
	}
	prev := draft.Version
	draft.Declaration = result.Normalized
	draft.DeclarationHash = hash
	draft.Version = prev + 1
	draft.LastModifiedAt = s.now()
	if err := s.Drafts.Update(ctx, draft, prev); err != nil {
		return DraftResult{}, err
	}
	return DraftResult{Draft: draft, Changed: true, Notices: result.Notices}, nil
}

// Get returns a draft visible to actor. Drafts owned by someone else in
// the same tenant are FORBIDDEN; anything else unreachable is NOT_FOUND.
func (s *DraftService) Get(ctx context.Context, actor domain.Actor, draftID string) (domain.Draft, error) {
	draft, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (domain.Draft, error) {
		return s.loadVisible(ctx, actor, draftID)
	})
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftFetched, draftID, draft.EvidenceID, err, nil))
	return draft, err
}

// Abandon is caller-driven cancellation of an open draft.
func (s *DraftService) Abandon(ctx context.Context, actor domain.Actor, draftID string) (domain.Draft, error) {
	draft, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (domain.Draft, error) {
		draft, err := s.loadOwned(ctx, actor, draftID)
		if err != nil {
			return domain.Draft{}, err
		}
		return s.abandon(ctx, draft)
	})
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftAbandoned, draftID, "", err, nil))
	return draft, err
}

// AbandonInactive moves open drafts untouched since cutoff to ABANDONED
// and returns how many it moved. Drafts modified concurrently are skipped.
func (s *DraftService) AbandonInactive(ctx context.Context, cutoff time.Time) (int, error) {
	if CorrelationID(ctx) == "" {
		ctx = WithCorrelationID(ctx, s.newID())
	}
	total := 0
	for {
		drafts, err := s.Drafts.ListInactive(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return total, err
		}
		moved := 0
		for _, draft := range drafts {
			if _, err := s.abandon(ctx, draft); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				return total, err
			}
			moved++
			actor := SweeperActor
			actor.TenantID = draft.TenantID
			auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditDraftsSwept, draft.ID, "", nil, map[string]any{
				"cutoff":           cutoff.UTC().Format(time.RFC3339),
				"last_modified_at": draft.LastModifiedAt.UTC().Format(time.RFC3339),
			}))
		}
		total += moved
		if len(drafts) < sweepBatchSize || moved == 0 {
			return total, nil
		}
	}
}

func (s *DraftService) abandon(ctx context.Context, draft domain.Draft) (domain.Draft, error) {
	prev := draft.Version
	draft.State = domain.DraftStateAbandoned
	draft.Version = prev + 1
	draft.LastModifiedAt = s.now()
	if err := s.Drafts.Update(ctx, draft, prev); err != nil {
		return domain.Draft{}, err
	}
	return draft, nil
}

// loadVisible resolves ownership for reads.
func (s *DraftService) loadVisible(ctx context.Context, actor domain.Actor, draftID string) (domain.Draft, error) {
	return loadDraft(ctx, s.Drafts, actor, draftID)
}

// loadOwned resolves ownership for writes: another owner's draft is
// reported as NOT_FOUND, a sealed one as ALREADY_SEALED.
func (s *DraftService) loadOwned(ctx context.Context, actor domain.Actor, draftID string) (domain.Draft, error) {
	draft, err := loadDraft(ctx, s.Drafts, actor, draftID)
	if errors.Is(err, domain.ErrForbidden) {
		return domain.Draft{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Draft{}, err
	}
	if draft.State == domain.DraftStateSealed {
		return domain.Draft{}, domain.ErrAlreadySealed
	}
	return draft, nil
}

func loadDraft(ctx context.Context, drafts DraftRepository, actor domain.Actor, draftID string) (domain.Draft, error) {
	if strings.TrimSpace(draftID) == "" {
		return domain.Draft{}, domain.ErrDraftIDMissing
	}
	draft, err := drafts.Get(ctx, draftID)
	if err != nil {
		return domain.Draft{}, err
	}
	if draft.TenantID != actor.TenantID || draft.State == domain.DraftStateAbandoned {
		return domain.Draft{}, domain.ErrNotFound
	}
	if draft.OwnerID != actor.ID {
		return domain.Draft{}, domain.ErrForbidden
	}
	return draft, nil
}

// declarationHash is the canonical metadata hash of a normalized
// declaration.
func declarationHash(decl domain.Declaration) (string, error) {
	sum, _, err := crypto.CanonicalSHA256(decl)
	return sum, err
}

func (s *DraftService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *DraftService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return NewID()
}
