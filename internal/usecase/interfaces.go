package usecase

import (
	"context"
	"time"

	"seald/internal/domain"
)

type Clock func() time.Time

// DraftRepository stores mutable drafts. Update is conditional on the
// stored version matching expectedVersion and returns domain.ErrConflict
// otherwise.
type DraftRepository interface {
	Create(ctx context.Context, draft domain.Draft) error
	Get(ctx context.Context, draftID string) (domain.Draft, error)
	Update(ctx context.Context, draft domain.Draft, expectedVersion int64) error
	FindByDeclarationHash(ctx context.Context, tenantID, ownerID, declarationHash string, since time.Time) (domain.Draft, error)
	ListInactive(ctx context.Context, cutoff time.Time, limit int) ([]domain.Draft, error)
}

// EvidenceLedger is the append-only evidence store.
type EvidenceLedger interface {
	// SealDraft inserts rec and moves the draft from DRAFT at
	// expectedVersion to SEALED in one transaction. It returns
	// domain.ErrConflict and writes nothing when the draft moved.
	SealDraft(ctx context.Context, rec domain.EvidenceRecord, expectedVersion int64) error
	Get(ctx context.Context, evidenceID string) (domain.EvidenceRecord, error)
	RecordReview(ctx context.Context, decision domain.ReviewDecision) error
	AddContentLink(ctx context.Context, link domain.ContentLink) error
	GetContentLink(ctx context.Context, evidenceID string) (*domain.ContentLink, error)
}

// AuditRepository appends entries, assigning the per-correlation
// sequence and chain hashes through ChainAuditEntry.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	ListByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEntry, error)
}

type AuditLogger interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

type BindingResolver interface {
	Resolve(ctx context.Context, tenantID string, scope domain.DeclaredScope, targetIDs []string) (domain.BindingResolution, error)
}

type QuarantinePolicy interface {
	Evaluate(ctx context.Context, input domain.QuarantineInput) (domain.QuarantineDecision, error)
}

// Locker serializes work on one key across processes. Lock blocks until
// the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
