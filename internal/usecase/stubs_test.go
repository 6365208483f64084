package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"seald/internal/domain"
)

var testNow = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

type draftRepoStub struct {
	mu     sync.Mutex
	drafts map[string]domain.Draft
}

func newDraftRepoStub() *draftRepoStub {
	return &draftRepoStub{drafts: make(map[string]domain.Draft)}
}

func (r *draftRepoStub) Create(_ context.Context, draft domain.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[draft.ID]; ok {
		return domain.ErrConflict
	}
	r.drafts[draft.ID] = draft
	return nil
}

func (r *draftRepoStub) Get(_ context.Context, draftID string) (domain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[draftID]
	if !ok {
		return domain.Draft{}, domain.ErrNotFound
	}
	return d, nil
}

func (r *draftRepoStub) Update(_ context.Context, draft domain.Draft, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.drafts[draft.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion || cur.State != domain.DraftStateDraft {
		return domain.ErrConflict
	}
	r.drafts[draft.ID] = draft
	return nil
}

func (r *draftRepoStub) FindByDeclarationHash(_ context.Context, tenantID, ownerID, hash string, since time.Time) (domain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drafts {
		if d.TenantID == tenantID && d.OwnerID == ownerID && d.DeclarationHash == hash && d.State == domain.DraftStateDraft && !d.CreatedAt.Before(since) {
			return d, nil
		}
	}
	return domain.Draft{}, domain.ErrNotFound
}

func (r *draftRepoStub) ListInactive(_ context.Context, cutoff time.Time, limit int) ([]domain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Draft
	for _, d := range r.drafts {
		if d.State == domain.DraftStateDraft && d.LastModifiedAt.Before(cutoff) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModifiedAt.Before(out[j].LastModifiedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ledgerStub seals by flipping the draft in drafts, mirroring the
// transactional repositories.
type ledgerStub struct {
	mu      sync.Mutex
	drafts  *draftRepoStub
	records map[string]domain.EvidenceRecord
	reviews []domain.ReviewDecision
	links   map[string]domain.ContentLink
	seals   int
}

func newLedgerStub(drafts *draftRepoStub) *ledgerStub {
	return &ledgerStub{drafts: drafts, records: make(map[string]domain.EvidenceRecord), links: make(map[string]domain.ContentLink)}
}

func (l *ledgerStub) SealDraft(_ context.Context, rec domain.EvidenceRecord, expectedVersion int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drafts.mu.Lock()
	defer l.drafts.mu.Unlock()
	d, ok := l.drafts.drafts[rec.DraftID]
	if !ok {
		return domain.ErrNotFound
	}
	if d.State != domain.DraftStateDraft || d.Version != expectedVersion {
		return domain.ErrConflict
	}
	d.State = domain.DraftStateSealed
	d.EvidenceID = rec.ID
	d.Version++
	l.drafts.drafts[d.ID] = d
	l.records[rec.ID] = rec
	l.seals++
	return nil
}

func (l *ledgerStub) Get(_ context.Context, evidenceID string) (domain.EvidenceRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[evidenceID]
	if !ok {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (l *ledgerStub) RecordReview(_ context.Context, decision domain.ReviewDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[decision.EvidenceID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.ReviewStatus.Decision() {
		return domain.ErrReviewDecided
	}
	rec.ReviewStatus = decision.Status
	l.records[rec.ID] = rec
	l.reviews = append(l.reviews, decision)
	return nil
}

func (l *ledgerStub) AddContentLink(_ context.Context, link domain.ContentLink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.links[link.EvidenceID]; ok {
		return domain.ErrConflict
	}
	l.links[link.EvidenceID] = link
	return nil
}

func (l *ledgerStub) GetContentLink(_ context.Context, evidenceID string) (*domain.ContentLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[evidenceID]
	if !ok {
		return nil, nil
	}
	return &link, nil
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *auditRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry.CorrelationID == "" {
		entry.CorrelationID = CorrelationID(ctx)
	}
	a.entries = append(a.entries, entry)
}

func (a *auditRecorder) events() []domain.AuditEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditEventType, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.EventType)
	}
	return out
}

func (a *auditRecorder) last() domain.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return domain.AuditEntry{}
	}
	return a.entries[len(a.entries)-1]
}

type bindingStub map[string]string

func (b bindingStub) Resolve(_ context.Context, _ string, _ domain.DeclaredScope, ids []string) (domain.BindingResolution, error) {
	res := domain.BindingResolution{}
	for _, id := range ids {
		if canonical, ok := b[id]; ok {
			res.Resolved = append(res.Resolved, domain.Binding{TargetID: id, CanonicalID: canonical})
			continue
		}
		res.Unresolved = append(res.Unresolved, id)
	}
	return res, nil
}

var (
	owner    = domain.Actor{TenantID: "tenant-1", ID: "user-1"}
	coworker = domain.Actor{TenantID: "tenant-1", ID: "user-2"}
	stranger = domain.Actor{TenantID: "tenant-2", ID: "user-1"}
)

func fileUploadDecl() domain.Declaration {
	return domain.Declaration{
		IngestionMethod: domain.MethodFileUpload,
		SourceSystem:    "SAP",
		DatasetType:     "ENERGY_INVOICE",
		DeclaredScope:   domain.ScopeOrganization,
		Purpose:         "CSRD reporting",
		LegalBasis:      "LEGAL_OBLIGATION",
		RetentionPolicy: domain.RetentionRegulatory10Y,
		FileUpload:      &domain.FileUploadDetails{},
	}
}

type fixture struct {
	drafts *draftRepoStub
	ledger *ledgerStub
	audit  *auditRecorder
	svc    *DraftService
	seal   *SealEngine
	ev     *EvidenceService
}

func newFixture() *fixture {
	drafts := newDraftRepoStub()
	ledger := newLedgerStub(drafts)
	audit := &auditRecorder{}
	svc := NewDraftService(drafts, audit)
	svc.Clock = fixedClock
	svc.NewID = sequentialIDs("draft-")
	seal := NewSealEngine(drafts, ledger, audit)
	seal.Clock = fixedClock
	seal.NewID = sequentialIDs("ev-")
	seal.Build = domain.BuildInfo{BuildID: "b1", ContractVersion: "seal.v1"}
	ev := NewEvidenceService(ledger, audit, seal.Build)
	ev.Clock = fixedClock
	return &fixture{drafts: drafts, ledger: ledger, audit: audit, svc: svc, seal: seal, ev: ev}
}
