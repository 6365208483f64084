// Package memstore holds drafts, the evidence ledger, the binding
// registry and the audit log in process memory. It backs no-db mode and
// tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"seald/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	drafts   map[string]domain.Draft
	records  map[string]domain.EvidenceRecord
	reviews  map[string][]domain.ReviewDecision
	links    map[string]domain.ContentLink
	bindings map[bindingKey]string
}

type bindingKey struct {
	tenantID string
	scope    domain.DeclaredScope
	targetID string
}

func New() *Store {
	return &Store{
		drafts:   make(map[string]domain.Draft),
		records:  make(map[string]domain.EvidenceRecord),
		reviews:  make(map[string][]domain.ReviewDecision),
		links:    make(map[string]domain.ContentLink),
		bindings: make(map[bindingKey]string),
	}
}

// DraftRepository is the usecase.DraftRepository view of a Store.
type DraftRepository struct{ s *Store }

// Ledger is the usecase.EvidenceLedger view of a Store.
type Ledger struct{ s *Store }

// BindingRegistry is the usecase.BindingResolver view of a Store.
type BindingRegistry struct{ s *Store }

func (s *Store) Drafts() *DraftRepository   { return &DraftRepository{s: s} }
func (s *Store) Ledger() *Ledger            { return &Ledger{s: s} }
func (s *Store) Bindings() *BindingRegistry { return &BindingRegistry{s: s} }

func (r *DraftRepository) Create(_ context.Context, draft domain.Draft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drafts[draft.ID]; ok {
		return domain.ErrConflict
	}
	r.s.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (r *DraftRepository) Get(_ context.Context, draftID string) (domain.Draft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	draft, ok := r.s.drafts[draftID]
	if !ok {
		return domain.Draft{}, domain.ErrNotFound
	}
	return cloneDraft(draft), nil
}

func (r *DraftRepository) Update(_ context.Context, draft domain.Draft, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.drafts[draft.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion || current.State != domain.DraftStateDraft {
		return domain.ErrConflict
	}
	r.s.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (r *DraftRepository) FindByDeclarationHash(_ context.Context, tenantID, ownerID, declarationHash string, since time.Time) (domain.Draft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		best  domain.Draft
		found bool
	)
	for _, d := range r.s.drafts {
		if d.TenantID != tenantID || d.OwnerID != ownerID || d.DeclarationHash != declarationHash {
			continue
		}
		if d.State != domain.DraftStateDraft || d.LastModifiedAt.Before(since) {
			continue
		}
		if !found || d.LastModifiedAt.After(best.LastModifiedAt) {
			best, found = d, true
		}
	}
	if !found {
		return domain.Draft{}, domain.ErrNotFound
	}
	return cloneDraft(best), nil
}

func (r *DraftRepository) ListInactive(_ context.Context, cutoff time.Time, limit int) ([]domain.Draft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Draft, 0)
	for _, d := range r.s.drafts {
		if d.State == domain.DraftStateDraft && d.LastModifiedAt.Before(cutoff) {
			out = append(out, cloneDraft(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModifiedAt.Equal(out[j].LastModifiedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastModifiedAt.Before(out[j].LastModifiedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) SealDraft(_ context.Context, rec domain.EvidenceRecord, expectedVersion int64) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	draft, ok := l.s.drafts[rec.DraftID]
	if !ok {
		return domain.ErrNotFound
	}
	if draft.State != domain.DraftStateDraft || draft.Version != expectedVersion {
		return domain.ErrConflict
	}
	if _, dup := l.s.records[rec.ID]; dup {
		return domain.ErrConflict
	}
	l.s.records[rec.ID] = cloneRecord(rec)
	draft.State = domain.DraftStateSealed
	draft.EvidenceID = rec.ID
	draft.Version++
	draft.LastModifiedAt = rec.SealedAtUTC
	l.s.drafts[draft.ID] = draft
	return nil
}

func (l *Ledger) Get(_ context.Context, evidenceID string) (domain.EvidenceRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	rec, ok := l.s.records[evidenceID]
	if !ok {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (l *Ledger) RecordReview(_ context.Context, decision domain.ReviewDecision) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	rec, ok := l.s.records[decision.EvidenceID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.ReviewStatus.Decision() {
		return domain.ErrReviewDecided
	}
	rec.ReviewStatus = decision.Status
	l.s.records[rec.ID] = rec
	l.s.reviews[rec.ID] = append(l.s.reviews[rec.ID], decision)
	return nil
}

// Reviews lists review decisions recorded for a record, oldest first.
func (l *Ledger) Reviews(evidenceID string) []domain.ReviewDecision {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return append([]domain.ReviewDecision(nil), l.s.reviews[evidenceID]...)
}

func (l *Ledger) AddContentLink(_ context.Context, link domain.ContentLink) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if _, ok := l.s.records[link.EvidenceID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := l.s.links[link.EvidenceID]; ok {
		return domain.ErrConflict
	}
	l.s.links[link.EvidenceID] = link
	return nil
}

func (l *Ledger) GetContentLink(_ context.Context, evidenceID string) (*domain.ContentLink, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	link, ok := l.s.links[evidenceID]
	if !ok {
		return nil, nil
	}
	return &link, nil
}

// Count returns the number of evidence records originating from draftID.
func (l *Ledger) Count(draftID string) int {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	n := 0
	for _, rec := range l.s.records {
		if rec.DraftID == draftID {
			n++
		}
	}
	return n
}

// Register adds a canonical entity to the registry.
func (b *BindingRegistry) Register(tenantID string, scope domain.DeclaredScope, targetID, canonicalID string) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	b.s.bindings[bindingKey{tenantID: tenantID, scope: scope, targetID: targetID}] = canonicalID
}

func (b *BindingRegistry) Resolve(_ context.Context, tenantID string, scope domain.DeclaredScope, targetIDs []string) (domain.BindingResolution, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	res := domain.BindingResolution{
		Scope:      scope,
		Requested:  append([]string(nil), targetIDs...),
		Resolved:   []domain.Binding{},
		Unresolved: []string{},
	}
	for _, id := range targetIDs {
		canonical, ok := b.s.bindings[bindingKey{tenantID: tenantID, scope: scope, targetID: id}]
		if !ok {
			res.Unresolved = append(res.Unresolved, id)
			continue
		}
		res.Resolved = append(res.Resolved, domain.Binding{Scope: scope, TargetID: id, CanonicalID: canonical})
	}
	return res, nil
}

func cloneDraft(d domain.Draft) domain.Draft {
	out := d
	out.Declaration = d.Declaration.Clone()
	out.Attachments = cloneAttachments(d.Attachments)
	return out
}

func cloneRecord(r domain.EvidenceRecord) domain.EvidenceRecord {
	out := r
	out.Declaration = append([]byte(nil), r.Declaration...)
	out.Attachments = cloneAttachments(r.Attachments)
	if r.PayloadHashSHA256 != nil {
		v := *r.PayloadHashSHA256
		out.PayloadHashSHA256 = &v
	}
	if r.QuarantineReason != nil {
		v := *r.QuarantineReason
		out.QuarantineReason = &v
	}
	return out
}

func cloneAttachments(in []domain.Attachment) []domain.Attachment {
	if in == nil {
		return nil
	}
	out := make([]domain.Attachment, len(in))
	for i, a := range in {
		out[i] = a
		if a.SHA256 != nil {
			v := *a.SHA256
			out[i].SHA256 = &v
		}
		out[i].Document = append([]byte(nil), a.Document...)
		out[i].Manifest = append([]byte(nil), a.Manifest...)
	}
	return out
}
