package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"seald/internal/domain"
	"seald/internal/usecase"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func openDraft(id string, modified time.Time) domain.Draft {
	return domain.Draft{
		ID:              id,
		TenantID:        "tenant-1",
		OwnerID:         "user-1",
		Method:          domain.MethodFileUpload,
		DeclarationHash: "hash-" + id,
		State:           domain.DraftStateDraft,
		Version:         1,
		CreatedAt:       modified,
		LastModifiedAt:  modified,
	}
}

func TestDraftUpdateRequiresVersion(t *testing.T) {
	ctx := context.Background()
	repo := New().Drafts()
	draft := openDraft("d1", t0)
	if err := repo.Create(ctx, draft); err != nil {
		t.Fatalf("create: %v", err)
	}
	draft.Version = 2
	if err := repo.Update(ctx, draft, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	draft.Version = 3
	if err := repo.Update(ctx, draft, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if err := repo.Update(ctx, openDraft("missing", t0), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSealDraftIsConditional(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.Drafts().Create(ctx, openDraft("d1", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := domain.EvidenceRecord{ID: "e1", DraftID: "d1", SealedAtUTC: t0.Add(time.Hour)}
	if err := store.Ledger().SealDraft(ctx, rec, 1); err != nil {
		t.Fatalf("seal: %v", err)
	}
	rec2 := domain.EvidenceRecord{ID: "e2", DraftID: "d1", SealedAtUTC: t0.Add(2 * time.Hour)}
	if err := store.Ledger().SealDraft(ctx, rec2, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second seal, got %v", err)
	}
	if n := store.Ledger().Count("d1"); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
	draft, err := store.Drafts().Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if draft.State != domain.DraftStateSealed || draft.EvidenceID != "e1" || draft.Version != 2 {
		t.Fatalf("unexpected draft after seal: %+v", draft)
	}
}

func TestFindByDeclarationHashHonoursWindow(t *testing.T) {
	ctx := context.Background()
	repo := New().Drafts()
	if err := repo.Create(ctx, openDraft("d1", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.FindByDeclarationHash(ctx, "tenant-1", "user-1", "hash-d1", t0.Add(-time.Minute)); err != nil {
		t.Fatalf("expected match inside window: %v", err)
	}
	if _, err := repo.FindByDeclarationHash(ctx, "tenant-1", "user-1", "hash-d1", t0.Add(time.Minute)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected miss outside window, got %v", err)
	}
	if _, err := repo.FindByDeclarationHash(ctx, "tenant-1", "user-2", "hash-d1", t0.Add(-time.Minute)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected miss for other owner, got %v", err)
	}
}

func TestListInactiveOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := New().Drafts()
	for i, id := range []string{"d3", "d1", "d2"} {
		if err := repo.Create(ctx, openDraft(id, t0.Add(time.Duration(len(id)-i)*time.Hour))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	fresh := openDraft("fresh", t0.Add(100*time.Hour))
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := repo.ListInactive(ctx, t0.Add(50*time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 inactive drafts, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].LastModifiedAt.Before(out[i-1].LastModifiedAt) {
			t.Fatalf("drafts not ordered: %v then %v", out[i-1].LastModifiedAt, out[i].LastModifiedAt)
		}
	}
}

func TestBindingRegistryResolve(t *testing.T) {
	store := New()
	store.Bindings().Register("tenant-1", domain.ScopeSupplier, "SUP-1", "supplier/1")
	res, err := store.Bindings().Resolve(context.Background(), "tenant-1", domain.ScopeSupplier, []string{"SUP-1", "SUP-2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].CanonicalID != "supplier/1" {
		t.Fatalf("unexpected resolved %+v", res.Resolved)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "SUP-2" {
		t.Fatalf("unexpected unresolved %+v", res.Unresolved)
	}
}

func TestAuditLogChainsPerCorrelation(t *testing.T) {
	ctx := context.Background()
	log := NewAuditLog()
	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, domain.AuditEntry{
			CorrelationID: "corr-1",
			EventType:     domain.AuditDraftUpdated,
			DraftID:       "d1",
			Result:        domain.AuditResultSuccess,
			Payload:       map[string]any{"i": i},
			CreatedAt:     t0.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := log.Append(ctx, domain.AuditEntry{CorrelationID: "corr-2", EventType: domain.AuditSealRequested, CreatedAt: t0}); err != nil {
		t.Fatalf("append other correlation: %v", err)
	}
	if err := usecase.VerifyAuditChain(ctx, log, "corr-1"); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	entries, _ := log.ListByCorrelation(ctx, "corr-2")
	if len(entries) != 1 || entries[0].Seq != 1 {
		t.Fatalf("second correlation should start at seq 1, got %+v", entries)
	}
	if log.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", log.Len())
	}
}
