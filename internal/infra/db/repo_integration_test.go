//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"seald/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestDraftRepositoryVersioning(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewDraftRepository(gdb)
	ctx := context.Background()

	draft := newDraft()
	if err := repo.Create(ctx, draft); err != nil {
		t.Fatalf("create: %v", err)
	}
	draft.Version = 2
	draft.Declaration.Purpose = "updated"
	if err := repo.Update(ctx, draft, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.Update(ctx, draft, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := repo.Get(ctx, draft.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 || got.Declaration.Purpose != "updated" {
		t.Fatalf("unexpected draft %+v", got)
	}
	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	found, err := repo.FindByDeclarationHash(ctx, draft.TenantID, draft.OwnerID, draft.DeclarationHash, draft.LastModifiedAt.Add(-time.Minute))
	if err != nil || found.ID != draft.ID {
		t.Fatalf("expected dedupe hit, got %+v %v", found, err)
	}
}

func TestEvidenceRepositorySealsOnce(t *testing.T) {
	gdb := setupTestDB(t)
	drafts := NewDraftRepository(gdb)
	ledger := NewEvidenceRepository(gdb)
	ctx := context.Background()

	draft := newDraft()
	if err := drafts.Create(ctx, draft); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.SealDraft(ctx, newRecord(draft.ID), 1)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrConflict) {
				t.Errorf("unexpected seal error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one seal, got %d", successes)
	}

	sealed, err := drafts.Get(ctx, draft.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if sealed.State != domain.DraftStateSealed || sealed.EvidenceID == "" {
		t.Fatalf("draft not sealed: %+v", sealed)
	}
	rec, err := ledger.Get(ctx, sealed.EvidenceID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if string(rec.Declaration) != `{"purpose":"audit"}` {
		t.Fatalf("canonical declaration bytes changed: %s", rec.Declaration)
	}

	decision := domain.ReviewDecision{EvidenceID: rec.ID, Status: domain.ReviewApproved, ReviewerID: "reviewer", DecidedAt: time.Now()}
	if err := ledger.RecordReview(ctx, decision); err != nil {
		t.Fatalf("review: %v", err)
	}
	if err := ledger.RecordReview(ctx, decision); !errors.Is(err, domain.ErrReviewDecided) {
		t.Fatalf("expected decided, got %v", err)
	}

	link := domain.ContentLink{EvidenceID: rec.ID, SHA256: strings.Repeat("a", 64), SizeBytes: 3, ContentType: "text/plain", LinkedBy: "user-1", LinkedAt: time.Now()}
	if err := ledger.AddContentLink(ctx, link); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := ledger.AddContentLink(ctx, link); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second link, got %v", err)
	}
	got, err := ledger.GetContentLink(ctx, rec.ID)
	if err != nil || got == nil || got.SHA256 != link.SHA256 {
		t.Fatalf("unexpected link %+v %v", got, err)
	}
}

func TestBindingRepositoryResolve(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewBindingRepository(gdb)
	ctx := context.Background()
	tenant := "tenant-" + uuid.NewString()
	if err := repo.Register(ctx, tenant, domain.ScopeSite, "S-1", "site/1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := repo.Resolve(ctx, tenant, domain.ScopeSite, []string{"S-1", "S-2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || len(res.Unresolved) != 1 || res.Unresolved[0] != "S-2" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func newDraft() domain.Draft {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Draft{
		ID:       uuid.NewString(),
		TenantID: "tenant-1",
		OwnerID:  "user-1",
		Method:   domain.MethodFileUpload,
		Declaration: domain.Declaration{
			IngestionMethod: domain.MethodFileUpload,
			Purpose:         "audit",
			FileUpload:      &domain.FileUploadDetails{},
		},
		DeclarationHash: uuid.NewString(),
		State:           domain.DraftStateDraft,
		Version:         1,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}
}

func newRecord(draftID string) domain.EvidenceRecord {
	now := time.Now().UTC()
	return domain.EvidenceRecord{
		ID:                 uuid.NewString(),
		DraftID:            draftID,
		TenantID:           "tenant-1",
		OwnerID:            "user-1",
		Method:             domain.MethodFileUpload,
		LedgerState:        domain.LedgerStateSealed,
		MetadataHashSHA256: strings.Repeat("b", 64),
		Declaration:        []byte(`{"purpose":"audit"}`),
		SealedAtUTC:        now,
		RetentionEndsUTC:   now.AddDate(7, 0, 0),
		ReviewStatus:       domain.ReviewNotReviewed,
		RequestID:          "req-1",
		CorrelationID:      "corr-1",
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	applyMigrations(t, gdb)
	return gdb
}

func applyMigrations(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if err := gdb.Exec(string(sqlBytes)).Error; err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}
