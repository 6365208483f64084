package usecase

import (
	"context"
	"testing"
	"time"

	"seald/internal/domain"
)

func TestAuditEmitterDrainsOnClose(t *testing.T) {
	repo := newChainRepo()
	emitter := NewAuditEmitter(repo, fixedClock, 16)
	ctx := WithCorrelationID(context.Background(), "corr-emit")
	for i := 0; i < 5; i++ {
		emitter.Record(ctx, auditEntry(owner, domain.AuditDraftUpdated, "d1", "", nil, map[string]any{"i": i}))
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := emitter.Close(closeCtx); err != nil {
		t.Fatalf("close: %v", err)
	}
	entries, _ := repo.ListByCorrelation(context.Background(), "corr-emit")
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].ActorIDHash == owner.ID || entries[0].ActorIDHash == "" {
		t.Fatal("actor id must be stored hashed")
	}
	if !entries[0].CreatedAt.Equal(testNow) {
		t.Fatalf("created_at should come from the clock, got %v", entries[0].CreatedAt)
	}
	if err := VerifyAuditChain(context.Background(), repo, "corr-emit"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAuditEmitterIgnoresRecordAfterClose(t *testing.T) {
	repo := newChainRepo()
	emitter := NewAuditEmitter(repo, fixedClock, 4)
	if err := emitter.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	emitter.Record(WithCorrelationID(context.Background(), "late"), domain.AuditEntry{EventType: domain.AuditDraftCreated})
	if repo.count() != 0 {
		t.Fatal("record after close must not be written")
	}
}

type gatedRepo struct {
	*chainRepo
	gate chan struct{}
}

func (g gatedRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	<-g.gate
	return g.chainRepo.Append(ctx, entry)
}

func TestAuditEmitterDropsWhenQueueFull(t *testing.T) {
	repo := gatedRepo{chainRepo: newChainRepo(), gate: make(chan struct{})}
	emitter := NewAuditEmitter(repo, fixedClock, 1)
	ctx := WithCorrelationID(context.Background(), "corr-full")
	for i := 0; i < 10; i++ {
		emitter.Record(ctx, domain.AuditEntry{EventType: domain.AuditDraftUpdated})
	}
	if emitter.Dropped() == 0 {
		t.Fatal("expected drops with a blocked writer")
	}
	close(repo.gate)
	if err := emitter.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := int64(repo.count()) + emitter.Dropped(); got != 10 {
		t.Fatalf("every entry should be written or dropped, got %d", got)
	}
}
