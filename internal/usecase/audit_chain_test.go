package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"seald/internal/domain"
)

type chainRepo struct {
	mu      sync.Mutex
	entries map[string][]domain.AuditEntry
}

func newChainRepo() *chainRepo {
	return &chainRepo{entries: make(map[string][]domain.AuditEntry)}
}

func (r *chainRepo) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev *domain.AuditEntry
	if chain := r.entries[entry.CorrelationID]; len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}
	chained, err := ChainAuditEntry(prev, entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	r.entries[entry.CorrelationID] = append(r.entries[entry.CorrelationID], chained)
	return chained, nil
}

func (r *chainRepo) ListByCorrelation(_ context.Context, correlationID string) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries[correlationID]...), nil
}

func (r *chainRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.entries {
		n += len(c)
	}
	return n
}

func seedChain(t *testing.T, repo *chainRepo, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Append(context.Background(), domain.AuditEntry{
			CorrelationID: "corr-1",
			TenantID:      "tenant-1",
			EventType:     domain.AuditDraftUpdated,
			DraftID:       "d1",
			Result:        domain.AuditResultSuccess,
			Payload:       map[string]any{"version": i + 1},
			CreatedAt:     testNow.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestAuditChainVerifies(t *testing.T) {
	repo := newChainRepo()
	seedChain(t, repo, 3)
	if err := VerifyAuditChain(context.Background(), repo, "corr-1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	entries, _ := repo.ListByCorrelation(context.Background(), "corr-1")
	if entries[0].PrevEntryHash != zeroAuditHash || entries[1].PrevEntryHash != entries[0].EntryHash {
		t.Fatal("entries are not linked")
	}
}

func TestAuditChainDetectsTampering(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(entries []domain.AuditEntry) []domain.AuditEntry
		want   string
	}{
		{
			name: "payload edited",
			mutate: func(e []domain.AuditEntry) []domain.AuditEntry {
				e[1].Payload = map[string]any{"version": 99}
				return e
			},
			want: "payload hash mismatch at seq 2",
		},
		{
			name: "result edited",
			mutate: func(e []domain.AuditEntry) []domain.AuditEntry {
				e[2].Result = domain.AuditResultFailure
				return e
			},
			want: "hash mismatch at seq 3",
		},
		{
			name: "entry removed",
			mutate: func(e []domain.AuditEntry) []domain.AuditEntry {
				return append(e[:1], e[2:]...)
			},
			want: "seq mismatch: expected 2 got 3",
		},
		{
			name: "entries reordered",
			mutate: func(e []domain.AuditEntry) []domain.AuditEntry {
				e[1], e[2] = e[2], e[1]
				return e
			},
			want: "seq mismatch",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newChainRepo()
			seedChain(t, repo, 3)
			repo.entries["corr-1"] = tc.mutate(repo.entries["corr-1"])
			err := VerifyAuditChain(context.Background(), repo, "corr-1")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestChainAuditEntryRequiresKeys(t *testing.T) {
	if _, err := ChainAuditEntry(nil, domain.AuditEntry{EventType: domain.AuditDraftCreated, CreatedAt: testNow}); err == nil {
		t.Fatal("expected error without correlation id")
	}
	prev := domain.AuditEntry{CorrelationID: "a", Seq: 1}
	if _, err := ChainAuditEntry(&prev, domain.AuditEntry{CorrelationID: "b", EventType: domain.AuditDraftCreated, CreatedAt: testNow}); err == nil {
		t.Fatal("expected correlation mismatch")
	}
	if _, err := ChainAuditEntry(nil, domain.AuditEntry{CorrelationID: "a", EventType: domain.AuditDraftCreated}); err == nil {
		t.Fatal("expected error without created_at")
	}
}
