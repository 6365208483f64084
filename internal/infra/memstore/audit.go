package memstore

import (
	"context"
	"sync"

	"seald/internal/domain"
	"seald/internal/usecase"
)

// AuditLog is an append-only, hash-chained audit log keyed by
// (correlation_id, seq).
type AuditLog struct {
	mu      sync.Mutex
	entries map[string][]domain.AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{entries: make(map[string][]domain.AuditEntry)}
}

func (a *AuditLog) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var prev *domain.AuditEntry
	if chain := a.entries[entry.CorrelationID]; len(chain) > 0 {
		last := chain[len(chain)-1]
		prev = &last
	}
	chained, err := usecase.ChainAuditEntry(prev, entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	a.entries[entry.CorrelationID] = append(a.entries[entry.CorrelationID], chained)
	return chained, nil
}

func (a *AuditLog) ListByCorrelation(_ context.Context, correlationID string) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries[correlationID]...), nil
}

// Len returns the total number of entries across all correlations.
func (a *AuditLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, chain := range a.entries {
		n += len(chain)
	}
	return n
}
