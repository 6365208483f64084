package auditpg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"seald/internal/domain"
	"seald/internal/usecase"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo appends hash-chained entries to evidence_audit_log. Appends
// for one correlation id are serialized with a transaction-scoped
// advisory lock.
type AuditRepo struct {
	Pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{Pool: pool}
}

const selectColumns = `correlation_id, seq, tenant_id, event_type, actor_id_hash,
	COALESCE(draft_id, ''), COALESCE(evidence_id, ''), result, COALESCE(error_code, ''),
	payload, payload_hash, prev_entry_hash, entry_hash, created_at`

func (r *AuditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if r == nil || r.Pool == nil {
		return domain.AuditEntry{}, fmt.Errorf("db not configured")
	}
	// timestamptz keeps microseconds; hash what will be read back.
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.CorrelationID); err != nil {
		return domain.AuditEntry{}, err
	}

	var prev *domain.AuditEntry
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+`
FROM evidence_audit_log
WHERE correlation_id = $1
ORDER BY seq DESC
LIMIT 1`, entry.CorrelationID)
	last, err := scanEntry(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.AuditEntry{}, err
	default:
		prev = &last
	}

	chained, err := usecase.ChainAuditEntry(prev, entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO evidence_audit_log (
	correlation_id, seq, tenant_id, event_type, actor_id_hash, draft_id, evidence_id,
	result, error_code, payload, payload_hash, prev_entry_hash, entry_hash, created_at
) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''), $10, $11, $12, $13, $14)`,
		chained.CorrelationID,
		chained.Seq,
		chained.TenantID,
		string(chained.EventType),
		chained.ActorIDHash,
		chained.DraftID,
		chained.EvidenceID,
		string(chained.Result),
		chained.ErrorCode,
		payload,
		chained.PayloadHash,
		chained.PrevEntryHash,
		chained.EntryHash,
		chained.CreatedAt,
	)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.AuditEntry{}, err
	}
	return chained, nil
}

func (r *AuditRepo) ListByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEntry, error) {
	if r == nil || r.Pool == nil {
		return nil, fmt.Errorf("db not configured")
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+selectColumns+`
FROM evidence_audit_log
WHERE correlation_id = $1
ORDER BY seq ASC`, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanEntry(row pgx.Row) (domain.AuditEntry, error) {
	var (
		entry        domain.AuditEntry
		eventType    string
		result       string
		payloadBytes []byte
	)
	if err := row.Scan(
		&entry.CorrelationID,
		&entry.Seq,
		&entry.TenantID,
		&eventType,
		&entry.ActorIDHash,
		&entry.DraftID,
		&entry.EvidenceID,
		&result,
		&entry.ErrorCode,
		&payloadBytes,
		&entry.PayloadHash,
		&entry.PrevEntryHash,
		&entry.EntryHash,
		&entry.CreatedAt,
	); err != nil {
		return domain.AuditEntry{}, err
	}
	entry.EventType = domain.AuditEventType(eventType)
	entry.Result = domain.AuditResult(result)
	entry.CreatedAt = entry.CreatedAt.UTC()
	if len(payloadBytes) > 0 {
		if err := json.Unmarshal(payloadBytes, &entry.Payload); err != nil {
			return domain.AuditEntry{}, err
		}
	}
	return entry, nil
}
