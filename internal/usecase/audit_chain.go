package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

const zeroAuditHash = "0000000000000000000000000000000000000000000000000000000000000000"

type chainPayload struct {
	Version       string `json:"v"`
	CorrelationID string `json:"correlation_id"`
	Seq           int64  `json:"seq"`
	TenantID      string `json:"tenant_id"`
	EventType     string `json:"event_type"`
	ActorIDHash   string `json:"actor_id_hash"`
	DraftID       string `json:"draft_id"`
	EvidenceID    string `json:"evidence_id"`
	Result        string `json:"result"`
	ErrorCode     string `json:"error_code"`
	PayloadHash   string `json:"payload_hash"`
	PrevEntryHash string `json:"prev_entry_hash"`
	CreatedAt     string `json:"created_at"`
}

// AuditPayloadHash hashes the canonical JSON form of an entry payload.
func AuditPayloadHash(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	sum, _, err := crypto.CanonicalSHA256(payload)
	return sum, err
}

// ChainAuditEntry links entry after prev (nil for the first entry of a
// correlation id) and fills Seq, PrevEntryHash and EntryHash.
func ChainAuditEntry(prev *domain.AuditEntry, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.CorrelationID == "" || entry.EventType == "" {
		return domain.AuditEntry{}, errors.New("audit entry missing correlation_id or event_type")
	}
	entry.Seq = 1
	entry.PrevEntryHash = zeroAuditHash
	if prev != nil {
		if prev.CorrelationID != entry.CorrelationID {
			return domain.AuditEntry{}, errors.New("audit entry correlation mismatch")
		}
		entry.Seq = prev.Seq + 1
		entry.PrevEntryHash = prev.EntryHash
	}
	if entry.PayloadHash == "" {
		sum, err := AuditPayloadHash(entry.Payload)
		if err != nil {
			return domain.AuditEntry{}, err
		}
		entry.PayloadHash = sum
	}
	hash, err := computeAuditEntryHash(entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry.EntryHash = hash
	return entry, nil
}

func computeAuditEntryHash(entry domain.AuditEntry) (string, error) {
	if entry.CreatedAt.IsZero() {
		return "", errors.New("audit entry missing created_at")
	}
	sum, _, err := crypto.CanonicalSHA256(chainPayload{
		Version:       domain.AuditChainVersion,
		CorrelationID: entry.CorrelationID,
		Seq:           entry.Seq,
		TenantID:      entry.TenantID,
		EventType:     string(entry.EventType),
		ActorIDHash:   entry.ActorIDHash,
		DraftID:       entry.DraftID,
		EvidenceID:    entry.EvidenceID,
		Result:        string(entry.Result),
		ErrorCode:     entry.ErrorCode,
		PayloadHash:   entry.PayloadHash,
		PrevEntryHash: entry.PrevEntryHash,
		CreatedAt:     entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	return sum, err
}

// VerifyAuditChain recomputes every hash of one correlation's entries.
func VerifyAuditChain(ctx context.Context, repo AuditRepository, correlationID string) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	entries, err := repo.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return err
	}
	expectedSeq := int64(1)
	prevHash := zeroAuditHash
	for _, entry := range entries {
		if entry.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, entry.Seq)
		}
		if entry.PrevEntryHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", entry.Seq)
		}
		payloadHash, err := AuditPayloadHash(entry.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload hash failed at seq %d: %w", entry.Seq, err)
		}
		if payloadHash != entry.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", entry.Seq)
		}
		expected, err := computeAuditEntryHash(entry)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", entry.Seq, err)
		}
		if expected != entry.EntryHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", entry.Seq)
		}
		prevHash = entry.EntryHash
		expectedSeq++
	}
	return nil
}
