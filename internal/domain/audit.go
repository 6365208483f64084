package domain

import "time"

const AuditChainVersion = "seal_audit_v1"

type AuditEventType string

const (
	AuditDraftCreated     AuditEventType = "draft.created"
	AuditDraftUpdated     AuditEventType = "draft.updated"
	AuditDraftFetched     AuditEventType = "draft.fetched"
	AuditDraftAbandoned   AuditEventType = "draft.abandoned"
	AuditDraftsSwept      AuditEventType = "draft.swept"
	AuditPayloadAttached  AuditEventType = "payload.attached"
	AuditSealRequested    AuditEventType = "seal.requested"
	AuditSealCompleted    AuditEventType = "seal.completed"
	AuditSealQuarantined  AuditEventType = "seal.quarantined"
	AuditSealReplayed     AuditEventType = "seal.replayed"
	AuditEvidenceReviewed AuditEventType = "evidence.reviewed"
	AuditContentLinked    AuditEventType = "evidence.content_linked"
	AuditReceiptFetched   AuditEventType = "evidence.receipt_fetched"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEntry is one append-only log line, keyed by (CorrelationID, Seq).
type AuditEntry struct {
	CorrelationID string
	Seq           int64
	TenantID      string
	EventType     AuditEventType
	ActorIDHash   string
	DraftID       string
	EvidenceID    string
	Result        AuditResult
	ErrorCode     string
	Payload       map[string]any
	PayloadHash   string
	PrevEntryHash string
	EntryHash     string
	CreatedAt     time.Time
}
