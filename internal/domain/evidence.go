package domain

import "time"

type LedgerState string

const (
	LedgerStateSealed      LedgerState = "SEALED"
	LedgerStateQuarantined LedgerState = "QUARANTINED"
)

type ReviewStatus string

const (
	ReviewNotReviewed ReviewStatus = "NOT_REVIEWED"
	ReviewApproved    ReviewStatus = "APPROVED"
	ReviewRejected    ReviewStatus = "REJECTED"
)

func (s ReviewStatus) Decision() bool {
	return s == ReviewApproved || s == ReviewRejected
}

type PayloadHashStatus string

const (
	PayloadHashComputed           PayloadHashStatus = "COMPUTED"
	PayloadHashPendingContentLink PayloadHashStatus = "PENDING_CONTENT_LINK"
)

// EvidenceRecord is the immutable ledger entry produced by sealing a
// draft. ReviewStatus is the only field that changes after creation.
type EvidenceRecord struct {
	ID                 string
	DraftID            string
	TenantID           string
	OwnerID            string
	Method             IngestionMethod
	LedgerState        LedgerState
	PayloadHashSHA256  *string
	MetadataHashSHA256 string
	Declaration        []byte
	Attachments        []Attachment
	SealedAtUTC        time.Time
	RetentionEndsUTC   time.Time
	ReviewStatus       ReviewStatus
	QuarantineReason   *string
	RequestID          string
	CorrelationID      string
}

// ContentLink is an append-only late binding of content to a
// reference-first record.
type ContentLink struct {
	EvidenceID  string
	SHA256      string
	SizeBytes   int64
	ContentType string
	LinkedBy    string
	LinkedAt    time.Time
}

type ReviewDecision struct {
	EvidenceID string
	Status     ReviewStatus
	ReviewerID string
	Note       string
	DecidedAt  time.Time
}

// SealReceipt is the projection of an EvidenceRecord returned to callers.
type SealReceipt struct {
	EvidenceID         string            `json:"evidence_id"`
	DraftID            string            `json:"draft_id"`
	CorrelationID      string            `json:"correlation_id"`
	RequestID          string            `json:"request_id"`
	LedgerState        LedgerState       `json:"ledger_state"`
	PayloadHashSHA256  *string           `json:"payload_hash_sha256"`
	PayloadHashStatus  PayloadHashStatus `json:"payload_hash_status"`
	MetadataHashSHA256 string            `json:"metadata_hash_sha256"`
	SealedAtUTC        time.Time         `json:"sealed_at_utc"`
	RetentionEndsUTC   time.Time         `json:"retention_ends_utc"`
	ReviewStatus       ReviewStatus      `json:"review_status"`
	QuarantineReason   *string           `json:"quarantine_reason,omitempty"`
	BuildID            string            `json:"build_id"`
	ContractVersion    string            `json:"contract_version"`
	Simulated          bool              `json:"simulated"`
	Replayed           bool              `json:"replayed"`
}

// BuildInfo identifies the serving version for support triage.
type BuildInfo struct {
	BuildID         string
	ContractVersion string
}

// ReceiptFromRecord projects a record into a receipt. link, when non-nil,
// supplies the payload digest of a reference-first record.
func ReceiptFromRecord(rec EvidenceRecord, link *ContentLink, correlationID string, build BuildInfo) SealReceipt {
	payload := rec.PayloadHashSHA256
	if payload == nil && link != nil {
		v := link.SHA256
		payload = &v
	}
	status := PayloadHashComputed
	if payload == nil {
		status = PayloadHashPendingContentLink
	}
	return SealReceipt{
		EvidenceID:         rec.ID,
		DraftID:            rec.DraftID,
		CorrelationID:      correlationID,
		RequestID:          rec.RequestID,
		LedgerState:        rec.LedgerState,
		PayloadHashSHA256:  payload,
		PayloadHashStatus:  status,
		MetadataHashSHA256: rec.MetadataHashSHA256,
		SealedAtUTC:        rec.SealedAtUTC.UTC(),
		RetentionEndsUTC:   rec.RetentionEndsUTC.UTC(),
		ReviewStatus:       rec.ReviewStatus,
		QuarantineReason:   rec.QuarantineReason,
		BuildID:            build.BuildID,
		ContractVersion:    build.ContractVersion,
	}
}
