package db

import "time"

type DraftModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	TenantID        string    `gorm:"index:idx_drafts_dedupe,priority:1;not null"`
	OwnerID         string    `gorm:"index:idx_drafts_dedupe,priority:2;not null"`
	IngestionMethod string    `gorm:"not null"`
	DeclarationJSON []byte    `gorm:"column:declaration;type:jsonb;not null"`
	DeclarationHash string    `gorm:"index:idx_drafts_dedupe,priority:3;not null"`
	AttachmentsJSON []byte    `gorm:"column:attachments;type:jsonb;not null"`
	State           string    `gorm:"index;not null"`
	Version         int64     `gorm:"not null"`
	EvidenceID      *string   `gorm:"type:uuid"`
	CreatedAt       time.Time `gorm:"not null"`
	LastModifiedAt  time.Time `gorm:"index;not null"`
}

func (DraftModel) TableName() string { return "evidence_drafts" }

type EvidenceRecordModel struct {
	ID                 string    `gorm:"type:uuid;primaryKey"`
	DraftID            string    `gorm:"type:uuid;index;not null"`
	TenantID           string    `gorm:"index;not null"`
	OwnerID            string    `gorm:"not null"`
	IngestionMethod    string    `gorm:"not null"`
	LedgerState        string    `gorm:"not null"`
	PayloadHashSHA256  *string   `gorm:"column:payload_hash_sha256"`
	MetadataHashSHA256 string    `gorm:"column:metadata_hash_sha256;not null"`
	DeclarationJSON    []byte    `gorm:"column:declaration_canonical;type:bytea;not null"`
	AttachmentsJSON    []byte    `gorm:"column:attachments;type:jsonb;not null"`
	SealedAtUTC        time.Time `gorm:"column:sealed_at_utc;not null"`
	RetentionEndsUTC   time.Time `gorm:"column:retention_ends_utc;not null"`
	ReviewStatus       string    `gorm:"not null"`
	QuarantineReason   *string
	RequestID          string `gorm:"not null"`
	CorrelationID      string `gorm:"not null"`
}

func (EvidenceRecordModel) TableName() string { return "evidence_records" }

type ReviewModel struct {
	ID         int64     `gorm:"primaryKey"`
	EvidenceID string    `gorm:"type:uuid;index;not null"`
	Status     string    `gorm:"not null"`
	ReviewerID string    `gorm:"not null"`
	Note       *string   `gorm:"type:text"`
	DecidedAt  time.Time `gorm:"not null"`
}

func (ReviewModel) TableName() string { return "evidence_reviews" }

type ContentLinkModel struct {
	EvidenceID  string    `gorm:"type:uuid;primaryKey"`
	SHA256      string    `gorm:"column:sha256;not null"`
	SizeBytes   int64     `gorm:"not null"`
	ContentType string    `gorm:"not null"`
	LinkedBy    string    `gorm:"not null"`
	LinkedAt    time.Time `gorm:"not null"`
}

func (ContentLinkModel) TableName() string { return "evidence_content_links" }

type BindingTargetModel struct {
	TenantID    string    `gorm:"primaryKey"`
	Scope       string    `gorm:"primaryKey"`
	TargetID    string    `gorm:"primaryKey"`
	CanonicalID string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (BindingTargetModel) TableName() string { return "binding_targets" }
