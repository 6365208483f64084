package domain

import (
	"encoding/json"
	"time"
)

type DraftState string

const (
	DraftStateDraft     DraftState = "DRAFT"
	DraftStateSealed    DraftState = "SEALED"
	DraftStateAbandoned DraftState = "ABANDONED"
)

// SealState is the externally visible state machine position of a draft.
// READY_TO_SEAL is derived, never stored.
type SealState string

const (
	SealStateDraft       SealState = "DRAFT"
	SealStateReadyToSeal SealState = "READY_TO_SEAL"
	SealStateSealed      SealState = "SEALED"
	SealStateQuarantined SealState = "QUARANTINED"
	SealStateAbandoned   SealState = "ABANDONED"
)

type Draft struct {
	ID              string
	TenantID        string
	OwnerID         string
	Method          IngestionMethod
	Declaration     Declaration
	DeclarationHash string
	Attachments     []Attachment
	State           DraftState
	Version         int64
	EvidenceID      string
	CreatedAt       time.Time
	LastModifiedAt  time.Time
}

type AttachmentKind string

const (
	AttachmentFile       AttachmentKind = "FILE"
	AttachmentManualJSON AttachmentKind = "MANUAL_JSON"
	AttachmentManifest   AttachmentKind = "MANIFEST"
	AttachmentReference  AttachmentKind = "REFERENCE"
)

// Attachment is a payload pointer bound to a draft. SHA256 is nil until
// known; reference-first attachments may stay nil through sealing.
type Attachment struct {
	ID          string          `json:"attachment_id"`
	Position    int             `json:"position"`
	Kind        AttachmentKind  `json:"kind"`
	FileName    string          `json:"file_name,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	SizeBytes   int64           `json:"size_bytes"`
	SHA256      *string         `json:"sha256"`
	Document    json.RawMessage `json:"document,omitempty"`
	Manifest    json.RawMessage `json:"manifest,omitempty"`
	ExternalRef string          `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Actor is the principal on whose behalf an operation runs.
type Actor struct {
	TenantID string
	ID       string
	Roles    []string
}

// FileMeta describes a payload without its content.
type FileMeta struct {
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}
