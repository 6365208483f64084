package usecase

import (
	"context"
	"strings"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

type EvidenceService struct {
	Ledger  EvidenceLedger
	Audit   AuditLogger
	Build   domain.BuildInfo
	Clock   Clock
	Timeout time.Duration
}

type ReviewInput struct {
	Status domain.ReviewStatus
	Note   string
}

// ContentInput late-binds content to a reference-first record. Either the
// bytes or their digest is required; when both are given they must agree.
type ContentInput struct {
	Content     []byte
	SHA256      string
	SizeBytes   int64
	ContentType string
}

func NewEvidenceService(ledger EvidenceLedger, audit AuditLogger, build domain.BuildInfo) *EvidenceService {
	return &EvidenceService{
		Ledger:  ledger,
		Audit:   audit,
		Build:   build,
		Clock:   time.Now,
		Timeout: 10 * time.Second,
	}
}

// GetReceipt reconstructs the seal receipt from the ledger.
func (s *EvidenceService) GetReceipt(ctx context.Context, actor domain.Actor, evidenceID string) (domain.SealReceipt, error) {
	receipt, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (domain.SealReceipt, error) {
		rec, err := s.load(ctx, actor, evidenceID)
		if err != nil {
			return domain.SealReceipt{}, err
		}
		return s.receipt(ctx, rec)
	})
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditReceiptFetched, receipt.DraftID, evidenceID, err, nil))
	return receipt, err
}

// Review records the one human decision a record may receive. The
// declaring actor cannot review their own evidence.
func (s *EvidenceService) Review(ctx context.Context, actor domain.Actor, evidenceID string, in ReviewInput) (domain.SealReceipt, error) {
	receipt, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (domain.SealReceipt, error) {
		if !in.Status.Decision() {
			return domain.SealReceipt{}, domain.NewValidationError(domain.FieldError{
				Field: "status",
				Error: "unsupported",
				Hint:  "one of APPROVED, REJECTED",
			})
		}
		if len(in.Note) > maxLongField {
			return domain.SealReceipt{}, domain.NewValidationError(domain.FieldError{Field: "note", Error: "too long"})
		}
		rec, err := s.load(ctx, actor, evidenceID)
		if err != nil {
			return domain.SealReceipt{}, err
		}
		if rec.OwnerID == actor.ID {
			return domain.SealReceipt{}, domain.ErrForbidden
		}
		if rec.ReviewStatus.Decision() {
			return domain.SealReceipt{}, domain.ErrReviewDecided
		}
		err = s.Ledger.RecordReview(ctx, domain.ReviewDecision{
			EvidenceID: rec.ID,
			Status:     in.Status,
			ReviewerID: actor.ID,
			Note:       strings.TrimSpace(in.Note),
			DecidedAt:  s.now(),
		})
		if err != nil {
			return domain.SealReceipt{}, err
		}
		rec.ReviewStatus = in.Status
		return s.receipt(ctx, rec)
	})
	payload := map[string]any{"status": string(in.Status)}
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditEvidenceReviewed, receipt.DraftID, evidenceID, err, payload))
	return receipt, err
}

// LinkContent attaches the content digest to a reference-first record
// sealed without one. The record itself is not modified.
func (s *EvidenceService) LinkContent(ctx context.Context, actor domain.Actor, evidenceID string, in ContentInput) (domain.SealReceipt, error) {
	receipt, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (domain.SealReceipt, error) {
		rec, err := s.load(ctx, actor, evidenceID)
		if err != nil {
			return domain.SealReceipt{}, err
		}
		if !rec.Method.ReferenceFirst() || rec.PayloadHashSHA256 != nil {
			return domain.SealReceipt{}, domain.NewValidationError(domain.FieldError{
				Field: "evidence_id",
				Error: "content already bound",
				Hint:  "only reference-first evidence sealed without content accepts a link",
			})
		}
		existing, err := s.Ledger.GetContentLink(ctx, rec.ID)
		if err != nil {
			return domain.SealReceipt{}, err
		}
		if existing != nil {
			return domain.SealReceipt{}, domain.ErrConflict
		}
		link, err := s.buildLink(rec.ID, actor, in)
		if err != nil {
			return domain.SealReceipt{}, err
		}
		if err := s.Ledger.AddContentLink(ctx, link); err != nil {
			return domain.SealReceipt{}, err
		}
		return domain.ReceiptFromRecord(rec, &link, CorrelationID(ctx), s.Build), nil
	})
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditContentLinked, receipt.DraftID, evidenceID, err, nil))
	return receipt, err
}

func (s *EvidenceService) buildLink(evidenceID string, actor domain.Actor, in ContentInput) (domain.ContentLink, error) {
	digest := strings.TrimSpace(in.SHA256)
	size := in.SizeBytes
	if len(in.Content) > 0 {
		sum := crypto.SHA256Hex(in.Content)
		if digest != "" && digest != sum {
			return domain.ContentLink{}, domain.NewValidationError(domain.FieldError{Field: "sha256", Error: "digest mismatch"})
		}
		digest = sum
		size = int64(len(in.Content))
	}
	if !crypto.IsSHA256Hex(digest) {
		errText := "required"
		if digest != "" {
			errText = "malformed digest"
		}
		return domain.ContentLink{}, &domain.ValidationError{
			Cause:  domain.ErrDigestRequired,
			Fields: []domain.FieldError{{Field: "sha256", Error: errText, Hint: "64 lowercase hex characters"}},
		}
	}
	return domain.ContentLink{
		EvidenceID:  evidenceID,
		SHA256:      digest,
		SizeBytes:   size,
		ContentType: in.ContentType,
		LinkedBy:    actor.ID,
		LinkedAt:    s.now(),
	}, nil
}

func (s *EvidenceService) load(ctx context.Context, actor domain.Actor, evidenceID string) (domain.EvidenceRecord, error) {
	if strings.TrimSpace(evidenceID) == "" {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	rec, err := s.Ledger.Get(ctx, evidenceID)
	if err != nil {
		return domain.EvidenceRecord{}, err
	}
	if rec.TenantID != actor.TenantID {
		return domain.EvidenceRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *EvidenceService) receipt(ctx context.Context, rec domain.EvidenceRecord) (domain.SealReceipt, error) {
	link, err := s.Ledger.GetContentLink(ctx, rec.ID)
	if err != nil {
		return domain.SealReceipt{}, err
	}
	return domain.ReceiptFromRecord(rec, link, CorrelationID(ctx), s.Build), nil
}

func (s *EvidenceService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
