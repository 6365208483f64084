package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"seald/internal/domain"

	"gorm.io/gorm"
)

type EvidenceRepository struct {
	db *gorm.DB
}

func NewEvidenceRepository(db *gorm.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// SealDraft moves the draft to SEALED and inserts the record in one
// transaction. A draft that is no longer DRAFT at expectedVersion yields
// domain.ErrConflict with nothing written.
func (r *EvidenceRepository) SealDraft(ctx context.Context, rec domain.EvidenceRecord, expectedVersion int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := toRecordModel(rec)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DraftModel{}).
			Where("id = ? AND state = ? AND version = ?", rec.DraftID, string(domain.DraftStateDraft), expectedVersion).
			Updates(map[string]any{
				"state":            string(domain.DraftStateSealed),
				"evidence_id":      rec.ID,
				"version":          gorm.Expr("version + 1"),
				"last_modified_at": rec.SealedAtUTC.UTC(),
			})
		if res.Error != nil {
			return mapError(res.Error)
		}
		if res.RowsAffected == 0 {
			return NewDraftRepository(tx).missOrConflict(ctx, rec.DraftID)
		}
		return mapError(tx.Create(&model).Error)
	})
}

func (r *EvidenceRepository) Get(ctx context.Context, evidenceID string) (domain.EvidenceRecord, error) {
	if r.db == nil {
		return domain.EvidenceRecord{}, errDBUnavailable
	}
	var model EvidenceRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", evidenceID).Error; err != nil {
		return domain.EvidenceRecord{}, mapError(err)
	}
	return fromRecordModel(model)
}

// RecordReview stores the first APPROVED or REJECTED decision. Later
// decisions return domain.ErrReviewDecided.
func (r *EvidenceRepository) RecordReview(ctx context.Context, decision domain.ReviewDecision) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&EvidenceRecordModel{}).
			Where("id = ? AND review_status NOT IN ?", decision.EvidenceID,
				[]string{string(domain.ReviewApproved), string(domain.ReviewRejected)}).
			Update("review_status", string(decision.Status))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&EvidenceRecordModel{}).Where("id = ?", decision.EvidenceID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrReviewDecided
		}
		return tx.Create(&ReviewModel{
			EvidenceID: decision.EvidenceID,
			Status:     string(decision.Status),
			ReviewerID: decision.ReviewerID,
			Note:       nullableString(decision.Note),
			DecidedAt:  decision.DecidedAt.UTC(),
		}).Error
	})
}

func (r *EvidenceRepository) ListReviews(ctx context.Context, evidenceID string) ([]domain.ReviewDecision, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ReviewModel
	if err := r.db.WithContext(ctx).Where("evidence_id = ?", evidenceID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ReviewDecision, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ReviewDecision{
			EvidenceID: m.EvidenceID,
			Status:     domain.ReviewStatus(m.Status),
			ReviewerID: m.ReviewerID,
			Note:       derefString(m.Note),
			DecidedAt:  m.DecidedAt.UTC(),
		})
	}
	return out, nil
}

// AddContentLink binds content to a record exactly once.
func (r *EvidenceRepository) AddContentLink(ctx context.Context, link domain.ContentLink) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&EvidenceRecordModel{}).Where("id = ?", link.EvidenceID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return mapError(tx.Create(&ContentLinkModel{
			EvidenceID:  link.EvidenceID,
			SHA256:      link.SHA256,
			SizeBytes:   link.SizeBytes,
			ContentType: link.ContentType,
			LinkedBy:    link.LinkedBy,
			LinkedAt:    link.LinkedAt.UTC(),
		}).Error)
	})
}

func (r *EvidenceRepository) GetContentLink(ctx context.Context, evidenceID string) (*domain.ContentLink, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ContentLinkModel
	err := r.db.WithContext(ctx).First(&model, "evidence_id = ?", evidenceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.ContentLink{
		EvidenceID:  model.EvidenceID,
		SHA256:      model.SHA256,
		SizeBytes:   model.SizeBytes,
		ContentType: model.ContentType,
		LinkedBy:    model.LinkedBy,
		LinkedAt:    model.LinkedAt.UTC(),
	}, nil
}

func toRecordModel(rec domain.EvidenceRecord) (EvidenceRecordModel, error) {
	attachments := rec.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	atts, err := json.Marshal(attachments)
	if err != nil {
		return EvidenceRecordModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	return EvidenceRecordModel{
		ID:                 rec.ID,
		DraftID:            rec.DraftID,
		TenantID:           rec.TenantID,
		OwnerID:            rec.OwnerID,
		IngestionMethod:    string(rec.Method),
		LedgerState:        string(rec.LedgerState),
		PayloadHashSHA256:  rec.PayloadHashSHA256,
		MetadataHashSHA256: rec.MetadataHashSHA256,
		DeclarationJSON:    copyBytes(rec.Declaration),
		AttachmentsJSON:    atts,
		SealedAtUTC:        rec.SealedAtUTC.UTC(),
		RetentionEndsUTC:   rec.RetentionEndsUTC.UTC(),
		ReviewStatus:       string(rec.ReviewStatus),
		QuarantineReason:   rec.QuarantineReason,
		RequestID:          rec.RequestID,
		CorrelationID:      rec.CorrelationID,
	}, nil
}

func fromRecordModel(model EvidenceRecordModel) (domain.EvidenceRecord, error) {
	var atts []domain.Attachment
	if len(model.AttachmentsJSON) > 0 {
		if err := json.Unmarshal(model.AttachmentsJSON, &atts); err != nil {
			return domain.EvidenceRecord{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(atts) == 0 {
		atts = nil
	}
	return domain.EvidenceRecord{
		ID:                 model.ID,
		DraftID:            model.DraftID,
		TenantID:           model.TenantID,
		OwnerID:            model.OwnerID,
		Method:             domain.IngestionMethod(model.IngestionMethod),
		LedgerState:        domain.LedgerState(model.LedgerState),
		PayloadHashSHA256:  model.PayloadHashSHA256,
		MetadataHashSHA256: model.MetadataHashSHA256,
		Declaration:        copyBytes(model.DeclarationJSON),
		Attachments:        atts,
		SealedAtUTC:        model.SealedAtUTC.UTC(),
		RetentionEndsUTC:   model.RetentionEndsUTC.UTC(),
		ReviewStatus:       domain.ReviewStatus(model.ReviewStatus),
		QuarantineReason:   model.QuarantineReason,
		RequestID:          model.RequestID,
		CorrelationID:      model.CorrelationID,
	}, nil
}
