package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seald/internal/domain"

	"gorm.io/gorm"
)

type DraftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

func (r *DraftRepository) Create(ctx context.Context, draft domain.Draft) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := toDraftModel(draft)
	if err != nil {
		return err
	}
	return mapError(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *DraftRepository) Get(ctx context.Context, draftID string) (domain.Draft, error) {
	if r.db == nil {
		return domain.Draft{}, errDBUnavailable
	}
	var model DraftModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", draftID).Error; err != nil {
		return domain.Draft{}, mapError(err)
	}
	return fromDraftModel(model)
}

// Update writes draft only when the stored row is still at
// expectedVersion.
func (r *DraftRepository) Update(ctx context.Context, draft domain.Draft, expectedVersion int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := toDraftModel(draft)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&DraftModel{}).
		Where("id = ? AND version = ?", draft.ID, expectedVersion).
		Updates(map[string]any{
			"ingestion_method": model.IngestionMethod,
			"declaration":      model.DeclarationJSON,
			"declaration_hash": model.DeclarationHash,
			"attachments":      model.AttachmentsJSON,
			"state":            model.State,
			"version":          model.Version,
			"evidence_id":      model.EvidenceID,
			"last_modified_at": model.LastModifiedAt,
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, draft.ID)
	}
	return nil
}

func (r *DraftRepository) FindByDeclarationHash(ctx context.Context, tenantID, ownerID, declarationHash string, since time.Time) (domain.Draft, error) {
	if r.db == nil {
		return domain.Draft{}, errDBUnavailable
	}
	var model DraftModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND owner_id = ? AND declaration_hash = ?", tenantID, ownerID, declarationHash).
		Where("state = ? AND last_modified_at >= ?", string(domain.DraftStateDraft), since).
		Order("last_modified_at DESC").
		First(&model).Error
	if err != nil {
		return domain.Draft{}, mapError(err)
	}
	return fromDraftModel(model)
}

func (r *DraftRepository) ListInactive(ctx context.Context, cutoff time.Time, limit int) ([]domain.Draft, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("state = ? AND last_modified_at < ?", string(domain.DraftStateDraft), cutoff).
		Order("last_modified_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []DraftModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Draft, 0, len(models))
	for _, model := range models {
		draft, err := fromDraftModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, draft)
	}
	return out, nil
}

func (r *DraftRepository) missOrConflict(ctx context.Context, draftID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&DraftModel{}).Where("id = ?", draftID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func toDraftModel(draft domain.Draft) (DraftModel, error) {
	decl, err := json.Marshal(draft.Declaration)
	if err != nil {
		return DraftModel{}, fmt.Errorf("encode declaration: %w", err)
	}
	attachments := draft.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	atts, err := json.Marshal(attachments)
	if err != nil {
		return DraftModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	return DraftModel{
		ID:              draft.ID,
		TenantID:        draft.TenantID,
		OwnerID:         draft.OwnerID,
		IngestionMethod: string(draft.Method),
		DeclarationJSON: decl,
		DeclarationHash: draft.DeclarationHash,
		AttachmentsJSON: atts,
		State:           string(draft.State),
		Version:         draft.Version,
		EvidenceID:      nullableString(draft.EvidenceID),
		CreatedAt:       draft.CreatedAt.UTC(),
		LastModifiedAt:  draft.LastModifiedAt.UTC(),
	}, nil
}

func fromDraftModel(model DraftModel) (domain.Draft, error) {
	var decl domain.Declaration
	if err := json.Unmarshal(model.DeclarationJSON, &decl); err != nil {
		return domain.Draft{}, fmt.Errorf("decode declaration: %w", err)
	}
	var atts []domain.Attachment
	if len(model.AttachmentsJSON) > 0 {
		if err := json.Unmarshal(model.AttachmentsJSON, &atts); err != nil {
			return domain.Draft{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(atts) == 0 {
		atts = nil
	}
	return domain.Draft{
		ID:              model.ID,
		TenantID:        model.TenantID,
		OwnerID:         model.OwnerID,
		Method:          domain.IngestionMethod(model.IngestionMethod),
		Declaration:     decl,
		DeclarationHash: model.DeclarationHash,
		Attachments:     atts,
		State:           domain.DraftState(model.State),
		Version:         model.Version,
		EvidenceID:      derefString(model.EvidenceID),
		CreatedAt:       model.CreatedAt.UTC(),
		LastModifiedAt:  model.LastModifiedAt.UTC(),
	}, nil
}

