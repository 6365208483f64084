package db

import (
	"context"
	"time"

	"seald/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BindingRepository is the tenant-scoped registry of canonical entities
// that declared targets resolve against.
type BindingRepository struct {
	db *gorm.DB
}

func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

func (r *BindingRepository) Register(ctx context.Context, tenantID string, scope domain.DeclaredScope, targetID, canonicalID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := BindingTargetModel{
		TenantID:    tenantID,
		Scope:       string(scope),
		TargetID:    targetID,
		CanonicalID: canonicalID,
		CreatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "scope"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_id"}),
	}).Create(&model).Error
}

func (r *BindingRepository) Resolve(ctx context.Context, tenantID string, scope domain.DeclaredScope, targetIDs []string) (domain.BindingResolution, error) {
	res := domain.BindingResolution{
		Scope:      scope,
		Requested:  append([]string(nil), targetIDs...),
		Resolved:   []domain.Binding{},
		Unresolved: []string{},
	}
	if len(targetIDs) == 0 {
		return res, nil
	}
	if r.db == nil {
		return domain.BindingResolution{}, errDBUnavailable
	}
	var models []BindingTargetModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND scope = ? AND target_id IN ?", tenantID, string(scope), targetIDs).
		Find(&models).Error
	if err != nil {
		return domain.BindingResolution{}, err
	}
	canonical := make(map[string]string, len(models))
	for _, m := range models {
		canonical[m.TargetID] = m.CanonicalID
	}
	for _, id := range targetIDs {
		c, ok := canonical[id]
		if !ok {
			res.Unresolved = append(res.Unresolved, id)
			continue
		}
		res.Resolved = append(res.Resolved, domain.Binding{Scope: scope, TargetID: id, CanonicalID: c})
	}
	return res, nil
}
