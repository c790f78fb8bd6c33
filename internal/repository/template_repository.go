package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"healthforge/internal/model"
)

// TemplateRepository handles CRUD for task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create persists the template and assigns its local id.
func (r *TemplateRepository) Create(ctx context.Context, template *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	var template model.TaskTemplate
	if err := r.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// Update replaces all mutable fields of the template. Updating an unknown
// id is a no-op.
func (r *TemplateRepository) Update(ctx context.Context, template *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// Delete removes the template; the FK cascade removes its records. Deleting
// an unknown id is a no-op.
func (r *TemplateRepository) Delete(ctx context.Context, userID, templateID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, templateID).
		Delete(&model.TaskTemplate{}).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// SetActive toggles the active flag without touching history. Unknown ids
// are a no-op.
func (r *TemplateRepository) SetActive(ctx context.Context, userID, templateID uint, active bool) error {
	if err := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).
		Where("user_id = ? AND id = ?", userID, templateID).
		Update("is_active", active).Error; err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	return nil
}

// SetRemoteID writes back the mirror-assigned id after the first sync.
func (r *TemplateRepository) SetRemoteID(ctx context.Context, templateID uint, remoteID string) error {
	if err := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).
		Where("id = ?", templateID).
		Update("remote_id", remoteID).Error; err != nil {
		return fmt.Errorf("set template remote id: %w", err)
	}
	return nil
}

func (r *TemplateRepository) ListActive(ctx context.Context, userID uint) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) ListAll(ctx context.Context, userID uint) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id ASC").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// IsNotFound reports whether err is the repository's not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
