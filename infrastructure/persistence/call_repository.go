package persistence

import (
	"context"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallRepository implements persistence.CallRepository
type CallRepository struct {
	db *gorm.DB
}

// NewCallRepository creates a new call repository
func NewCallRepository(db *gorm.DB) persistence.CallRepository {
	return &CallRepository{db: db}
}

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, entity *persistence.CallRecord) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// Update updates an existing call record
func (r *CallRepository) Update(ctx context.Context, entity *persistence.CallRecord) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}
	return nil
}

// FindByID finds a call record by ID
func (r *CallRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.CallRecord, error) {
	var record persistence.CallRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("call record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find call record: %w", err)
	}
	return &record, nil
}

// FindByIDWithRelations finds a call record with its metrics and tool invocations
func (r *CallRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*persistence.CallRecord, error) {
	var record persistence.CallRecord
	if err := r.db.WithContext(ctx).Preload("Metrics").Preload("Invocations").First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("call record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find call record with relations: %w", err)
	}
	return &record, nil
}

// FindByStatus finds call records by status
func (r *CallRepository) FindByStatus(ctx context.Context, status persistence.CallStatus, limit int) ([]*persistence.CallRecord, error) {
	var records []*persistence.CallRecord
	query := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find call records by status: %w", err)
	}
	return records, nil
}

// FindRecent finds recent call records
func (r *CallRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.CallRecord, error) {
	var records []*persistence.CallRecord
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent call records: %w", err)
	}
	return records, nil
}

// UpdateStatus updates the status of a call record
func (r *CallRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.CallStatus) error {
	result := r.db.WithContext(ctx).Model(&persistence.CallRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update call status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call record not found for status update")
	}
	return nil
}

// Delete deletes a call record
func (r *CallRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.CallRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete call record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call record not found for deletion")
	}
	return nil
}
