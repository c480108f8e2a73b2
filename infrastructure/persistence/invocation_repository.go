package persistence

import (
	"context"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvocationRepository implements persistence.InvocationRepository
type InvocationRepository struct {
	db *gorm.DB
}

// NewInvocationRepository creates a new tool invocation repository
func NewInvocationRepository(db *gorm.DB) persistence.InvocationRepository {
	return &InvocationRepository{db: db}
}

// Create creates a new invocation record
func (r *InvocationRepository) Create(ctx context.Context, entity *persistence.ToolInvocation) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create invocation record: %w", err)
	}
	return nil
}

// Update updates an existing invocation record
func (r *InvocationRepository) Update(ctx context.Context, entity *persistence.ToolInvocation) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update invocation record: %w", err)
	}
	return nil
}

// FindByID finds an invocation record by ID
func (r *InvocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.ToolInvocation, error) {
	var record persistence.ToolInvocation
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invocation record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find invocation record: %w", err)
	}
	return &record, nil
}

// FindByCallID finds all tool invocations for a call, oldest first
func (r *InvocationRepository) FindByCallID(ctx context.Context, callID uuid.UUID) ([]*persistence.ToolInvocation, error) {
	var records []*persistence.ToolInvocation
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find invocations by call ID: %w", err)
	}
	return records, nil
}

// FindByToolName finds recent invocations of a given tool
func (r *InvocationRepository) FindByToolName(ctx context.Context, toolName string, limit int) ([]*persistence.ToolInvocation, error) {
	var records []*persistence.ToolInvocation
	query := r.db.WithContext(ctx).Where("tool_name = ?", toolName).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find invocations by tool name: %w", err)
	}
	return records, nil
}

// Delete deletes an invocation record
func (r *InvocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.ToolInvocation{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete invocation record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("invocation record not found for deletion")
	}
	return nil
}
