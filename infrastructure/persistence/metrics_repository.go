package persistence

import (
	"context"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MetricsRepository implements persistence.MetricsRepository
type MetricsRepository struct {
	db *gorm.DB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *gorm.DB) persistence.MetricsRepository {
	return &MetricsRepository{db: db}
}

// Create creates a new metrics record
func (r *MetricsRepository) Create(ctx context.Context, entity *persistence.CallMetrics) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create metrics record: %w", err)
	}
	return nil
}

// Update updates an existing metrics record
func (r *MetricsRepository) Update(ctx context.Context, entity *persistence.CallMetrics) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update metrics record: %w", err)
	}
	return nil
}

// FindByID finds a metrics record by ID
func (r *MetricsRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.CallMetrics, error) {
	var record persistence.CallMetrics
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("metrics record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find metrics record: %w", err)
	}
	return &record, nil
}

// FindByCallID finds metrics by call ID
func (r *MetricsRepository) FindByCallID(ctx context.Context, callID uuid.UUID) (*persistence.CallMetrics, error) {
	var record persistence.CallMetrics
	if err := r.db.WithContext(ctx).First(&record, "call_id = ?", callID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("metrics record not found for call: %w", err)
		}
		return nil, fmt.Errorf("failed to find metrics record by call ID: %w", err)
	}
	return &record, nil
}

// CreateOrUpdate creates a new metrics record or updates existing one
func (r *MetricsRepository) CreateOrUpdate(ctx context.Context, metrics *persistence.CallMetrics) error {
	db := r.db.WithContext(ctx)

	var existing persistence.CallMetrics
	err := db.First(&existing, "call_id = ?", metrics.CallID).Error

	if err == gorm.ErrRecordNotFound {
		if err := db.Create(metrics).Error; err != nil {
			return fmt.Errorf("failed to create metrics record: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check existing metrics: %w", err)
	}

	existing.LatencyMs = metrics.LatencyMs
	existing.FramesEmitted = metrics.FramesEmitted
	existing.ToolCalls = metrics.ToolCalls
	existing.TokensUsed = metrics.TokensUsed

	if err := db.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update existing metrics: %w", err)
	}

	metrics.ID = existing.ID
	return nil
}

// GetAggregatedMetrics returns aggregated metrics across gateway calls
func (r *MetricsRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	db := r.db.WithContext(ctx)

	var result struct {
		TotalCalls       int64   `json:"total_calls"`
		AverageLatencyMs float64 `json:"average_latency_ms"`
		AverageFrames    float64 `json:"average_frames"`
		TotalToolCalls   int64   `json:"total_tool_calls"`
		TotalTokens      int64   `json:"total_tokens"`
	}

	query := db.Model(&persistence.CallMetrics{}).
		Select(`
			COUNT(*) as total_calls,
			COALESCE(AVG(latency_ms), 0) as average_latency_ms,
			COALESCE(AVG(frames_emitted), 0) as average_frames,
			COALESCE(SUM(tool_calls), 0) as total_tool_calls,
			COALESCE(SUM(tokens_used), 0) as total_tokens
		`)

	if limit > 0 {
		subQuery := db.Model(&persistence.CallMetrics{}).
			Select("call_id").
			Order("created_at DESC").
			Limit(limit)
		query = query.Where("call_id IN (?)", subQuery)
	}

	if err := query.Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to get aggregated metrics: %w", err)
	}

	return &persistence.AggregatedMetrics{
		TotalCalls:       result.TotalCalls,
		AverageLatencyMs: result.AverageLatencyMs,
		AverageFrames:    result.AverageFrames,
		TotalToolCalls:   result.TotalToolCalls,
		TotalTokens:      result.TotalTokens,
	}, nil
}

// Delete deletes a metrics record
func (r *MetricsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.CallMetrics{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete metrics record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("metrics record not found for deletion")
	}
	return nil
}
