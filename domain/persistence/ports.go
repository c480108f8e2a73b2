package persistence

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the generic repository interface using Go generics
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id uuid.UUID) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CallRepository defines operations specific to call records
type CallRepository interface {
	Repository[CallRecord]

	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*CallRecord, error)
	FindByStatus(ctx context.Context, status CallStatus, limit int) ([]*CallRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*CallRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status CallStatus) error
}

// MetricsRepository defines operations for call metrics
type MetricsRepository interface {
	Repository[CallMetrics]

	FindByCallID(ctx context.Context, callID uuid.UUID) (*CallMetrics, error)
	CreateOrUpdate(ctx context.Context, metrics *CallMetrics) error
	GetAggregatedMetrics(ctx context.Context, limit int) (*AggregatedMetrics, error)
}

// InvocationRepository defines operations for tool invocation records
type InvocationRepository interface {
	Repository[ToolInvocation]

	FindByCallID(ctx context.Context, callID uuid.UUID) ([]*ToolInvocation, error)
	FindByToolName(ctx context.Context, toolName string, limit int) ([]*ToolInvocation, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent sends an event to be processed asynchronously
	ProcessEvent(event any) error

	// Health returns the health status of the processor
	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// AggregatedMetrics represents aggregated metrics across gateway calls
type AggregatedMetrics struct {
	TotalCalls       int64   `json:"total_calls"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	AverageFrames    float64 `json:"average_frames"`
	TotalToolCalls   int64   `json:"total_tool_calls"`
	TotalTokens      int64   `json:"total_tokens"`
}

// CallTracker records the lifecycle of one gateway call without ever blocking
// or failing the caller's stream.
type CallTracker interface {
	StartTracking(ctx context.Context, callID uuid.UUID, requestData []byte, model string, isStreaming bool) error
	CompleteTracking(ctx context.Context, callID uuid.UUID, responseData []byte, metrics CallMetrics) error
	FailTracking(ctx context.Context, callID uuid.UUID, errorMsg string) error
	RecordInvocation(ctx context.Context, callID uuid.UUID, toolName string, arguments, result []byte) error
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	Connect(ctx context.Context, dsn string) error
	Close() error
	Migrate() error
	Health(ctx context.Context) error
	GetRepositories() (CallRepository, MetricsRepository, InvocationRepository)
}
