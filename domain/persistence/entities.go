package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallRecord stores one gateway call: the inbound request and the response
// data as delivered downstream. Each record is self-contained audit data; the
// gateway never reads these back to build conversation state.
type CallRecord struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequestData  json.RawMessage `gorm:"type:jsonb;not null" json:"request_data"`
	ResponseData json.RawMessage `gorm:"type:jsonb" json:"response_data,omitempty"`
	Model        string          `gorm:"type:varchar(255);not null;index" json:"model"`
	IsStreaming  bool            `gorm:"default:false;index" json:"is_streaming"`
	Status       CallStatus      `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Metrics     *CallMetrics     `gorm:"foreignKey:CallID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	Invocations []ToolInvocation `gorm:"foreignKey:CallID;constraint:OnDelete:CASCADE" json:"invocations,omitempty"`
}

// CallStatus represents the status of a gateway call
type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
)

// CallMetrics stores performance metrics for each gateway call
type CallMetrics struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CallID        uuid.UUID `gorm:"type:uuid;not null;index" json:"call_id"`
	LatencyMs     int64     `gorm:"default:0" json:"latency_ms"`
	FramesEmitted int       `gorm:"default:0" json:"frames_emitted"`
	ToolCalls     int       `gorm:"default:0" json:"tool_calls"`
	TokensUsed    int       `gorm:"default:0" json:"tokens_used"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ToolInvocation stores one local tool execution intercepted mid-stream
type ToolInvocation struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CallID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"call_id"`
	ToolName  string          `gorm:"type:varchar(255);not null;index" json:"tool_name"`
	Arguments json.RawMessage `gorm:"type:jsonb" json:"arguments,omitempty"`
	Result    json.RawMessage `gorm:"type:jsonb" json:"result,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook for CallRecord
func (r *CallRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for CallMetrics
func (m *CallMetrics) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for ToolInvocation
func (i *ToolInvocation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for CallRecord
func (CallRecord) TableName() string {
	return "calls"
}

// TableName returns the table name for CallMetrics
func (CallMetrics) TableName() string {
	return "call_metrics"
}

// TableName returns the table name for ToolInvocation
func (ToolInvocation) TableName() string {
	return "tool_invocations"
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeCreateCall       EventType = "create_call"
	EventTypeUpdateCall       EventType = "update_call"
	EventTypeCreateMetrics    EventType = "create_metrics"
	EventTypeCreateInvocation EventType = "create_invocation"
)

// CreateCallEvent data for creating a new call record
type CreateCallEvent struct {
	CallID      uuid.UUID       `json:"call_id"`
	RequestData json.RawMessage `json:"request_data"`
	Model       string          `json:"model"`
	IsStreaming bool            `json:"is_streaming"`
}

// UpdateCallEvent data for updating a call with its outcome
type UpdateCallEvent struct {
	CallID       uuid.UUID       `json:"call_id"`
	ResponseData json.RawMessage `json:"response_data"`
	Status       CallStatus      `json:"status"`
}

// CreateMetricsEvent data for creating call metrics
type CreateMetricsEvent struct {
	CallID        uuid.UUID `json:"call_id"`
	LatencyMs     int64     `json:"latency_ms"`
	FramesEmitted int       `json:"frames_emitted"`
	ToolCalls     int       `json:"tool_calls"`
	TokensUsed    int       `json:"tokens_used"`
}

// CreateInvocationEvent data for recording a tool invocation
type CreateInvocationEvent struct {
	CallID    uuid.UUID       `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}
