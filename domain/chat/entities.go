package chat

import "encoding/json"

// Core chat entities independent of frameworks and vendors

type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Recognized message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// ToolSchema describes a callable function advertised to the model.
// Parameters is a JSON-Schema shaped object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the canonical inbound chat-completion request. Destination is
// the voice platform's call-transfer target; a non-empty value short-circuits
// the whole pipeline.
type Request struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
	Destination string       `json:"destination,omitempty"`
}

// UpstreamRequest is the provider-facing conversation: persona already
// injected, caller tools merged with natively registered ones.
type UpstreamRequest struct {
	Model        string
	Messages     []Message
	Temperature  float64
	Functions    []ToolSchema
	FunctionCall string
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Completion pairs the decoded upstream response with the raw body bytes.
// The translator re-emits Raw so the downstream frame matches the provider
// payload byte for byte.
type Completion struct {
	Raw      json.RawMessage
	Response Response
}

// Streaming chunk types (OpenAI-compatible)

// FunctionCallDelta carries one increment of a function invocation: the name
// arrives once, the arguments arrive as string fragments across chunks.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type StreamDelta struct {
	Role         string             `json:"role,omitempty"`
	Content      string             `json:"content,omitempty"`
	FunctionCall *FunctionCallDelta `json:"function_call,omitempty"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// FinishReasonFunctionCall marks the end of a function-call delta sequence.
const FinishReasonFunctionCall = "function_call"

// StreamEvent is one decoded SSE data line plus its untouched payload bytes.
type StreamEvent struct {
	Raw   json.RawMessage
	Chunk StreamChunk
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StreamError is the error payload encoded as an SSE frame once streaming has
// started and the transport status can no longer change.
type StreamError struct {
	Error StreamErrorDetail `json:"error"`
}

type StreamErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Custom-tool endpoint wire types (voice-platform tool call batches)

type ToolCallFunction struct {
	Name string `json:"name"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Function ToolCallFunction `json:"function"`
}

type CustomToolRequest struct {
	Message struct {
		ToolCallList []ToolCall `json:"toolCallList"`
	} `json:"message"`
}

type CustomToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type CustomToolResponse struct {
	Results []CustomToolResult `json:"results"`
}
