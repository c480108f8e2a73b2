package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/chat"
)

// Normalize shapes a raw request body into a canonical chat.Request or fails
// with a *chat.MalformedRequestError. No side effects, no upstream calls.
//
// A request carrying a transfer destination bypasses the whole pipeline, so
// it is exempt from the model requirement.
func Normalize(body []byte) (*chat.Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &chat.MalformedRequestError{Field: "body", Reason: "is empty"}
	}

	var req chat.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &chat.MalformedRequestError{Field: "body", Reason: "is not valid JSON"}
	}

	if req.Destination != "" {
		return &req, nil
	}

	if req.Model == "" {
		return nil, &chat.MalformedRequestError{Field: "model", Reason: "is required"}
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem, chat.RoleUser, chat.RoleAssistant:
		case chat.RoleFunction:
			if msg.Name == "" {
				return nil, &chat.MalformedRequestError{
					Field:  fmt.Sprintf("messages[%d].name", i),
					Reason: "is required for function messages",
				}
			}
		default:
			return nil, &chat.MalformedRequestError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("%q is not a valid role", msg.Role),
			}
		}
	}

	if req.Temperature == nil {
		defaultTemp := 1.0
		req.Temperature = &defaultTemp
	}
	if req.ToolChoice == "" {
		req.ToolChoice = "auto"
	}
	if req.Tools == nil {
		req.Tools = []chat.ToolSchema{}
	}

	return &req, nil
}
