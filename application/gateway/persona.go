package gateway

import "github.com/aurelisajuan/CourtVision/domain/chat"

// injectPersona prepends the persona as the first system message of the
// conversation. Caller messages are never reordered or rewritten, and the
// same persona leads every upstream call, follow-ups included.
func injectPersona(persona chat.Message, messages []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages)+1)
	out = append(out, persona)
	out = append(out, messages...)
	return out
}

// mergeTools combines the caller's declared tools with the gateway's native
// tool schemas, caller entries first.
func mergeTools(declared []chat.ToolSchema, native []chat.ToolSchema) []chat.ToolSchema {
	out := make([]chat.ToolSchema, 0, len(declared)+len(native))
	out = append(out, declared...)
	out = append(out, native...)
	return out
}
