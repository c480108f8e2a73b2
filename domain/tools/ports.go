package tools

import (
	"encoding/json"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/chat"
)

// Handler executes one local tool invocation. Implementations are synchronous
// and never stream; malformed arguments are normalized by the caller before
// invocation.
type Handler interface {
	Call(args map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(args map[string]any) (any, error)

func (f HandlerFunc) Call(args map[string]any) (any, error) {
	return f(args)
}

// Registry is the closed mapping from tool name to local handler.
type Registry interface {
	// Resolve returns the handler for name or a *NotFoundError.
	Resolve(name string) (Handler, error)

	// Execute resolves and invokes the handler, returning the
	// JSON-serialized result.
	Execute(name string, args map[string]any) (json.RawMessage, error)

	// DescribeAll returns the schemas advertised to the upstream model.
	DescribeAll() []chat.ToolSchema
}

// NotFoundError reports a tool name with no registered handler.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}
