package tools

import (
	"encoding/json"
	"fmt"

	"github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/tools"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Registry is the closed tool table built once at startup. Execute caches
// results for identical (name, arguments) pairs, so repeated deliveries of
// the same idempotent invocation run the handler at most once per process.
type Registry struct {
	handlers map[string]tools.Handler
	schemas  []chat.ToolSchema
	cache    *lru.Cache[string, json.RawMessage]
}

// NewRegistry creates an empty registry with a result cache of the given size.
func NewRegistry(cacheSize int) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, json.RawMessage](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &Registry{
		handlers: make(map[string]tools.Handler),
		schemas:  []chat.ToolSchema{},
		cache:    cache,
	}, nil
}

// Register adds a handler and advertises its schema to the upstream model.
func (r *Registry) Register(schema chat.ToolSchema, h tools.Handler) {
	r.handlers[schema.Name] = h
	r.schemas = append(r.schemas, schema)
}

// RegisterLocal adds a handler without advertising it upstream. Used for
// tools only reachable through the custom-tool endpoint.
func (r *Registry) RegisterLocal(name string, h tools.Handler) {
	r.handlers[name] = h
}

// Resolve returns the handler for name or a typed NotFoundError.
func (r *Registry) Resolve(name string) (tools.Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, &tools.NotFoundError{Name: name}
	}
	return h, nil
}

// Execute resolves and invokes the handler, serving repeated identical
// invocations from the cache.
func (r *Registry) Execute(name string, args map[string]any) (json.RawMessage, error) {
	h, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	key, keyErr := cacheKey(name, args)
	if keyErr == nil {
		if cached, ok := r.cache.Get(key); ok {
			logrus.WithField("tool", name).Debug("Serving tool result from cache")
			return cached, nil
		}
	}

	result, err := h.Call(args)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("serialize result of tool %s: %w", name, err)
	}

	if keyErr == nil {
		r.cache.Add(key, serialized)
	}
	return serialized, nil
}

// DescribeAll returns the natively advertised tool schemas.
func (r *Registry) DescribeAll() []chat.ToolSchema {
	out := make([]chat.ToolSchema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// cacheKey builds a deterministic key from the tool name and its arguments.
// json.Marshal sorts map keys, so equal argument sets produce equal keys.
func cacheKey(name string, args map[string]any) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return name + ":" + string(encoded), nil
}
