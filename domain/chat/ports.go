package chat

import "context"

// CompletionPort abstracts a single non-streaming upstream call.
type CompletionPort interface {
	Complete(ctx context.Context, req *UpstreamRequest) (*Completion, error)
}

// StreamHandler is a generic callback for streaming events
type StreamHandler[T any] func(event T) error

// StreamPort supports streaming. The port returns once the upstream stream
// terminates ([DONE] or EOF); a non-2xx status is surfaced as an error before
// any event is delivered.
type StreamPort[T any] interface {
	Stream(ctx context.Context, req *UpstreamRequest, onEvent StreamHandler[T]) error
}

// FrameHandler receives one SSE data payload (the JSON between "data: " and
// the blank line). The transport layer owns framing and the [DONE] sentinel.
type FrameHandler func(payload []byte) error
