package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/tools"
)

// fakeStreamer replays a scripted sequence of upstream events.
type fakeStreamer struct {
	events  []chat.StreamEvent
	err     error
	calls   int
	lastReq *chat.UpstreamRequest
}

func (f *fakeStreamer) Stream(ctx context.Context, req *chat.UpstreamRequest, onEvent chat.StreamHandler[chat.StreamEvent]) error {
	f.calls++
	f.lastReq = req
	for _, ev := range f.events {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return f.err
}

// fakeCompleter returns a canned non-streaming completion.
type fakeCompleter struct {
	raw     []byte
	err     error
	calls   int
	lastReq *chat.UpstreamRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req *chat.UpstreamRequest) (*chat.Completion, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	var resp chat.Response
	_ = json.Unmarshal(f.raw, &resp)
	return &chat.Completion{Raw: f.raw, Response: resp}, nil
}

type executedCall struct {
	name string
	args map[string]any
}

// stubRegistry is an in-memory tool registry for exercising the translator.
type stubRegistry struct {
	handlers map[string]tools.Handler
	schemas  []chat.ToolSchema
	executed []executedCall
}

func (s *stubRegistry) Resolve(name string) (tools.Handler, error) {
	if h, ok := s.handlers[name]; ok {
		return h, nil
	}
	return nil, &tools.NotFoundError{Name: name}
}

func (s *stubRegistry) Execute(name string, args map[string]any) (json.RawMessage, error) {
	h, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	s.executed = append(s.executed, executedCall{name: name, args: args})
	result, err := h.Call(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (s *stubRegistry) DescribeAll() []chat.ToolSchema {
	return s.schemas
}

func contentEvent(t *testing.T, content string) chat.StreamEvent {
	t.Helper()
	chunk := chat.StreamChunk{
		ID:     "chunk-1",
		Object: "chat.completion.chunk",
		Model:  "gemini-pro",
		Choices: []chat.StreamChoice{
			{Delta: chat.StreamDelta{Content: content}},
		},
	}
	raw, err := json.Marshal(chunk)
	require.NoError(t, err)
	return chat.StreamEvent{Raw: raw, Chunk: chunk}
}

func functionCallEvent(t *testing.T, name, arguments string) chat.StreamEvent {
	t.Helper()
	chunk := chat.StreamChunk{
		ID:     "chunk-1",
		Object: "chat.completion.chunk",
		Model:  "gemini-pro",
		Choices: []chat.StreamChoice{
			{Delta: chat.StreamDelta{FunctionCall: &chat.FunctionCallDelta{Name: name, Arguments: arguments}}},
		},
	}
	raw, err := json.Marshal(chunk)
	require.NoError(t, err)
	return chat.StreamEvent{Raw: raw, Chunk: chunk}
}

func finishEvent(t *testing.T, reason string) chat.StreamEvent {
	t.Helper()
	chunk := chat.StreamChunk{
		ID:     "chunk-1",
		Object: "chat.completion.chunk",
		Model:  "gemini-pro",
		Choices: []chat.StreamChoice{
			{FinishReason: &reason},
		},
	}
	raw, err := json.Marshal(chunk)
	require.NoError(t, err)
	return chat.StreamEvent{Raw: raw, Chunk: chunk}
}

func collectFrames() (*[][]byte, chat.FrameHandler) {
	frames := &[][]byte{}
	return frames, func(payload []byte) error {
		buf := append([]byte(nil), payload...)
		*frames = append(*frames, buf)
		return nil
	}
}

func paymentRegistry() *stubRegistry {
	return &stubRegistry{
		handlers: map[string]tools.Handler{
			"get_payment_link": tools.HandlerFunc(func(args map[string]any) (any, error) {
				orderID, _ := args["order_id"].(string)
				return map[string]string{"url": "https://pay.example.com/" + orderID}, nil
			}),
		},
		schemas: []chat.ToolSchema{{Name: "get_payment_link"}},
	}
}

func simpleBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"model":    "gemini-pro",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)
	return body
}

func TestStreamContentPassthrough(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			contentEvent(t, "Hello"),
			contentEvent(t, " there"),
			contentEvent(t, "!"),
		},
	}
	completer := &fakeCompleter{}
	svc := NewService(completer, streamer, paymentRegistry(), "You are CoachBot.")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	require.NoError(t, err)
	require.Len(t, *frames, 3)
	// Content frames are re-emitted byte for byte
	for i, ev := range streamer.events {
		assert.Equal(t, []byte(ev.Raw), (*frames)[i])
	}
	assert.Equal(t, 0, completer.calls)
}

func TestStreamPersonaInjectedFirst(t *testing.T) {
	streamer := &fakeStreamer{events: []chat.StreamEvent{contentEvent(t, "ok")}}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "You are CoachBot.")

	_, emit := collectFrames()
	require.NoError(t, svc.Stream(context.Background(), simpleBody(t), emit))

	require.NotNil(t, streamer.lastReq)
	require.NotEmpty(t, streamer.lastReq.Messages)
	first := streamer.lastReq.Messages[0]
	assert.Equal(t, chat.RoleSystem, first.Role)
	assert.Equal(t, "You are CoachBot.", first.Content)
	assert.Equal(t, chat.RoleUser, streamer.lastReq.Messages[1].Role)
}

func TestStreamMergesNativeTools(t *testing.T) {
	streamer := &fakeStreamer{events: []chat.StreamEvent{contentEvent(t, "ok")}}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "persona")

	body, err := json.Marshal(map[string]any{
		"model":    "gemini-pro",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"tools":    []map[string]any{{"name": "caller_tool"}},
	})
	require.NoError(t, err)

	_, emit := collectFrames()
	require.NoError(t, svc.Stream(context.Background(), body, emit))

	require.Len(t, streamer.lastReq.Functions, 2)
	assert.Equal(t, "caller_tool", streamer.lastReq.Functions[0].Name)
	assert.Equal(t, "get_payment_link", streamer.lastReq.Functions[1].Name)
	assert.Equal(t, "auto", streamer.lastReq.FunctionCall)
}

func TestStreamFunctionCallInterception(t *testing.T) {
	followUp := []byte(`{"id":"resp-1","choices":[{"index":0,"message":{"role":"assistant","content":"Here is your link"},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`)
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			contentEvent(t, "Sure, one moment."),
			functionCallEvent(t, "get_payment_link", ""),
			functionCallEvent(t, "", `{"ord`),
			functionCallEvent(t, "", `er_id":"ABC123"}`),
			finishEvent(t, chat.FinishReasonFunctionCall),
		},
	}
	completer := &fakeCompleter{raw: followUp}
	registry := paymentRegistry()
	svc := NewService(completer, streamer, registry, "persona")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	require.NoError(t, err)
	// One content frame, then the follow-up body; the call deltas stay hidden
	require.Len(t, *frames, 2)
	assert.Equal(t, []byte(streamer.events[0].Raw), (*frames)[0])
	assert.Equal(t, followUp, (*frames)[1])

	// Fragments reassembled into one argument object
	require.Len(t, registry.executed, 1)
	assert.Equal(t, "get_payment_link", registry.executed[0].name)
	assert.Equal(t, "ABC123", registry.executed[0].args["order_id"])

	// Follow-up conversation carries the function result and the persona
	require.Equal(t, 1, completer.calls)
	msgs := completer.lastReq.Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, chat.RoleSystem, msgs[0].Role)
	last := msgs[len(msgs)-1]
	assert.Equal(t, chat.RoleFunction, last.Role)
	assert.Equal(t, "get_payment_link", last.Name)
	assert.Contains(t, last.Content, "https://pay.example.com/ABC123")
}

func TestStreamMalformedArgumentsFallBackToEmpty(t *testing.T) {
	followUp := []byte(`{"id":"resp-1","choices":[]}`)
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "get_payment_link", `{order_id:`),
			finishEvent(t, chat.FinishReasonFunctionCall),
		},
	}
	completer := &fakeCompleter{raw: followUp}
	registry := paymentRegistry()
	svc := NewService(completer, streamer, registry, "persona")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	require.NoError(t, err)
	require.Len(t, registry.executed, 1)
	assert.Empty(t, registry.executed[0].args)
	require.Len(t, *frames, 1)
	assert.Equal(t, followUp, (*frames)[0])
}

func TestStreamUnknownToolFails(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "no_such_tool", `{}`),
			finishEvent(t, chat.FinishReasonFunctionCall),
		},
	}
	completer := &fakeCompleter{}
	svc := NewService(completer, streamer, paymentRegistry(), "persona")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	var notFound *tools.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no_such_tool", notFound.Name)
	assert.Equal(t, 0, completer.calls)
	assert.Empty(t, *frames)
}

func TestStreamOverlappingCallsRejected(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "get_payment_link", ""),
			functionCallEvent(t, "other_tool", ""),
		},
	}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "persona")

	_, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	var protoErr *chat.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestStreamOrphanedArgumentsRejected(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "", `{"order_id":"X"}`),
		},
	}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "persona")

	_, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	var protoErr *chat.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestStreamTruncatedCallRejected(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "get_payment_link", `{"order_id":"X"`),
		},
	}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "persona")

	_, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	var protoErr *chat.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestStreamFollowUpFailurePropagates(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			functionCallEvent(t, "get_payment_link", `{"order_id":"X"}`),
			finishEvent(t, chat.FinishReasonFunctionCall),
		},
	}
	completer := &fakeCompleter{err: errors.New("upstream unavailable")}
	svc := NewService(completer, streamer, paymentRegistry(), "persona")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), simpleBody(t), emit)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Empty(t, *frames)
}

func TestStreamMalformedRequest(t *testing.T) {
	svc := NewService(&fakeCompleter{}, &fakeStreamer{}, paymentRegistry(), "persona")

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{not json"},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"bad role", `{"model":"m","messages":[{"role":"wizard","content":"hi"}]}`},
		{"function message without name", `{"model":"m","messages":[{"role":"function","content":"hi"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frames, emit := collectFrames()
			err := svc.Stream(context.Background(), []byte(tc.body), emit)

			var malformed *chat.MalformedRequestError
			require.ErrorAs(t, err, &malformed)
			assert.Empty(t, *frames)
		})
	}
}

func TestTransferShortcut(t *testing.T) {
	streamer := &fakeStreamer{}
	completer := &fakeCompleter{}
	svc := NewService(completer, streamer, paymentRegistry(), "persona")

	frames, emit := collectFrames()
	err := svc.Stream(context.Background(), []byte(`{"destination":"+15551234567"}`), emit)

	require.NoError(t, err)
	require.Len(t, *frames, 1)
	assert.Equal(t, 0, streamer.calls)
	assert.Equal(t, 0, completer.calls)

	var frame struct {
		FunctionCall struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments"`
		} `json:"function_call"`
	}
	require.NoError(t, json.Unmarshal((*frames)[0], &frame))
	assert.Equal(t, "transferCall", frame.FunctionCall.Name)
	assert.Equal(t, "+15551234567", frame.FunctionCall.Arguments["destination"])
}

func TestStreamEmitErrorStopsStream(t *testing.T) {
	streamer := &fakeStreamer{
		events: []chat.StreamEvent{
			contentEvent(t, "a"),
			contentEvent(t, "b"),
		},
	}
	svc := NewService(&fakeCompleter{}, streamer, paymentRegistry(), "persona")

	emitted := 0
	err := svc.Stream(context.Background(), simpleBody(t), func(payload []byte) error {
		emitted++
		return fmt.Errorf("client went away")
	})

	require.Error(t, err)
	assert.Equal(t, 1, emitted)
}
