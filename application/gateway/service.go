package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/persistence"
	"github.com/aurelisajuan/CourtVision/domain/tools"
)

const trackingTimeout = 5 * time.Second

// Service orchestrates one gateway call: normalize, shortcut transfers,
// inject the persona, stream through the translator and record the outcome.
type Service struct {
	completer chat.CompletionPort
	streamer  chat.StreamPort[chat.StreamEvent]
	registry  tools.Registry
	persona   chat.Message
	tracker   persistence.CallTracker
}

// NewService creates a gateway service without call tracking.
func NewService(completer chat.CompletionPort, streamer chat.StreamPort[chat.StreamEvent], registry tools.Registry, personaText string) *Service {
	return &Service{
		completer: completer,
		streamer:  streamer,
		registry:  registry,
		persona:   chat.Message{Role: chat.RoleSystem, Content: personaText},
	}
}

// NewServiceWithTracking creates a gateway service that records call
// lifecycle, metrics and tool invocations through the tracker.
func NewServiceWithTracking(completer chat.CompletionPort, streamer chat.StreamPort[chat.StreamEvent], registry tools.Registry, personaText string, tracker persistence.CallTracker) *Service {
	svc := NewService(completer, streamer, registry, personaText)
	svc.tracker = tracker
	return svc
}

// Stream runs the full gateway pipeline for one raw request body, delivering
// each downstream frame payload through emit. The caller owns SSE framing and
// the [DONE] sentinel; Stream only produces payloads and typed errors.
func (s *Service) Stream(ctx context.Context, body []byte, emit chat.FrameHandler) error {
	req, err := Normalize(body)
	if err != nil {
		return err
	}

	if req.Destination != "" {
		return s.transferCall(req.Destination, emit)
	}

	callID := s.callID(ctx)
	started := time.Now()
	frames := 0
	countingEmit := func(payload []byte) error {
		frames++
		return emit(payload)
	}

	s.trackStart(ctx, callID, body, req.Model)

	upReq := &chat.UpstreamRequest{
		Model:        req.Model,
		Messages:     injectPersona(s.persona, req.Messages),
		Temperature:  *req.Temperature,
		Functions:    mergeTools(req.Tools, s.registry.DescribeAll()),
		FunctionCall: req.ToolChoice,
	}

	t := newTranslator(ctx, s.completer, s.registry, upReq, countingEmit)
	if s.tracker != nil {
		t.onInvocation = func(name string, args, result []byte) {
			s.trackInvocation(ctx, callID, name, args, result)
		}
	}

	err = s.streamer.Stream(ctx, upReq, t.onEvent)
	if err == nil {
		err = t.finish()
	}

	if err != nil {
		s.trackFailure(ctx, callID, err)
		return err
	}

	s.trackSuccess(ctx, callID, persistence.CallMetrics{
		LatencyMs:     time.Since(started).Milliseconds(),
		FramesEmitted: frames,
		ToolCalls:     t.toolCalls,
		TokensUsed:    t.tokensUsed,
	})
	return nil
}

// ExecuteCustomTools serves the voice platform's custom-tool callback. Every
// listed call gets a result; unknown tools answer with a plain diagnostic
// string instead of an error.
func (s *Service) ExecuteCustomTools(req *chat.CustomToolRequest) *chat.CustomToolResponse {
	results := make([]chat.CustomToolResult, 0, len(req.Message.ToolCallList))
	for _, call := range req.Message.ToolCallList {
		results = append(results, chat.CustomToolResult{
			ToolCallID: call.ID,
			Result:     s.runCustomTool(call.Function.Name),
		})
	}
	return &chat.CustomToolResponse{Results: results}
}

func (s *Service) runCustomTool(name string) string {
	h, err := s.registry.Resolve(name)
	if err != nil {
		return "Unknown tool " + name
	}

	result, err := h.Call(map[string]any{})
	if err != nil {
		logrus.WithError(err).WithField("tool", name).Error("Custom tool execution failed")
		return "Tool " + name + " failed"
	}

	if str, ok := result.(string); ok {
		return str
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		logrus.WithError(err).WithField("tool", name).Error("Failed to encode custom tool result")
		return "Tool " + name + " failed"
	}
	return string(encoded)
}

// transferCall emits the single synthetic frame that hands the call to a
// human destination. The upstream model is never contacted.
func (s *Service) transferCall(destination string, emit chat.FrameHandler) error {
	logrus.WithField("destination", destination).Info("Transferring call")

	payload, err := json.Marshal(map[string]any{
		"function_call": map[string]any{
			"name":      "transferCall",
			"arguments": map[string]string{"destination": destination},
		},
	})
	if err != nil {
		return err
	}
	return emit(payload)
}

func (s *Service) callID(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value("request_uuid").(uuid.UUID); ok {
		return v
	}
	return uuid.New()
}

// Tracking is fire-and-forget: a slow or broken database must never stall the
// caller's stream, so each write runs on its own goroutine with a deadline.

func (s *Service) trackStart(ctx context.Context, callID uuid.UUID, body []byte, model string) {
	if s.tracker == nil {
		return
	}
	data := append([]byte(nil), body...)
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackingTimeout)
		defer cancel()
		if err := s.tracker.StartTracking(opCtx, callID, data, model, true); err != nil {
			logrus.WithError(err).Errorf("Failed to start tracking call %s", callID)
		}
	}()
}

func (s *Service) trackSuccess(ctx context.Context, callID uuid.UUID, metrics persistence.CallMetrics) {
	if s.tracker == nil {
		return
	}
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackingTimeout)
		defer cancel()
		if err := s.tracker.CompleteTracking(opCtx, callID, nil, metrics); err != nil {
			logrus.WithError(err).Errorf("Failed to complete tracking for call %s", callID)
		}
	}()
}

func (s *Service) trackFailure(ctx context.Context, callID uuid.UUID, cause error) {
	if s.tracker == nil {
		return
	}
	msg := cause.Error()
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackingTimeout)
		defer cancel()
		if err := s.tracker.FailTracking(opCtx, callID, msg); err != nil {
			logrus.WithError(err).Errorf("Failed to record failure for call %s", callID)
		}
	}()
}

func (s *Service) trackInvocation(ctx context.Context, callID uuid.UUID, toolName string, args, result []byte) {
	if s.tracker == nil {
		return
	}
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackingTimeout)
		defer cancel()
		if err := s.tracker.RecordInvocation(opCtx, callID, toolName, args, result); err != nil {
			logrus.WithError(err).Errorf("Failed to record tool invocation for call %s", callID)
		}
	}()
}
