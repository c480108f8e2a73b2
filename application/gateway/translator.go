package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/tools"
)

// translatorState tracks where the translator is in the lifecycle of a
// single proxied stream.
type translatorState int

const (
	// stateStreamingContent re-emits upstream content chunks byte for byte.
	stateStreamingContent translatorState = iota
	// stateAccumulatingCall buffers function-call deltas without emitting.
	stateAccumulatingCall
	// stateStreamingFollowup means the tool ran and the follow-up call is
	// in flight or emitted.
	stateStreamingFollowup
	// stateDone drops any trailing upstream chunks.
	stateDone
)

// pendingCall accumulates a single in-flight function call. The name arrives
// once; the argument string arrives as fragments that only parse as JSON once
// the stream declares the call complete.
type pendingCall struct {
	name string
	args strings.Builder
}

// translator turns a raw upstream event stream into the downstream frame
// sequence, intercepting function calls, executing them locally and splicing
// in the follow-up completion. One translator serves exactly one request.
type translator struct {
	ctx       context.Context
	completer chat.CompletionPort
	registry  tools.Registry
	req       *chat.UpstreamRequest
	emit      chat.FrameHandler

	state   translatorState
	pending *pendingCall

	toolCalls  int
	tokensUsed int

	// onInvocation, when set, observes each executed tool call.
	onInvocation func(name string, args, result []byte)
}

func newTranslator(ctx context.Context, completer chat.CompletionPort, registry tools.Registry, req *chat.UpstreamRequest, emit chat.FrameHandler) *translator {
	return &translator{
		ctx:       ctx,
		completer: completer,
		registry:  registry,
		req:       req,
		emit:      emit,
		state:     stateStreamingContent,
	}
}

// onEvent is the chat.StreamHandler fed to the upstream stream port.
func (t *translator) onEvent(ev chat.StreamEvent) error {
	if t.state == stateDone || t.state == stateStreamingFollowup {
		return nil
	}

	if len(ev.Chunk.Choices) == 0 {
		return t.emit(ev.Raw)
	}
	choice := ev.Chunk.Choices[0]

	if fc := choice.Delta.FunctionCall; fc != nil {
		if err := t.accumulate(fc); err != nil {
			return err
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason == chat.FinishReasonFunctionCall && t.pending != nil {
		return t.interceptAndResume()
	}

	if t.state == stateAccumulatingCall {
		// Function-call deltas carry nothing the caller should see.
		return nil
	}

	return t.emit(ev.Raw)
}

// finish validates the terminal state once the upstream stream has ended.
func (t *translator) finish() error {
	if t.pending != nil {
		return &chat.ProtocolError{
			Reason: fmt.Sprintf("stream ended while function call %q was still accumulating", t.pending.name),
		}
	}
	return nil
}

func (t *translator) accumulate(fc *chat.FunctionCallDelta) error {
	if fc.Name != "" {
		if t.pending != nil && t.pending.name != fc.Name {
			return &chat.ProtocolError{
				Reason: fmt.Sprintf("function call %q opened while %q is still accumulating", fc.Name, t.pending.name),
			}
		}
		if t.pending == nil {
			t.pending = &pendingCall{name: fc.Name}
			t.state = stateAccumulatingCall
		}
	}
	if fc.Arguments != "" {
		if t.pending == nil {
			return &chat.ProtocolError{Reason: "function call arguments arrived before a name"}
		}
		t.pending.args.WriteString(fc.Arguments)
	}
	return nil
}

// interceptAndResume runs the accumulated call through the registry, appends
// the result as a function message and issues one non-streaming follow-up
// whose raw body becomes a single downstream frame.
func (t *translator) interceptAndResume() error {
	name := t.pending.name
	rawArgs := t.pending.args.String()
	t.pending = nil

	args := parseArguments(name, rawArgs)

	result, err := t.registry.Execute(name, args)
	if err != nil {
		return err
	}
	t.toolCalls++

	logrus.WithFields(logrus.Fields{
		"tool":   name,
		"result": string(result),
	}).Info("Executed tool call")

	if t.onInvocation != nil {
		argsJSON, _ := json.Marshal(args)
		t.onInvocation(name, argsJSON, result)
	}

	messages := make([]chat.Message, 0, len(t.req.Messages)+1)
	messages = append(messages, t.req.Messages...)
	messages = append(messages, chat.Message{
		Role:    chat.RoleFunction,
		Name:    name,
		Content: string(result),
	})

	followUp := *t.req
	followUp.Messages = messages
	t.state = stateStreamingFollowup

	completion, err := t.completer.Complete(t.ctx, &followUp)
	if err != nil {
		return fmt.Errorf("follow-up completion after %s: %w", name, err)
	}
	t.tokensUsed += completion.Response.Usage.TotalTokens

	t.state = stateDone
	return t.emit(completion.Raw)
}

// parseArguments decodes the accumulated argument string. Malformed JSON is
// not fatal: the tool still runs, with an empty argument object.
func parseArguments(name, raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"tool":      name,
			"arguments": raw,
		}).Warn("Malformed tool arguments, falling back to empty object")
		return map[string]any{}
	}
	return args
}
