package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelisajuan/CourtVision/domain/chat"
)

type flakyCompleter struct {
	err   error
	calls int
}

func (f *flakyCompleter) Complete(ctx context.Context, req *chat.UpstreamRequest) (*chat.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &chat.Completion{Raw: []byte(`{}`)}, nil
}

type flakyStreamer struct {
	err   error
	calls int
}

func (f *flakyStreamer) Stream(ctx context.Context, req *chat.UpstreamRequest, onEvent chat.StreamHandler[chat.StreamEvent]) error {
	f.calls++
	return f.err
}

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}
}

func TestCircuitBreakerDisabledPassesThrough(t *testing.T) {
	completer := &flakyCompleter{err: errors.New("boom")}
	provider := NewCircuitBreakerProvider(completer, &flakyStreamer{}, CircuitBreakerConfig{Enabled: false})

	for i := 0; i < 10; i++ {
		_, err := provider.Complete(context.Background(), upstreamRequest())
		require.Error(t, err)
	}
	// Every call reaches the wrapped provider when the breaker is off
	assert.Equal(t, 10, completer.calls)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	completer := &flakyCompleter{err: errors.New("upstream down")}
	provider := NewCircuitBreakerProvider(completer, &flakyStreamer{}, testBreakerConfig())

	for i := 0; i < 3; i++ {
		_, err := provider.Complete(context.Background(), upstreamRequest())
		require.Error(t, err)
	}

	_, err := provider.Complete(context.Background(), upstreamRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 3, completer.calls)

	states := provider.GetCircuitStates()
	assert.Equal(t, gobreaker.StateOpen, states["gemini-pro"])
}

func TestCircuitBreakerIsolatesModels(t *testing.T) {
	completer := &flakyCompleter{err: errors.New("upstream down")}
	provider := NewCircuitBreakerProvider(completer, &flakyStreamer{}, testBreakerConfig())

	for i := 0; i < 3; i++ {
		_, _ = provider.Complete(context.Background(), upstreamRequest())
	}

	// A different model gets its own breaker and still reaches upstream
	completer.err = nil
	otherReq := upstreamRequest()
	otherReq.Model = "gemini-flash"
	_, err := provider.Complete(context.Background(), otherReq)
	require.NoError(t, err)

	states := provider.GetCircuitStates()
	assert.Equal(t, gobreaker.StateOpen, states["gemini-pro"])
	assert.Equal(t, gobreaker.StateClosed, states["gemini-flash"])
}

func TestCircuitBreakerStreamOpensToo(t *testing.T) {
	streamer := &flakyStreamer{err: errors.New("upstream down")}
	provider := NewCircuitBreakerProvider(&flakyCompleter{}, streamer, testBreakerConfig())

	for i := 0; i < 3; i++ {
		err := provider.Stream(context.Background(), upstreamRequest(), func(ev chat.StreamEvent) error { return nil })
		require.Error(t, err)
	}

	err := provider.Stream(context.Background(), upstreamRequest(), func(ev chat.StreamEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 3, streamer.calls)
}

func TestExtractModelNormalization(t *testing.T) {
	provider := NewCircuitBreakerProvider(&flakyCompleter{}, &flakyStreamer{}, testBreakerConfig())

	req := upstreamRequest()
	req.Model = "Google/Gemini-1.5-Pro"
	assert.Equal(t, "google-gemini-1-5-pro", provider.extractModel(req))

	req.Model = ""
	assert.Equal(t, "default", provider.extractModel(req))
}
