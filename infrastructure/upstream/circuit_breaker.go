package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aurelisajuan/CourtVision/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive failures
		SuccessThreshold: 2,                // Close after 2 successes in half-open state
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      3,                // Allow max 3 requests in half-open state
	}
}

// CircuitBreakerProvider wraps the upstream ports with circuit breaker
// functionality. It maintains separate circuit breakers per model so one
// misbehaving model does not take the whole gateway down.
type CircuitBreakerProvider struct {
	completer chat.CompletionPort
	streamer  chat.StreamPort[chat.StreamEvent]
	config    CircuitBreakerConfig
	breakers  map[string]*gobreaker.CircuitBreaker
	mutex     sync.RWMutex
}

// NewCircuitBreakerProvider creates a new circuit breaker wrapper around a provider
func NewCircuitBreakerProvider(completer chat.CompletionPort, streamer chat.StreamPort[chat.StreamEvent], config CircuitBreakerConfig) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		completer: completer,
		streamer:  streamer,
		config:    config,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Complete implements the CompletionPort interface with circuit breaker protection
func (c *CircuitBreakerProvider) Complete(ctx context.Context, req *chat.UpstreamRequest) (*chat.Completion, error) {
	if !c.config.Enabled {
		return c.completer.Complete(ctx, req)
	}

	model := c.extractModel(req)
	breaker := c.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.completer.Complete(ctx, req)
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("circuit breaker open for model %s: requests are being rejected to prevent cascade failures", model)
		}
		return nil, err
	}

	return result.(*chat.Completion), nil
}

// Stream implements the StreamPort interface with circuit breaker protection
func (c *CircuitBreakerProvider) Stream(ctx context.Context, req *chat.UpstreamRequest, onEvent chat.StreamHandler[chat.StreamEvent]) error {
	if !c.config.Enabled {
		return c.streamer.Stream(ctx, req, onEvent)
	}

	model := c.extractModel(req)
	breaker := c.getOrCreateBreaker(model)

	_, err := breaker.Execute(func() (interface{}, error) {
		err := c.streamer.Stream(ctx, req, onEvent)
		return nil, err // gobreaker expects a return value, but streaming doesn't have one
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State(),
			}).Warn("Circuit breaker is open for streaming, failing fast")
			return fmt.Errorf("circuit breaker open for model %s: streaming requests are being rejected to prevent cascade failures", model)
		}
		return err
	}

	return nil
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerProvider) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State)
	for model, breaker := range c.breakers {
		states[model] = breaker.State()
	}
	return states
}

// getOrCreateBreaker gets or creates a circuit breaker for the specified model
func (c *CircuitBreakerProvider) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[model]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	// Need to create a new breaker - acquire write lock
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("upstream-model-%s", model),
		MaxRequests: c.config.MaxRequests,
		Interval:    0, // No automatic clearing of counts (we rely on timeout)
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.config.FailureThreshold &&
				counts.TotalFailures >= c.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"model":      model,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[model] = breaker

	logrus.WithField("model", model).Info("Created new circuit breaker for model")
	return breaker
}

// extractModel extracts the model name from the request for use as a map key
func (c *CircuitBreakerProvider) extractModel(req *chat.UpstreamRequest) string {
	if req.Model != "" {
		model := strings.ToLower(strings.ReplaceAll(req.Model, "/", "-"))
		model = strings.ReplaceAll(model, ".", "-")
		return model
	}
	return "default"
}
