package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aurelisajuan/CourtVision/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventProcessor implements persistence.EventProcessor
type EventProcessor struct {
	callRepo       persistence.CallRepository
	metricsRepo    persistence.MetricsRepository
	invocationRepo persistence.InvocationRepository
	eventChan      chan any
	workerCount    int
	bufferSize     int

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	// Health monitoring
	lastProcessedTime atomic.Value
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	callRepo persistence.CallRepository,
	metricsRepo persistence.MetricsRepository,
	invocationRepo persistence.InvocationRepository,
	workerCount int,
	bufferSize int,
) *EventProcessor {
	if workerCount <= 0 {
		workerCount = 5 // Default worker count
	}
	if bufferSize <= 0 {
		bufferSize = 1000 // Default buffer size
	}

	return &EventProcessor{
		callRepo:       callRepo,
		metricsRepo:    metricsRepo,
		invocationRepo: invocationRepo,
		eventChan:      make(chan any, bufferSize),
		workerCount:    workerCount,
		bufferSize:     bufferSize,
	}
}

// Start begins processing events from the channel
func (ep *EventProcessor) Start(ctx context.Context) error {
	if ep.isRunning.Load() {
		return fmt.Errorf("event processor is already running")
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)
	ep.isRunning.Store(true)
	ep.lastProcessedTime.Store(time.Now())

	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop gracefully shuts down the event processor
func (ep *EventProcessor) Stop() error {
	if !ep.isRunning.Load() {
		return nil
	}

	logrus.Info("Stopping event processor...")

	ep.cancel()
	close(ep.eventChan)

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Event processor stop timed out")
	}

	ep.isRunning.Store(false)
	return nil
}

// ProcessEvent sends an event to be processed asynchronously
func (ep *EventProcessor) ProcessEvent(event any) error {
	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event processor is shutting down")
	default:
		// Channel is full, increment error count but don't block
		ep.errorCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return fmt.Errorf("event processor queue is full")
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	return persistence.ProcessorHealth{
		IsRunning:      ep.isRunning.Load(),
		QueueSize:      len(ep.eventChan),
		ProcessedCount: ep.processedCount.Load(),
		ErrorCount:     ep.errorCount.Load(),
	}
}

// worker processes events from the channel
func (ep *EventProcessor) worker(workerID int) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Info("Event processor worker started")

	for {
		select {
		case event, ok := <-ep.eventChan:
			if !ok {
				logger.Info("Event channel closed, worker stopping")
				return
			}

			// Use processor context and add a per-op timeout to avoid long hangs
			opCtx, cancel := context.WithTimeout(ep.ctx, 10*time.Second)
			if err := ep.processEvent(opCtx, event); err != nil {
				ep.errorCount.Add(1)
				logger.WithError(err).Error("Failed to process event")
			} else {
				ep.processedCount.Add(1)
				ep.lastProcessedTime.Store(time.Now())
			}
			cancel()

		case <-ep.ctx.Done():
			logger.Info("Context cancelled, worker stopping")
			return
		}
	}
}

// processEvent handles individual events
func (ep *EventProcessor) processEvent(ctx context.Context, event any) error {
	switch e := event.(type) {
	case persistence.CreateCallEvent:
		return ep.handleCreateCall(ctx, e)

	case persistence.UpdateCallEvent:
		return ep.handleUpdateCall(ctx, e)

	case persistence.CreateMetricsEvent:
		return ep.handleCreateMetrics(ctx, e)

	case persistence.CreateInvocationEvent:
		return ep.handleCreateInvocation(ctx, e)

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

// handleCreateCall creates a new call record
func (ep *EventProcessor) handleCreateCall(ctx context.Context, event persistence.CreateCallEvent) error {
	record := &persistence.CallRecord{
		ID:          event.CallID,
		RequestData: event.RequestData,
		Model:       event.Model,
		IsStreaming: event.IsStreaming,
		Status:      persistence.CallStatusPending,
	}

	if err := ep.callRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// handleUpdateCall updates an existing call record with its outcome
func (ep *EventProcessor) handleUpdateCall(ctx context.Context, event persistence.UpdateCallEvent) error {
	record, err := ep.findCallWithRetry(ctx, event.CallID)
	if err != nil {
		return fmt.Errorf("failed to find call for update: %w", err)
	}

	record.ResponseData = event.ResponseData
	record.Status = event.Status

	return ep.callRepo.Update(ctx, record)
}

// handleCreateMetrics creates or updates call metrics
func (ep *EventProcessor) handleCreateMetrics(ctx context.Context, event persistence.CreateMetricsEvent) error {
	if _, err := ep.findCallWithRetry(ctx, event.CallID); err != nil {
		logrus.WithError(err).WithField("call_id", event.CallID).Warn("Cannot create metrics: call not found after retries")
		return fmt.Errorf("cannot create metrics for non-existent call: %w", err)
	}

	metrics := &persistence.CallMetrics{
		CallID:        event.CallID,
		LatencyMs:     event.LatencyMs,
		FramesEmitted: event.FramesEmitted,
		ToolCalls:     event.ToolCalls,
		TokensUsed:    event.TokensUsed,
	}

	return ep.metricsRepo.CreateOrUpdate(ctx, metrics)
}

// handleCreateInvocation records one local tool execution
func (ep *EventProcessor) handleCreateInvocation(ctx context.Context, event persistence.CreateInvocationEvent) error {
	if _, err := ep.findCallWithRetry(ctx, event.CallID); err != nil {
		logrus.WithError(err).WithField("call_id", event.CallID).Warn("Cannot record invocation: call not found after retries")
		return fmt.Errorf("cannot record invocation for non-existent call: %w", err)
	}

	invocation := &persistence.ToolInvocation{
		CallID:    event.CallID,
		ToolName:  event.ToolName,
		Arguments: event.Arguments,
		Result:    event.Result,
	}

	return ep.invocationRepo.Create(ctx, invocation)
}

// findCallWithRetry looks up a call record, retrying briefly when the record
// is not there yet. The create event for a call races with its follow-up
// events, so a short wait usually resolves the miss.
func (ep *EventProcessor) findCallWithRetry(ctx context.Context, callID uuid.UUID) (*persistence.CallRecord, error) {
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		record, err := ep.callRepo.FindByID(ctx, callID)
		if err == nil {
			return record, nil
		}
		lastErr = err

		if strings.Contains(err.Error(), "record not found") {
			logrus.WithError(err).WithFields(logrus.Fields{
				"call_id": callID,
				"attempt": attempt + 1,
			}).Warn("Call not found yet, retrying...")

			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// CallTracker implements persistence.CallTracker using the event processor
type CallTracker struct {
	processor persistence.EventProcessor
}

// NewCallTracker creates a new call tracker
func NewCallTracker(processor persistence.EventProcessor) persistence.CallTracker {
	return &CallTracker{
		processor: processor,
	}
}

// StartTracking begins tracking a new gateway call
func (ct *CallTracker) StartTracking(ctx context.Context, callID uuid.UUID, requestData []byte, model string, isStreaming bool) error {
	event := persistence.CreateCallEvent{
		CallID:      callID,
		RequestData: json.RawMessage(requestData),
		Model:       model,
		IsStreaming: isStreaming,
	}

	return ct.processor.ProcessEvent(event)
}

// CompleteTracking finalizes call tracking with response data and metrics
func (ct *CallTracker) CompleteTracking(ctx context.Context, callID uuid.UUID, responseData []byte, metrics persistence.CallMetrics) error {
	updateEvent := persistence.UpdateCallEvent{
		CallID:       callID,
		ResponseData: json.RawMessage(responseData),
		Status:       persistence.CallStatusCompleted,
	}

	if err := ct.processor.ProcessEvent(updateEvent); err != nil {
		return fmt.Errorf("failed to process update call event: %w", err)
	}

	metricsEvent := persistence.CreateMetricsEvent{
		CallID:        callID,
		LatencyMs:     metrics.LatencyMs,
		FramesEmitted: metrics.FramesEmitted,
		ToolCalls:     metrics.ToolCalls,
		TokensUsed:    metrics.TokensUsed,
	}

	if err := ct.processor.ProcessEvent(metricsEvent); err != nil {
		return fmt.Errorf("failed to process create metrics event: %w", err)
	}

	return nil
}

// FailTracking marks a call as failed
func (ct *CallTracker) FailTracking(ctx context.Context, callID uuid.UUID, errorMsg string) error {
	errorData, _ := json.Marshal(map[string]string{
		"error": errorMsg,
	})

	event := persistence.UpdateCallEvent{
		CallID:       callID,
		ResponseData: json.RawMessage(errorData),
		Status:       persistence.CallStatusFailed,
	}

	return ct.processor.ProcessEvent(event)
}

// RecordInvocation records one intercepted tool execution for a call
func (ct *CallTracker) RecordInvocation(ctx context.Context, callID uuid.UUID, toolName string, arguments, result []byte) error {
	event := persistence.CreateInvocationEvent{
		CallID:    callID,
		ToolName:  toolName,
		Arguments: json.RawMessage(arguments),
		Result:    json.RawMessage(result),
	}

	return ct.processor.ProcessEvent(event)
}
