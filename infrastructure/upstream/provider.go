package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/aurelisajuan/CourtVision/domain/chat"

	"github.com/sirupsen/logrus"
)

// Provider talks to the OpenAI-compatible Vertex AI endpoint in both
// streaming and non-streaming modes.
type Provider struct {
	endpoint   string
	httpClient *http.Client
	rng        *rand.Rand
	rngMutex   sync.Mutex
}

// NewProvider creates a provider for the given fully assembled endpoint URL
// (credentials included, see config.UpstreamURL).
func NewProvider(endpoint string) *Provider {
	// Configure HTTP client with connection pooling
	transport := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    false,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Provider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// apiRequest is the provider wire format. Functions and FunctionCall follow
// the legacy OpenAI function-calling shape the voice platform speaks.
type apiRequest struct {
	Model        string            `json:"model"`
	Messages     []chat.Message    `json:"messages"`
	Temperature  float64           `json:"temperature"`
	Stream       bool              `json:"stream"`
	Functions    []chat.ToolSchema `json:"functions"`
	FunctionCall string            `json:"function_call"`
}

func newAPIRequest(req *chat.UpstreamRequest, stream bool) apiRequest {
	functions := req.Functions
	if functions == nil {
		functions = []chat.ToolSchema{}
	}
	functionCall := req.FunctionCall
	if functionCall == "" {
		functionCall = "auto"
	}
	return apiRequest{
		Model:        req.Model,
		Messages:     req.Messages,
		Temperature:  req.Temperature,
		Stream:       stream,
		Functions:    functions,
		FunctionCall: functionCall,
	}
}

// Complete performs one non-streaming call and returns the raw response body
// alongside the decoded response.
func (p *Provider) Complete(ctx context.Context, req *chat.UpstreamRequest) (*chat.Completion, error) {
	return p.completeWithRetry(ctx, req, 3)
}

func (p *Provider) completeWithRetry(ctx context.Context, req *chat.UpstreamRequest, maxRetries int) (*chat.Completion, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			base := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			// Add simple jitter of up to 250ms
			p.rngMutex.Lock()
			jitter := time.Duration(p.rng.Intn(250)) * time.Millisecond
			p.rngMutex.Unlock()
			backoff := base + jitter
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Info("Retrying upstream call after backoff")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		jsonData, err := json.Marshal(newAPIRequest(req, false))
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}

		hreq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		hreq.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(hreq)
		if err != nil {
			lastErr = fmt.Errorf("do: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("read: %w", err)
			continue
		}
		resp.Body.Close()

		// Retry on server errors (5xx) or rate limiting (429)
		if resp.StatusCode >= 500 || resp.StatusCode == 429 {
			lastErr = fmt.Errorf("upstream api error: status %d, model %s: %s", resp.StatusCode, req.Model, string(body))
			logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body), "model": req.Model, "attempt": attempt + 1}).Warn("Retryable upstream error")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body), "model": req.Model}).Error("Upstream API error")
			return nil, fmt.Errorf("upstream api error: status %d, model %s: %s", resp.StatusCode, req.Model, string(body))
		}

		var out chat.Response
		if err := json.Unmarshal(body, &out); err != nil {
			lastErr = fmt.Errorf("unmarshal: %w", err)
			continue
		}

		return &chat.Completion{Raw: body, Response: out}, nil
	}

	return nil, fmt.Errorf("upstream call failed after %d attempts: %w", maxRetries, lastErr)
}

// Stream performs one streaming call and delivers decoded events in upstream
// order, each with its payload bytes untouched. The [DONE] sentinel is
// consumed and ends the stream; it is not delivered as an event.
func (p *Provider) Stream(ctx context.Context, req *chat.UpstreamRequest, onEvent chat.StreamHandler[chat.StreamEvent]) error {
	jsonData, err := json.Marshal(newAPIRequest(req, true))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body), "model": req.Model}).Error("Upstream streaming API error")
		return fmt.Errorf("upstream streaming api error: status %d, model %s: %s", resp.StatusCode, req.Model, string(body))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}
		if len(line) < 6 || string(line[:6]) != "data: " {
			continue
		}
		payload := bytes.TrimSpace(line[6:])
		if bytes.Equal(payload, []byte("[DONE]")) {
			return nil
		}
		var chunk chat.StreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			logrus.WithFields(logrus.Fields{"payload": string(payload), "model": req.Model}).Error("Failed to decode streaming chunk")
			return fmt.Errorf("decode chunk for model %s: %w", req.Model, err)
		}
		if err := onEvent(chat.StreamEvent{Raw: payload, Chunk: chunk}); err != nil {
			return err
		}
	}
}
