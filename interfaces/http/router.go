package httpiface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/aurelisajuan/CourtVision/domain/chat"
	"github.com/aurelisajuan/CourtVision/domain/persistence"
	"github.com/aurelisajuan/CourtVision/domain/tools"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GatewayService is everything the HTTP layer needs from the application:
// the streaming pipeline and the custom-tool executor. The service produces
// raw frame payloads; SSE framing and the [DONE] sentinel live here.
type GatewayService interface {
	Stream(ctx context.Context, body []byte, emit domain.FrameHandler) error
	ExecuteCustomTools(req *domain.CustomToolRequest) *domain.CustomToolResponse
}

type Router struct {
	service     GatewayService
	corsOrigins []string
	callRepo    persistence.CallRepository
	metricsRepo persistence.MetricsRepository
	dbManager   persistence.DatabaseManager
	processor   persistence.EventProcessor
}

func NewRouter(service GatewayService, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithPersistence creates a router with call inspection endpoints
func NewRouterWithPersistence(
	service GatewayService,
	corsOrigins []string,
	callRepo persistence.CallRepository,
	metricsRepo persistence.MetricsRepository,
	dbManager persistence.DatabaseManager,
	processor persistence.EventProcessor,
) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
		callRepo:    callRepo,
		metricsRepo: metricsRepo,
		dbManager:   dbManager,
		processor:   processor,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints - no request ID required for monitoring tools
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat/completions", r.chatCompletions)
	api.POST("/chat/completions/custom-tool", r.customTool)

	// Inspection endpoints (only available if repositories are configured)
	if r.callRepo != nil && r.metricsRepo != nil {
		api.GET("/calls/:call-id", r.getCall)
		api.GET("/metrics/:call-id", r.getCallMetrics)
		api.GET("/metrics", r.getAggregatedMetrics)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns every call a UUID. Voice platforms do not send
// one, so a missing header gets a fresh UUID instead of a rejection.
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientRequestID := c.GetHeader("X-Request-ID")

		var requestUUID uuid.UUID
		if clientRequestID != "" {
			if parsedUUID, err := uuid.Parse(clientRequestID); err == nil {
				requestUUID = parsedUUID
			} else {
				requestUUID = uuid.New()
				c.Header("X-Client-Request-ID", clientRequestID) // Echo back original
			}
		} else {
			requestUUID = uuid.New()
		}

		c.Header("X-Request-ID", requestUUID.String())
		c.Set("request_uuid", requestUUID)
		c.Next()
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}

	overallOK := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			overallOK = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "courtvision-gateway",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: dependencies healthy and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ready = false
		}
	}

	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// chatCompletions serves the streaming gateway endpoint. Every response that
// starts streaming ends with exactly one [DONE] sentinel, error or not.
func (r *Router) chatCompletions(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		logrus.WithError(err).Error("Failed to read request body")
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Failed to read request body"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Streaming not supported by server"})
		return
	}

	streamCtx := c.Request.Context()
	if requestUUID, exists := c.Get("request_uuid"); exists {
		streamCtx = context.WithValue(streamCtx, "request_uuid", requestUUID)
	}

	// SSE headers are written lazily on the first frame so that failures
	// before any output can still answer with a plain HTTP status.
	started := false
	emit := func(payload []byte) error {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(payload); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	streamErr := r.service.Stream(streamCtx, body, emit)
	if streamErr == nil {
		r.writeDone(c, flusher, &started)
		return
	}

	logrus.WithError(streamErr).Error("Gateway stream failed")

	var malformed *domain.MalformedRequestError
	if errors.As(streamErr, &malformed) {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: malformed.Error()})
		return
	}

	if !started {
		c.JSON(http.StatusBadGateway, domain.ErrorResponse{Error: "Upstream request failed"})
		return
	}

	// Frames already went out; the only channel left is the stream itself.
	errType := "server_error"
	var notFound *tools.NotFoundError
	if errors.As(streamErr, &notFound) {
		errType = "invalid_request_error"
	}
	frame, err := json.Marshal(domain.StreamError{
		Error: domain.StreamErrorDetail{
			Message: streamErr.Error(),
			Type:    errType,
		},
	})
	if err == nil {
		if writeErr := emit(frame); writeErr != nil {
			logrus.WithError(writeErr).Warn("Failed to write error frame")
		}
	}
	r.writeDone(c, flusher, &started)
}

func (r *Router) writeDone(c *gin.Context, flusher http.Flusher, started *bool) {
	if !*started {
		// Stream produced no frames at all; still deliver a valid SSE body.
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		*started = true
	}
	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// customTool serves the voice platform's tool callback endpoint
func (r *Router) customTool(c *gin.Context) {
	var req domain.CustomToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind custom tool request")
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	c.JSON(http.StatusOK, r.service.ExecuteCustomTools(&req))
}

// getCall retrieves a complete call record with metrics and invocations
func (r *Router) getCall(c *gin.Context) {
	if r.callRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Call storage system not available"})
		return
	}

	callID, err := uuid.Parse(c.Param("call-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid call ID format"})
		return
	}

	record, err := r.callRepo.FindByIDWithRelations(c.Request.Context(), callID)
	if err != nil {
		logrus.WithError(err).Errorf("Failed to get call %s", callID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// getCallMetrics retrieves metrics for a specific call
func (r *Router) getCallMetrics(c *gin.Context) {
	if r.metricsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Metrics system not available"})
		return
	}

	callID, err := uuid.Parse(c.Param("call-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid call ID format"})
		return
	}

	metrics, err := r.metricsRepo.FindByCallID(c.Request.Context(), callID)
	if err != nil {
		logrus.WithError(err).Errorf("Failed to get metrics for call %s", callID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Metrics not found for the specified call"})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// getAggregatedMetrics retrieves aggregated metrics across recent calls
func (r *Router) getAggregatedMetrics(c *gin.Context) {
	if r.metricsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Metrics system not available"})
		return
	}

	limitStr := c.DefaultQuery("limit", "1000")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	metrics, err := r.metricsRepo.GetAggregatedMetrics(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get aggregated metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregated metrics"})
		return
	}

	c.JSON(http.StatusOK, metrics)
}
