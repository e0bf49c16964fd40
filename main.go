/*
Package main runs the blog generation backend server.

The server accepts a keyword, searches the web for it with a headless browser,
scrapes the top results, summarizes them with a text generation service and
writes a blog post. Generation runs asynchronously: clients submit a keyword
and poll the job status.

Run the application:

	$ go run .

Endpoints:
  - POST /generate-blog: start a blog generation job for {"keyword": "..."}.
  - GET /blog-status/{job_id}: job status, progress and result.
  - GET /health, /health/live, /health/ready: health probes.
  - GET /metrics: Prometheus metrics.
  - GET /swagger/: API documentation.

@title Blog Generator API
@version 1.0
@description Generates blog posts from web search results for a keyword.
@BasePath /
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/config"
	_ "github.com/Nexora-Open-Source/blog-generator-backend/docs"
	"github.com/Nexora-Open-Source/blog-generator-backend/handlers"
	"github.com/Nexora-Open-Source/blog-generator-backend/handlers/health"
	"github.com/Nexora-Open-Source/blog-generator-backend/jobs"
	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/middleware"
	"github.com/Nexora-Open-Source/blog-generator-backend/monitoring"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const (
	serviceName     = "blog-generator-backend"
	shutdownTimeout = 30 * time.Second

	// Alert thresholds
	failureRateThreshold    = 0.5
	failureRateMinSamples   = 10
	queueSaturation         = 0.9
	textGenErrorThreshold   = 0.3
	textGenErrorMinRequests = 5
	stageFailureThreshold   = 0.5
	stageMinSamples         = 5
)

// errorRater is implemented by text generation clients that track failures
type errorRater interface {
	ErrorRate(minSamples int64) float64
}

func main() {
	appConfig, err := config.NewAppConfig()
	if err != nil {
		log.Fatalf("Failed to initialize application configuration: %v", err)
	}
	cfg := appConfig.Config
	logger := appConfig.Services.Logger
	logger.Info("Starting Blog Generator Backend Server")

	// Initialize tracing
	tracerProvider, err := monitoring.InitTracing(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	defer monitoring.ShutdownTracing(tracerProvider)

	services := appConfig.Services.Container
	coordinator, err := services.GetCoordinator()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize job coordinator")
	}
	handler, err := services.GetHandler()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize handler")
	}
	healthHandler, err := services.GetHealthHandler()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize health handler")
	}
	textGen, err := services.GetTextGeneration()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize text generation client")
	}

	// Initialize alert manager
	alertManager := monitoring.NewAlertManager(logger)
	defer alertManager.Stop()
	bindAlertRules(alertManager, coordinator, textGen)

	// Initialize rate limiter with configuration
	limiter := NewRateLimiter(PerMinute(cfg.RateLimitRequestsPerMinute), cfg.RateLimitBurst)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(cfg.ClientCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           CORSMiddleware(middleware.LoggingMiddleware(newRouter(handler, healthHandler, limiter)), cfg.CORSConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.ServerPort,
			"environment": cfg.CORSConfig.Environment,
			"archive":     cfg.ArchiveEnabled(),
		}).Info("Server starting")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	coordinator.Stop(shutdownCtx)
	if err := appConfig.Services.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close services")
	}
	logger.Info("Server stopped")
}

// newRouter registers every route of the API
func newRouter(handler *handlers.Handler, healthHandler *health.Handler, limiter *RateLimiter) *mux.Router {
	router := mux.NewRouter()

	// Setup metrics endpoint
	monitoring.SetupMetricsEndpoint(router)

	// Setup health check endpoints (no rate limiting)
	router.HandleFunc("/health", healthHandler.HandleHealthCheck).Methods("GET")
	router.HandleFunc("/health/live", healthHandler.HandleLivenessCheck).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.HandleReadinessCheck).Methods("GET")

	// Setup Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Setup API routes with monitoring; only job creation is rate limited
	router.HandleFunc("/generate-blog", MonitoringMiddleware("/generate-blog", RateLimitMiddleware(limiter, handler.HandleGenerateBlog))).Methods("POST")
	router.HandleFunc("/blog-status/{job_id}", MonitoringMiddleware("/blog-status/{job_id}", handler.HandleGetBlogStatus)).Methods("GET")

	return router
}

// bindAlertRules connects the default alert rules to live service state
func bindAlertRules(alertManager *monitoring.AlertManager, coordinator *jobs.Coordinator, textGen llm.Client) {
	alertManager.UpdateRuleCondition(monitoring.RuleJobFailureRate, func() bool {
		return coordinator.FailureRate(failureRateMinSamples) > failureRateThreshold
	})
	alertManager.UpdateRuleCondition(monitoring.RuleQueueSaturated, func() bool {
		return coordinator.QueueLoad() >= queueSaturation
	})
	if rater, ok := textGen.(errorRater); ok {
		alertManager.UpdateRuleCondition(monitoring.RuleTextGeneration, func() bool {
			return rater.ErrorRate(textGenErrorMinRequests) > textGenErrorThreshold
		})
	}
	alertManager.UpdateRuleCondition(monitoring.RuleSearchFailure, func() bool {
		return monitoring.StageFailureRate("search", stageMinSamples) > stageFailureThreshold
	})
	alertManager.UpdateRuleCondition(monitoring.RuleArchiveFailure, func() bool {
		return monitoring.StageFailureRate("archive", stageMinSamples) > stageFailureThreshold
	})
}

// MonitoringMiddleware adds metrics and tracing to HTTP handlers. route is the
// route template used as the metrics label, so job ids do not create series.
func MonitoringMiddleware(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := monitoring.CreateSpan(r.Context(), fmt.Sprintf("%s %s", r.Method, route))
		defer span.End()

		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.method":     r.Method,
			"http.route":      route,
			"http.url":        r.URL.String(),
			"http.user_agent": r.UserAgent(),
			"remote.addr":     r.RemoteAddr,
		})

		r = r.WithContext(ctx)

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		monitoring.RecordHTTPRequest(r.Method, route, fmt.Sprintf("%d", rw.statusCode), duration)

		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.status_code": rw.statusCode,
			"duration_seconds": duration,
		})

		if rw.statusCode >= 500 {
			monitoring.SetSpanError(span, fmt.Errorf("HTTP %d", rw.statusCode))
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
