// Package api exposes the document processing service over HTTP:
// document upload and processing, annotation management, weekly
// reports, health probes and Prometheus metrics.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/athapong/docflow/pkg/annotation"
	"github.com/athapong/docflow/pkg/audit"
	"github.com/athapong/docflow/pkg/extraction"
	"github.com/athapong/docflow/pkg/ingest"
	"github.com/athapong/docflow/pkg/report"
	"github.com/athapong/docflow/pkg/storage"
)

// DocumentStore is the warehouse surface the API needs. Implemented by
// storage.BigQueryStore.
type DocumentStore interface {
	CreateDocumentRecord(ctx context.Context, record storage.DocumentRecord) error
	UpdateStatus(ctx context.Context, documentID string, status extraction.Status, confidence *float64, errorMessage string) error
	GetDocument(ctx context.Context, documentID string) (*storage.DocumentRecord, error)
	ListDocuments(ctx context.Context, status string, limit int) ([]storage.DocumentRecord, error)
	ReviewQueue(ctx context.Context, limit int) ([]storage.ReviewItem, error)
	FlagForReview(ctx context.Context, documentID string, flaggedEntities []string, reason, severity string) (string, error)
	LoadExtractionResult(ctx context.Context, result *extraction.Result) error
	GetEntities(ctx context.Context, documentID string) (*extraction.Result, error)
	LogProcessingEvent(ctx context.Context, documentID, eventType, userID, serviceName, details string) error
}

// BlobStore is the object storage surface the API needs. Implemented
// by storage.ObjectStore.
type BlobStore interface {
	Upload(ctx context.Context, content io.Reader, documentID, filename, contentType string, metadata map[string]string) (string, error)
	Download(ctx context.Context, path string, bucketType storage.BucketType) ([]byte, error)
}

// ExtractionPipeline runs LLM entity extraction. Implemented by
// extraction.Pipeline.
type ExtractionPipeline interface {
	Extract(ctx context.Context, documentID, text string, docType extraction.DocumentType, structType extraction.StructureType, updateStatus bool) (*extraction.Result, error)
}

// ReportGenerator produces and fetches weekly reports. Implemented by
// report.Generator.
type ReportGenerator interface {
	Generate(ctx context.Context, weekStart, weekEnd time.Time) (*report.Report, error)
	Latest(ctx context.Context) (*report.Report, error)
}

// Config holds the server's runtime settings.
type Config struct {
	Addr       string
	RawBucket  string
	Thresholds extraction.Thresholds
}

// Server wires the HTTP surface over the processing components.
type Server struct {
	Echo *echo.Echo

	config      Config
	store       DocumentStore
	blobs       BlobStore
	pipeline    ExtractionPipeline
	ingester    *ingest.Extractor
	annotations *annotation.Service
	reports     ReportGenerator
	audit       *audit.Logger
	logger      *logrus.Logger
}

// NewServer builds the Echo server and registers all routes.
func NewServer(config Config, store DocumentStore, blobs BlobStore, pipeline ExtractionPipeline, annotations *annotation.Service, reports ReportGenerator) *Server {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:        e,
		config:      config,
		store:       store,
		blobs:       blobs,
		pipeline:    pipeline,
		ingester:    ingest.NewExtractor(),
		annotations: annotations,
		reports:     reports,
		audit:       audit.NewLogger(),
		logger:      logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.WithFields(logrus.Fields{
			"method":     c.Request().Method,
			"path":       c.Request().URL.Path,
			"status":     c.Response().Status,
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		}).Info("Handled request")
		return err
	}
}

func (s *Server) registerRoutes() {
	e := s.Echo

	e.GET("/health", s.health)
	e.GET("/health/ready", s.healthReady)
	e.GET("/health/live", s.healthLive)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	docs := v1.Group("/documents")
	docs.POST("/upload", s.uploadDocument)
	docs.GET("", s.listDocuments)
	docs.GET("/review-queue", s.reviewQueue)
	docs.POST("/process", s.processDocument)
	docs.GET("/:id/status", s.documentStatus)
	docs.GET("/:id/entities", s.documentEntities)
	docs.POST("/:id/reprocess", s.reprocessDocument)
	docs.POST("/:id/annotations", s.addAnnotation)
	docs.GET("/:id/annotations", s.listAnnotations)
	docs.GET("/:id/annotations/agreement", s.annotationAgreement)
	docs.POST("/:id/annotations/evaluate", s.evaluateExtraction)

	reports := v1.Group("/reports")
	reports.POST("/generate", s.generateReport)
	reports.GET("/latest", s.latestReport)
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.config.Addr).Info("Starting API server")
	err := s.Echo.Start(s.config.Addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "document-processing-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthReady(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]bool{
			"api":      true,
			"bigquery": s.store != nil,
			"storage":  s.blobs != nil,
		},
	})
}

func (s *Server) healthLive(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func errorJSON(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"error": message})
}
