// Package audit emits structured audit events for compliance and
// operational visibility. Events go to the process log in JSON form;
// log shippers forward them to the central sink.
package audit

import (
	"os"

	"github.com/sirupsen/logrus"
)

// EventType names an auditable action.
type EventType string

const (
	// Document lifecycle events
	EventDocumentUploaded   EventType = "document.uploaded"
	EventDocumentDownloaded EventType = "document.downloaded"
	EventDocumentDeleted    EventType = "document.deleted"
	EventDocumentMoved      EventType = "document.moved"

	// Processing events
	EventProcessingStarted   EventType = "processing.started"
	EventProcessingCompleted EventType = "processing.completed"
	EventProcessingFailed    EventType = "processing.failed"
	EventProcessingRetried   EventType = "processing.retried"

	// Extraction events
	EventExtractionCompleted     EventType = "extraction.completed"
	EventExtractionLowConfidence EventType = "extraction.low_confidence"

	// Review events
	EventReviewFlagged   EventType = "review.flagged"
	EventReviewAssigned  EventType = "review.assigned"
	EventReviewCompleted EventType = "review.completed"
	EventReviewDismissed EventType = "review.dismissed"

	// Access events
	EventAPIAccess  EventType = "api.access"
	EventDataExport EventType = "data.export"

	// System events
	EventServiceStarted EventType = "service.started"
	EventServiceStopped EventType = "service.stopped"
	EventErrorOccurred  EventType = "error.occurred"
)

// Logger writes structured audit entries.
type Logger struct {
	logger      *logrus.Logger
	environment string
}

// NewLogger creates an audit logger. The environment tag comes from
// ENVIRONMENT, defaulting to development.
func NewLogger() *Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	return &Logger{
		logger:      logger,
		environment: environment,
	}
}

// newLoggerWith is used by tests to capture output.
func newLoggerWith(logger *logrus.Logger, environment string) *Logger {
	return &Logger{logger: logger, environment: environment}
}

// Log emits one audit event. documentID and userID may be empty;
// details may be nil.
func (l *Logger) Log(eventType EventType, documentID, userID string, details map[string]interface{}, level logrus.Level) {
	fields := logrus.Fields{
		"event_type":  string(eventType),
		"service":     "document-processing",
		"environment": l.environment,
	}
	if documentID != "" {
		fields["document_id"] = documentID
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	if details != nil {
		fields["details"] = details
	}

	l.logger.WithFields(fields).Log(level, "audit event")
}

// Upload records a document upload.
func (l *Logger) Upload(documentID, filename, userID string, fileSize int, contentType string) {
	l.Log(EventDocumentUploaded, documentID, userID, map[string]interface{}{
		"filename":     filename,
		"file_size":    fileSize,
		"content_type": contentType,
	}, logrus.InfoLevel)
}

// ProcessingStarted records the start of extraction.
func (l *Logger) ProcessingStarted(documentID, processor string) {
	l.Log(EventProcessingStarted, documentID, "", map[string]interface{}{
		"processor": processor,
	}, logrus.InfoLevel)
}

// ProcessingCompleted records a finished extraction run.
func (l *Logger) ProcessingCompleted(documentID string, processingTimeMS int64, entitiesExtracted int, confidence float64) {
	l.Log(EventProcessingCompleted, documentID, "", map[string]interface{}{
		"processing_time_ms": processingTimeMS,
		"entities_extracted": entitiesExtracted,
		"confidence":         confidence,
	}, logrus.InfoLevel)
}

// ProcessingFailed records an extraction failure.
func (l *Logger) ProcessingFailed(documentID, errMsg, errType string) {
	l.Log(EventProcessingFailed, documentID, "", map[string]interface{}{
		"error":      errMsg,
		"error_type": errType,
	}, logrus.ErrorLevel)
}

// LowConfidence records an extraction that fell below the review
// threshold.
func (l *Logger) LowConfidence(documentID string, confidence, threshold float64, flaggedEntities []string) {
	l.Log(EventExtractionLowConfidence, documentID, "", map[string]interface{}{
		"confidence":       confidence,
		"threshold":        threshold,
		"flagged_entities": flaggedEntities,
	}, logrus.WarnLevel)
}

// ReviewFlagged records a document entering the review queue.
func (l *Logger) ReviewFlagged(documentID, reason, severity string) {
	l.Log(EventReviewFlagged, documentID, "", map[string]interface{}{
		"reason":         reason,
		"severity_level": severity,
	}, logrus.WarnLevel)
}

// Error records an unclassified failure.
func (l *Logger) Error(documentID, errMsg, errType string) {
	l.Log(EventErrorOccurred, documentID, "", map[string]interface{}{
		"error":      errMsg,
		"error_type": errType,
	}, logrus.ErrorLevel)
}
