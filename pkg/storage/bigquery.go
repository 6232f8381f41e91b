// Package storage persists documents and extraction output: BigQuery
// for records and entities, Cloud Storage for the files themselves,
// and an optional Neo4j export of the entity graph.
package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/athapong/docflow/pkg/extraction"
)

// Table names inside the processing dataset.
const (
	tableDocuments     = "documents"
	tableProcessingLog = "processing_log"
	tableReviewQueue   = "review_queue"
	tableStakeholders  = "stakeholders"
	tableDeliverables  = "deliverables"
	tableDeadlines     = "deadlines"
	tableFinancials    = "financials"
	tableWeeklyReports = "weekly_reports"
)

// BigQueryStore is the dataset-backed document and entity store. It
// also implements extraction.StatusTracker.
type BigQueryStore struct {
	client    *bigquery.Client
	projectID string
	dataset   string
	logger    *logrus.Logger
}

// NewBigQueryStore wraps an existing BigQuery client.
func NewBigQueryStore(client *bigquery.Client, projectID, dataset string) *BigQueryStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &BigQueryStore{
		client:    client,
		projectID: projectID,
		dataset:   dataset,
		logger:    logger,
	}
}

func (s *BigQueryStore) tablePath(table string) string {
	return fmt.Sprintf("%s.%s.%s", s.projectID, s.dataset, table)
}

func (s *BigQueryStore) inserter(table string) *bigquery.Inserter {
	return s.client.Dataset(s.dataset).Table(table).Inserter()
}

// DocumentRecord is a row in the documents table.
type DocumentRecord struct {
	DocumentID            string                 `bigquery:"document_id" json:"document_id"`
	Filename              string                 `bigquery:"filename" json:"filename"`
	DocumentType          bigquery.NullString    `bigquery:"document_type" json:"document_type"`
	StructureType         bigquery.NullString    `bigquery:"structure_type" json:"structure_type"`
	UploadTimestamp       time.Time              `bigquery:"upload_timestamp" json:"upload_timestamp"`
	ProcessingStatus      string                 `bigquery:"processing_status" json:"processing_status"`
	OverallConfidence     bigquery.NullFloat64   `bigquery:"overall_confidence" json:"overall_confidence"`
	SourceBucket          string                 `bigquery:"source_bucket" json:"source_bucket"`
	BlobPath              string                 `bigquery:"blob_path" json:"blob_path"`
	RawTextLength         bigquery.NullInt64     `bigquery:"raw_text_length" json:"raw_text_length"`
	ProcessingStartedAt   bigquery.NullTimestamp `bigquery:"processing_started_at" json:"processing_started_at"`
	ProcessingCompletedAt bigquery.NullTimestamp `bigquery:"processing_completed_at" json:"processing_completed_at"`
	ErrorMessage          bigquery.NullString    `bigquery:"error_message" json:"error_message"`
}

// CreateDocumentRecord inserts a fresh document row in pending state.
func (s *BigQueryStore) CreateDocumentRecord(ctx context.Context, record DocumentRecord) error {
	if record.UploadTimestamp.IsZero() {
		record.UploadTimestamp = time.Now().UTC()
	}
	if record.ProcessingStatus == "" {
		record.ProcessingStatus = string(extraction.StatusPending)
	}

	if err := s.inserter(tableDocuments).Put(ctx, record); err != nil {
		return errors.Wrapf(err, "insert document record %s", record.DocumentID)
	}

	s.logger.WithField("document_id", record.DocumentID).Info("Created document record")
	return nil
}

// UpdateStatus transitions a document's processing status. Entering
// processing stamps processing_started_at; completed and failed stamp
// processing_completed_at.
func (s *BigQueryStore) UpdateStatus(ctx context.Context, documentID string, status extraction.Status, confidence *float64, errorMessage string) error {
	set := "processing_status = @status, updated_at = CURRENT_TIMESTAMP()"
	switch status {
	case extraction.StatusProcessing:
		set += ", processing_started_at = CURRENT_TIMESTAMP()"
	case extraction.StatusCompleted, extraction.StatusFailed:
		set += ", processing_completed_at = CURRENT_TIMESTAMP()"
	}

	params := []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "document_id", Value: documentID},
	}
	if confidence != nil {
		set += ", overall_confidence = @confidence"
		params = append(params, bigquery.QueryParameter{Name: "confidence", Value: *confidence})
	}
	if errorMessage != "" {
		set += ", error_message = @error_message"
		params = append(params, bigquery.QueryParameter{Name: "error_message", Value: errorMessage})
	}

	q := s.client.Query(fmt.Sprintf(
		"UPDATE `%s` SET %s WHERE document_id = @document_id",
		s.tablePath(tableDocuments), set,
	))
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return errors.Wrapf(err, "update status for %s", documentID)
	}
	js, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrapf(err, "update status for %s", documentID)
	}
	if js.Err() != nil {
		return errors.Wrapf(js.Err(), "update status for %s", documentID)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"status":      status,
	}).Info("Updated document status")
	return nil
}

// processingLogRow is a row in the processing_log table.
type processingLogRow struct {
	LogID          string              `bigquery:"log_id"`
	DocumentID     string              `bigquery:"document_id"`
	EventType      string              `bigquery:"event_type"`
	EventTimestamp time.Time           `bigquery:"event_timestamp"`
	UserID         bigquery.NullString `bigquery:"user_id"`
	ServiceName    string              `bigquery:"service_name"`
	Details        bigquery.NullString `bigquery:"details"`
}

// LogProcessingEvent appends an event to the processing log.
func (s *BigQueryStore) LogProcessingEvent(ctx context.Context, documentID, eventType, userID, serviceName, details string) error {
	if serviceName == "" {
		serviceName = "document-processor"
	}

	row := processingLogRow{
		LogID:          uuid.New().String(),
		DocumentID:     documentID,
		EventType:      eventType,
		EventTimestamp: time.Now().UTC(),
		UserID:         nullString(userID),
		ServiceName:    serviceName,
		Details:        nullString(details),
	}

	if err := s.inserter(tableProcessingLog).Put(ctx, row); err != nil {
		return errors.Wrapf(err, "insert processing log for %s", documentID)
	}
	return nil
}

// ReviewItem is a row in the review queue.
type ReviewItem struct {
	QueueID          string                 `bigquery:"queue_id" json:"queue_id"`
	DocumentID       string                 `bigquery:"document_id" json:"document_id"`
	FlaggedEntities  []string               `bigquery:"flagged_entities" json:"flagged_entities"`
	Reason           string                 `bigquery:"reason" json:"reason"`
	Severity         string                 `bigquery:"severity" json:"severity"`
	AssignedReviewer bigquery.NullString    `bigquery:"assigned_reviewer" json:"assigned_reviewer"`
	ReviewStatus     string                 `bigquery:"review_status" json:"review_status"`
	ReviewNotes      bigquery.NullString    `bigquery:"review_notes" json:"review_notes"`
	CreatedAt        time.Time              `bigquery:"created_at" json:"created_at"`
	AssignedAt       bigquery.NullTimestamp `bigquery:"assigned_at" json:"assigned_at"`
	ReviewedAt       bigquery.NullTimestamp `bigquery:"reviewed_at" json:"reviewed_at"`
}

// FlagForReview queues a document for manual review and moves its
// status to review_required. Returns the queue entry ID.
func (s *BigQueryStore) FlagForReview(ctx context.Context, documentID string, flaggedEntities []string, reason, severity string) (string, error) {
	if severity == "" {
		severity = "medium"
	}

	item := ReviewItem{
		QueueID:         uuid.New().String(),
		DocumentID:      documentID,
		FlaggedEntities: flaggedEntities,
		Reason:          reason,
		Severity:        severity,
		ReviewStatus:    "pending",
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.inserter(tableReviewQueue).Put(ctx, item); err != nil {
		return "", errors.Wrapf(err, "insert review queue entry for %s", documentID)
	}

	if err := s.UpdateStatus(ctx, documentID, extraction.StatusReviewRequired, nil, ""); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"queue_id":    item.QueueID,
		"reason":      reason,
	}).Info("Flagged document for review")
	return item.QueueID, nil
}

// GetDocument fetches one document record, nil when missing.
func (s *BigQueryStore) GetDocument(ctx context.Context, documentID string) (*DocumentRecord, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT document_id, filename, document_type, structure_type, upload_timestamp, processing_status, overall_confidence, source_bucket, blob_path, raw_text_length, processing_started_at, processing_completed_at, error_message FROM `%s` WHERE document_id = @document_id",
		s.tablePath(tableDocuments),
	))
	q.Parameters = []bigquery.QueryParameter{{Name: "document_id", Value: documentID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "get document %s", documentID)
	}

	var record DocumentRecord
	err = it.Next(&record)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get document %s", documentID)
	}
	return &record, nil
}

// ListDocuments returns document records, optionally filtered by
// status, newest uploads first.
func (s *BigQueryStore) ListDocuments(ctx context.Context, status string, limit int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		"SELECT document_id, filename, document_type, structure_type, upload_timestamp, processing_status, overall_confidence, source_bucket, blob_path, raw_text_length, processing_started_at, processing_completed_at, error_message FROM `%s`",
		s.tablePath(tableDocuments),
	)
	var params []bigquery.QueryParameter
	if status != "" {
		query += " WHERE processing_status = @status"
		params = append(params, bigquery.QueryParameter{Name: "status", Value: status})
	}
	query += " ORDER BY upload_timestamp DESC LIMIT @limit"
	params = append(params, bigquery.QueryParameter{Name: "limit", Value: int64(limit)})

	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}

	records := []DocumentRecord{}
	for {
		var record DocumentRecord
		err := it.Next(&record)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "list documents")
		}
		records = append(records, record)
	}
	return records, nil
}

// PendingDocuments returns documents waiting for processing, oldest
// uploads first.
func (s *BigQueryStore) PendingDocuments(ctx context.Context, limit int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	q := s.client.Query(fmt.Sprintf(
		"SELECT document_id, filename, document_type, structure_type, upload_timestamp, processing_status, overall_confidence, source_bucket, blob_path, raw_text_length, processing_started_at, processing_completed_at, error_message FROM `%s` WHERE processing_status = 'pending' ORDER BY upload_timestamp ASC LIMIT @limit",
		s.tablePath(tableDocuments),
	))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: int64(limit)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pending documents")
	}

	records := []DocumentRecord{}
	for {
		var record DocumentRecord
		err := it.Next(&record)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "pending documents")
		}
		records = append(records, record)
	}
	return records, nil
}

// ReviewQueue lists pending review entries, oldest first.
func (s *BigQueryStore) ReviewQueue(ctx context.Context, limit int) ([]ReviewItem, error) {
	if limit <= 0 {
		limit = 100
	}

	q := s.client.Query(fmt.Sprintf(
		"SELECT queue_id, document_id, flagged_entities, reason, severity, assigned_reviewer, review_status, review_notes, created_at, assigned_at, reviewed_at FROM `%s` WHERE review_status = 'pending' ORDER BY created_at ASC LIMIT @limit",
		s.tablePath(tableReviewQueue),
	))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: int64(limit)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "review queue")
	}

	items := []ReviewItem{}
	for {
		var item ReviewItem
		err := it.Next(&item)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "review queue")
		}
		items = append(items, item)
	}
	return items, nil
}

func nullString(v string) bigquery.NullString {
	return bigquery.NullString{StringVal: v, Valid: v != ""}
}

func nullFloat(v *float64) bigquery.NullFloat64 {
	if v == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *v, Valid: true}
}

func nullDate(v *time.Time) bigquery.NullDate {
	if v == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(*v), Valid: true}
}
