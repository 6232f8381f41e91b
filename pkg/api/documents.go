package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/athapong/docflow/pkg/extraction"
	"github.com/athapong/docflow/pkg/ingest"
	"github.com/athapong/docflow/pkg/storage"
)

// uploadDocument accepts a multipart file, stores it in the raw bucket
// and creates a pending document record. The storage trigger picks it
// up from there.
func (s *Server) uploadDocument(c echo.Context) error {
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "missing file field")
	}
	if !ingest.SupportedExtension(fileHeader.Filename) {
		return errorJSON(c, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type: %s", filepath.Ext(fileHeader.Filename)))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()

	documentID := uuid.New().String()
	contentType := ingest.ContentType(fileHeader.Filename)

	blobPath, err := s.blobs.Upload(ctx, f, documentID, fileHeader.Filename, contentType, nil)
	if err != nil {
		s.logger.WithError(err).Error("Upload to storage failed")
		return errorJSON(c, http.StatusInternalServerError, "upload failed")
	}

	record := storage.DocumentRecord{
		DocumentID:       documentID,
		Filename:         fileHeader.Filename,
		ProcessingStatus: string(extraction.StatusPending),
		SourceBucket:     s.config.RawBucket,
		BlobPath:         blobPath,
	}
	if err := s.store.CreateDocumentRecord(ctx, record); err != nil {
		s.logger.WithError(err).Error("Failed to create document record")
		return errorJSON(c, http.StatusInternalServerError, "upload failed")
	}

	s.audit.Upload(documentID, fileHeader.Filename, "", int(fileHeader.Size), contentType)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"document_id": documentID,
		"filename":    fileHeader.Filename,
		"status":      string(extraction.StatusPending),
		"message":     fmt.Sprintf("Document queued for processing. ID: %s", documentID),
	})
}

// listDocuments returns document records, optionally filtered by
// processing status.
func (s *Server) listDocuments(c echo.Context) error {
	limit := queryInt(c, "limit", 100)
	status := c.QueryParam("status")

	records, err := s.store.ListDocuments(c.Request().Context(), status, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list documents")
		return errorJSON(c, http.StatusInternalServerError, "failed to list documents")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents":   records,
		"total_count": len(records),
	})
}

// reviewQueue returns documents waiting on manual review.
func (s *Server) reviewQueue(c echo.Context) error {
	limit := queryInt(c, "limit", 100)

	items, err := s.store.ReviewQueue(c.Request().Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read review queue")
		return errorJSON(c, http.StatusInternalServerError, "failed to read review queue")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items":       items,
		"total_count": len(items),
	})
}

// documentStatus reports the processing state of one document.
func (s *Server) documentStatus(c echo.Context) error {
	documentID := c.Param("id")

	record, err := s.store.GetDocument(c.Request().Context(), documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get document")
		return errorJSON(c, http.StatusInternalServerError, "failed to get document")
	}
	if record == nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("document not found: %s", documentID))
	}

	resp := map[string]interface{}{
		"document_id": record.DocumentID,
		"filename":    record.Filename,
		"status":      record.ProcessingStatus,
	}
	if record.DocumentType.Valid {
		resp["document_type"] = record.DocumentType.StringVal
	}
	if record.OverallConfidence.Valid {
		resp["confidence"] = record.OverallConfidence.Float64
	}
	if record.ProcessingCompletedAt.Valid {
		resp["processed_at"] = record.ProcessingCompletedAt.Timestamp
	}
	if record.ErrorMessage.Valid {
		resp["error_message"] = record.ErrorMessage.StringVal
	}
	return c.JSON(http.StatusOK, resp)
}

// documentEntities returns the extraction result for a document.
func (s *Server) documentEntities(c echo.Context) error {
	ctx := c.Request().Context()
	documentID := c.Param("id")

	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get document")
		return errorJSON(c, http.StatusInternalServerError, "failed to get document")
	}
	if record == nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("document not found: %s", documentID))
	}

	result, err := s.store.GetEntities(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get entities")
		return errorJSON(c, http.StatusInternalServerError, "failed to get entities")
	}
	return c.JSON(http.StatusOK, result)
}

// reprocessDocument resets a document to pending so the next
// processing run picks it up again.
func (s *Server) reprocessDocument(c echo.Context) error {
	ctx := c.Request().Context()
	documentID := c.Param("id")

	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get document")
		return errorJSON(c, http.StatusInternalServerError, "failed to get document")
	}
	if record == nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("document not found: %s", documentID))
	}

	if err := s.store.UpdateStatus(ctx, documentID, extraction.StatusPending, nil, ""); err != nil {
		s.logger.WithError(err).Error("Failed to reset document status")
		return errorJSON(c, http.StatusInternalServerError, "failed to queue reprocessing")
	}
	if err := s.store.LogProcessingEvent(ctx, documentID, "processing.retried", "", "", ""); err != nil {
		s.logger.WithError(err).Warn("Failed to log reprocess event")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"status":      "reprocessing_queued",
		"message":     "Document has been queued for reprocessing",
	})
}

type processRequest struct {
	DocumentID  string `json:"document_id"`
	Bucket      string `json:"bucket"`
	BlobPath    string `json:"blob_path"`
	ContentType string `json:"content_type"`
}

// processDocument runs the full pipeline for a stored blob: download,
// ingest, extract, load entities and route to review when confidence
// falls short. Called by the storage trigger.
func (s *Server) processDocument(c echo.Context) error {
	ctx := c.Request().Context()

	var req processRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentID == "" || req.Bucket == "" || req.BlobPath == "" {
		return errorJSON(c, http.StatusBadRequest, "missing required fields: document_id, bucket, blob_path")
	}

	content, err := s.blobs.Download(ctx, req.BlobPath, storage.BucketRaw)
	if err != nil {
		s.logger.WithError(err).WithField("document_id", req.DocumentID).Error("Download failed")
		return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}

	filename := filepath.Base(req.BlobPath)
	meta, err := s.ingester.Extract(content, filename)
	if err != nil {
		s.audit.ProcessingFailed(req.DocumentID, err.Error(), "ingest")
		return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}

	record := storage.DocumentRecord{
		DocumentID:       req.DocumentID,
		Filename:         meta.Filename,
		DocumentType:     nullStr(string(meta.DocumentType)),
		StructureType:    nullStr(string(meta.StructureType)),
		ProcessingStatus: string(extraction.StatusPending),
		SourceBucket:     req.Bucket,
		BlobPath:         req.BlobPath,
		RawTextLength:    nullInt(meta.RawTextLength),
	}
	if err := s.store.CreateDocumentRecord(ctx, record); err != nil {
		s.logger.WithError(err).Error("Failed to create document record")
		return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}

	s.audit.ProcessingStarted(req.DocumentID, "gemini")

	result, err := s.pipeline.Extract(ctx, req.DocumentID, meta.RawText, meta.DocumentType, meta.StructureType, true)
	if err != nil {
		s.audit.ProcessingFailed(req.DocumentID, err.Error(), "extraction")
		return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}

	if err := s.store.LoadExtractionResult(ctx, result); err != nil {
		s.logger.WithError(err).Error("Failed to load entities")
		return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}

	if result.NeedsReview {
		flagged := flaggedEntityIDs(result, s.config.Thresholds.LowConfidence)
		reason := "validation_required"
		if result.OverallConfidence < s.config.Thresholds.ReviewRequired {
			reason = "low_confidence"
		}
		if _, err := s.store.FlagForReview(ctx, req.DocumentID, flagged, reason, ""); err != nil {
			s.logger.WithError(err).Error("Failed to flag document for review")
		} else {
			s.audit.ReviewFlagged(req.DocumentID, reason, "medium")
		}
	}

	s.audit.ProcessingCompleted(req.DocumentID, result.ProcessingTimeMS, result.EntityCount(), result.OverallConfidence)

	s.logger.WithFields(logrus.Fields{
		"document_id":  req.DocumentID,
		"entities":     result.EntityCount(),
		"needs_review": result.NeedsReview,
	}).Info("Processed document")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"document_id":        req.DocumentID,
		"status":             "completed",
		"overall_confidence": result.OverallConfidence,
		"entities_extracted": result.EntityCount(),
		"needs_review":       result.NeedsReview,
	})
}

// flaggedEntityIDs collects IDs of entities below the low confidence
// threshold.
func flaggedEntityIDs(result *extraction.Result, threshold float64) []string {
	var flagged []string
	for _, e := range result.Stakeholders {
		if e.Confidence < threshold {
			flagged = append(flagged, e.EntityID)
		}
	}
	for _, e := range result.Deliverables {
		if e.Confidence < threshold {
			flagged = append(flagged, e.EntityID)
		}
	}
	for _, e := range result.Deadlines {
		if e.Confidence < threshold {
			flagged = append(flagged, e.EntityID)
		}
	}
	for _, e := range result.Financials {
		if e.Confidence < threshold {
			flagged = append(flagged, e.EntityID)
		}
	}
	return flagged
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func nullStr(v string) bigquery.NullString {
	return bigquery.NullString{StringVal: v, Valid: v != ""}
}

func nullInt(v int) bigquery.NullInt64 {
	return bigquery.NullInt64{Int64: int64(v), Valid: true}
}
