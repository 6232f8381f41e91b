package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/athapong/docflow/pkg/ingest"
	"github.com/athapong/docflow/services"
)

// handler forwards storage upload events to the processing service.
type handler struct {
	serviceURL string
	client     *http.Client
	logger     *logrus.Logger
}

func defaultHandler() *handler {
	serviceURL := os.Getenv("PROCESSING_SERVICE_URL")
	if serviceURL == "" {
		serviceURL = "http://localhost:8080"
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &handler{
		serviceURL: serviceURL,
		client:     services.DefaultHttpClient(),
		logger:     logger,
	}
}

// documentIDFromPath strips the date prefix and extension from a blob
// path of the form YYYY/MM/DD/document_id.ext.
func documentIDFromPath(blobPath string) string {
	basename := filepath.Base(blobPath)
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// DocumentUploaded handles one storage upload event. Errors are logged
// rather than returned so Eventarc does not redeliver endlessly; the
// document stays pending and is retried by the service itself.
func (h *handler) DocumentUploaded(ctx context.Context, e event.Event) error {
	data := e.Data()

	bucket := gjson.GetBytes(data, "bucket").String()
	blobPath := gjson.GetBytes(data, "name").String()
	contentType := gjson.GetBytes(data, "contentType").String()
	size := gjson.GetBytes(data, "size").Int()

	h.logger.WithFields(logrus.Fields{
		"bucket":    bucket,
		"blob_path": blobPath,
		"size":      size,
	}).Info("Received upload event")

	if blobPath == "" {
		h.logger.Warn("Upload event without object name")
		return nil
	}
	if !ingest.SupportedExtension(blobPath) {
		h.logger.WithField("blob_path", blobPath).Warn("Unsupported file type")
		return nil
	}

	documentID := documentIDFromPath(blobPath)

	payload, err := json.Marshal(map[string]interface{}{
		"document_id":  documentID,
		"bucket":       bucket,
		"blob_path":    blobPath,
		"content_type": contentType,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode processing request")
		return nil
	}

	url := fmt.Sprintf("%s/api/v1/documents/process", strings.TrimSuffix(h.serviceURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		h.logger.WithError(err).Error("Failed to build processing request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", documentID).Error("Error triggering processing")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		h.logger.WithFields(logrus.Fields{
			"document_id": documentID,
			"status":      resp.StatusCode,
			"body":        string(body),
		}).Error("Failed to trigger processing")
		return nil
	}

	h.logger.WithField("document_id", documentID).Info("Processing triggered")
	return nil
}
