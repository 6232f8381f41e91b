package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/docflow/pkg/annotation"
	"github.com/athapong/docflow/pkg/extraction"
	"github.com/athapong/docflow/pkg/report"
	"github.com/athapong/docflow/pkg/storage"
)

type fakeStore struct {
	records       map[string]*storage.DocumentRecord
	created       []storage.DocumentRecord
	statusUpdates []string
	flagged       []flagCall
	entities      *extraction.Result
	loaded        []*extraction.Result
	reviewItems   []storage.ReviewItem
}

type flagCall struct {
	documentID string
	entities   []string
	reason     string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*storage.DocumentRecord{}}
}

func (f *fakeStore) CreateDocumentRecord(_ context.Context, record storage.DocumentRecord) error {
	f.created = append(f.created, record)
	f.records[record.DocumentID] = &record
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, documentID string, status extraction.Status, _ *float64, _ string) error {
	f.statusUpdates = append(f.statusUpdates, fmt.Sprintf("%s:%s", documentID, status))
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (*storage.DocumentRecord, error) {
	return f.records[documentID], nil
}

func (f *fakeStore) ListDocuments(_ context.Context, status string, _ int) ([]storage.DocumentRecord, error) {
	out := []storage.DocumentRecord{}
	for _, r := range f.records {
		if status == "" || r.ProcessingStatus == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ReviewQueue(_ context.Context, _ int) ([]storage.ReviewItem, error) {
	return f.reviewItems, nil
}

func (f *fakeStore) FlagForReview(_ context.Context, documentID string, flaggedEntities []string, reason, _ string) (string, error) {
	f.flagged = append(f.flagged, flagCall{documentID: documentID, entities: flaggedEntities, reason: reason})
	return "queue-1", nil
}

func (f *fakeStore) LoadExtractionResult(_ context.Context, result *extraction.Result) error {
	f.loaded = append(f.loaded, result)
	return nil
}

func (f *fakeStore) GetEntities(_ context.Context, documentID string) (*extraction.Result, error) {
	if f.entities != nil {
		return f.entities, nil
	}
	return &extraction.Result{DocumentID: documentID}, nil
}

func (f *fakeStore) LogProcessingEvent(_ context.Context, _, _, _, _, _ string) error {
	return nil
}

type fakeBlobs struct {
	uploads map[string][]byte
	blobs   map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploads: map[string][]byte{}, blobs: map[string][]byte{}}
}

func (f *fakeBlobs) Upload(_ context.Context, content io.Reader, documentID, filename, _ string, _ map[string]string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("2024/03/04/%s-%s", documentID, filename)
	f.uploads[path] = data
	return path, nil
}

func (f *fakeBlobs) Download(_ context.Context, path string, _ storage.BucketType) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return data, nil
}

type fakePipeline struct {
	result *extraction.Result
	err    error
}

func (f *fakePipeline) Extract(_ context.Context, documentID, _ string, docType extraction.DocumentType, structType extraction.StructureType, _ bool) (*extraction.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.DocumentID = documentID
	r.DocumentType = docType
	r.StructureType = structType
	return &r, nil
}

type fakeReports struct {
	report *report.Report
	latest *report.Report
	err    error
}

func (f *fakeReports) Generate(_ context.Context, weekStart, weekEnd time.Time) (*report.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	r.WeekStart = weekStart
	r.WeekEnd = weekEnd
	return &r, nil
}

func (f *fakeReports) Latest(_ context.Context) (*report.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

type testEnv struct {
	server   *Server
	store    *fakeStore
	blobs    *fakeBlobs
	pipeline *fakePipeline
	reports  *fakeReports
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	blobs := newFakeBlobs()
	pipeline := &fakePipeline{result: &extraction.Result{OverallConfidence: 0.9}}
	reports := &fakeReports{
		report: &report.Report{ReportID: "r-1", GeneratedAt: time.Now().UTC()},
	}

	server := NewServer(
		Config{Addr: ":0", RawBucket: "raw-bucket", Thresholds: extraction.DefaultThresholds()},
		store, blobs, pipeline,
		annotation.NewService(annotation.NewMemoryStore()),
		reports,
	)
	return &testEnv{server: server, store: store, blobs: blobs, pipeline: pipeline, reports: reports}
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Echo.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(method, path string, payload interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	return e.do(method, path, bytes.NewReader(data), "application/json")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv()

	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		rec := env.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	body := decodeBody(t, env.do(http.MethodGet, "/health", nil, ""))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "document-processing-api", body["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv()

	buf, contentType := multipartUpload(t, "sow.txt", "statement of work")
	rec := env.do(http.MethodPost, "/api/v1/documents/upload", buf, contentType)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["document_id"])
	assert.Equal(t, "sow.txt", body["filename"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, env.store.created, 1)
	record := env.store.created[0]
	assert.Equal(t, "raw-bucket", record.SourceBucket)
	assert.Equal(t, "pending", record.ProcessingStatus)
	assert.Len(t, env.blobs.uploads, 1)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv()

	buf, contentType := multipartUpload(t, "contract.docx", "binary")
	rec := env.do(http.MethodPost, "/api/v1/documents/upload", buf, contentType)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.store.created)
}

func TestDocumentStatusNotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/v1/documents/missing/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentStatus(t *testing.T) {
	env := newTestEnv()
	env.store.records["doc-1"] = &storage.DocumentRecord{
		DocumentID:       "doc-1",
		Filename:         "sow.pdf",
		ProcessingStatus: "completed",
	}

	rec := env.do(http.MethodGet, "/api/v1/documents/doc-1/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, "completed", body["status"])
	assert.NotContains(t, body, "error_message")
}

func TestListDocumentsFiltersByStatus(t *testing.T) {
	env := newTestEnv()
	env.store.records["a"] = &storage.DocumentRecord{DocumentID: "a", ProcessingStatus: "pending"}
	env.store.records["b"] = &storage.DocumentRecord{DocumentID: "b", ProcessingStatus: "completed"}

	body := decodeBody(t, env.do(http.MethodGet, "/api/v1/documents?status=pending", nil, ""))
	assert.Equal(t, float64(1), body["total_count"])
}

func TestReviewQueueEndpoint(t *testing.T) {
	env := newTestEnv()
	env.store.reviewItems = []storage.ReviewItem{{QueueID: "q-1", DocumentID: "doc-1", Reason: "low_confidence"}}

	body := decodeBody(t, env.do(http.MethodGet, "/api/v1/documents/review-queue", nil, ""))
	assert.Equal(t, float64(1), body["total_count"])
}

func TestReprocessDocument(t *testing.T) {
	env := newTestEnv()
	env.store.records["doc-1"] = &storage.DocumentRecord{DocumentID: "doc-1", ProcessingStatus: "failed"}

	rec := env.do(http.MethodPost, "/api/v1/documents/doc-1/reprocess", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "reprocessing_queued", body["status"])
	assert.Contains(t, env.store.statusUpdates, "doc-1:pending")
}

func TestProcessDocumentRequiresFields(t *testing.T) {
	env := newTestEnv()

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/process", map[string]string{"document_id": "doc-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessDocumentCompletes(t *testing.T) {
	env := newTestEnv()
	env.blobs.blobs["2024/03/04/doc-1.txt"] = []byte("Statement of Work\nScope of Work: build the thing.")

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/process", map[string]string{
		"document_id": "doc-1",
		"bucket":      "raw-bucket",
		"blob_path":   "2024/03/04/doc-1.txt",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, false, body["needs_review"])

	require.Len(t, env.store.created, 1)
	require.Len(t, env.store.loaded, 1)
	assert.Empty(t, env.store.flagged)
}

func TestProcessDocumentFlagsLowConfidence(t *testing.T) {
	env := newTestEnv()
	env.blobs.blobs["2024/03/04/doc-2.txt"] = []byte("contract text")
	env.pipeline.result = &extraction.Result{
		OverallConfidence: 0.4,
		NeedsReview:       true,
		Stakeholders: []extraction.Stakeholder{
			{EntityID: "s-1", Name: "Alice", Confidence: 0.3},
			{EntityID: "s-2", Name: "Bob", Confidence: 0.9},
		},
	}

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/process", map[string]string{
		"document_id": "doc-2",
		"bucket":      "raw-bucket",
		"blob_path":   "2024/03/04/doc-2.txt",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.store.flagged, 1)
	call := env.store.flagged[0]
	assert.Equal(t, "doc-2", call.documentID)
	assert.Equal(t, []string{"s-1"}, call.entities)
	assert.Equal(t, "low_confidence", call.reason)
}

func TestProcessDocumentValidationRequiredReason(t *testing.T) {
	env := newTestEnv()
	env.blobs.blobs["2024/03/04/doc-3.txt"] = []byte("contract text")
	env.pipeline.result = &extraction.Result{
		OverallConfidence: 0.8,
		NeedsReview:       true,
		Stakeholders: []extraction.Stakeholder{
			{EntityID: "s-1", Name: "Alice", Confidence: 0.6},
		},
	}

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/process", map[string]string{
		"document_id": "doc-3",
		"bucket":      "raw-bucket",
		"blob_path":   "2024/03/04/doc-3.txt",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.store.flagged, 1)
	assert.Equal(t, "validation_required", env.store.flagged[0].reason)
}

func TestProcessDocumentExtractionFailure(t *testing.T) {
	env := newTestEnv()
	env.blobs.blobs["2024/03/04/doc-4.txt"] = []byte("contract text")
	env.pipeline.err = fmt.Errorf("gemini unavailable")

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/process", map[string]string{
		"document_id": "doc-4",
		"bucket":      "raw-bucket",
		"blob_path":   "2024/03/04/doc-4.txt",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "gemini unavailable")
}

func TestAnnotationRoundTrip(t *testing.T) {
	env := newTestEnv()
	env.store.records["doc-1"] = &storage.DocumentRecord{DocumentID: "doc-1"}

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/doc-1/annotations", map[string]interface{}{
		"entity_id":       "e-1",
		"entity_type":     "stakeholder",
		"annotator_id":    "alice",
		"annotated_value": map[string]interface{}{"name": "Acme Corp", "stakeholder_type": "client"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, env.do(http.MethodGet, "/api/v1/documents/doc-1/annotations", nil, ""))
	assert.Equal(t, float64(1), body["total_count"])
}

func TestAnnotationRequiresFields(t *testing.T) {
	env := newTestEnv()

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/doc-1/annotations", map[string]interface{}{
		"entity_id": "e-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgreementEndpoint(t *testing.T) {
	env := newTestEnv()

	for _, annotator := range []string{"alice", "bob"} {
		rec := env.doJSON(http.MethodPost, "/api/v1/documents/doc-1/annotations", map[string]interface{}{
			"entity_id":       "e-1",
			"entity_type":     "stakeholder",
			"annotator_id":    annotator,
			"annotated_value": map[string]interface{}{"name": "Acme Corp"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(http.MethodGet, "/api/v1/documents/doc-1/annotations/agreement?entity_id=e-1&entity_type=stakeholder", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	comparisons := body["comparisons"].([]interface{})
	require.Len(t, comparisons, 1)
}

func TestAgreementRequiresQueryParams(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/v1/documents/doc-1/annotations/agreement", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateWithoutAnnotations(t *testing.T) {
	env := newTestEnv()
	env.store.records["doc-1"] = &storage.DocumentRecord{DocumentID: "doc-1"}

	rec := env.do(http.MethodPost, "/api/v1/documents/doc-1/annotations/evaluate", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateEndpoint(t *testing.T) {
	env := newTestEnv()
	env.store.records["doc-1"] = &storage.DocumentRecord{DocumentID: "doc-1"}
	env.store.entities = &extraction.Result{
		DocumentID: "doc-1",
		Stakeholders: []extraction.Stakeholder{
			{EntityID: "s-1", Name: "Alice", Confidence: 0.9},
		},
	}

	rec := env.doJSON(http.MethodPost, "/api/v1/documents/doc-1/annotations", map[string]interface{}{
		"entity_id":       "s-1",
		"entity_type":     "stakeholder",
		"annotator_id":    "alice",
		"annotated_value": map[string]interface{}{"name": "Alice"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/documents/doc-1/annotations/evaluate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stakeholder")
}

func TestGenerateReportEndpoint(t *testing.T) {
	env := newTestEnv()

	rec := env.doJSON(http.MethodPost, "/api/v1/reports/generate", map[string]string{
		"week_start": "2024-03-04",
		"week_end":   "2024-03-10",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "r-1", body["report_id"])
	assert.Equal(t, "2024-03-04", body["week_start"])
}

func TestGenerateReportRejectsBadDate(t *testing.T) {
	env := newTestEnv()

	rec := env.doJSON(http.MethodPost, "/api/v1/reports/generate", map[string]string{
		"week_start": "March 4th",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestReportNotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/v1/reports/latest", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestReportReturned(t *testing.T) {
	env := newTestEnv()
	env.reports.latest = &report.Report{ReportID: "r-9", ReportContent: "weekly summary"}

	rec := env.do(http.MethodGet, "/api/v1/reports/latest", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "r-9"))
}
