package extraction

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "extraction_duration_seconds",
			Help: "Time spent extracting entities from documents",
		},
		[]string{"status"},
	)

	extractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_documents_total",
			Help: "Total number of documents run through extraction",
		},
		[]string{"status"},
	)

	extractedEntities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_entities_total",
			Help: "Total number of entities extracted, by type",
		},
		[]string{"entity_type"},
	)
)

func init() {
	prometheus.MustRegister(extractionDuration)
	prometheus.MustRegister(extractionTotal)
	prometheus.MustRegister(extractedEntities)
}

// Extractor is an LLM backend that turns document text into the raw
// extraction payload: a JSON object with overall_confidence and the
// four entity lists.
type Extractor interface {
	Extract(ctx context.Context, text string, docType DocumentType, structType StructureType) (map[string]interface{}, error)
}

// StatusTracker receives document lifecycle transitions. confidence is
// nil when the transition carries no score.
type StatusTracker interface {
	UpdateStatus(ctx context.Context, documentID string, status Status, confidence *float64, errorMessage string) error
}

// NopStatusTracker discards all transitions. Useful for dry runs and tests.
type NopStatusTracker struct{}

func (NopStatusTracker) UpdateStatus(context.Context, string, Status, *float64, string) error {
	return nil
}

// Pipeline orchestrates the full extraction workflow: the backend call,
// normalization, confidence scoring and review assessment.
type Pipeline struct {
	extractor  Extractor
	tracker    StatusTracker
	normalizer *Normalizer
	thresholds Thresholds
	logger     *logrus.Logger
	onResult   []func(*Result)
}

// NewPipeline wires an extraction pipeline. A nil tracker disables
// status updates entirely.
func NewPipeline(extractor Extractor, tracker StatusTracker, thresholds Thresholds) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if tracker == nil {
		tracker = NopStatusTracker{}
	}

	return &Pipeline{
		extractor:  extractor,
		tracker:    tracker,
		normalizer: NewNormalizer(logger),
		thresholds: thresholds,
		logger:     logger,
	}
}

// OnResult registers a callback invoked with every successful
// extraction result, after status tracking. Callbacks run on the
// extraction goroutine and must not block. Not safe to call once
// Extract is in use.
func (p *Pipeline) OnResult(fn func(*Result)) {
	p.onResult = append(p.onResult, fn)
}

// Extract runs the extraction workflow over document text.
//
// Empty docType and structType default to other/unstructured. When
// updateStatus is set the document transitions to processing first and
// to completed, review_required or failed at the end. A backend failure
// is reported as a failed status (best effort) and then returned.
func (p *Pipeline) Extract(ctx context.Context, documentID, text string, docType DocumentType, structType StructureType, updateStatus bool) (*Result, error) {
	start := time.Now()

	if docType == "" {
		docType = DocumentTypeOther
	}
	if structType == "" {
		structType = StructureUnstructured
	}

	if updateStatus {
		if err := p.tracker.UpdateStatus(ctx, documentID, StatusProcessing, nil, ""); err != nil {
			p.logger.WithError(err).WithField("document_id", documentID).Warn("Failed to mark document processing")
		}
	}

	raw, err := p.extractor.Extract(ctx, text, docType, structType)
	if err != nil {
		extractionTotal.WithLabelValues("error").Inc()
		extractionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		p.logger.WithError(err).WithField("document_id", documentID).Error("Extraction failed")

		if updateStatus {
			if terr := p.tracker.UpdateStatus(ctx, documentID, StatusFailed, nil, err.Error()); terr != nil {
				p.logger.WithError(terr).WithField("document_id", documentID).Warn("Failed to mark document failed")
			}
		}
		return nil, errors.Wrapf(err, "extraction failed for %s", documentID)
	}

	stakeholders := p.normalizer.Stakeholders(rawList(raw, "stakeholders"), documentID)
	deliverables := p.normalizer.Deliverables(rawList(raw, "deliverables"), documentID)
	deadlines := p.normalizer.Deadlines(rawList(raw, "deadlines"), documentID)
	financials := p.normalizer.Financials(rawList(raw, "financials"), documentID)

	docConfidence := confidenceValue(raw, "overall_confidence")
	overall := OverallConfidence(docConfidence, stakeholders, deliverables, deadlines, financials)
	needsReview, reasons := AssessReview(overall, stakeholders, deliverables, deadlines, financials, p.thresholds)

	result := &Result{
		DocumentID:          documentID,
		DocumentType:        docType,
		StructureType:       structType,
		OverallConfidence:   overall,
		Stakeholders:        stakeholders,
		Deliverables:        deliverables,
		Deadlines:           deadlines,
		Financials:          financials,
		RawTextPreview:      preview(text, 500),
		ExtractionTimestamp: time.Now().UTC(),
		ProcessingTimeMS:    time.Since(start).Milliseconds(),
		NeedsReview:         needsReview,
		ReviewReasons:       reasons,
	}

	if updateStatus {
		final := StatusCompleted
		if needsReview {
			final = StatusReviewRequired
		}
		if err := p.tracker.UpdateStatus(ctx, documentID, final, &overall, ""); err != nil {
			p.logger.WithError(err).WithField("document_id", documentID).Warn("Failed to record final status")
		}
	}

	extractionTotal.WithLabelValues("success").Inc()
	extractionDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	extractedEntities.WithLabelValues("stakeholder").Add(float64(len(stakeholders)))
	extractedEntities.WithLabelValues("deliverable").Add(float64(len(deliverables)))
	extractedEntities.WithLabelValues("deadline").Add(float64(len(deadlines)))
	extractedEntities.WithLabelValues("financial").Add(float64(len(financials)))

	for _, fn := range p.onResult {
		fn(result)
	}

	p.logger.WithFields(logrus.Fields{
		"document_id":     documentID,
		"confidence":      overall,
		"review_required": needsReview,
		"time_ms":         result.ProcessingTimeMS,
	}).Info("Extraction complete")

	return result, nil
}

// rawList pulls a list of JSON objects out of the backend payload,
// tolerating a missing key or a wrong-typed value.
func rawList(raw map[string]interface{}, key string) []map[string]interface{} {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func confidenceValue(raw map[string]interface{}, key string) float64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0.5
	}
	if f, ok := v.(float64); ok {
		return f
	}
	return 0.5
}

func preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
