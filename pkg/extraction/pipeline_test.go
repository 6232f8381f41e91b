package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	payload map[string]interface{}
	err     error
	gotType DocumentType
	gotText string
}

func (f *fakeExtractor) Extract(_ context.Context, text string, docType DocumentType, _ StructureType) (map[string]interface{}, error) {
	f.gotType = docType
	f.gotText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type statusCall struct {
	documentID string
	status     Status
	confidence *float64
	errorMsg   string
}

type fakeTracker struct {
	calls []statusCall
	err   error
}

func (f *fakeTracker) UpdateStatus(_ context.Context, documentID string, status Status, confidence *float64, errorMessage string) error {
	f.calls = append(f.calls, statusCall{documentID, status, confidence, errorMessage})
	return f.err
}

func TestPipelineExtract(t *testing.T) {
	t.Run("completed flow", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{
			"overall_confidence": 0.9,
			"stakeholders": []interface{}{
				map[string]interface{}{"name": "Jane Smith", "confidence": 0.9},
			},
			"deliverables": []interface{}{
				map[string]interface{}{"deliverable_name": "Final report", "confidence": 0.9},
			},
		}}
		tracker := &fakeTracker{}
		p := NewPipeline(extractor, tracker, DefaultThresholds())

		result, err := p.Extract(context.Background(), "doc-1", "some text", DocumentTypeSOW, StructureSemiStructured, true)
		require.NoError(t, err)

		assert.Equal(t, "doc-1", result.DocumentID)
		assert.Equal(t, DocumentTypeSOW, result.DocumentType)
		assert.InDelta(t, 0.9, result.OverallConfidence, 1e-9)
		assert.False(t, result.NeedsReview)
		assert.Empty(t, result.ReviewReasons)
		assert.Len(t, result.Stakeholders, 1)
		assert.Len(t, result.Deliverables, 1)

		require.Len(t, tracker.calls, 2)
		assert.Equal(t, StatusProcessing, tracker.calls[0].status)
		assert.Equal(t, StatusCompleted, tracker.calls[1].status)
		require.NotNil(t, tracker.calls[1].confidence)
		assert.InDelta(t, 0.9, *tracker.calls[1].confidence, 1e-9)
	})

	t.Run("review required flow", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{
			"overall_confidence": 0.3,
		}}
		tracker := &fakeTracker{}
		p := NewPipeline(extractor, tracker, DefaultThresholds())

		result, err := p.Extract(context.Background(), "doc-2", "text", "", "", true)
		require.NoError(t, err)

		assert.True(t, result.NeedsReview)
		assert.Equal(t, DocumentTypeOther, result.DocumentType)
		assert.Equal(t, StructureUnstructured, result.StructureType)
		assert.Equal(t, []string{
			"Overall confidence (0.30) below threshold (0.5)",
			"No stakeholders extracted",
			"No deliverables or deadlines extracted",
		}, result.ReviewReasons)

		require.Len(t, tracker.calls, 2)
		assert.Equal(t, StatusReviewRequired, tracker.calls[1].status)
	})

	t.Run("backend failure marks document failed and propagates", func(t *testing.T) {
		extractor := &fakeExtractor{err: errors.New("quota exceeded")}
		tracker := &fakeTracker{}
		p := NewPipeline(extractor, tracker, DefaultThresholds())

		result, err := p.Extract(context.Background(), "doc-3", "text", "", "", true)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "quota exceeded")

		require.Len(t, tracker.calls, 2)
		assert.Equal(t, StatusProcessing, tracker.calls[0].status)
		assert.Equal(t, StatusFailed, tracker.calls[1].status)
		assert.Equal(t, "quota exceeded", tracker.calls[1].errorMsg)
	})

	t.Run("status updates disabled", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{"overall_confidence": 0.9}}
		tracker := &fakeTracker{}
		p := NewPipeline(extractor, tracker, DefaultThresholds())

		_, err := p.Extract(context.Background(), "doc-4", "text", "", "", false)
		require.NoError(t, err)
		assert.Empty(t, tracker.calls)
	})

	t.Run("tracker errors do not fail the run", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{"overall_confidence": 0.9}}
		tracker := &fakeTracker{err: errors.New("bigquery down")}
		p := NewPipeline(extractor, tracker, DefaultThresholds())

		result, err := p.Extract(context.Background(), "doc-5", "text", "", "", true)
		require.NoError(t, err)
		require.NotNil(t, result)
	})

	t.Run("nil tracker is tolerated", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{"overall_confidence": 0.9}}
		p := NewPipeline(extractor, nil, DefaultThresholds())

		_, err := p.Extract(context.Background(), "doc-6", "text", "", "", true)
		require.NoError(t, err)
	})

	t.Run("preview is capped at 500 characters", func(t *testing.T) {
		extractor := &fakeExtractor{payload: map[string]interface{}{"overall_confidence": 0.9}}
		p := NewPipeline(extractor, nil, DefaultThresholds())

		long := make([]byte, 1200)
		for i := range long {
			long[i] = 'x'
		}
		result, err := p.Extract(context.Background(), "doc-7", string(long), "", "", false)
		require.NoError(t, err)
		assert.Len(t, result.RawTextPreview, 500)
	})
}
