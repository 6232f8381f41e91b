package annotation

import (
	"context"
	"time"

	"github.com/athapong/docflow/pkg/extraction"
)

// entityTypes fixes the evaluation order.
var entityTypes = []string{TypeStakeholder, TypeDeliverable, TypeDeadline, TypeFinancial}

// Metrics is a precision/recall/F1 triple.
type Metrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

// TypeMetrics are the count-based metrics for one entity type.
type TypeMetrics struct {
	Metrics
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Evaluation is a model-versus-ground-truth performance report.
type Evaluation struct {
	DocumentID  string                 `json:"document_id"`
	Overall     Metrics                `json:"overall_metrics"`
	ByType      map[string]TypeMetrics `json:"entity_type_metrics"`
	EvaluatedAt time.Time              `json:"evaluation_timestamp"`
}

// Evaluate scores a model extraction against ground truth annotations.
//
// Counting is per entity type and count based: matched pairs are the
// smaller of the two counts, not aligned entities. Overall precision
// and recall are unweighted means over the four types, and the overall
// F1 is recomputed from those means rather than averaged.
func (s *Service) Evaluate(ctx context.Context, documentID string, result *extraction.Result, groundTruth []Annotation) (*Evaluation, error) {
	gtCounts := make(map[string]int)
	for _, a := range groundTruth {
		gtCounts[a.EntityType]++
	}

	modelCounts := map[string]int{
		TypeStakeholder: len(result.Stakeholders),
		TypeDeliverable: len(result.Deliverables),
		TypeDeadline:    len(result.Deadlines),
		TypeFinancial:   len(result.Financials),
	}

	byType := make(map[string]TypeMetrics, len(entityTypes))
	var precisionSum, recallSum float64

	for _, entityType := range entityTypes {
		m := countMetrics(modelCounts[entityType], gtCounts[entityType])
		byType[entityType] = m
		precisionSum += m.Precision
		recallSum += m.Recall
	}

	overallPrecision := precisionSum / float64(len(entityTypes))
	overallRecall := recallSum / float64(len(entityTypes))

	return &Evaluation{
		DocumentID: documentID,
		Overall: Metrics{
			Precision: overallPrecision,
			Recall:    overallRecall,
			F1Score:   f1(overallPrecision, overallRecall),
		},
		ByType:      byType,
		EvaluatedAt: time.Now().UTC(),
	}, nil
}

func countMetrics(modelCount, gtCount int) TypeMetrics {
	tp := modelCount
	if gtCount < tp {
		tp = gtCount
	}
	fp := modelCount - gtCount
	if fp < 0 {
		fp = 0
	}
	fn := gtCount - modelCount
	if fn < 0 {
		fn = 0
	}

	precision := 0.0
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}

	return TypeMetrics{
		Metrics: Metrics{
			Precision: precision,
			Recall:    recall,
			F1Score:   f1(precision, recall),
		},
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
	}
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}
