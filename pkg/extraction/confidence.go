package extraction

import "fmt"

// Weights for blending the model's self-reported confidence with the
// average of per-entity confidences.
const (
	documentConfidenceWeight = 0.4
	entityConfidenceWeight   = 0.6
)

// OverallConfidence combines the model's document-level confidence with
// the mean of all entity confidences. With no entities the document
// confidence stands alone. The result is always clamped to [0, 1].
func OverallConfidence(documentConfidence float64, stakeholders []Stakeholder, deliverables []Deliverable, deadlines []Deadline, financials []Financial) float64 {
	var sum float64
	var count int
	for _, e := range stakeholders {
		sum += e.Confidence
		count++
	}
	for _, e := range deliverables {
		sum += e.Confidence
		count++
	}
	for _, e := range deadlines {
		sum += e.Confidence
		count++
	}
	for _, e := range financials {
		sum += e.Confidence
		count++
	}

	if count == 0 {
		return clamp(documentConfidence)
	}

	entityAvg := sum / float64(count)
	return clamp(documentConfidence*documentConfidenceWeight + entityAvg*entityConfidenceWeight)
}

// AssessReview applies the review routing rules and returns whether the
// document needs manual review plus the human-readable reasons.
//
// Low overall confidence and low-confidence entities force review.
// Missing stakeholders or missing deliverables-and-deadlines only add
// advisory reasons without forcing review on their own.
func AssessReview(overallConfidence float64, stakeholders []Stakeholder, deliverables []Deliverable, deadlines []Deadline, financials []Financial, thresholds Thresholds) (bool, []string) {
	reasons := []string{}
	needsReview := false

	if overallConfidence < thresholds.ReviewRequired {
		needsReview = true
		reasons = append(reasons, fmt.Sprintf(
			"Overall confidence (%.2f) below threshold (%g)",
			overallConfidence, thresholds.ReviewRequired,
		))
	}

	lowConfidenceCount := 0
	for _, e := range stakeholders {
		if e.Confidence < thresholds.LowConfidence {
			lowConfidenceCount++
		}
	}
	for _, e := range deliverables {
		if e.Confidence < thresholds.LowConfidence {
			lowConfidenceCount++
		}
	}
	for _, e := range deadlines {
		if e.Confidence < thresholds.LowConfidence {
			lowConfidenceCount++
		}
	}
	for _, e := range financials {
		if e.Confidence < thresholds.LowConfidence {
			lowConfidenceCount++
		}
	}
	if lowConfidenceCount > 0 {
		needsReview = true
		reasons = append(reasons, fmt.Sprintf(
			"%d entity/entities with confidence below %g",
			lowConfidenceCount, thresholds.LowConfidence,
		))
	}

	if len(stakeholders) == 0 {
		reasons = append(reasons, "No stakeholders extracted")
	}
	if len(deliverables) == 0 && len(deadlines) == 0 {
		reasons = append(reasons, "No deliverables or deadlines extracted")
	}

	return needsReview, reasons
}
