package extraction

import (
	"os"
	"strconv"
	"time"
)

// DocumentType classifies the business document being processed.
type DocumentType string

const (
	DocumentTypeSOW       DocumentType = "sow"
	DocumentTypeContract  DocumentType = "contract"
	DocumentTypeEmail     DocumentType = "email"
	DocumentTypeAmendment DocumentType = "amendment"
	DocumentTypeMSA       DocumentType = "msa"
	DocumentTypeOther     DocumentType = "other"
)

// StructureType describes how much machine-readable structure a document has.
type StructureType string

const (
	StructureStructured     StructureType = "structured"
	StructureSemiStructured StructureType = "semi_structured"
	StructureUnstructured   StructureType = "unstructured"
)

// Status is the processing lifecycle state of a document.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusReviewRequired Status = "review_required"
	StatusFailed         Status = "failed"
)

// Stakeholder is a person or organization referenced by a document.
type Stakeholder struct {
	EntityID        string    `json:"entity_id"`
	DocumentID      string    `json:"document_id"`
	StakeholderType string    `json:"stakeholder_type"`
	Name            string    `json:"name"`
	Role            string    `json:"role,omitempty"`
	Organization    string    `json:"organization,omitempty"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Confidence      float64   `json:"confidence"`
	ExtractedAt     time.Time `json:"extraction_timestamp"`
}

// Deliverable is a product, service or outcome a document commits to.
type Deliverable struct {
	EntityID           string    `json:"entity_id"`
	DocumentID         string    `json:"document_id"`
	DeliverableName    string    `json:"deliverable_name"`
	Description        string    `json:"description,omitempty"`
	AcceptanceCriteria string    `json:"acceptance_criteria,omitempty"`
	MilestoneID        string    `json:"milestone_id,omitempty"`
	Dependencies       []string  `json:"dependencies,omitempty"`
	Confidence         float64   `json:"confidence"`
	ExtractedAt        time.Time `json:"extraction_timestamp"`
}

// Deadline is a dated commitment. DeadlineDate is always set; records
// without a parseable date never survive normalization.
type Deadline struct {
	EntityID              string    `json:"entity_id"`
	DocumentID            string    `json:"document_id"`
	DeadlineType          string    `json:"deadline_type"`
	DeadlineDate          time.Time `json:"deadline_date"`
	Description           string    `json:"description,omitempty"`
	AssociatedDeliverable string    `json:"associated_deliverable,omitempty"`
	IsFirm                bool      `json:"is_firm"`
	Confidence            float64   `json:"confidence"`
	ExtractedAt           time.Time `json:"extraction_timestamp"`
}

// Financial is a monetary term. Amount and DueDate are nil when the
// document does not state them.
type Financial struct {
	EntityID      string     `json:"entity_id"`
	DocumentID    string     `json:"document_id"`
	FinancialType string     `json:"financial_type"`
	Amount        *float64   `json:"amount"`
	Currency      string     `json:"currency"`
	Description   string     `json:"description,omitempty"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Confidence    float64    `json:"confidence"`
	ExtractedAt   time.Time  `json:"extraction_timestamp"`
}

// Result is the full outcome of one extraction run over a document.
type Result struct {
	DocumentID          string        `json:"document_id"`
	DocumentType        DocumentType  `json:"document_type"`
	StructureType       StructureType `json:"structure_type"`
	OverallConfidence   float64       `json:"overall_confidence"`
	Stakeholders        []Stakeholder `json:"stakeholders"`
	Deliverables        []Deliverable `json:"deliverables"`
	Deadlines           []Deadline    `json:"deadlines"`
	Financials          []Financial   `json:"financials"`
	RawTextPreview      string        `json:"raw_text_preview,omitempty"`
	ExtractionTimestamp time.Time     `json:"extraction_timestamp"`
	ProcessingTimeMS    int64         `json:"processing_time_ms"`
	NeedsReview         bool          `json:"needs_review"`
	ReviewReasons       []string      `json:"review_reasons"`
}

// EntityCount returns the total number of entities across all four types.
func (r *Result) EntityCount() int {
	return len(r.Stakeholders) + len(r.Deliverables) + len(r.Deadlines) + len(r.Financials)
}

// Thresholds control when an extraction is routed to manual review.
type Thresholds struct {
	// ReviewRequired flags the whole document when overall confidence
	// falls below it.
	ReviewRequired float64
	// LowConfidence flags the document when any single entity falls
	// below it.
	LowConfidence float64
}

// DefaultThresholds returns the stock review thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReviewRequired: 0.5,
		LowConfidence:  0.7,
	}
}

// ThresholdsFromEnv reads REVIEW_REQUIRED_THRESHOLD and
// LOW_CONFIDENCE_THRESHOLD, falling back to the defaults for unset or
// unparseable values.
func ThresholdsFromEnv() Thresholds {
	t := DefaultThresholds()
	if v := os.Getenv("REVIEW_REQUIRED_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			t.ReviewRequired = f
		}
	}
	if v := os.Getenv("LOW_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			t.LowConfidence = f
		}
	}
	return t
}

func clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
