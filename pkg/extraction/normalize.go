package extraction

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// dateLayout is the only accepted wire format for dates.
const dateLayout = "2006-01-02"

// Normalizer converts the raw JSON maps returned by an LLM backend into
// typed entities. Conversion is per-record fault tolerant: a malformed
// record is logged and skipped, it never aborts the batch.
type Normalizer struct {
	logger *logrus.Logger
}

// NewNormalizer creates a normalizer logging through the given logger.
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Stakeholders converts raw stakeholder records for a document.
func (n *Normalizer) Stakeholders(raw []map[string]interface{}, documentID string) []Stakeholder {
	entities := make([]Stakeholder, 0, len(raw))
	for _, r := range raw {
		e, err := n.stakeholder(r, documentID)
		if err != nil {
			n.logger.WithError(err).Warn("Failed to convert stakeholder")
			continue
		}
		entities = append(entities, e)
	}
	return entities
}

func (n *Normalizer) stakeholder(raw map[string]interface{}, documentID string) (Stakeholder, error) {
	fields, err := stringFields(raw, "stakeholder_type", "name", "role", "organization", "email", "phone")
	if err != nil {
		return Stakeholder{}, err
	}
	return Stakeholder{
		EntityID:        uuid.New().String(),
		DocumentID:      documentID,
		StakeholderType: defaultStr(fields["stakeholder_type"], "contact"),
		Name:            fields["name"],
		Role:            fields["role"],
		Organization:    fields["organization"],
		Email:           fields["email"],
		Phone:           fields["phone"],
		Confidence:      confidenceField(raw),
		ExtractedAt:     time.Now().UTC(),
	}, nil
}

// Deliverables converts raw deliverable records for a document.
func (n *Normalizer) Deliverables(raw []map[string]interface{}, documentID string) []Deliverable {
	entities := make([]Deliverable, 0, len(raw))
	for _, r := range raw {
		e, err := n.deliverable(r, documentID)
		if err != nil {
			n.logger.WithError(err).Warn("Failed to convert deliverable")
			continue
		}
		entities = append(entities, e)
	}
	return entities
}

func (n *Normalizer) deliverable(raw map[string]interface{}, documentID string) (Deliverable, error) {
	fields, err := stringFields(raw, "deliverable_name", "description", "acceptance_criteria", "milestone_id")
	if err != nil {
		return Deliverable{}, err
	}
	deps, err := stringSliceField(raw, "dependencies")
	if err != nil {
		return Deliverable{}, err
	}
	return Deliverable{
		EntityID:           uuid.New().String(),
		DocumentID:         documentID,
		DeliverableName:    fields["deliverable_name"],
		Description:        fields["description"],
		AcceptanceCriteria: fields["acceptance_criteria"],
		MilestoneID:        fields["milestone_id"],
		Dependencies:       deps,
		Confidence:         confidenceField(raw),
		ExtractedAt:        time.Now().UTC(),
	}, nil
}

// Deadlines converts raw deadline records for a document. A record whose
// deadline_date is missing or not YYYY-MM-DD is dropped.
func (n *Normalizer) Deadlines(raw []map[string]interface{}, documentID string) []Deadline {
	entities := make([]Deadline, 0, len(raw))
	for _, r := range raw {
		e, ok, err := n.deadline(r, documentID)
		if err != nil {
			n.logger.WithError(err).Warn("Failed to convert deadline")
			continue
		}
		if !ok {
			continue
		}
		entities = append(entities, e)
	}
	return entities
}

func (n *Normalizer) deadline(raw map[string]interface{}, documentID string) (Deadline, bool, error) {
	fields, err := stringFields(raw, "deadline_type", "deadline_date", "description", "associated_deliverable")
	if err != nil {
		return Deadline{}, false, err
	}
	if fields["deadline_date"] == "" {
		return Deadline{}, false, nil
	}
	date, err := time.Parse(dateLayout, fields["deadline_date"])
	if err != nil {
		n.logger.WithField("deadline_date", fields["deadline_date"]).Warn("Invalid date format")
		return Deadline{}, false, nil
	}
	return Deadline{
		EntityID:              uuid.New().String(),
		DocumentID:            documentID,
		DeadlineType:          defaultStr(fields["deadline_type"], "milestone"),
		DeadlineDate:          date,
		Description:           fields["description"],
		AssociatedDeliverable: fields["associated_deliverable"],
		IsFirm:                boolField(raw, "is_firm", true),
		Confidence:            confidenceField(raw),
		ExtractedAt:           time.Now().UTC(),
	}, true, nil
}

// Financials converts raw financial records for a document. An invalid
// due_date clears the field but keeps the record.
func (n *Normalizer) Financials(raw []map[string]interface{}, documentID string) []Financial {
	entities := make([]Financial, 0, len(raw))
	for _, r := range raw {
		e, err := n.financial(r, documentID)
		if err != nil {
			n.logger.WithError(err).Warn("Failed to convert financial")
			continue
		}
		entities = append(entities, e)
	}
	return entities
}

func (n *Normalizer) financial(raw map[string]interface{}, documentID string) (Financial, error) {
	fields, err := stringFields(raw, "financial_type", "currency", "description", "payment_terms", "due_date")
	if err != nil {
		return Financial{}, err
	}
	amount, err := floatField(raw, "amount")
	if err != nil {
		return Financial{}, err
	}

	var dueDate *time.Time
	if fields["due_date"] != "" {
		if d, err := time.Parse(dateLayout, fields["due_date"]); err == nil {
			dueDate = &d
		} else {
			n.logger.WithField("due_date", fields["due_date"]).Warn("Invalid date format")
		}
	}

	return Financial{
		EntityID:      uuid.New().String(),
		DocumentID:    documentID,
		FinancialType: defaultStr(fields["financial_type"], "payment"),
		Amount:        amount,
		Currency:      defaultStr(fields["currency"], "USD"),
		Description:   fields["description"],
		PaymentTerms:  fields["payment_terms"],
		DueDate:       dueDate,
		Confidence:    confidenceField(raw),
		ExtractedAt:   time.Now().UTC(),
	}, nil
}

// stringFields pulls the named keys as strings. A present key holding a
// non-string, non-nil value makes the whole record malformed.
func stringFields(raw map[string]interface{}, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			out[key] = ""
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q has non-string value %v", key, v)
		}
		out[key] = s
	}
	return out, nil
}

func stringSliceField(raw map[string]interface{}, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q is not a list", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q contains a non-string element", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func floatField(raw map[string]interface{}, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q is not numeric: %q", key, n)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has non-numeric value %v", key, v)
	}
}

func boolField(raw map[string]interface{}, key string, def bool) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// confidenceField reads a confidence score, defaulting to 0.5 when the
// value is absent or unparseable, and clamping to [0, 1].
func confidenceField(raw map[string]interface{}) float64 {
	v, ok := raw["confidence"]
	if !ok || v == nil {
		return 0.5
	}
	switch c := v.(type) {
	case float64:
		return clamp(c)
	case int:
		return clamp(float64(c))
	case string:
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			return clamp(f)
		}
		return 0.5
	default:
		return 0.5
	}
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
