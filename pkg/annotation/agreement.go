package annotation

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Comparison is the pairwise agreement between two annotators over one
// entity.
type Comparison struct {
	EntityID       string   `json:"entity_id"`
	DocumentID     string   `json:"document_id"`
	EntityType     string   `json:"entity_type"`
	Annotator1ID   string   `json:"annotator1_id"`
	Annotator2ID   string   `json:"annotator2_id"`
	AgreementScore float64  `json:"agreement_score"`
	Differences    []string `json:"differences"`
}

// agreementFields are the per-type fields that count toward the
// agreement score. Fields outside these sets only show up in the
// difference listing.
var agreementFields = map[string][]string{
	TypeStakeholder: {"name", "stakeholder_type", "role", "organization"},
	TypeDeliverable: {"deliverable_name", "description", "milestone_id"},
	TypeDeadline:    {"deadline_date", "deadline_type", "is_firm"},
	TypeFinancial:   {"amount", "currency", "financial_type", "due_date"},
}

// InterAnnotatorAgreement compares every pair of annotators that
// labeled the given entity. Fewer than two annotators yields no
// comparisons.
func (s *Service) InterAnnotatorAgreement(ctx context.Context, documentID, entityID, entityType string) ([]Comparison, error) {
	all, err := s.store.LoadByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var annotations []Annotation
	for _, a := range all {
		if a.EntityID == entityID && a.EntityType == entityType {
			annotations = append(annotations, a)
		}
	}

	if len(annotations) < 2 {
		return []Comparison{}, nil
	}

	comparisons := []Comparison{}
	for i, a1 := range annotations {
		for _, a2 := range annotations[i+1:] {
			comparisons = append(comparisons, Comparison{
				EntityID:       entityID,
				DocumentID:     documentID,
				EntityType:     entityType,
				Annotator1ID:   a1.AnnotatorID,
				Annotator2ID:   a2.AnnotatorID,
				AgreementScore: agreementScore(a1.AnnotatedValue, a2.AnnotatedValue, entityType),
				Differences:    findDifferences(a1.AnnotatedValue, a2.AnnotatedValue),
			})
		}
	}

	return comparisons, nil
}

// agreementScore is the fraction of the type's scored fields on which
// both values agree exactly. Unknown entity types score zero.
func agreementScore(value1, value2 map[string]interface{}, entityType string) float64 {
	fields, ok := agreementFields[entityType]
	if !ok {
		return 0.0
	}

	matches := 0
	for _, field := range fields {
		// DeepEqual: annotated values come in from JSON and may hold
		// lists or nested objects, which == cannot compare.
		if reflect.DeepEqual(value1[field], value2[field]) {
			matches++
		}
	}
	return float64(matches) / float64(len(fields))
}

// findDifferences lists every key, from either value, whose two sides
// differ. Keys are sorted for stable output.
func findDifferences(value1, value2 map[string]interface{}) []string {
	allKeys := mapset.NewSet[string]()
	for key := range value1 {
		allKeys.Add(key)
	}
	for key := range value2 {
		allKeys.Add(key)
	}

	keys := allKeys.ToSlice()
	sort.Strings(keys)

	differences := []string{}
	for _, key := range keys {
		v1 := value1[key]
		v2 := value2[key]
		if !reflect.DeepEqual(v1, v2) {
			differences = append(differences, fmt.Sprintf("%s: '%v' vs '%v'", key, v1, v2))
		}
	}
	return differences
}
