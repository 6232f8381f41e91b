// Package annotation manages ground truth labels for extracted
// entities: storage, inter-annotator agreement and model evaluation.
package annotation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entity type names accepted by the annotation engine.
const (
	TypeStakeholder = "stakeholder"
	TypeDeliverable = "deliverable"
	TypeDeadline    = "deadline"
	TypeFinancial   = "financial"
)

// Annotation is one annotator's ground truth record for an entity.
type Annotation struct {
	EntityID       string                 `json:"entity_id"`
	DocumentID     string                 `json:"document_id"`
	EntityType     string                 `json:"entity_type"`
	AnnotatedValue map[string]interface{} `json:"annotated_value"`
	AnnotatorID    string                 `json:"annotator_id"`
	AnnotatedAt    time.Time              `json:"annotation_timestamp"`
	Confidence     float64                `json:"confidence"`
	Notes          string                 `json:"notes,omitempty"`
}

// Store persists annotations. Save replaces any earlier annotation by
// the same annotator for the same entity in the same document.
type Store interface {
	Save(ctx context.Context, a Annotation) error
	LoadByDocument(ctx context.Context, documentID string) ([]Annotation, error)
}

// MemoryStore keeps annotations in process memory, safe for concurrent
// use. Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byDocument map[string][]Annotation
}

// NewMemoryStore creates an empty in-memory annotation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDocument: make(map[string][]Annotation)}
}

func (m *MemoryStore) Save(_ context.Context, a Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.byDocument[a.DocumentID]
	kept := make([]Annotation, 0, len(existing)+1)
	for _, prev := range existing {
		if prev.EntityID == a.EntityID && prev.AnnotatorID == a.AnnotatorID {
			continue
		}
		kept = append(kept, prev)
	}
	m.byDocument[a.DocumentID] = append(kept, a)
	return nil
}

func (m *MemoryStore) LoadByDocument(_ context.Context, documentID string) ([]Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.byDocument[documentID]
	out := make([]Annotation, len(stored))
	copy(out, stored)
	return out, nil
}

// Service coordinates annotation storage, agreement scoring and model
// evaluation.
type Service struct {
	store  Store
	logger *logrus.Logger
}

// NewService wires an annotation service around a store.
func NewService(store Store) *Service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Service{
		store:  store,
		logger: logger,
	}
}

// Add records an annotation, stamping the annotation time. A zero
// confidence is taken as the annotator's full confidence.
func (s *Service) Add(ctx context.Context, a Annotation) (Annotation, error) {
	if a.Confidence == 0 {
		a.Confidence = 1.0
	}
	a.AnnotatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, a); err != nil {
		return Annotation{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":  a.DocumentID,
		"entity_id":    a.EntityID,
		"annotator_id": a.AnnotatorID,
	}).Info("Added annotation")

	return a, nil
}

// ForDocument returns all annotations recorded for a document.
func (s *Service) ForDocument(ctx context.Context, documentID string) ([]Annotation, error) {
	return s.store.LoadByDocument(ctx, documentID)
}
