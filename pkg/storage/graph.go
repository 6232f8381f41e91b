package storage

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/athapong/docflow/pkg/extraction"
)

// GraphExporter mirrors extraction results into Neo4j as a
// document-to-entity graph for dashboard exploration. It is an
// optional sink: the service runs fine without it.
type GraphExporter struct {
	driver neo4j.Driver
	logger *logrus.Logger
}

// NewGraphExporter connects to Neo4j with basic auth.
func NewGraphExporter(uri, username, password string) (*GraphExporter, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &GraphExporter{
		driver: driver,
		logger: logger,
	}, nil
}

// Close releases the driver.
func (g *GraphExporter) Close() error {
	if g.driver != nil {
		return g.driver.Close()
	}
	return nil
}

// ExportResult writes one extraction result as a Document node plus an
// entity node and HAS_ENTITY edge per extracted entity. The document
// node is merged so reprocessing does not duplicate it.
func (g *GraphExporter) ExportResult(result *extraction.Result) error {
	session := g.driver.NewSession(neo4j.SessionConfig{})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		_, err := tx.Run(`
			MERGE (d:Document {id: $id})
			SET d.document_type = $document_type,
				d.structure_type = $structure_type,
				d.overall_confidence = $overall_confidence,
				d.needs_review = $needs_review,
				d.updated_at = datetime()
		`, map[string]interface{}{
			"id":                 result.DocumentID,
			"document_type":      string(result.DocumentType),
			"structure_type":     string(result.StructureType),
			"overall_confidence": result.OverallConfidence,
			"needs_review":       result.NeedsReview,
		})
		if err != nil {
			return nil, err
		}

		for _, e := range result.Stakeholders {
			if err := addEntityNode(tx, result.DocumentID, e.EntityID, "Stakeholder", e.Name, e.Confidence); err != nil {
				return nil, err
			}
		}
		for _, e := range result.Deliverables {
			if err := addEntityNode(tx, result.DocumentID, e.EntityID, "Deliverable", e.DeliverableName, e.Confidence); err != nil {
				return nil, err
			}
		}
		for _, e := range result.Deadlines {
			label := e.DeadlineDate.Format("2006-01-02")
			if err := addEntityNode(tx, result.DocumentID, e.EntityID, "Deadline", label, e.Confidence); err != nil {
				return nil, err
			}
		}
		for _, e := range result.Financials {
			label := e.FinancialType
			if e.Amount != nil {
				label = fmt.Sprintf("%s %.2f %s", e.FinancialType, *e.Amount, e.Currency)
			}
			if err := addEntityNode(tx, result.DocumentID, e.EntityID, "Financial", label, e.Confidence); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"document_id": result.DocumentID,
		"entities":    result.EntityCount(),
	}).Info("Exported extraction result to graph")
	return nil
}

func addEntityNode(tx neo4j.Transaction, documentID, entityID, entityType, label string, confidence float64) error {
	_, err := tx.Run(`
		MATCH (d:Document {id: $document_id})
		MERGE (e:Entity {id: $id})
		SET e.type = $type,
			e.label = $label,
			e.confidence = $confidence,
			e.updated_at = datetime()
		MERGE (d)-[:HAS_ENTITY]->(e)
	`, map[string]interface{}{
		"document_id": documentID,
		"id":          entityID,
		"type":        entityType,
		"label":       label,
		"confidence":  confidence,
	})
	return err
}
