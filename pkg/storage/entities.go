package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/athapong/docflow/pkg/extraction"
)

type stakeholderRow struct {
	EntityID        string              `bigquery:"entity_id"`
	DocumentID      string              `bigquery:"document_id"`
	StakeholderType string              `bigquery:"stakeholder_type"`
	Name            string              `bigquery:"name"`
	Role            bigquery.NullString `bigquery:"role"`
	Organization    bigquery.NullString `bigquery:"organization"`
	Email           bigquery.NullString `bigquery:"email"`
	Phone           bigquery.NullString `bigquery:"phone"`
	Confidence      float64             `bigquery:"confidence"`
	ExtractedAt     time.Time           `bigquery:"extraction_timestamp"`
	CreatedAt       time.Time           `bigquery:"created_at"`
}

type deliverableRow struct {
	EntityID           string              `bigquery:"entity_id"`
	DocumentID         string              `bigquery:"document_id"`
	DeliverableName    string              `bigquery:"deliverable_name"`
	Description        bigquery.NullString `bigquery:"description"`
	AcceptanceCriteria bigquery.NullString `bigquery:"acceptance_criteria"`
	MilestoneID        bigquery.NullString `bigquery:"milestone_id"`
	Dependencies       []string            `bigquery:"dependencies"`
	Confidence         float64             `bigquery:"confidence"`
	ExtractedAt        time.Time           `bigquery:"extraction_timestamp"`
	CreatedAt          time.Time           `bigquery:"created_at"`
}

type deadlineRow struct {
	EntityID              string              `bigquery:"entity_id"`
	DocumentID            string              `bigquery:"document_id"`
	DeadlineType          string              `bigquery:"deadline_type"`
	DeadlineDate          bigquery.NullDate   `bigquery:"deadline_date"`
	Description           bigquery.NullString `bigquery:"description"`
	AssociatedDeliverable bigquery.NullString `bigquery:"associated_deliverable"`
	IsFirm                bool                `bigquery:"is_firm"`
	Confidence            float64             `bigquery:"confidence"`
	ExtractedAt           time.Time           `bigquery:"extraction_timestamp"`
	CreatedAt             time.Time           `bigquery:"created_at"`
}

type financialRow struct {
	EntityID      string               `bigquery:"entity_id"`
	DocumentID    string               `bigquery:"document_id"`
	FinancialType string               `bigquery:"financial_type"`
	Amount        bigquery.NullFloat64 `bigquery:"amount"`
	Currency      string               `bigquery:"currency"`
	Description   bigquery.NullString  `bigquery:"description"`
	PaymentTerms  bigquery.NullString  `bigquery:"payment_terms"`
	DueDate       bigquery.NullDate    `bigquery:"due_date"`
	Confidence    float64              `bigquery:"confidence"`
	ExtractedAt   time.Time            `bigquery:"extraction_timestamp"`
	CreatedAt     time.Time            `bigquery:"created_at"`
}

// LoadExtractionResult writes all entities of a result into their
// per-type tables. Empty lists are skipped.
func (s *BigQueryStore) LoadExtractionResult(ctx context.Context, result *extraction.Result) error {
	now := time.Now().UTC()

	if len(result.Stakeholders) > 0 {
		rows := make([]stakeholderRow, 0, len(result.Stakeholders))
		for _, e := range result.Stakeholders {
			rows = append(rows, stakeholderRow{
				EntityID:        e.EntityID,
				DocumentID:      result.DocumentID,
				StakeholderType: e.StakeholderType,
				Name:            e.Name,
				Role:            nullString(e.Role),
				Organization:    nullString(e.Organization),
				Email:           nullString(e.Email),
				Phone:           nullString(e.Phone),
				Confidence:      e.Confidence,
				ExtractedAt:     e.ExtractedAt,
				CreatedAt:       now,
			})
		}
		if err := s.inserter(tableStakeholders).Put(ctx, rows); err != nil {
			return errors.Wrapf(err, "insert stakeholders for %s", result.DocumentID)
		}
	}

	if len(result.Deliverables) > 0 {
		rows := make([]deliverableRow, 0, len(result.Deliverables))
		for _, e := range result.Deliverables {
			rows = append(rows, deliverableRow{
				EntityID:           e.EntityID,
				DocumentID:         result.DocumentID,
				DeliverableName:    e.DeliverableName,
				Description:        nullString(e.Description),
				AcceptanceCriteria: nullString(e.AcceptanceCriteria),
				MilestoneID:        nullString(e.MilestoneID),
				Dependencies:       e.Dependencies,
				Confidence:         e.Confidence,
				ExtractedAt:        e.ExtractedAt,
				CreatedAt:          now,
			})
		}
		if err := s.inserter(tableDeliverables).Put(ctx, rows); err != nil {
			return errors.Wrapf(err, "insert deliverables for %s", result.DocumentID)
		}
	}

	if len(result.Deadlines) > 0 {
		rows := make([]deadlineRow, 0, len(result.Deadlines))
		for _, e := range result.Deadlines {
			date := e.DeadlineDate
			rows = append(rows, deadlineRow{
				EntityID:              e.EntityID,
				DocumentID:            result.DocumentID,
				DeadlineType:          e.DeadlineType,
				DeadlineDate:          nullDate(&date),
				Description:           nullString(e.Description),
				AssociatedDeliverable: nullString(e.AssociatedDeliverable),
				IsFirm:                e.IsFirm,
				Confidence:            e.Confidence,
				ExtractedAt:           e.ExtractedAt,
				CreatedAt:             now,
			})
		}
		if err := s.inserter(tableDeadlines).Put(ctx, rows); err != nil {
			return errors.Wrapf(err, "insert deadlines for %s", result.DocumentID)
		}
	}

	if len(result.Financials) > 0 {
		rows := make([]financialRow, 0, len(result.Financials))
		for _, e := range result.Financials {
			rows = append(rows, financialRow{
				EntityID:      e.EntityID,
				DocumentID:    result.DocumentID,
				FinancialType: e.FinancialType,
				Amount:        nullFloat(e.Amount),
				Currency:      e.Currency,
				Description:   nullString(e.Description),
				PaymentTerms:  nullString(e.PaymentTerms),
				DueDate:       nullDate(e.DueDate),
				Confidence:    e.Confidence,
				ExtractedAt:   e.ExtractedAt,
				CreatedAt:     now,
			})
		}
		if err := s.inserter(tableFinancials).Put(ctx, rows); err != nil {
			return errors.Wrapf(err, "insert financials for %s", result.DocumentID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":  result.DocumentID,
		"stakeholders": len(result.Stakeholders),
		"deliverables": len(result.Deliverables),
		"deadlines":    len(result.Deadlines),
		"financials":   len(result.Financials),
	}).Info("Loaded extraction result")

	return nil
}

// GetEntities reads back all persisted entities for a document.
func (s *BigQueryStore) GetEntities(ctx context.Context, documentID string) (*extraction.Result, error) {
	result := &extraction.Result{
		DocumentID:   documentID,
		Stakeholders: []extraction.Stakeholder{},
		Deliverables: []extraction.Deliverable{},
		Deadlines:    []extraction.Deadline{},
		Financials:   []extraction.Financial{},
	}

	if err := s.readRows(ctx, tableStakeholders, documentID, func(it *bigquery.RowIterator) error {
		for {
			var row stakeholderRow
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			result.Stakeholders = append(result.Stakeholders, extraction.Stakeholder{
				EntityID:        row.EntityID,
				DocumentID:      row.DocumentID,
				StakeholderType: row.StakeholderType,
				Name:            row.Name,
				Role:            row.Role.StringVal,
				Organization:    row.Organization.StringVal,
				Email:           row.Email.StringVal,
				Phone:           row.Phone.StringVal,
				Confidence:      row.Confidence,
				ExtractedAt:     row.ExtractedAt,
			})
		}
	}); err != nil {
		return nil, err
	}

	if err := s.readRows(ctx, tableDeliverables, documentID, func(it *bigquery.RowIterator) error {
		for {
			var row deliverableRow
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			result.Deliverables = append(result.Deliverables, extraction.Deliverable{
				EntityID:           row.EntityID,
				DocumentID:         row.DocumentID,
				DeliverableName:    row.DeliverableName,
				Description:        row.Description.StringVal,
				AcceptanceCriteria: row.AcceptanceCriteria.StringVal,
				MilestoneID:        row.MilestoneID.StringVal,
				Dependencies:       row.Dependencies,
				Confidence:         row.Confidence,
				ExtractedAt:        row.ExtractedAt,
			})
		}
	}); err != nil {
		return nil, err
	}

	if err := s.readRows(ctx, tableDeadlines, documentID, func(it *bigquery.RowIterator) error {
		for {
			var row deadlineRow
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			deadline := extraction.Deadline{
				EntityID:              row.EntityID,
				DocumentID:            row.DocumentID,
				DeadlineType:          row.DeadlineType,
				Description:           row.Description.StringVal,
				AssociatedDeliverable: row.AssociatedDeliverable.StringVal,
				IsFirm:                row.IsFirm,
				Confidence:            row.Confidence,
				ExtractedAt:           row.ExtractedAt,
			}
			if row.DeadlineDate.Valid {
				deadline.DeadlineDate = row.DeadlineDate.Date.In(time.UTC)
			}
			result.Deadlines = append(result.Deadlines, deadline)
		}
	}); err != nil {
		return nil, err
	}

	if err := s.readRows(ctx, tableFinancials, documentID, func(it *bigquery.RowIterator) error {
		for {
			var row financialRow
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			financial := extraction.Financial{
				EntityID:      row.EntityID,
				DocumentID:    row.DocumentID,
				FinancialType: row.FinancialType,
				Currency:      row.Currency,
				Description:   row.Description.StringVal,
				PaymentTerms:  row.PaymentTerms.StringVal,
				Confidence:    row.Confidence,
				ExtractedAt:   row.ExtractedAt,
			}
			if row.Amount.Valid {
				amount := row.Amount.Float64
				financial.Amount = &amount
			}
			if row.DueDate.Valid {
				due := row.DueDate.Date.In(time.UTC)
				financial.DueDate = &due
			}
			result.Financials = append(result.Financials, financial)
		}
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *BigQueryStore) readRows(ctx context.Context, table, documentID string, scan func(*bigquery.RowIterator) error) error {
	q := s.client.Query(fmt.Sprintf(
		"SELECT * FROM `%s` WHERE document_id = @document_id ORDER BY extraction_timestamp ASC",
		s.tablePath(table),
	))
	q.Parameters = []bigquery.QueryParameter{{Name: "document_id", Value: documentID}}

	it, err := q.Read(ctx)
	if err != nil {
		return errors.Wrapf(err, "read %s for %s", table, documentID)
	}
	if err := scan(it); err != nil {
		return errors.Wrapf(err, "read %s for %s", table, documentID)
	}
	return nil
}
