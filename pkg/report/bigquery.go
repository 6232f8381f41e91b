package report

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
)

const tableWeeklyReports = "weekly_reports"

// entity tables counted per week, in report column order.
var entityCountTables = []string{"stakeholders", "deliverables", "deadlines"}

// BigQuerySource reads weekly metrics from and persists reports to the
// processing dataset. It implements MetricsSource and Store.
type BigQuerySource struct {
	client    *bigquery.Client
	projectID string
	dataset   string
}

// NewBigQuerySource wraps an existing BigQuery client.
func NewBigQuerySource(client *bigquery.Client, projectID, dataset string) *BigQuerySource {
	return &BigQuerySource{
		client:    client,
		projectID: projectID,
		dataset:   dataset,
	}
}

func (s *BigQuerySource) tablePath(table string) string {
	return fmt.Sprintf("%s.%s.%s", s.projectID, s.dataset, table)
}

// WeeklyMetrics aggregates document and entity counts for one week.
func (s *BigQuerySource) WeeklyMetrics(ctx context.Context, weekStart, weekEnd time.Time) (*Metrics, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			COUNT(DISTINCT document_id) AS documents_processed,
			COUNTIF(processing_status IN ('pending', 'processing')) AS documents_pending,
			AVG(overall_confidence) AS avg_confidence,
			COUNTIF(processing_status = 'review_required') AS review_required_count
		FROM `+"`%s`"+`
		WHERE DATE(upload_timestamp) BETWEEN @week_start AND @week_end
	`, s.tablePath("documents")))
	q.Parameters = weekParams(weekStart, weekEnd)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "weekly document metrics")
	}

	var row struct {
		DocumentsProcessed  int64                `bigquery:"documents_processed"`
		DocumentsPending    int64                `bigquery:"documents_pending"`
		AvgConfidence       bigquery.NullFloat64 `bigquery:"avg_confidence"`
		ReviewRequiredCount int64                `bigquery:"review_required_count"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return nil, errors.Wrap(err, "weekly document metrics")
	}

	metrics := &Metrics{
		DocumentsProcessed:  int(row.DocumentsProcessed),
		DocumentsPending:    int(row.DocumentsPending),
		ReviewRequiredCount: int(row.ReviewRequiredCount),
	}
	if row.AvgConfidence.Valid {
		metrics.AvgConfidence = row.AvgConfidence.Float64
	}

	counts := make([]int, len(entityCountTables))
	for i, table := range entityCountTables {
		count, err := s.entityCount(ctx, table, weekStart, weekEnd)
		if err != nil {
			return nil, err
		}
		counts[i] = count
	}
	metrics.StakeholdersExtracted = counts[0]
	metrics.DeliverablesExtracted = counts[1]
	metrics.DeadlinesExtracted = counts[2]

	return metrics, nil
}

func (s *BigQuerySource) entityCount(ctx context.Context, table string, weekStart, weekEnd time.Time) (int, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT COUNT(DISTINCT entity_id) AS entity_count FROM `%s` WHERE DATE(extraction_timestamp) BETWEEN @week_start AND @week_end",
		s.tablePath(table),
	))
	q.Parameters = weekParams(weekStart, weekEnd)

	it, err := q.Read(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "weekly %s count", table)
	}

	var row struct {
		EntityCount int64 `bigquery:"entity_count"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, errors.Wrapf(err, "weekly %s count", table)
	}
	return int(row.EntityCount), nil
}

func weekParams(weekStart, weekEnd time.Time) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "week_start", Value: civil.DateOf(weekStart)},
		{Name: "week_end", Value: civil.DateOf(weekEnd)},
	}
}

// weeklyReportRow is a row in the weekly_reports table.
type weeklyReportRow struct {
	ReportID                  string     `bigquery:"report_id"`
	ReportDate                civil.Date `bigquery:"report_date"`
	WeekStart                 civil.Date `bigquery:"week_start"`
	WeekEnd                   civil.Date `bigquery:"week_end"`
	DocumentsProcessed        int64      `bigquery:"documents_processed"`
	DocumentsPending          int64      `bigquery:"documents_pending"`
	AvgConfidence             float64    `bigquery:"avg_confidence"`
	DocumentsFlaggedForReview int64      `bigquery:"documents_flagged_for_review"`
	StakeholdersExtracted     int64      `bigquery:"stakeholders_extracted"`
	DeliverablesExtracted     int64      `bigquery:"deliverables_extracted"`
	DeadlinesExtracted        int64      `bigquery:"deadlines_extracted"`
	ReportContent             string     `bigquery:"report_content"`
	GeneratedAt               time.Time  `bigquery:"generated_at"`
	GeneratedBy               string     `bigquery:"generated_by"`
}

// SaveReport inserts a generated report.
func (s *BigQuerySource) SaveReport(ctx context.Context, r *Report) error {
	row := weeklyReportRow{
		ReportID:                  r.ReportID,
		ReportDate:                civil.DateOf(r.ReportDate),
		WeekStart:                 civil.DateOf(r.WeekStart),
		WeekEnd:                   civil.DateOf(r.WeekEnd),
		DocumentsProcessed:        int64(r.DocumentsProcessed),
		DocumentsPending:          int64(r.DocumentsPending),
		AvgConfidence:             r.AvgConfidence,
		DocumentsFlaggedForReview: int64(r.DocumentsFlaggedForReview),
		StakeholdersExtracted:     int64(r.StakeholdersExtracted),
		DeliverablesExtracted:     int64(r.DeliverablesExtracted),
		DeadlinesExtracted:        int64(r.DeadlinesExtracted),
		ReportContent:             r.ReportContent,
		GeneratedAt:               r.GeneratedAt,
		GeneratedBy:               r.GeneratedBy,
	}

	inserter := s.client.Dataset(s.dataset).Table(tableWeeklyReports).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return errors.Wrapf(err, "insert weekly report %s", r.ReportID)
	}
	return nil
}

// LatestReport returns the most recently generated report, nil when the
// table is empty.
func (s *BigQuerySource) LatestReport(ctx context.Context) (*Report, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT * FROM `%s` ORDER BY generated_at DESC LIMIT 1",
		s.tablePath(tableWeeklyReports),
	))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest report")
	}

	var row weeklyReportRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "latest report")
	}

	return &Report{
		ReportID:                  row.ReportID,
		ReportDate:                row.ReportDate.In(time.UTC),
		WeekStart:                 row.WeekStart.In(time.UTC),
		WeekEnd:                   row.WeekEnd.In(time.UTC),
		DocumentsProcessed:        int(row.DocumentsProcessed),
		DocumentsPending:          int(row.DocumentsPending),
		AvgConfidence:             row.AvgConfidence,
		DocumentsFlaggedForReview: int(row.DocumentsFlaggedForReview),
		StakeholdersExtracted:     int(row.StakeholdersExtracted),
		DeliverablesExtracted:     int(row.DeliverablesExtracted),
		DeadlinesExtracted:        int(row.DeadlinesExtracted),
		ReportContent:             row.ReportContent,
		GeneratedAt:               row.GeneratedAt,
		GeneratedBy:               row.GeneratedBy,
	}, nil
}
