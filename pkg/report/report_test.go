package report

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	metrics *Metrics
	err     error

	gotStart time.Time
	gotEnd   time.Time
}

func (f *fakeMetrics) WeeklyMetrics(_ context.Context, weekStart, weekEnd time.Time) (*Metrics, error) {
	f.gotStart = weekStart
	f.gotEnd = weekEnd
	return f.metrics, f.err
}

type fakeSynthesizer struct {
	content string
	err     error
	prompt  string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.content, f.err
}

type fakeStore struct {
	saved  []*Report
	latest *Report
	err    error
}

func (f *fakeStore) SaveReport(_ context.Context, r *Report) error {
	f.saved = append(f.saved, r)
	return f.err
}

func (f *fakeStore) LatestReport(_ context.Context) (*Report, error) {
	return f.latest, f.err
}

func sampleMetrics() *Metrics {
	return &Metrics{
		DocumentsProcessed:    42,
		DocumentsPending:      3,
		AvgConfidence:         0.87,
		ReviewRequiredCount:   5,
		StakeholdersExtracted: 120,
		DeliverablesExtracted: 64,
		DeadlinesExtracted:    31,
	}
}

func TestDefaultWeek(t *testing.T) {
	tests := []struct {
		name      string
		today     string
		wantStart string
		wantEnd   string
	}{
		{"monday", "2024-03-11", "2024-03-04", "2024-03-10"},
		{"wednesday", "2024-03-13", "2024-03-04", "2024-03-10"},
		{"sunday", "2024-03-17", "2024-03-04", "2024-03-10"},
		{"next monday", "2024-03-18", "2024-03-11", "2024-03-17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			today, err := time.Parse("2006-01-02", tt.today)
			require.NoError(t, err)

			start, end := DefaultWeek(today)
			assert.Equal(t, tt.wantStart, start.Format("2006-01-02"))
			assert.Equal(t, tt.wantEnd, end.Format("2006-01-02"))
		})
	}
}

func TestGenerateUsesSynthesizedContent(t *testing.T) {
	metrics := &fakeMetrics{metrics: sampleMetrics()}
	synth := &fakeSynthesizer{content: "Strong week overall."}
	store := &fakeStore{}
	g := NewGenerator(metrics, synth, store)

	weekStart := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	weekEnd := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	r, err := g.Generate(context.Background(), weekStart, weekEnd)
	require.NoError(t, err)

	assert.NotEmpty(t, r.ReportID)
	assert.Equal(t, "Strong week overall.", r.ReportContent)
	assert.Equal(t, "system", r.GeneratedBy)
	assert.Equal(t, 42, r.DocumentsProcessed)
	assert.Equal(t, 5, r.DocumentsFlaggedForReview)
	assert.Equal(t, weekStart, r.WeekStart)
	assert.Equal(t, weekEnd, r.WeekEnd)

	assert.Equal(t, weekStart, metrics.gotStart)
	assert.Equal(t, weekEnd, metrics.gotEnd)

	require.Len(t, store.saved, 1)
	assert.Equal(t, r, store.saved[0])
}

func TestGeneratePromptCarriesMetrics(t *testing.T) {
	synth := &fakeSynthesizer{content: "ok"}
	g := NewGenerator(&fakeMetrics{metrics: sampleMetrics()}, synth, nil)

	_, err := g.Generate(context.Background(),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, synth.prompt, "Week: 2024-03-04 to 2024-03-10")
	assert.Contains(t, synth.prompt, "Documents Processed: 42")
	assert.Contains(t, synth.prompt, "Average Confidence Score: 0.87")
	assert.Contains(t, synth.prompt, "Deadlines Extracted: 31")
	assert.Contains(t, synth.prompt, "Executive Summary")
}

func TestGenerateFallsBackOnSynthesizerError(t *testing.T) {
	synth := &fakeSynthesizer{err: fmt.Errorf("quota exceeded")}
	store := &fakeStore{}
	g := NewGenerator(&fakeMetrics{metrics: sampleMetrics()}, synth, store)

	r, err := g.Generate(context.Background(),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.ReportContent, "Weekly Processing Report"))
	assert.Contains(t, r.ReportContent, "42 documents were processed")
	assert.Contains(t, r.ReportContent, "Review Required: 5 documents")
	require.Len(t, store.saved, 1)
}

func TestGenerateWithoutSynthesizerUsesFallback(t *testing.T) {
	g := NewGenerator(&fakeMetrics{metrics: sampleMetrics()}, nil, nil)

	r, err := g.Generate(context.Background(),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, r.ReportContent, "Weekly Processing Report")
}

func TestGenerateDefaultsWeekBounds(t *testing.T) {
	metrics := &fakeMetrics{metrics: sampleMetrics()}
	g := NewGenerator(metrics, nil, nil)

	r, err := g.Generate(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	wantStart, wantEnd := DefaultWeek(time.Now().UTC())
	assert.Equal(t, wantStart.Format("2006-01-02"), r.WeekStart.Format("2006-01-02"))
	assert.Equal(t, wantEnd.Format("2006-01-02"), r.WeekEnd.Format("2006-01-02"))
	assert.Equal(t, time.Monday, r.WeekStart.Weekday())
	assert.Equal(t, time.Sunday, r.WeekEnd.Weekday())
}

func TestGenerateMetricsErrorPropagates(t *testing.T) {
	g := NewGenerator(&fakeMetrics{err: fmt.Errorf("table missing")}, nil, nil)

	_, err := g.Generate(context.Background(),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table missing")
}

func TestGenerateSaveErrorDoesNotFailReport(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("insert failed")}
	g := NewGenerator(&fakeMetrics{metrics: sampleMetrics()}, nil, store)

	r, err := g.Generate(context.Background(),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestLatestWithoutStore(t *testing.T) {
	g := NewGenerator(&fakeMetrics{metrics: sampleMetrics()}, nil, nil)

	_, err := g.Latest(context.Background())
	require.Error(t, err)
}

func TestLatestReturnsStoredReport(t *testing.T) {
	want := &Report{ReportID: "r-1", ReportContent: "content"}
	g := NewGenerator(&fakeMetrics{}, nil, &fakeStore{latest: want})

	got, err := g.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
