package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type reportGenerateRequest struct {
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
}

// generateReport builds the weekly report, for the last completed week
// unless bounds are given. Called manually or by Cloud Scheduler.
func (s *Server) generateReport(c echo.Context) error {
	var req reportGenerateRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	var weekStart, weekEnd time.Time
	var err error
	if req.WeekStart != "" {
		weekStart, err = time.Parse("2006-01-02", req.WeekStart)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "week_start must be YYYY-MM-DD")
		}
	}
	if req.WeekEnd != "" {
		weekEnd, err = time.Parse("2006-01-02", req.WeekEnd)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "week_end must be YYYY-MM-DD")
		}
	}

	r, err := s.reports.Generate(c.Request().Context(), weekStart, weekEnd)
	if err != nil {
		s.logger.WithError(err).Error("Report generation failed")
		return errorJSON(c, http.StatusInternalServerError, "report generation failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "success",
		"report_id":    r.ReportID,
		"week_start":   r.WeekStart.Format("2006-01-02"),
		"week_end":     r.WeekEnd.Format("2006-01-02"),
		"generated_at": r.GeneratedAt.Format(time.RFC3339),
		"metrics": map[string]interface{}{
			"documents_processed": r.DocumentsProcessed,
			"avg_confidence":      r.AvgConfidence,
			"review_required":     r.DocumentsFlaggedForReview,
		},
	})
}

// latestReport returns the most recently generated weekly report.
func (s *Server) latestReport(c echo.Context) error {
	r, err := s.reports.Latest(c.Request().Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch latest report")
		return errorJSON(c, http.StatusInternalServerError, "failed to fetch latest report")
	}
	if r == nil {
		return errorJSON(c, http.StatusNotFound, "no reports generated yet")
	}
	return c.JSON(http.StatusOK, r)
}
