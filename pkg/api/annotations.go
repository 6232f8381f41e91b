package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/athapong/docflow/pkg/annotation"
)

type annotationRequest struct {
	EntityID       string                 `json:"entity_id"`
	EntityType     string                 `json:"entity_type"`
	AnnotatedValue map[string]interface{} `json:"annotated_value"`
	AnnotatorID    string                 `json:"annotator_id"`
	Confidence     float64                `json:"confidence"`
	Notes          string                 `json:"notes"`
}

// addAnnotation records one annotator's ground truth for an entity.
func (s *Server) addAnnotation(c echo.Context) error {
	documentID := c.Param("id")

	var req annotationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.EntityID == "" || req.EntityType == "" || req.AnnotatorID == "" {
		return errorJSON(c, http.StatusBadRequest, "missing required fields: entity_id, entity_type, annotator_id")
	}

	saved, err := s.annotations.Add(c.Request().Context(), annotation.Annotation{
		EntityID:       req.EntityID,
		DocumentID:     documentID,
		EntityType:     req.EntityType,
		AnnotatedValue: req.AnnotatedValue,
		AnnotatorID:    req.AnnotatorID,
		Confidence:     req.Confidence,
		Notes:          req.Notes,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to save annotation")
		return errorJSON(c, http.StatusInternalServerError, "failed to save annotation")
	}
	return c.JSON(http.StatusCreated, saved)
}

// listAnnotations returns all annotations for a document.
func (s *Server) listAnnotations(c echo.Context) error {
	documentID := c.Param("id")

	annotations, err := s.annotations.ForDocument(c.Request().Context(), documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load annotations")
		return errorJSON(c, http.StatusInternalServerError, "failed to load annotations")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"annotations": annotations,
		"total_count": len(annotations),
	})
}

// annotationAgreement scores pairwise inter-annotator agreement for
// one entity.
func (s *Server) annotationAgreement(c echo.Context) error {
	documentID := c.Param("id")
	entityID := c.QueryParam("entity_id")
	entityType := c.QueryParam("entity_type")
	if entityID == "" || entityType == "" {
		return errorJSON(c, http.StatusBadRequest, "missing required query params: entity_id, entity_type")
	}

	comparisons, err := s.annotations.InterAnnotatorAgreement(c.Request().Context(), documentID, entityID, entityType)
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute agreement")
		return errorJSON(c, http.StatusInternalServerError, "failed to compute agreement")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"entity_id":   entityID,
		"comparisons": comparisons,
	})
}

// evaluateExtraction scores the stored extraction result against the
// document's annotations.
func (s *Server) evaluateExtraction(c echo.Context) error {
	ctx := c.Request().Context()
	documentID := c.Param("id")

	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get document")
		return errorJSON(c, http.StatusInternalServerError, "failed to get document")
	}
	if record == nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("document not found: %s", documentID))
	}

	result, err := s.store.GetEntities(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get entities")
		return errorJSON(c, http.StatusInternalServerError, "failed to get entities")
	}

	groundTruth, err := s.annotations.ForDocument(ctx, documentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load annotations")
		return errorJSON(c, http.StatusInternalServerError, "failed to load annotations")
	}
	if len(groundTruth) == 0 {
		return errorJSON(c, http.StatusBadRequest, "no annotations recorded for document")
	}

	evaluation, err := s.annotations.Evaluate(ctx, documentID, result, groundTruth)
	if err != nil {
		s.logger.WithError(err).Error("Evaluation failed")
		return errorJSON(c, http.StatusInternalServerError, "evaluation failed")
	}
	return c.JSON(http.StatusOK, evaluation)
}
