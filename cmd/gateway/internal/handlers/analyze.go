package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/complexity"
	"github.com/Kocoro-lab/snippets/internal/snippets"
	"github.com/Kocoro-lab/snippets/internal/validation"
)

// AnalyzeHandler exposes the complexity analyzer
type AnalyzeHandler struct {
	service *snippets.Service
	logger  *zap.Logger
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(service *snippets.Service, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		service: service,
		logger:  logger,
	}
}

// AnalyzeRequest is the body of POST /api/v1/analyze
type AnalyzeRequest struct {
	Code     string `json:"code" validate:"required,max=50000"`
	Language string `json:"language" validate:"max=50"`
}

// AnalyzeResponse is an analysis with its display hints
type AnalyzeResponse struct {
	complexity.Analysis
	Color       string `json:"color"`
	Description string `json:"description"`
}

// ComplexityInfo describes a complexity label
type ComplexityInfo struct {
	Label       string  `json:"label"`
	Color       string  `json:"color"`
	Description string  `json:"description"`
	Rank        float64 `json:"rank"`
}

// Analyze handles POST /api/v1/analyze
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Language = strings.TrimSpace(req.Language)
	if err := validation.Struct(&req); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	analysis := h.service.Analyze(r.Context(), req.Code, req.Language, "analyze")
	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Analysis:    analysis,
		Color:       complexity.Color(analysis.EstimatedComplexity),
		Description: complexity.Description(analysis.EstimatedComplexity),
	})
}

// Describe handles GET /api/v1/complexity/{label}
func (h *AnalyzeHandler) Describe(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.PathValue("label"))
	if label == "" {
		sendError(w, http.StatusBadRequest, "Complexity label is required")
		return
	}

	writeJSON(w, http.StatusOK, ComplexityInfo{
		Label:       label,
		Color:       complexity.Color(label),
		Description: complexity.Description(label),
		Rank:        complexity.Power(label),
	})
}
