package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/polyinsider/insiderscan/internal/detector"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/pipeline"
	"github.com/polyinsider/insiderscan/internal/store"
)

// Analyzer is the pipeline surface the handlers need.
type Analyzer interface {
	Analyze(ctx context.Context, batchSize int) (pipeline.Report, error)
	LiveStats(ctx context.Context) (metrics.Statistics, error)
	StoredStats(ctx context.Context) (metrics.Statistics, error)
	ResolveMarkets(ctx context.Context) (pipeline.ResolveReport, error)
	Criteria() *detector.CriteriaHolder
}

// TradeQuerier reads persisted suspicious trades.
type TradeQuerier interface {
	Query(ctx context.Context, f store.Filter) ([]store.SuspiciousTrade, int64, error)
}

// Handler serves the analysis API.
type Handler struct {
	analyzer Analyzer
	trades   TradeQuerier
}

// NewHandler creates a Handler. trades may be nil when nothing is persisted.
func NewHandler(analyzer Analyzer, trades TradeQuerier) *Handler {
	return &Handler{analyzer: analyzer, trades: trades}
}

// RegisterRoutes mounts the API on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/analyze", h.Analyze)
	g.GET("/analyze", h.Analyze)
	g.GET("/stats", h.Stats)
	g.GET("/trades", h.Trades)
	g.GET("/criteria", h.GetCriteria)
	g.PUT("/criteria", h.UpdateCriteria)
	g.POST("/resolve", h.Resolve)
}

// Limit fields are pointers so an explicit 0 is rejected rather than defaulted.
type analyzeRequest struct {
	Limit *int `json:"limit" query:"limit" default:"100" validate:"gte=1,lte=500"`
}

type statsRequest struct {
	Source string `query:"source" default:"live" validate:"oneof=live stored"`
}

type tradesRequest struct {
	Limit    *int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset   int     `query:"offset" validate:"gte=0"`
	MinScore float64 `query:"minScore" validate:"gte=0,lte=100"`
}

type analyzeResponse struct {
	Success       bool                    `json:"success"`
	Analyzed      int                     `json:"analyzed"`
	Suspicious    int                     `json:"suspicious"`
	Trades        []store.SuspiciousTrade `json:"trades"`
	Message       string                  `json:"message,omitempty"`
	Persisted     *int                    `json:"persisted,omitempty"`
	WriteFailures *int                    `json:"write_failures,omitempty"`
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

// Analyze runs one collect-and-score pass.
func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if errs := bindRequest(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	report, err := h.analyzer.Analyze(c.Request().Context(), *req.Limit)
	if err != nil {
		return internalError(c, err)
	}

	resp := analyzeResponse{
		Success:    true,
		Analyzed:   report.Analyzed,
		Suspicious: report.Suspicious,
		Trades:     report.Trades,
	}
	if resp.Trades == nil {
		resp.Trades = []store.SuspiciousTrade{}
	}
	if report.Analyzed == 0 {
		resp.Message = "No trades found"
	}
	if h.trades != nil {
		resp.Persisted = &report.Persisted
		resp.WriteFailures = &report.WriteFailures
	}

	return c.JSON(http.StatusOK, resp)
}

// Stats summarizes either a fresh live batch or everything persisted.
func (h *Handler) Stats(c echo.Context) error {
	var req statsRequest
	if errs := bindRequest(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	var (
		stats metrics.Statistics
		err   error
	)
	if req.Source == "stored" {
		stats, err = h.analyzer.StoredStats(c.Request().Context())
	} else {
		stats, err = h.analyzer.LiveStats(c.Request().Context())
	}
	if errors.Is(err, pipeline.ErrNoStore) {
		return badRequest(c, []ValidationError{{Code: "ERR_NO_STORE", Field: "source", Message: err.Error()}})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// Trades pages through persisted suspicious trades.
func (h *Handler) Trades(c echo.Context) error {
	if h.trades == nil {
		return badRequest(c, []ValidationError{{Code: "ERR_NO_STORE", Message: pipeline.ErrNoStore.Error()}})
	}

	var req tradesRequest
	if errs := bindRequest(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	rows, total, err := h.trades.Query(c.Request().Context(), store.Filter{
		MinScore: req.MinScore,
		Offset:   req.Offset,
		Limit:    *req.Limit,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"trades":  rows,
		"count":   len(rows),
		"total":   total,
	})
}

// GetCriteria returns the active scoring criteria.
func (h *Handler) GetCriteria(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"criteria": h.analyzer.Criteria().Load(),
	})
}

// UpdateCriteria applies a partial override and swaps the criteria in.
func (h *Handler) UpdateCriteria(c echo.Context) error {
	var overrides detector.Overrides
	if err := c.Bind(&overrides); err != nil {
		return badRequest(c, toValidationErrors(err))
	}

	updated, err := h.analyzer.Criteria().Update(overrides)
	if errors.Is(err, detector.ErrInvalidCriteria) {
		return badRequest(c, []ValidationError{{Code: "ERR_INVALID_CRITERIA", Message: err.Error()}})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "criteria": updated})
}

// Resolve settles stored trades for markets that have closed.
func (h *Handler) Resolve(c echo.Context) error {
	report, err := h.analyzer.ResolveMarkets(c.Request().Context())
	if errors.Is(err, pipeline.ErrNoStore) {
		return badRequest(c, []ValidationError{{Code: "ERR_NO_STORE", Message: err.Error()}})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"checked":  report.Checked,
		"resolved": report.Resolved,
		"updated":  report.Updated,
		"failed":   report.Failed,
	})
}

func badRequest(c echo.Context, errs []ValidationError) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   "invalid request",
		"details": errs,
	})
}

func internalError(c echo.Context, err error) error {
	slog.Warn("api_request_failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
