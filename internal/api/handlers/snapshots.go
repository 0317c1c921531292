package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/screener-back/internal/database"
	"github.com/screener-back/internal/services"
	"github.com/screener-back/pkg/models"
)

// SnapshotReader answers snapshot reads
type SnapshotReader interface {
	Latest(ctx context.Context, market models.MarketType, since time.Time, page models.Page) ([]*models.Snapshot, int64, error)
	History(ctx context.Context, code string, market models.MarketType, page models.Page) ([]services.HistoryRow, error)
	LatestForTicker(ctx context.Context, code string, market models.MarketType) (*models.Snapshot, error)
}

// SymbolLister lists known symbols
type SymbolLister interface {
	ListSymbols(ctx context.Context, market models.MarketType) ([]*models.Symbol, error)
}

// SeriesReader reads a metric's time series
type SeriesReader interface {
	SnapshotSeries(ctx context.Context, symbol string, market models.MarketType, metric models.Metric, from, to time.Time) ([]database.SeriesPoint, error)
}

// SnapshotHandler serves snapshot, symbol and series reads
type SnapshotHandler struct {
	snapshots    SnapshotReader
	symbols      SymbolLister
	series       SeriesReader
	recentWindow time.Duration
	now          func() time.Time
	logger       *logrus.Entry
}

// NewSnapshotHandler creates a snapshot handler. series may be nil.
func NewSnapshotHandler(snapshots SnapshotReader, symbols SymbolLister, series SeriesReader, recentWindow time.Duration, logger *logrus.Logger) *SnapshotHandler {
	if recentWindow <= 0 {
		recentWindow = 24 * time.Hour
	}
	return &SnapshotHandler{
		snapshots:    snapshots,
		symbols:      symbols,
		series:       series,
		recentWindow: recentWindow,
		now:          time.Now,
		logger:       logger.WithField("component", "snapshot-api"),
	}
}

// PageResponse wraps one page of rows
type PageResponse struct {
	Market   models.MarketType `json:"market"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int64             `json:"total"`
	Rows     interface{}       `json:"rows"`
}

// LatestSnapshots handles GET /api/v1/snapshots/latest
func (h *SnapshotHandler) LatestSnapshots(w http.ResponseWriter, r *http.Request) {
	market, ok := h.market(w, r)
	if !ok {
		return
	}
	page, ok := h.page(w, r)
	if !ok {
		return
	}

	window := h.recentWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid window")
			return
		}
		window = d
	}

	snaps, total, err := h.snapshots.Latest(r.Context(), market, h.now().Add(-window), page)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest snapshots")
		h.writeError(w, http.StatusInternalServerError, "Failed to load snapshots")
		return
	}

	h.writeJSON(w, http.StatusOK, PageResponse{
		Market:   market,
		Page:     page.Number,
		PageSize: page.Size,
		Total:    total,
		Rows:     snaps,
	})
}

// SymbolLatest handles GET /api/v1/symbols/{symbol}/latest
func (h *SnapshotHandler) SymbolLatest(w http.ResponseWriter, r *http.Request) {
	market, ok := h.market(w, r)
	if !ok {
		return
	}
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	snap, err := h.snapshots.LatestForTicker(r.Context(), symbol, market)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load latest snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to load snapshot")
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "No snapshot for "+symbol)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// SymbolHistory handles GET /api/v1/symbols/{symbol}/snapshots
func (h *SnapshotHandler) SymbolHistory(w http.ResponseWriter, r *http.Request) {
	market, ok := h.market(w, r)
	if !ok {
		return
	}
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	rows, err := h.snapshots.History(r.Context(), symbol, market, page)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load history")
		h.writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	h.writeJSON(w, http.StatusOK, PageResponse{
		Market:   market,
		Page:     page.Number,
		PageSize: page.Size,
		Total:    int64(len(rows)),
		Rows:     rows,
	})
}

// SymbolSeries handles GET /api/v1/symbols/{symbol}/series
func (h *SnapshotHandler) SymbolSeries(w http.ResponseWriter, r *http.Request) {
	if h.series == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Time series storage is not enabled")
		return
	}

	market, ok := h.market(w, r)
	if !ok {
		return
	}
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	q := r.URL.Query()
	metric, err := models.ParseMetric(q.Get("metric"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	to := h.now().UTC()
	from := to.Add(-time.Hour)
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid from, expected RFC3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid to, expected RFC3339")
			return
		}
	}
	if !from.Before(to) {
		h.writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	points, err := h.series.SnapshotSeries(r.Context(), symbol, market, metric, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load series")
		h.writeError(w, http.StatusInternalServerError, "Failed to load series")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"market": market,
		"metric": metric,
		"points": points,
	})
}

// ListSymbols handles GET /api/v1/symbols
func (h *SnapshotHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	var market models.MarketType
	if raw := r.URL.Query().Get("market"); raw != "" {
		m, err := models.ParseMarketType(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		market = m
	}

	symbols, err := h.symbols.ListSymbols(r.Context(), market)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list symbols")
		h.writeError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// ListMetrics handles GET /api/v1/metrics
func (h *SnapshotHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	type metricInfo struct {
		Name  models.Metric `json:"name"`
		Label string        `json:"label"`
	}

	metrics := models.Metrics()
	out := make([]metricInfo, len(metrics))
	for i, m := range metrics {
		out[i] = metricInfo{Name: m, Label: m.Label()}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": out})
}

// RegisterRoutes registers the snapshot routes
func (h *SnapshotHandler) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/snapshots/latest", h.LatestSnapshots).Methods("GET")
	v1.HandleFunc("/symbols", h.ListSymbols).Methods("GET")
	v1.HandleFunc("/symbols/{symbol}/latest", h.SymbolLatest).Methods("GET")
	v1.HandleFunc("/symbols/{symbol}/snapshots", h.SymbolHistory).Methods("GET")
	v1.HandleFunc("/symbols/{symbol}/series", h.SymbolSeries).Methods("GET")
	v1.HandleFunc("/metrics", h.ListMetrics).Methods("GET")
}

func (h *SnapshotHandler) market(w http.ResponseWriter, r *http.Request) (models.MarketType, bool) {
	raw := r.URL.Query().Get("market")
	if raw == "" {
		return models.MarketFutures, true
	}
	market, err := models.ParseMarketType(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return market, true
}

func (h *SnapshotHandler) page(w http.ResponseWriter, r *http.Request) (models.Page, bool) {
	var page models.Page
	q := r.URL.Query()

	for name, dst := range map[string]*int{"page": &page.Number, "page_size": &page.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "Invalid "+name)
			return page, false
		}
		*dst = n
	}
	return page.Normalize(), true
}

// Helper methods for HTTP responses
func (h *SnapshotHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *SnapshotHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
