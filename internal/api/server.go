package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/logging"
	"mandi-advisor/internal/service"
	"mandi-advisor/internal/storage"
)

const defaultCheckLimit = 50

// SchemaBootstrapper initialises the structured store on demand.
type SchemaBootstrapper interface {
	Configured() bool
	EnsureSchema(ctx context.Context) error
}

// Handler serves the advisory HTTP API.
type Handler struct {
	svc            *service.Service
	schema         SchemaBootstrapper
	statsWindow    int
	requestTimeout time.Duration
	logger         zerolog.Logger
}

// Options tune the HTTP handler.
type Options struct {
	// Schema may be nil when no structured store is wired.
	Schema         SchemaBootstrapper
	StatsWindow    int
	RequestTimeout time.Duration
}

// NewHandler constructs the API handler.
func NewHandler(svc *service.Service, opts Options, logger zerolog.Logger) *Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 25 * time.Second
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = 500
	}
	return &Handler{
		svc:            svc,
		schema:         opts.Schema,
		statsWindow:    opts.StatsWindow,
		requestTimeout: opts.RequestTimeout,
		logger:         logging.Component(logger, "http"),
	}
}

// Router wires routes and middleware.
func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(h.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(h.requestTimeout))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "mandi-advisor"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/price-history", h.priceHistory)
		r.Post("/recommend", h.recommend)
		r.Get("/scrape-prices", h.scrapePrices)
		r.Post("/scrape-prices", h.savePrice)
		r.Get("/user-history", h.userHistory)
		r.Post("/user-history", h.saveUserCheck)
		r.Get("/init-db", h.initDB)
	})
	return router
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

type historyPoint struct {
	Date       string  `json:"date"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	ModalPrice float64 `json:"modal_price"`
}

func toPoints(series storage.TimeSeries) []historyPoint {
	points := make([]historyPoint, len(series))
	for i, o := range series {
		points[i] = historyPoint{
			Date:       o.Date.UTC().Format(storage.DateLayout),
			MinPrice:   o.MinPrice.InexactFloat64(),
			MaxPrice:   o.MaxPrice.InexactFloat64(),
			ModalPrice: o.ModalPrice.InexactFloat64(),
		}
	}
	return points
}

func seriesParams(r *http.Request) (state, district, commodity string, ok bool) {
	q := r.URL.Query()
	state = strings.TrimSpace(q.Get("state"))
	district = strings.TrimSpace(q.Get("district"))
	commodity = strings.TrimSpace(q.Get("commodity"))
	return state, district, commodity, state != "" && district != "" && commodity != ""
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	state, district, commodity, ok := seriesParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing required parameters: state, district, commodity", nil)
		return
	}
	days := parsePositive(r.URL.Query().Get("days"), 0)

	view := h.svc.PriceHistory(r.Context(), state, district, commodity, days)
	var analysis *advisory.TrendAnalysis
	if len(view.History) > 0 {
		analysis = &view.Analysis
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"history":  toPoints(view.History),
		"analysis": analysis,
		"count":    len(view.History),
		"source":   view.Source,
	})
}

type priceRequest struct {
	Commodity  string          `json:"commodity"`
	State      string          `json:"state"`
	District   string          `json:"district"`
	MinPrice   decimal.Decimal `json:"min_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	ModalPrice decimal.Decimal `json:"modal_price"`
}

func (p priceRequest) complete() bool {
	return strings.TrimSpace(p.State) != "" && strings.TrimSpace(p.District) != "" && strings.TrimSpace(p.Commodity) != ""
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.complete() {
		writeError(w, http.StatusBadRequest, "Missing required fields: state, district, commodity", nil)
		return
	}

	rec := h.svc.Advise(r.Context(), service.AdviceRequest{
		State:      req.State,
		District:   req.District,
		Commodity:  req.Commodity,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
		ModalPrice: req.ModalPrice,
	})
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) scrapePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := fetcher.Query{
		State:     strings.TrimSpace(q.Get("state")),
		District:  strings.TrimSpace(q.Get("district")),
		Commodity: strings.TrimSpace(q.Get("commodity")),
	}

	res, err := h.svc.Ingest(r.Context(), query)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, service.ErrFeedNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error().Err(err).Str("state", query.State).Str("district", query.District).Msg("price feed query failed")
		writeJSON(w, status, map[string]any{"error": "Failed to fetch data from API", "message": err.Error(), "data": []fetcher.Record{}})
		return
	}

	records := res.Records
	if records == nil {
		records = []fetcher.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"data":              records,
		"count":             len(records),
		"isFallback":        res.IsFallback,
		"requestedDistrict": query.District,
		"stored":            res.Stored,
	})
}

func (h *Handler) savePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.complete() {
		writeError(w, http.StatusBadRequest, "Missing required fields: state, district, commodity", nil)
		return
	}

	src, err := h.svc.History().Write(r.Context(), req.State, req.District, req.Commodity, req.MinPrice, req.MaxPrice, req.ModalPrice)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error saving price record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "source": src})
}

func (h *Handler) userHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("type") == "stats" {
		stats, src := h.svc.History().CheckStats(r.Context(), h.statsWindow)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats, "source": src})
		return
	}

	limit := parsePositive(q.Get("limit"), defaultCheckLimit)
	checks, src := h.svc.History().RecentChecks(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": checks,
		"count":   len(checks),
		"source":  src,
	})
}

func (h *Handler) saveUserCheck(w http.ResponseWriter, r *http.Request) {
	var check storage.UserCheck
	if err := decodeJSON(w, r, &check); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(check.Commodity) == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: commodity", nil)
		return
	}
	// the server clock stamps checks
	check.CheckedAt = time.Time{}

	src, err := h.svc.History().RecordCheck(r.Context(), check)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error saving user history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "source": src})
}

func (h *Handler) initDB(w http.ResponseWriter, r *http.Request) {
	if h.schema == nil || !h.schema.Configured() {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No database connection available, using file system storage",
		})
		return
	}

	if err := h.schema.EnsureSchema(r.Context()); err != nil {
		if service.IsUnavailable(err) {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"message": "No database connection available, using file system storage",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "Error initializing database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Database initialized successfully"})
}
