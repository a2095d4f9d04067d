package marketdata

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles market data HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// RegisterRoutes mounts the stock data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stocks/{ticker}/price", h.HandleGetPrice)
	r.Get("/stocks/{ticker}/info", h.HandleGetInfo)
	r.Get("/stocks/{ticker}/prices", h.HandleGetHistory)
	r.Get("/stocks/{ticker}/indicators", h.HandleGetIndicators)
	r.Get("/stocks/fx/{from}/{to}", h.HandleGetFxRate)
}

// HandleGetPrice returns the current quote for a ticker
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	quote, err := h.service.GetLivePrice(r.Context(), ticker)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandleGetInfo returns quote metadata for a ticker
func (h *Handler) HandleGetInfo(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	quote, err := h.service.GetLivePrice(r.Context(), ticker)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   quote.Symbol,
		"name":     quote.Name,
		"currency": quote.Currency,
		"source":   quote.Source,
	})
}

// HandleGetHistory returns OHLCV bars for a ticker
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	rng := r.URL.Query().Get("period")
	interval := r.URL.Query().Get("interval")

	candles, err := h.service.GetHistory(r.Context(), ticker, rng, interval)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  ticker,
		"candles": candles,
	})
}

// HandleGetIndicators returns technical indicators for a ticker
func (h *Handler) HandleGetIndicators(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	rng := r.URL.Query().Get("period")

	indicators, err := h.service.GetIndicators(r.Context(), ticker, rng)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, indicators)
}

// HandleGetFxRate returns the exchange rate between two currencies
func (h *Handler) HandleGetFxRate(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	rate, err := h.service.GetFxRate(r.Context(), from, to)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from": from,
		"to":   to,
		"rate": rate,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
