package holdings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles unified holdings HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new holdings handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "holdings").Logger(),
	}
}

// RegisterRoutes mounts the holdings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/holdings", h.HandleListHoldings)
	r.Get("/snaptrade/accounts", h.HandleListAccounts)
}

// HandleListHoldings returns the consolidated view across all sources.
// Query parameters: user_id, user_secret, reporting_currency.
func (h *Handler) HandleListHoldings(w http.ResponseWriter, r *http.Request) {
	params := Params{
		UserID:            r.URL.Query().Get("user_id"),
		UserSecret:        r.URL.Query().Get("user_secret"),
		ReportingCurrency: r.URL.Query().Get("reporting_currency"),
	}

	result, err := h.service.Consolidate(r.Context(), params)
	if err != nil {
		// Only a total absence of sources reaches here; per-account
		// failures are embedded in the response
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleListAccounts returns connected brokerage accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListBrokerageAccounts(
		r.Context(),
		r.URL.Query().Get("user_id"),
		r.URL.Query().Get("user_secret"),
	)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
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
