package classification

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles classification HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new classification handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "classification").Logger(),
	}
}

// RegisterRoutes mounts the classification routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/classifications/categories", h.HandleListCategories)
	r.Get("/classifications/{symbol}", h.HandleClassify)
	r.Put("/classifications/{symbol}/override", h.HandleSetOverride)
	r.Delete("/classifications/{symbol}/override", h.HandleClearOverride)
}

// HandleListCategories returns the fixed category set
func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": Categories})
}

// HandleClassify classifies one symbol
func (h *Handler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	description := r.URL.Query().Get("description")

	result, err := h.service.Classify(r.Context(), symbol, description)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleSetOverride pins a symbol to a name and category
func (h *Handler) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	symbol := chi.URLParam(r, "symbol")
	if err := h.service.SetOverride(symbol, req.Name, req.Category); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleClearOverride removes a symbol's override
func (h *Handler) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearOverride(chi.URLParam(r, "symbol")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
