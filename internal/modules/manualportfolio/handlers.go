package manualportfolio

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles manual portfolio HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new manual portfolio handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "manualportfolio").Logger(),
	}
}

// RegisterRoutes mounts the portfolio CRUD routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios", h.HandleListPortfolios)
	r.Post("/portfolios", h.HandleCreatePortfolio)
	r.Get("/portfolios/{portfolioID}", h.HandleGetPortfolio)
	r.Delete("/portfolios/{portfolioID}", h.HandleDeletePortfolio)
	r.Get("/portfolios/{portfolioID}/value", h.HandleValuePortfolio)
	r.Post("/portfolios/{portfolioID}/positions", h.HandleAddPosition)
	r.Put("/portfolios/{portfolioID}/positions/{positionID}", h.HandleUpdatePosition)
	r.Delete("/portfolios/{portfolioID}/positions/{positionID}", h.HandleRemovePosition)
}

// HandleListPortfolios returns all manual portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.ListPortfolios()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"portfolios": portfolios})
}

// HandleCreatePortfolio creates an empty named portfolio
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	portfolio, err := h.service.CreatePortfolio(req.Name)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, portfolio)
}

// HandleGetPortfolio returns one portfolio's stored positions
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.service.GetPortfolio(chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeNotFoundOr500(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, portfolio)
}

// HandleDeletePortfolio removes a portfolio
func (h *Handler) HandleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePortfolio(chi.URLParam(r, "portfolioID")); err != nil {
		h.writeNotFoundOr500(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleValuePortfolio prices one portfolio, optionally in a target currency
func (h *Handler) HandleValuePortfolio(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")

	account, err := h.service.ValuePortfolio(r.Context(), chi.URLParam(r, "portfolioID"), currency)
	if err != nil {
		h.writeNotFoundOr500(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// HandleAddPosition appends a position to a portfolio
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var input PositionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	position, err := h.service.AddPosition(chi.URLParam(r, "portfolioID"), input)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, position)
}

// HandleUpdatePosition applies a partial update to one position
func (h *Handler) HandleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var update PositionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	position, err := h.service.UpdatePosition(chi.URLParam(r, "portfolioID"), chi.URLParam(r, "positionID"), update)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, position)
}

// HandleRemovePosition deletes one position from a portfolio
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemovePosition(chi.URLParam(r, "portfolioID"), chi.URLParam(r, "positionID"))
	if err != nil {
		h.writeNotFoundOr500(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeNotFoundOr500(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
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
