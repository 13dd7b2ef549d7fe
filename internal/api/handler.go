// Package api exposes the registry and marketplace over HTTP. Caller
// identity arrives in the X-Agent-ID header, the HTTP-edge analogue of the
// transaction signer; authorization decisions stay in the services.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kaldra/agora/internal/marketplace"
	"github.com/kaldra/agora/internal/registry"
	"go.uber.org/zap"
)

// callerHeader names the self-attested caller identity header.
const callerHeader = "X-Agent-ID"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *registry.Service
	market   *marketplace.Service
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(reg *registry.Service, market *marketplace.Service, logger *zap.Logger) *Handler {
	return &Handler{registry: reg, market: market, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", callerHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Agent registry
		r.Post("/agents", h.registerAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Patch("/agents/{id}", h.updateAgent)
		r.Post("/agents/{id}/active", h.setAgentActive)
		r.Post("/agents/{id}/reputation", h.applyReputation)
		r.Get("/agents/{id}/reputation", h.reputationHistory)
		r.Post("/agents/{id}/services", h.recordServiceOutcome)

		// Marketplace listings
		r.Post("/listings", h.createListing)
		r.Get("/listings", h.listListings)
		r.Get("/listings/{id}", h.getListing)
		r.Patch("/listings/{id}", h.updateListing)
		r.Delete("/listings/{id}", h.deactivateListing)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "agora"})
}

// caller extracts the caller identity header; empty means unauthenticated.
func caller(r *http.Request) string {
	return r.Header.Get(callerHeader)
}

type registerRequest struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	ServiceTypes []int    `json:"service_types"`
}

func (h *Handler) registerAgent(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + callerHeader + " header"})
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := h.registry.Register(r.Context(), id, req.Name, req.Capabilities, req.ServiceTypes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type updateAgentRequest struct {
	Name         *string   `json:"name"`
	Capabilities *[]string `json:"capabilities"`
	ServiceTypes *[]int    `json:"service_types"`
}

func (h *Handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.registry.UpdateMetadata(r.Context(), caller(r), id, req.Name, req.Capabilities, req.ServiceTypes); err != nil {
		h.writeError(w, err)
		return
	}
	a, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setAgentActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.registry.SetActive(r.Context(), caller(r), id, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type reputationRequest struct {
	Change    int64  `json:"change"`
	Reason    string `json:"reason"`
	ServiceID string `json:"service_id,omitempty"`
}

func (h *Handler) applyReputation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reputationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	newScore, err := h.registry.ApplyChange(r.Context(), caller(r), id, req.Change, registry.Reason(req.Reason), req.ServiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"new_score": newScore})
}

func (h *Handler) reputationHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := h.registry.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"events":   events,
	})
}

type serviceOutcomeRequest struct {
	Success bool   `json:"success"`
	Earned  uint64 `json:"earned"`
}

func (h *Handler) recordServiceOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req serviceOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.registry.RecordServiceOutcome(r.Context(), caller(r), id, req.Success, req.Earned); err != nil {
		h.writeError(w, err)
		return
	}
	a, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	var in marketplace.CreateListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	l, err := h.market.CreateListing(r.Context(), caller(r), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.market.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) listListings(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	serviceType := 0
	if st := r.URL.Query().Get("service_type"); st != "" {
		v, err := strconv.Atoi(st)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid service_type"})
			return
		}
		serviceType = v
	}
	listings, err := h.market.ListListings(r.Context(), activeOnly, serviceType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

type updateListingRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Price        *uint64 `json:"price"`
	DeliveryTime *int64  `json:"delivery_time"`
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.market.UpdateListing(r.Context(), caller(r), id, req.Title, req.Description, req.Price, req.DeliveryTime); err != nil {
		h.writeError(w, err)
		return
	}
	l, err := h.market.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) deactivateListing(w http.ResponseWriter, r *http.Request) {
	if err := h.market.DeactivateListing(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrValidation),
		errors.Is(err, marketplace.ErrValidation),
		errors.Is(err, registry.ErrBadReason):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrAlreadyRegistered):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, marketplace.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, marketplace.ErrUnauthorized),
		errors.Is(err, marketplace.ErrProviderNotRegistered),
		errors.Is(err, marketplace.ErrProviderInactive):
		status = http.StatusForbidden
	default:
		h.logger.Error("internal error", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
