package reports

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/reports", h.handleCreateReport).Methods(http.MethodPost)
	r.HandleFunc("/reports/{id}", h.handleGetReport).Methods(http.MethodGet)
	r.HandleFunc("/reports/{id}/categories", h.handleAssignCategories).Methods(http.MethodPut)
	r.HandleFunc("/categories", h.handleCreateCategory).Methods(http.MethodPost)
}

type createReportRequest struct {
	ContactKey  string     `json:"contact_key"`
	ToAddr      string     `json:"to_addr"`
	Project     uuid.UUID  `json:"project"`
	Description string     `json:"description,omitempty"`
	IncidentAt  *time.Time `json:"incident_at,omitempty"`
	Latitude    float64    `json:"latitude,omitempty"`
	Longitude   float64    `json:"longitude,omitempty"`
}

func (h *Handler) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.ContactKey == "" || req.ToAddr == "" || req.Project == uuid.Nil {
		http.Error(w, "contact_key, to_addr and project are required", http.StatusBadRequest)
		return
	}

	report, err := h.service.Create(r.Context(), CreateReportInput{
		ContactKey:  req.ContactKey,
		ToAddr:      req.ToAddr,
		ProjectID:   req.Project,
		Description: req.Description,
		IncidentAt:  req.IncidentAt,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create report")
		http.Error(w, "failed to create report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}

	report, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrReportNotFound) {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load report")
		http.Error(w, "failed to load report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAssignCategories(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}

	var req struct {
		Categories []uuid.UUID `json:"categories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	report, err := h.service.AssignCategories(r.Context(), id, req.Categories)
	switch {
	case errors.Is(err, ErrReportNotFound):
		http.Error(w, "report not found", http.StatusNotFound)
	case errors.Is(err, ErrCategoryNotFound):
		http.Error(w, "unknown category", http.StatusBadRequest)
	case err != nil:
		logger.Log.WithError(err).Error("failed to assign categories")
		http.Error(w, "failed to assign categories", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string                 `json:"name"`
		Order    int                    `json:"order"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), CreateCategoryInput{
		Name:     req.Name,
		Order:    req.Order,
		Metadata: req.Metadata,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create category")
		http.Error(w, "failed to create category", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
