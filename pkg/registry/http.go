package registry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/projects", h.handleCreateProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}", h.handleGetProject).Methods(http.MethodGet)
	r.HandleFunc("/integrations", h.handleCreateIntegration).Methods(http.MethodPost)
	r.HandleFunc("/integrations/{id}", h.handleGetIntegration).Methods(http.MethodGet)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string                 `json:"code"`
		Name     string                 `json:"name"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Name == "" {
		http.Error(w, "code and name are required", http.StatusBadRequest)
		return
	}

	project, err := h.repo.CreateProject(r.Context(), CreateProjectInput{
		Code:     req.Code,
		Name:     req.Name,
		Metadata: req.Metadata,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create project")
		http.Error(w, "failed to create project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}

	project, err := h.repo.GetProject(r.Context(), id)
	if errors.Is(err, ErrProjectNotFound) {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load project")
		http.Error(w, "failed to load project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *Handler) handleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project uuid.UUID              `json:"project"`
		Kind    string                 `json:"kind"`
		Details map[string]interface{} `json:"details"`
		Active  bool                   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	switch req.Kind {
	case KindTicketing, KindForms, KindMessaging:
	default:
		http.Error(w, "unknown integration kind", http.StatusBadRequest)
		return
	}
	if req.Project == uuid.Nil {
		http.Error(w, "project is required", http.StatusBadRequest)
		return
	}

	integration, err := h.repo.CreateIntegration(r.Context(), CreateIntegrationInput{
		ProjectID: req.Project,
		Kind:      req.Kind,
		Details:   req.Details,
		Active:    req.Active,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create integration")
		http.Error(w, "failed to create integration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, integration)
}

func (h *Handler) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid integration id", http.StatusBadRequest)
		return
	}

	integration, err := h.repo.GetIntegration(r.Context(), id)
	if errors.Is(err, ErrIntegrationNotFound) {
		http.Error(w, "integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load integration")
		http.Error(w, "failed to load integration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, integration)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
