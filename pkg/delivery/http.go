package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ReportStore interface {
	Get(ctx context.Context, id uuid.UUID) (*reports.ReportModel, error)
}

type IntegrationStore interface {
	ActiveIntegration(ctx context.Context, projectID uuid.UUID, kind string) (*registry.IntegrationModel, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error
}

// Handler exposes the delivery surface: the user-facing message post, which
// resolves the target integration server-side, and the admin listing.
type Handler struct {
	repo         *Repository
	reportStore  ReportStore
	integrations IntegrationStore
	queue        Enqueuer
}

func NewHandler(repo *Repository, reportStore ReportStore, integrations IntegrationStore, q Enqueuer) *Handler {
	return &Handler{repo: repo, reportStore: reportStore, integrations: integrations, queue: q}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/messages", h.handlePostMessage).Methods(http.MethodPost)
	r.HandleFunc("/deliveries", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/deliveries/{id}", h.handleGet).Methods(http.MethodGet)
}

type postMessageRequest struct {
	Report     uuid.UUID `json:"report"`
	Message    string    `json:"message"`
	ContactKey string    `json:"contact_key"`
	FromAddr   string    `json:"from_addr"`
}

// handlePostMessage lets a user push a reply onto a report's ticket. The
// integration and target kind are filled in server-side from the report's
// project; callers never pick the integration themselves.
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Report == uuid.Nil || req.Message == "" {
		http.Error(w, "report and message are required", http.StatusBadRequest)
		return
	}

	report, err := h.reportStore.Get(r.Context(), req.Report)
	if errors.Is(err, reports.ErrReportNotFound) {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load report for message post")
		http.Error(w, "failed to load report", http.StatusInternalServerError)
		return
	}

	integration, err := h.integrations.ActiveIntegration(r.Context(), report.ProjectID, registry.KindTicketing)
	if errors.Is(err, registry.ErrIntegrationNotFound) {
		http.Error(w, "project has no active ticketing integration", http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to resolve ticketing integration")
		http.Error(w, "failed to resolve integration", http.StatusInternalServerError)
		return
	}

	record, err := h.repo.Create(r.Context(), CreateInput{
		IntegrationID: integration.ID,
		ReportID:      &report.ID,
		Kind:          registry.KindTicketing,
		Message:       req.Message,
		ContactKey:    req.ContactKey,
		FromAddr:      req.FromAddr,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create delivery")
		http.Error(w, "failed to create delivery", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Enqueue(r.Context(), queue.JobDispatchDelivery, map[string]interface{}{
		"delivery_id": record.ID.String(),
	}, 0); err != nil {
		logger.Log.WithError(err).WithField("delivery_id", record.ID).
			Error("failed to enqueue dispatch")
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	records, err := h.repo.List(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list deliveries")
		http.Error(w, "failed to list deliveries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": records})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid delivery id", http.StatusBadRequest)
		return
	}

	record, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, ErrDeliveryNotFound) {
		http.Error(w, "delivery not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load delivery")
		http.Error(w, "failed to load delivery", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
