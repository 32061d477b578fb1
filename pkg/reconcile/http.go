package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/gorilla/mux"
)

type Handler struct {
	listener *Listener
}

func NewHandler(listener *Listener) *Handler {
	return &Handler{listener: listener}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/webhook", h.handleWebhook).Methods(http.MethodPost)
}

// handleWebhook accepts the ticketing service's form-encoded callback:
// event, note[content], note[ticket][nonce].
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAck(w, http.StatusBadRequest, Ack{Accepted: false, Reason: "malformed form body"})
		return
	}

	event := r.PostFormValue("event")
	note := Note{
		Content:     r.PostFormValue("note[content]"),
		TicketToken: r.PostFormValue("note[ticket][nonce]"),
	}

	ack, err := h.listener.HandleWebhook(r.Context(), event, note)
	switch {
	case errors.Is(err, ErrUnsupportedEvent):
		writeAck(w, http.StatusBadRequest, ack)
	case err != nil:
		logger.Log.WithError(err).Error("webhook reconciliation failed")
		writeAck(w, http.StatusInternalServerError, Ack{Accepted: false, Reason: "reconciliation failed"})
	default:
		writeAck(w, http.StatusOK, ack)
	}
}

func writeAck(w http.ResponseWriter, status int, ack Ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ack)
}
