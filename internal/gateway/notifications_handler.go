package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/chibi-storefront/internal/notify"
)

type NotificationsHandler struct {
	center *notify.Center
}

func NewNotificationsHandler(c *notify.Center) *NotificationsHandler {
	return &NotificationsHandler{center: c}
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.center.List())
}

func (h *NotificationsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.center.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
