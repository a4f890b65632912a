package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/StoryBB/StoryBB-sub005/internal/admin"
	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// AdminHandler serves the administration center.
type AdminHandler struct {
	svc *admin.Service
}

func NewAdminHandler(svc *admin.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Settings(r.Context(), viewerFrom(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "admin_settings", list)
}

type settingsRequest struct {
	Values map[string]string `json:"settings"`
}

func (h *AdminHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var in settingsRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	changes, err := h.svc.SaveSettings(r.Context(), viewerFrom(r.Context()), in.Values)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/admin/settings", "saved", changes)
}

func (h *AdminHandler) CustomFields(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.CustomFields(r.Context(), viewerFrom(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "admin_custom_fields", list)
}

func (h *AdminHandler) CreateCustomField(w http.ResponseWriter, r *http.Request) {
	var in models.CustomField
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	f, err := h.svc.CreateCustomField(r.Context(), viewerFrom(r.Context()), in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/admin/custom_fields", "saved", f)
}

func (h *AdminHandler) DeleteCustomField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "field", "custom_field_not_found")
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.DeleteCustomField(r.Context(), viewerFrom(r.Context()), id); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/admin/custom_fields", "saved", nil)
}

func (h *AdminHandler) Plans(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Plans(r.Context(), viewerFrom(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "admin_subscriptions", list)
}

func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in models.Subscription
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	p, err := h.svc.CreatePlan(r.Context(), viewerFrom(r.Context()), in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/admin/subscriptions", "saved", p)
}

type logPage struct {
	Entries []models.ActionLog `json:"entries"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
}

// Log pages through the admin or moderation log with ?offset=.
func (h *AdminHandler) Log(w http.ResponseWriter, r *http.Request) {
	var logType int
	switch mux.Vars(r)["log"] {
	case "admin":
		logType = models.LogAdmin
	case "moderation":
		logType = models.LogModeration
	default:
		renderError(w, r, apperr.NotFound("invalid_request"))
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	rows, total, err := h.svc.AdminLog(r.Context(), viewerFrom(r.Context()), logType, 30, offset)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "admin_log", logPage{Entries: rows, Total: total, Offset: offset})
}
