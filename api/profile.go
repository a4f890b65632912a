package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// ProfileHandler serves the /profile/{member}/{area} controllers.
type ProfileHandler struct {
	svc *profile.Service
}

func NewProfileHandler(svc *profile.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// pathID parses a numeric route variable; malformed ids are reported as
// missing with notFoundKey.
func pathID(r *http.Request, name, notFoundKey string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NotFound(notFoundKey)
	}
	return id, nil
}

func memberID(r *http.Request) (int64, error) {
	return pathID(r, "member", "not_a_user")
}

func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return n
}

func areaURL(member int64, area string) string {
	return fmt.Sprintf("/profile/%d/%s", member, area)
}

func (h *ProfileHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Summary(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "summary", page)
}

func (h *ProfileHandler) Account(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Account(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "account", page)
}

func (h *ProfileHandler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.AccountInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	changes, err := h.svc.SaveAccount(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "account"), "saved", changes)
}

func (h *ProfileHandler) ForumProfile(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.ForumProfile(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "forum", page)
}

func (h *ProfileHandler) SaveForumProfile(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.ForumProfileInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	changes, err := h.svc.SaveForumProfile(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "forum_profile"), "saved", changes)
}

func (h *ProfileHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Preferences(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "preferences", page)
}

func (h *ProfileHandler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.PreferencesInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	changes, err := h.svc.SavePreferences(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "preferences"), "saved", changes)
}

func (h *ProfileHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Notifications(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "notifications", page)
}

// notificationsRequest takes numbers or quoted numbers, as form entries
// arrive as strings.
type notificationsRequest struct {
	Prefs map[string]json.Number `json:"prefs"`
}

func (h *ProfileHandler) SaveNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in notificationsRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	prefs := make(map[string]int, len(in.Prefs))
	for k, n := range in.Prefs {
		bits, err := n.Int64()
		if err != nil {
			renderError(w, r, apperr.BadRequest("invalid_request"))
			return
		}
		prefs[k] = int(bits)
	}
	if err := h.svc.SaveNotifications(r.Context(), viewerFrom(r.Context()), id, prefs); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "notifications"), "saved", nil)
}

func (h *ProfileHandler) Unwatch(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.UnwatchInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.Unwatch(r.Context(), viewerFrom(r.Context()), id, in); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "notifications"), "saved", nil)
}

// contactKinds maps the list area in the URL onto the stored contact kind.
var contactKinds = map[string]string{
	"buddies": models.ContactBuddy,
	"ignored": models.ContactIgnore,
}

func (h *ProfileHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	area := mux.Vars(r)["kind"]
	list, err := h.svc.Contacts(r.Context(), viewerFrom(r.Context()), id, contactKinds[area])
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, area, list)
}

type contactsRequest struct {
	Names string `json:"new_names"`
}

func (h *ProfileHandler) AddContacts(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	area := mux.Vars(r)["kind"]
	var in contactsRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	added, err := h.svc.AddContacts(r.Context(), viewerFrom(r.Context()), id, contactKinds[area], in.Names)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, area), "buddies_added", added)
}

func (h *ProfileHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	contact, err := pathID(r, "contact", "no_such_contact")
	if err != nil {
		renderError(w, r, err)
		return
	}
	area := mux.Vars(r)["kind"]
	if err := h.svc.RemoveContact(r.Context(), viewerFrom(r.Context()), id, contactKinds[area], contact); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, area), "contact_removed", nil)
}

func (h *ProfileHandler) IgnoreBoards(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	boards, err := h.svc.IgnoreBoards(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "ignore_boards", boards)
}

type ignoreBoardsRequest struct {
	Boards []int64 `json:"ignore_brd"`
}

func (h *ProfileHandler) SaveIgnoreBoards(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in ignoreBoardsRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.SaveIgnoreBoards(r.Context(), viewerFrom(r.Context()), id, in.Boards); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "ignore_boards"), "saved", nil)
}

func (h *ProfileHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Alerts(r.Context(), viewerFrom(r.Context()), id, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "alerts", page)
}

type alertsReadRequest struct {
	IDs []int64 `json:"mark"`
}

// MarkAlertsRead marks the listed alerts read, or all of them when none
// are listed.
func (h *ProfileHandler) MarkAlertsRead(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in alertsReadRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	n, err := h.svc.MarkAlertsRead(r.Context(), viewerFrom(r.Context()), id, in.IDs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "alerts"), "alerts_marked_read", map[string]int64{"marked": n})
}

func (h *ProfileHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	alert, err := pathID(r, "alert", "no_such_alert")
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.DeleteAlert(r.Context(), viewerFrom(r.Context()), id, alert); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "alerts"), "alert_deleted", nil)
}

func (h *ProfileHandler) ShowPosts(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var character int64
	if c := r.URL.Query().Get("character"); c != "" {
		if character, err = strconv.ParseInt(c, 10, 64); err != nil {
			renderError(w, r, apperr.NotFound("no_access"))
			return
		}
	}
	page, err := h.svc.ShowPosts(r.Context(), viewerFrom(r.Context()), id, character, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "show_posts", page)
}

func (h *ProfileHandler) ProfileChanges(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.ProfileChanges(r.Context(), viewerFrom(r.Context()), id, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "profile_changes", page)
}
