package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
)

func characterID(r *http.Request) (int64, error) {
	return pathID(r, "char", "no_access")
}

func characterURL(member, char int64) string {
	return fmt.Sprintf("/profile/%d/characters/%d", member, char)
}

func (h *ProfileHandler) Groups(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Groups(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "groups", page)
}

func (h *ProfileHandler) GroupAction(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.GroupActionInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	key, err := h.svc.GroupAction(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "groups"), key, nil)
}

func (h *ProfileHandler) GroupRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.GroupRequests(r.Context(), viewerFrom(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "group_requests", list)
}

type resolveRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

func (h *ProfileHandler) ResolveGroupRequest(w http.ResponseWriter, r *http.Request) {
	req, err := pathID(r, "request", "no_such_request")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in resolveRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.ResolveGroupRequest(r.Context(), viewerFrom(r.Context()), req, in.Approve, in.Reason); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/groups/requests", "group_request_resolved", nil)
}

func (h *ProfileHandler) WarningForm(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	bounds, err := h.svc.WarningForm(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "issue_warning", bounds)
}

func (h *ProfileHandler) IssueWarning(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.WarningInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	res, err := h.svc.IssueWarning(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "view_warnings"), "warning_issued", res, res.Level)
}

func (h *ProfileHandler) ViewWarnings(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.ViewWarnings(r.Context(), viewerFrom(r.Context()), id, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "view_warnings", page)
}

func (h *ProfileHandler) Characters(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	list, err := h.svc.Characters(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "characters", list)
}

func (h *ProfileHandler) Character(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	c, err := h.svc.Character(r.Context(), viewerFrom(r.Context()), id, char)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "characters", c)
}

func (h *ProfileHandler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.CharacterInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	c, err := h.svc.CreateCharacter(r.Context(), viewerFrom(r.Context()), id, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, characterURL(id, c.ID), "character_created", c)
}

func (h *ProfileHandler) EditCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in profile.CharacterInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	changes, err := h.svc.EditCharacter(r.Context(), viewerFrom(r.Context()), id, char, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, characterURL(id, char), "saved", changes)
}

type moveRequest struct {
	To int64 `json:"to"`
}

// CharacterAction handles delete, retire, unretire, switch and move.
func (h *ProfileHandler) CharacterAction(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	ctx, v := r.Context(), viewerFrom(r.Context())
	switch mux.Vars(r)["action"] {
	case "delete":
		err = h.svc.DeleteCharacter(ctx, v, id, char)
		if err == nil {
			done(w, r, areaURL(id, "characters"), "character_deleted", nil)
			return
		}
	case "retire", "unretire":
		err = h.svc.SetRetired(ctx, v, id, char, mux.Vars(r)["action"] == "retire")
		if err == nil {
			done(w, r, characterURL(id, char), "saved", nil)
			return
		}
	case "switch":
		c, serr := h.svc.SwitchCharacter(ctx, v, id, char)
		if serr == nil {
			done(w, r, characterURL(id, char), "character_switched", c, c.Name)
			return
		}
		err = serr
	case "move":
		var in moveRequest
		if err = decode(w, r, &in); err == nil {
			err = h.svc.MoveCharacter(ctx, v, id, char, in.To)
		}
		if err == nil {
			done(w, r, characterURL(in.To, char), "saved", nil)
			return
		}
	default:
		err = apperr.NotFound("invalid_request")
	}
	renderError(w, r, err)
}

type mergeRequest struct {
	Into int64 `json:"merge_into"`
}

func (h *ProfileHandler) Merge(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in mergeRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.MergeAccounts(r.Context(), viewerFrom(r.Context()), id, in.Into); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, fmt.Sprintf("/profile/%d", in.Into), "accounts_merged", nil)
}

func (h *ProfileHandler) Sheet(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Sheet(r.Context(), viewerFrom(r.Context()), id, char)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "character_sheet", page)
}

func (h *ProfileHandler) SheetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	versions, err := h.svc.SheetHistory(r.Context(), viewerFrom(r.Context()), id, char)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "character_sheet", versions)
}

type sheetRequest struct {
	Text    string `json:"message"`
	Comment string `json:"comment"`
}

// SheetAction handles edit, submit, approve, reject and comment.
func (h *ProfileHandler) SheetAction(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	char, err := characterID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	action := mux.Vars(r)["action"]
	var in sheetRequest
	if action != "submit" && action != "approve" {
		if err := decode(w, r, &in); err != nil {
			renderError(w, r, err)
			return
		}
	}
	ctx, v := r.Context(), viewerFrom(r.Context())
	var (
		key  string
		data any
	)
	switch action {
	case "edit":
		data, err = h.svc.EditSheet(ctx, v, id, char, in.Text)
		key = "sheet_saved"
	case "submit":
		err = h.svc.SubmitSheet(ctx, v, id, char)
		key = "sheet_submitted"
	case "approve":
		err = h.svc.ApproveSheet(ctx, v, id, char)
		key = "sheet_approved"
	case "reject":
		err = h.svc.RejectSheet(ctx, v, id, char, in.Comment)
		key = "sheet_rejected"
	case "comment":
		err = h.svc.CommentSheet(ctx, v, id, char, in.Comment)
		key = "saved"
	default:
		err = apperr.NotFound("invalid_request")
	}
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, characterURL(id, char)+"/sheet", key, data)
}

func (h *ProfileHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Subscriptions(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "subscriptions", page)
}

type subscribeRequest struct {
	Subscription int64  `json:"sub_id"`
	Gateway      string `json:"gateway"`
}

func (h *ProfileHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in subscribeRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	req, err := h.svc.Subscribe(r.Context(), viewerFrom(r.Context()), id, in.Subscription, in.Gateway)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if wantsHTML(r) && req.CheckoutURL != "" {
		http.Redirect(w, r, req.CheckoutURL, http.StatusSeeOther)
		return
	}
	done(w, r, areaURL(id, "subscriptions"), "subscription_pending", req)
}

func (h *ProfileHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	sublog, err := pathID(r, "sublog", "paid_sub_not_active")
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.CancelSubscription(r.Context(), viewerFrom(r.Context()), id, sublog); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, areaURL(id, "subscriptions"), "subscription_cancelled", nil)
}

// PaymentCallback receives a gateway's payment notification.
func (h *ProfileHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		renderError(w, r, apperr.BadRequest("invalid_request"))
		return
	}
	if err := h.svc.PaymentCallback(r.Context(), mux.Vars(r)["gateway"], body); err != nil {
		renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true})
}

// ConfirmPayment lets an administrator activate a manual payment.
func (h *ProfileHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	sublog, err := pathID(r, "sublog", "paid_sub_not_pending")
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.ConfirmPayment(r.Context(), viewerFrom(r.Context()), sublog); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/admin/subscriptions", "subscription_activated", nil)
}
