package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
)

// legacyAreas maps old profile area names onto current paths.
var legacyAreas = map[string]string{
	"":                 "summary",
	"summary":          "summary",
	"account":          "account",
	"forumprofile":     "forum_profile",
	"theme":            "preferences",
	"preferences":      "preferences",
	"notification":     "notifications",
	"alerts_popup":     "alerts",
	"showalerts":       "alerts",
	"lists":            "buddies",
	"ignoreboards":     "ignore_boards",
	"groupmembership":  "groups",
	"issuewarning":     "issue_warning",
	"viewwarning":      "view_warnings",
	"showposts":        "show_posts",
	"characters":       "characters",
	"subscriptions":    "subscriptions",
	"profile_changes":  "profile_changes",
	"account_changes":  "profile_changes",
	"character_sheet":  "characters",
	"characters_popup": "characters",
}

// legacyQuery splits a query string on both ';' and '&'.
func legacyQuery(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '&' }) {
		k, v, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		if v, err = url.QueryUnescape(v); err != nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Legacy redirects index.php?action=profile;area=...;u=... URLs.
func Legacy(w http.ResponseWriter, r *http.Request) {
	q := legacyQuery(r.URL.RawQuery)
	switch q["action"] {
	case "profile":
		// unknown areas land on the summary
		area := legacyAreas[q["area"]]
		if area == "" {
			area = "summary"
		}
		u, err := strconv.ParseInt(q["u"], 10, 64)
		if err != nil || u <= 0 {
			u = viewerFrom(r.Context()).MemberID
		}
		if u <= 0 {
			renderError(w, r, apperr.NotFound("not_a_user"))
			return
		}
		target := fmt.Sprintf("/profile/%d", u)
		if area != "summary" {
			target += "/" + area
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	case "", "forum":
		http.Redirect(w, r, "/boards", http.StatusMovedPermanently)
	default:
		renderError(w, r, apperr.NotFound("invalid_request"))
	}
}
