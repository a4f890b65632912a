package lang

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// LangParam is the query parameter used to pick a language.
	LangParam = "lang"
	// CookieName stores a guest's language choice.
	CookieName = "storybb_lang"
)

// Resolve picks the locale for a request. The order is: ?lang=, the
// member's saved language, the language cookie, Accept-Language, then
// fallback. The bool reports whether ?lang= was used and should be
// persisted.
func (b *Bundle) Resolve(r *http.Request, memberLang, fallback string) (string, bool) {
	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		if _, err := language.Parse(v); err == nil {
			return b.Normalize(v), true
		}
	}
	if memberLang != "" && b.Supports(memberLang) {
		return memberLang, false
	}
	if c, err := r.Cookie(CookieName); err == nil && b.Supports(c.Value) {
		return c.Value, false
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, conf := b.matcher.Match(tags...)
			if conf != language.No {
				return b.tags[idx].String(), false
			}
		}
	}
	return b.Normalize(fallback), false
}

// SetCookie persists the chosen locale.
func SetCookie(w http.ResponseWriter, locale string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    locale,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
