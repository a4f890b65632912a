package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/view"
)

const (
	ctxBundle ctxKey = "bundle"

	flashCookie = "storybb_flash"
)

func withBundle(ctx context.Context, b *lang.Bundle) context.Context {
	return context.WithValue(ctx, ctxBundle, b)
}

// tr translates key for the request locale.
func tr(r *http.Request, key string, args ...any) string {
	b, ok := r.Context().Value(ctxBundle).(*lang.Bundle)
	if !ok || b == nil {
		return key
	}
	return b.T(localeFrom(r.Context()), key, args...)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

type problemField struct {
	Field   string `json:"field"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

type problem struct {
	Status int            `json:"status"`
	Title  string         `json:"title"`
	Detail string         `json:"detail"`
	Key    string         `json:"key,omitempty"`
	Errors []problemField `json:"errors,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail, key string, fields []problemField) {
	writeJSON(w, status, problem{Status: status, Title: title, Detail: detail, Key: key, Errors: fields})
}

// renderError turns err into a translated problem document or error page.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	title := tr(r, "error_title")
	var (
		key    string
		detail string
		fields []problemField
	)
	var le *apperr.LangError
	var ve *apperr.Validation
	switch {
	case errors.As(err, &le):
		key = le.Key
		detail = tr(r, le.Key, le.Args...)
	case errors.As(err, &ve):
		key = "validation_failed"
		msgs := make([]string, 0, len(ve.Errors))
		for _, fe := range ve.Errors {
			msg := tr(r, fe.Key, fe.Args...)
			fields = append(fields, problemField{Field: fe.Field, Key: fe.Key, Message: msg})
			msgs = append(msgs, msg)
		}
		detail = strings.Join(msgs, " ")
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		key = "error_occurred"
		detail = tr(r, key)
	}

	if wantsHTML(r) {
		p := chrome(w, r, title)
		templ.Handler(view.Layout(p, view.ErrorPage(p, title, detail)), templ.WithStatus(status)).ServeHTTP(w, r)
		return
	}
	writeProblem(w, status, title, detail, key, fields)
}

type envelope struct {
	Page    string `json:"page"`
	Context any    `json:"context"`
}

// render shows a page context as HTML or as a JSON envelope.
func render(w http.ResponseWriter, r *http.Request, page string, data any) {
	if wantsHTML(r) {
		p := chrome(w, r, tr(r, "area_"+page))
		templ.Handler(view.Render(p, data)).ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Page: page, Context: data})
}

type result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// done finishes a successful write: HTML clients get a flash message and a
// redirect, API clients the translated message and result.
func done(w http.ResponseWriter, r *http.Request, redirect, flashKey string, data any, args ...any) {
	msg := ""
	if flashKey != "" {
		msg = tr(r, flashKey, args...)
	}
	if wantsHTML(r) {
		if msg != "" {
			setFlash(w, msg)
		}
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Message: msg, Result: data})
}

func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the flash cookie.
func takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	b, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return ""
	}
	return string(b)
}

func chrome(w http.ResponseWriter, r *http.Request, title string) view.Page {
	v := viewerFrom(r.Context())
	p := view.Page{
		Title:    title,
		Lang:     localeFrom(r.Context()),
		Viewer:   v.Name,
		MemberID: v.MemberID,
		Flash:    takeFlash(w, r),
		CSRF:     sessionFrom(r.Context()).SID,
		T:        func(key string, args ...any) string { return tr(r, key, args...) },
	}
	if v.Timezone != "" {
		if loc, err := time.LoadLocation(v.Timezone); err == nil {
			p.Location = loc
		}
	}
	return p
}

func setSessionCookie(w http.ResponseWriter, name, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}
