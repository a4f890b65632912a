package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
)

type ctxKey string

const (
	ctxViewer  ctxKey = "viewer"
	ctxSession ctxKey = "session"
	ctxLocale  ctxKey = "locale"
)

// CSRFHeader carries the session id on cookie-authenticated writes.
const CSRFHeader = "X-CSRF-Token"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// session describes how the request authenticated.
type session struct {
	SID    string
	Bearer bool
}

func viewerFrom(ctx context.Context) *permissions.Viewer {
	if v, ok := ctx.Value(ctxViewer).(*permissions.Viewer); ok {
		return v
	}
	return permissions.Guest()
}

func sessionFrom(ctx context.Context) session {
	s, _ := ctx.Value(ctxSession).(session)
	return s
}

func localeFrom(ctx context.Context) string {
	if l, ok := ctx.Value(ctxLocale).(string); ok {
		return l
	}
	return lang.BaseLocale
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.Int64("member", viewerFrom(r.Context()).MemberID),
		)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+CSRFHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// SessionMiddleware resolves the viewer from a bearer token or the session
// cookie. Requests without a valid token continue as guests.
func SessionMiddleware(tokens *auth.Tokens, checker *permissions.Checker, cookieName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				tokenString string
				bearer      bool
			)
			if h := r.Header.Get("Authorization"); h != "" {
				if _, err := fmt.Sscanf(h, "Bearer %s", &tokenString); err != nil {
					logger.Debug("failed to parse Authorization header", slog.Any("err", err))
				}
				bearer = true
			} else if c, err := r.Cookie(cookieName); err == nil {
				tokenString = c.Value
			}

			var (
				memberID int64
				sess     session
			)
			if tokenString != "" {
				claims, err := tokens.Parse(tokenString)
				switch {
				case err == nil:
					memberID = claims.MemberID
					sess = session{SID: claims.SID, Bearer: bearer}
				case bearer:
					writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token", "session_expired", nil)
					return
				default:
					clearSessionCookie(w, cookieName)
				}
			}

			v, err := checker.Viewer(r.Context(), memberID)
			if err != nil {
				logger.Error("load viewer", slog.Int64("member", memberID), slog.Any("err", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if v.IsGuest() {
				sess = session{}
			}
			v.IP = clientIP(r)

			ctx := context.WithValue(r.Context(), ctxViewer, v)
			ctx = context.WithValue(ctx, ctxSession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CSRFMiddleware rejects cookie-authenticated writes whose X-CSRF-Token
// header (or csrf form field) does not match the session id. Bearer and
// guest requests pass through.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		sess := sessionFrom(r.Context())
		if sess.SID == "" || sess.Bearer {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(CSRFHeader)
		if token == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			token = r.PostFormValue("csrf")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(sess.SID)) != 1 {
			renderError(w, r, apperr.Forbidden("session_verify_fail"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LanguageMiddleware picks the request locale and persists an explicit
// ?lang= choice in a cookie.
func LanguageMiddleware(bundle *lang.Bundle, fallback string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := viewerFrom(r.Context())
			locale, persist := bundle.Resolve(r, v.Language, fallback)
			if persist {
				lang.SetCookie(w, locale)
			}
			w.Header().Set("Content-Language", locale)
			ctx := withBundle(r.Context(), bundle)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxLocale, locale)))
		})
	}
}

// TracingMiddleware starts a server span named after the matched route.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/StoryBB/StoryBB-sub005/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(
			attribute.Int("http.response.status_code", rec.status),
			attribute.Int64("storybb.member", viewerFrom(ctx).MemberID),
		)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}
