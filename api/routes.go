package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/StoryBB/StoryBB-sub005/internal/admin"
	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/config"
	"github.com/StoryBB/StoryBB-sub005/internal/forum"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Config    *config.Config
	Bundle    *lang.Bundle
	Checker   *permissions.Checker
	Tokens    *auth.Tokens
	Auth      *auth.Service
	Profile   *profile.Service
	Forum     *forum.Service
	Admin     *admin.Service
	DB        Pinger
	Version   string
	BuildTime string
}

func SetupRoutes(d Deps) http.Handler {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RecoveryMiddleware)
	r.Use(CORSMiddleware)
	r.Use(SessionMiddleware(d.Tokens, d.Checker, d.Config.CookieName))
	r.Use(LoggingMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LanguageMiddleware(d.Bundle, d.Config.DefaultLanguage))
	r.Use(CSRFMiddleware)

	// Create handlers
	systemHandler := NewSystemHandler(d.DB)
	authHandler := NewAuthHandler(d.Auth, d.Config.CookieName, d.Config.CookieSecure)
	profileHandler := NewProfileHandler(d.Profile)
	boardsHandler := NewBoardsHandler(d.Forum)
	adminHandler := NewAdminHandler(d.Admin)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	r.HandleFunc("/index.php", Legacy).Methods("GET")
	r.HandleFunc("/subscriptions/callback/{gateway}", profileHandler.PaymentCallback).Methods("POST")

	// Boards
	r.HandleFunc("/boards", boardsHandler.Index).Methods("GET")
	r.HandleFunc("/boards/{board:[0-9]+}", boardsHandler.Board).Methods("GET")
	r.HandleFunc("/boards/{board:[0-9]+}/topics", boardsHandler.NewTopic).Methods("POST")
	r.HandleFunc("/boards/{board:[0-9]+}/watch", boardsHandler.WatchBoard).Methods("POST")
	r.HandleFunc("/topics/{topic:[0-9]+}", boardsHandler.Topic).Methods("GET")
	r.HandleFunc("/topics/{topic:[0-9]+}/reply", boardsHandler.Reply).Methods("POST")
	r.HandleFunc("/topics/{topic:[0-9]+}/watch", boardsHandler.WatchTopic).Methods("POST")

	// Group requests
	r.HandleFunc("/groups/requests", profileHandler.GroupRequests).Methods("GET")
	r.HandleFunc("/groups/requests/{request:[0-9]+}", profileHandler.ResolveGroupRequest).Methods("POST")

	// Profile areas
	p := r.PathPrefix("/profile/{member:[0-9]+}").Subrouter()
	p.HandleFunc("", profileHandler.Summary).Methods("GET")
	p.HandleFunc("/summary", profileHandler.Summary).Methods("GET")
	p.HandleFunc("/account", profileHandler.Account).Methods("GET")
	p.HandleFunc("/account", profileHandler.SaveAccount).Methods("POST")
	p.HandleFunc("/forum_profile", profileHandler.ForumProfile).Methods("GET")
	p.HandleFunc("/forum_profile", profileHandler.SaveForumProfile).Methods("POST")
	p.HandleFunc("/preferences", profileHandler.Preferences).Methods("GET")
	p.HandleFunc("/preferences", profileHandler.SavePreferences).Methods("POST")
	p.HandleFunc("/notifications", profileHandler.Notifications).Methods("GET")
	p.HandleFunc("/notifications", profileHandler.SaveNotifications).Methods("POST")
	p.HandleFunc("/notifications/unwatch", profileHandler.Unwatch).Methods("POST")
	p.HandleFunc("/{kind:buddies|ignored}", profileHandler.Contacts).Methods("GET")
	p.HandleFunc("/{kind:buddies|ignored}", profileHandler.AddContacts).Methods("POST")
	p.HandleFunc("/{kind:buddies|ignored}/{contact:[0-9]+}/remove", profileHandler.RemoveContact).Methods("POST")
	p.HandleFunc("/ignore_boards", profileHandler.IgnoreBoards).Methods("GET")
	p.HandleFunc("/ignore_boards", profileHandler.SaveIgnoreBoards).Methods("POST")
	p.HandleFunc("/groups", profileHandler.Groups).Methods("GET")
	p.HandleFunc("/groups", profileHandler.GroupAction).Methods("POST")
	p.HandleFunc("/issue_warning", profileHandler.WarningForm).Methods("GET")
	p.HandleFunc("/issue_warning", profileHandler.IssueWarning).Methods("POST")
	p.HandleFunc("/view_warnings", profileHandler.ViewWarnings).Methods("GET")
	p.HandleFunc("/merge", profileHandler.Merge).Methods("POST")
	p.HandleFunc("/characters", profileHandler.Characters).Methods("GET")
	p.HandleFunc("/characters", profileHandler.CreateCharacter).Methods("POST")
	p.HandleFunc("/characters/{char:[0-9]+}", profileHandler.Character).Methods("GET")
	p.HandleFunc("/characters/{char:[0-9]+}", profileHandler.EditCharacter).Methods("POST")
	p.HandleFunc("/characters/{char:[0-9]+}/sheet", profileHandler.Sheet).Methods("GET")
	p.HandleFunc("/characters/{char:[0-9]+}/sheet/history", profileHandler.SheetHistory).Methods("GET")
	p.HandleFunc("/characters/{char:[0-9]+}/sheet/{action:edit|submit|approve|reject|comment}", profileHandler.SheetAction).Methods("POST")
	p.HandleFunc("/characters/{char:[0-9]+}/{action:delete|retire|unretire|switch|move}", profileHandler.CharacterAction).Methods("POST")
	p.HandleFunc("/subscriptions", profileHandler.Subscriptions).Methods("GET")
	p.HandleFunc("/subscriptions", profileHandler.Subscribe).Methods("POST")
	p.HandleFunc("/subscriptions/{sublog:[0-9]+}/cancel", profileHandler.CancelSubscription).Methods("POST")
	p.HandleFunc("/alerts", profileHandler.Alerts).Methods("GET")
	p.HandleFunc("/alerts/read", profileHandler.MarkAlertsRead).Methods("POST")
	p.HandleFunc("/alerts/{alert:[0-9]+}/delete", profileHandler.DeleteAlert).Methods("POST")
	p.HandleFunc("/show_posts", profileHandler.ShowPosts).Methods("GET")
	p.HandleFunc("/profile_changes", profileHandler.ProfileChanges).Methods("GET")

	// Administration
	a := r.PathPrefix("/admin").Subrouter()
	a.HandleFunc("/settings", adminHandler.Settings).Methods("GET")
	a.HandleFunc("/settings", adminHandler.SaveSettings).Methods("POST")
	a.HandleFunc("/custom_fields", adminHandler.CustomFields).Methods("GET")
	a.HandleFunc("/custom_fields", adminHandler.CreateCustomField).Methods("POST")
	a.HandleFunc("/custom_fields/{field:[0-9]+}/delete", adminHandler.DeleteCustomField).Methods("POST")
	a.HandleFunc("/subscriptions", adminHandler.Plans).Methods("GET")
	a.HandleFunc("/subscriptions", adminHandler.CreatePlan).Methods("POST")
	a.HandleFunc("/subscriptions/{sublog:[0-9]+}/confirm", profileHandler.ConfirmPayment).Methods("POST")
	a.HandleFunc("/logs/{log}", adminHandler.Log).Methods("GET")

	r.NotFoundHandler = LanguageMiddleware(d.Bundle, d.Config.DefaultLanguage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, r, apperr.NotFound("page_not_found"))
	}))

	return handlers.ProxyHeaders(handlers.CompressHandler(r))
}
