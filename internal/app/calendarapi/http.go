package calendarapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/calendar-1m/project/internal/app/calendarview"
	"github.com/calendar-1m/project/internal/app/identity"
	"github.com/calendar-1m/project/internal/app/reminder"
	platformauth "github.com/calendar-1m/project/internal/platform/auth"
	"github.com/calendar-1m/project/internal/platform/logging"
	"github.com/calendar-1m/project/internal/platform/metrics"
	"github.com/calendar-1m/project/services/frontend"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Identity      *identity.Service
	Sessions      *calendarview.Registry
	Scheduler     reminder.Scheduler
	Location      *time.Location
	AllowedOrigin string
	// Ready reports backend health for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Now    func() time.Time
	Logger *slog.Logger
}

func NewHandler(identitySvc *identity.Service, sessions *calendarview.Registry, allowedOrigin string) *Handler {
	return &Handler{
		Identity:      identitySvc,
		Sessions:      sessions,
		Location:      time.UTC,
		AllowedOrigin: allowedOrigin,
		Now:           time.Now,
		Logger:        logging.Discard(),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Handle("/metrics", metrics.DefaultHandler())

	r.Handle("/", templ.Handler(frontend.LoginPage()))
	r.Handle("/login", templ.Handler(frontend.LoginPage()))
	r.Handle("/app", templ.Handler(frontend.CalendarPage()))
	r.Handle("/static/*", http.StripPrefix("/static/", frontend.StaticHandler()))

	r.Post("/api/v1/auth/register", h.handleRegister)
	r.Post("/api/v1/auth/login", h.handleLogin)
	r.Post("/api/v1/auth/refresh", h.handleRefresh)
	r.Post("/api/v1/auth/logout", h.handleLogout)
	r.Post("/api/v1/auth/form", h.handleAuthForm)

	// The stream authenticates itself so EventSource can pass ?token=.
	r.Get("/events", h.handleStream)
	r.Get("/events/disconnect", h.handleDisconnect)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)
		authR.Get("/api/v1/events", h.handleListEvents)
		authR.Post("/api/v1/events", h.handleCreateEvent)
		authR.Put("/api/v1/events/{eventID}", h.handleUpdateEvent)
		authR.Patch("/api/v1/events/{eventID}", h.handlePatchEvent)
		authR.Delete("/api/v1/events/{eventID}", h.handleDeleteEvent)
		authR.Get("/api/v1/events.ics", h.handleExportICS)
		authR.Post("/api/v1/slots", h.handleSelectSlot)
		authR.Get("/api/v1/reminders", h.handleReminders)
		authR.Get("/api/v1/calendar/month", h.handleMonth)
		authR.Get("/api/v1/notifications/current", h.handleCurrentNotification)
		authR.Post("/api/v1/notifications/{notificationID}/close", h.handleCloseNotification)
	})

	return r
}

func (h *Handler) now() time.Time {
	return h.Now().In(h.location())
}

func (h *Handler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	h.handleHealthz(w, r)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authFormRequest struct {
	Mode     string `json:"mode"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleAuthForm backs the login page: one endpoint for both modes, failures
// carry the text shown above the form.
func (h *Handler) handleAuthForm(w http.ResponseWriter, r *http.Request) {
	var req authFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var (
		resp identity.AuthResponse
		err  error
	)
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case identity.FormModeRegister:
		resp, err = h.Identity.Register(r.Context(), req.Email, req.Password)
	case identity.FormModeLogin, "":
		mode = identity.FormModeLogin
		resp, err = h.Identity.Login(r.Context(), req.Email, req.Password)
	default:
		h.writeError(w, http.StatusBadRequest, "mode must be login or register")
		return
	}
	if err != nil {
		h.Logger.Warn("auth form failed", "mode", mode, "err", err)
		failure := identity.DescribeFailure(mode, err)
		status := http.StatusBadRequest
		switch {
		case mode == identity.FormModeLogin:
			status = http.StatusUnauthorized
		case errors.Is(err, identity.ErrEmailTaken):
			status = http.StatusConflict
		}
		h.writeError(w, status, failure.Message)
		return
	}
	status := http.StatusOK
	if mode == identity.FormModeRegister {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, datastar-request")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" {
		return "*"
	}
	if allowed == "*" {
		return allowed
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed {
		return origin
	}
	if isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Identity.AuthToken.Parse(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

// claimsFromQueryOrHeader authenticates requests that cannot set headers.
func (h *Handler) claimsFromQueryOrHeader(w http.ResponseWriter, r *http.Request) (platformauth.Claims, bool) {
	token := platformauth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return platformauth.Claims{}, false
	}
	claims, err := h.Identity.AuthToken.Parse(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return platformauth.Claims{}, false
	}
	return claims, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}
