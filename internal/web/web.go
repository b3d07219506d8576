package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"spondcal/internal/agenda"
	"spondcal/internal/config"
	appLog "spondcal/internal/log"
	"spondcal/internal/model"
	"spondcal/internal/render"
	"spondcal/internal/settings"
	"spondcal/internal/spond"
)

// Server exposes the agenda over HTTP: JSON APIs, an HTML page, a plain
// text view, an iCalendar feed and a settings API.
type Server struct {
	cfg   *config.Config
	svc   *agenda.Service
	store settings.Store
	mux   *http.ServeMux
	now   func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *agenda.Service, store settings.Store) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		store: store,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestIDMiddleware(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="spondcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an X-Request-ID, reusing the
// caller's if present, and logs the request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, svc *agenda.Service, store settings.Store) error {
	s := NewServer(cfg, svc, store)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/groups", s.handleGroups)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/agenda", s.handleAgendaPage)
	s.mux.HandleFunc("/agenda.txt", s.handleAgendaText)
	s.mux.HandleFunc("/agenda.ics", s.handleAgendaICS)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG of the agenda page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

// agendaRequest reads group, sorting and max_events from the query.
func agendaRequest(r *http.Request) agenda.Request {
	q := r.URL.Query()
	return agenda.Request{
		GroupID:   q.Get("group"),
		SortOrder: q.Get("sorting"),
		MaxEvents: parseIntDefault(q.Get("max_events"), 0),
	}
}

// handleEvents returns the agenda as JSON.
//
// GET /api/events?group=G1&sorting=desc&max_events=5
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	views, err := s.svc.Events(r.Context(), agendaRequest(r))
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, render.NewFeed(views, s.svc.Location().String()))
}

// handleGroups lists group ids for the selection UI. It never fails; an
// account without groups or credentials yields an empty list.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("detail") == "1" {
		groups, err := s.svc.Groups(r.Context())
		if err != nil {
			status, msg := errorStatus(err)
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, groups)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": s.svc.GroupIDs(r.Context())})
}

// handleAgendaPage renders the standalone HTML agenda. Missing
// credentials and API failures are shown as a message on the page.
func (s *Server) handleAgendaPage(w http.ResponseWriter, r *http.Request) {
	data := render.PageData{Zone: s.svc.Location().String()}

	views, err := s.svc.Events(r.Context(), agendaRequest(r))
	status := http.StatusOK
	if err != nil {
		status, data.Message = errorStatus(err)
		if errors.Is(err, agenda.ErrNoCredentials) {
			status = http.StatusOK
		}
	}
	data.Views = views

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := render.Page(w, data); err != nil {
		appLog.Error("render agenda page failed", err)
	}
}

func (s *Server) handleAgendaText(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Events(r.Context(), agendaRequest(r))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		status, msg := errorStatus(err)
		if errors.Is(err, agenda.ErrNoCredentials) {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(msg + "\n"))
		return
	}
	if err := render.Text(w, views); err != nil {
		appLog.Error("render agenda text failed", err)
	}
}

func (s *Server) handleAgendaICS(w http.ResponseWriter, r *http.Request) {
	req := agendaRequest(r)
	views, err := s.svc.Events(r.Context(), req)
	if err != nil {
		status, msg := errorStatus(err)
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := render.ICS(w, views, "Spond agenda", s.now()); err != nil {
		appLog.Error("render agenda ics failed", err)
	}
}

type settingsResponse struct {
	Email     string `json:"email"`
	LoggedIn  bool   `json:"logged_in"`
	GroupID   string `json:"group_id"`
	Sorting   string `json:"sorting"`
	MaxEvents int    `json:"max_events"`
}

// settingsUpdate fields are optional; only non-nil ones are written.
type settingsUpdate struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	GroupID   *string `json:"group_id"`
	Sorting   *string `json:"sorting"`
	MaxEvents *int    `json:"max_events"`
}

// handleSettings reads (GET) or updates (PUT/POST) the saved account and
// selection. The password is write-only.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPost:
		var upd settingsUpdate
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.applySettings(ctx, upd); err != nil {
			appLog.Error("settings update failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp, err := s.currentSettings(ctx)
	if err != nil {
		appLog.Error("settings read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) applySettings(ctx context.Context, upd settingsUpdate) error {
	if upd.Email != nil || upd.Password != nil {
		creds, err := settings.LoadCredentials(ctx, s.store)
		if err != nil {
			return err
		}
		if upd.Email != nil {
			creds.Email = *upd.Email
		}
		if upd.Password != nil {
			creds.Password = *upd.Password
		}
		if err := settings.SaveCredentials(ctx, s.store, creds); err != nil {
			return err
		}
	}

	if upd.GroupID != nil || upd.Sorting != nil || upd.MaxEvents != nil {
		sel, err := settings.LoadSelection(ctx, s.store, s.cfg.DisplayDefaults())
		if err != nil {
			return err
		}
		if upd.GroupID != nil {
			sel.GroupID = *upd.GroupID
		}
		if upd.Sorting != nil {
			sel.Display.SortOrder = model.SortOrder(*upd.Sorting)
		}
		if upd.MaxEvents != nil {
			sel.Display.MaxEvents = *upd.MaxEvents
		}
		if err := settings.SaveSelection(ctx, s.store, sel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) currentSettings(ctx context.Context) (settingsResponse, error) {
	creds, err := settings.LoadCredentials(ctx, s.store)
	if err != nil {
		return settingsResponse{}, err
	}
	sel, err := settings.LoadSelection(ctx, s.store, s.cfg.DisplayDefaults())
	if err != nil {
		return settingsResponse{}, err
	}
	return settingsResponse{
		Email:     creds.Email,
		LoggedIn:  !creds.Empty(),
		GroupID:   sel.GroupID,
		Sorting:   string(sel.Display.SortOrder),
		MaxEvents: sel.Display.MaxEvents,
	}, nil
}

// handleLogout forgets the saved account.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := settings.Logout(r.Context(), s.store); err != nil {
		appLog.Error("logout failed", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errorStatus maps agenda failures onto an HTTP status and the message
// shown to the user.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agenda.ErrNoCredentials):
		return http.StatusUnauthorized, render.MissingCredentialsMessage
	case errors.Is(err, agenda.ErrNoGroup):
		return http.StatusBadRequest, "No group selected."
	case errors.Is(err, spond.ErrAuth), errors.Is(err, spond.ErrTransport), errors.Is(err, spond.ErrDecode):
		appLog.Error("agenda request failed", err)
		return http.StatusBadGateway, err.Error()
	default:
		appLog.Error("agenda request failed", err)
		return http.StatusInternalServerError, "Internal error."
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
