package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
)

// DefaultCookieName identifies the browser's session in the pool.
const DefaultCookieName = "galicia_sid"

const maxBodyBytes = 1 << 16

type sessionKey struct{}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionID returns the cookie's id, or "" when it is missing or malformed.
func (s *Server) sessionID(r *http.Request) string {
	c, err := r.Cookie(s.deps.Session.CookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

// sessionScope binds idempotency keys to the browser session.
func (s *Server) sessionScope(r *http.Request) string {
	if id := s.sessionID(r); id != "" {
		return "sid:" + id
	}
	return "ip:" + middleware.ClientIP(r)
}

func (s *Server) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.deps.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.deps.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) cookieMaxAge() int {
	if ttl := s.deps.Session.TTL; ttl > 0 {
		return int(ttl / time.Second)
	}
	return 0
}

// requireSession rejects requests without an authenticated session and puts
// the Manager in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.sessionID(r)
		if id == "" {
			s.writeError(w, r, apperrors.NewUnauthenticatedError())
			return
		}

		mgr := s.deps.Sessions.Get(r.Context(), id)
		if !mgr.IsAuthenticated() {
			s.writeError(w, r, apperrors.NewUnauthenticatedError())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, mgr)))
	})
}

func managerFrom(ctx context.Context) *session.Manager {
	mgr, _ := ctx.Value(sessionKey{}).(*session.Manager)
	return mgr
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(r)
	if id == "" {
		middleware.WriteJSON(w, http.StatusOK, session.State{})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.deps.Sessions.Get(r.Context(), id).State())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("cuerpo JSON inválido"))
		return
	}

	id := s.sessionID(r)
	if id == "" {
		id = uuid.NewString()
	}
	mgr := s.deps.Sessions.Get(r.Context(), id)

	ok, err := mgr.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, apperrors.NewAuthError())
		return
	}

	s.setCookie(w, id, s.cookieMaxAge())
	middleware.WriteJSON(w, http.StatusOK, mgr.State())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(r)
	if id == "" {
		middleware.WriteJSON(w, http.StatusOK, session.State{})
		return
	}

	mgr := s.deps.Sessions.Get(r.Context(), id)
	err := mgr.Logout(r.Context())
	s.deps.Sessions.Forget(id)
	s.setCookie(w, "", -1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, mgr.State())
}
