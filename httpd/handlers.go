package httpd

import (
	"encoding/json"
	"net/http"
	"time"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/middleware"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	SessionID        string    `json:"sessionId"`
	UserID           string    `json:"userId"`
}

type sessionResponse struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	LoginType  string    `json:"loginType"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Signup(r.Context(), authcore.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pairResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		s.writeError(w, r, authcore.ErrSessionNotFound)
		return
	}
	if err := s.engine.Logout(r.Context(), res.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionInfo returns the session named by the sessionId query
// parameter. Callers may only inspect their own sessions.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		s.writeError(w, r, authcore.ErrSessionNotFound)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		s.writeErrorKind(w, http.StatusBadRequest, "bad_request", "missing sessionId parameter")
		return
	}

	info, err := s.engine.SessionInfo(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if info.UserID != res.UserID {
		s.writeError(w, r, authcore.ErrSessionNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionToResponse(info))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		s.writeError(w, r, authcore.ErrSessionNotFound)
		return
	}

	infos, err := s.engine.Sessions(r.Context(), res.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionToResponse(info))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	status := http.StatusOK
	if report.Store == authcore.HealthUnavailable || report.Pool == authcore.HealthUnavailable {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]any{
		"store":          report.Store,
		"storeLatencyMs": report.StoreLatency.Milliseconds(),
		"pool":           report.Pool,
		"poolStats": map[string]int{
			"total":   report.PoolStats.Total,
			"idle":    report.PoolStats.Idle,
			"active":  report.PoolStats.Active,
			"waiting": report.PoolStats.Waiting,
		},
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeErrorKind(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func pairResponse(pair *authcore.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        pair.SessionID,
		UserID:           pair.UserID,
	}
}

func sessionToResponse(info *authcore.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:  info.SessionID,
		UserID:     info.UserID,
		LoginType:  string(info.LoginType),
		CreatedAt:  info.CreatedAt,
		LastSeenAt: info.LastSeenAt,
		ExpiresAt:  info.ExpiresAt,
	}
}
