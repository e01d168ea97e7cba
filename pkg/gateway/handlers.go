package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/prasetya/wisma/pkg/agent"
	"github.com/prasetya/wisma/pkg/session"
	"github.com/prasetya/wisma/pkg/tools"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := s.service.Login(r.Context(), session.LoginParams{
		Username:     req.Username,
		Password:     req.Password,
		Model:        req.Model,
		APIKey:       req.APIKey,
		BaseURL:      req.BaseURL,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeJSON(w, statusFor(err, http.StatusBadRequest), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:  "login successful",
		Username: req.Username,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Username == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and message are required"})
		return
	}

	reply, err := s.service.Chat(r.Context(), req.Username, req.Message)
	if err != nil {
		writeJSON(w, statusFor(err, http.StatusInternalServerError), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  reply,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}

	s.service.Logout(req.Username)
	writeJSON(w, http.StatusOK, statusResponse{Message: "logout successful"})
}

func (s *Server) handleActiveUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.service.ListActiveUsers()
	writeJSON(w, http.StatusOK, activeUsersResponse{
		ActiveUsers: users,
		Count:       len(users),
	})
}

func (s *Server) handleUserConfig(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Describe(r.PathValue("username"))
	if err != nil {
		writeJSON(w, statusFor(err, http.StatusInternalServerError), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade events connection")
		return
	}

	clientID, _ := gonanoid.New()
	s.broadcaster.add(clientID, conn)

	// Drain the read side to notice disconnects; clients never send data.
	go func() {
		defer func() {
			conn.Close()
			s.broadcaster.remove(clientID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// statusFor maps domain errors to HTTP status codes. Unknown errors fall
// back per handler: bad-request on login, internal elsewhere.
func statusFor(err error, fallback int) int {
	var cfgErr *tools.ConfigError
	switch {
	case errors.Is(err, session.ErrUnauthenticated),
		errors.Is(err, agent.ErrCredential):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, agent.ErrModel):
		return http.StatusBadGateway
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	default:
		return fallback
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
