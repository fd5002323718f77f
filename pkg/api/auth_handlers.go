package api

import (
	"net/http"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/auth"
	"github.com/aisu-run/aisu-core/pkg/types"
)

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        types.Role `json:"role"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Wallpaper   string     `json:"wallpaper,omitempty"`
}

func toUserResponse(user *types.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		AvatarURL:   user.AvatarURL,
		Wallpaper:   user.Wallpaper,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if s.beta.Enabled() {
		if err := s.beta.Consume(req.BetaToken); err != nil {
			writeError(w, err)
			return
		}
	}

	user, err := s.auth.Register(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	_, token, err := s.auth.Login(identifier, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFrom(r)))
}

// handleUsernameInfo returns the public profile shown on the login
// screen. Rate-limited because it confirms username existence.
func (s *Server) handleUsernameInfo(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, apperr.New(apperr.ValidationFailed, "username is required"))
		return
	}

	user, err := s.auth.LookupUsername(username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"avatar_url":   user.AvatarURL,
		"display_name": user.DisplayName,
		"wallpaper":    user.Wallpaper,
	})
}
