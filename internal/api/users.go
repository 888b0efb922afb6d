package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sells-group/greenshop/internal/auth"
	"github.com/sells-group/greenshop/internal/model"
	"github.com/sells-group/greenshop/internal/store"
)

type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	Preferences []string   `json:"preferences"`
	GreenTokens int        `json:"greenTokens"`
	Token       string     `json:"token,omitempty"`
}

func newUserResponse(u *model.User, token string) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Preferences: u.PreferenceSet().Tags(),
		GreenTokens: u.GreenTokens,
		Token:       token,
	}
}

type registerRequest struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Preferences []string `json:"preferences"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)
	if req.Username == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, badRequest("username and a valid email are required"))
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, r, badRequest("password must be at least %d characters", auth.MinPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Preferences:  model.NewPreferences(req.Preferences...).Tags(),
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = conflict("user already exists")
		}
		writeError(w, r, err)
		return
	}
	s.respondWithToken(w, r, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	invalid := unauthorized("invalid email or password")
	u, err := s.store.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, invalid)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			err = invalid
		}
		writeError(w, r, err)
		return
	}
	s.respondWithToken(w, r, http.StatusOK, u)
}

func (s *Server) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *model.User) {
	token, err := s.issuer.Issue(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, newUserResponse(u, token))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u, ""))
}

type profileRequest struct {
	Username    *string   `json:"username"`
	Email       *string   `json:"email"`
	Password    *string   `json:"password"`
	Preferences *[]string `json:"preferences"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.store.GetUser(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username != nil {
		if name := strings.TrimSpace(*req.Username); name != "" {
			u.Username = name
		}
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if !strings.Contains(email, "@") {
			writeError(w, r, badRequest("email is not valid"))
			return
		}
		u.Email = email
	}
	if req.Password != nil && *req.Password != "" {
		if len(*req.Password) < auth.MinPasswordLength {
			writeError(w, r, badRequest("password must be at least %d characters", auth.MinPasswordLength))
			return
		}
		if u.PasswordHash, err = auth.HashPassword(*req.Password); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Preferences != nil {
		u.Preferences = model.NewPreferences(*req.Preferences...).Tags()
	}

	if err := s.store.UpdateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = conflict("email already in use")
		}
		writeError(w, r, err)
		return
	}
	s.respondWithToken(w, r, http.StatusOK, u)
}
