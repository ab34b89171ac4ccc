package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/studenthub/internal/auth"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

const minPasswordLength = 6

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Tel             string `json:"tel"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Tel      *string `json:"tel"`
	Password *string `json:"password"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = store.NormalizeEmail(req.Email)
	switch {
	case req.Name == "" || req.Email == "":
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	case !strings.Contains(req.Email, "@"):
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	case len(req.Password) < minPasswordLength:
		writeError(w, http.StatusBadRequest, "password too short")
		return
	case req.Password != req.ConfirmPassword:
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	u := &store.User{
		Name:         req.Name,
		Email:        req.Email,
		Tel:          strings.TrimSpace(req.Tel),
		PasswordHash: hash,
	}
	if err := s.deps.Store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("create user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("user signed up", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.deps.Store.GetUserByEmail(r.Context(), store.NormalizeEmail(req.Email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("lookup user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	token, expires, err := s.deps.Tokens.Issue(u.ID, req.Remember)
	if err != nil {
		s.logger.Error("issue token failed", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Store.GetUser(r.Context(), s.currentUser(r))
	if err != nil {
		s.storeError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.deps.Store.GetUser(r.Context(), s.currentUser(r))
	if err != nil {
		s.storeError(w, "get user", err)
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		u.Name = name
	}
	if req.Tel != nil {
		u.Tel = strings.TrimSpace(*req.Tel)
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			writeError(w, http.StatusBadRequest, "password too short")
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			s.logger.Error("hash password failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		u.PasswordHash = hash
	}

	if err := s.deps.Store.UpdateUser(r.Context(), u); err != nil {
		s.storeError(w, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id := s.currentUser(r)
	if err := s.deps.Store.DeleteUser(r.Context(), id); err != nil {
		s.storeError(w, "delete user", err)
		return
	}
	s.logger.Info("user deleted own account", "user_id", id)
	s.logout(w, r)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.deps.Store.DeleteUser(r.Context(), id); err != nil {
		s.storeError(w, "delete user", err)
		return
	}
	s.logger.Info("user deleted by admin", "user_id", id, "admin_id", s.currentUser(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
