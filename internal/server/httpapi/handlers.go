package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Roles     []string  `json:"roles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Active:    u.Active,
		Roles:     u.RoleCodes(),
		CreatedAt: u.CreatedAt,
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", common.ErrorUnprocessable)
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// handleLogin collapses unknown-email and wrong-password failures into
// one 401 so account existence is not observable from the wire.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email and password are required: %w", common.ErrorUnprocessable))
		return
	}

	result, err := s.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorUnauthorized) {
			s.metrics.LoginFailureInc()
			s.logger.Warn(r.Context(), "login rejected", "email", req.Email)
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "wrong email or password"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loginResponse{Token: result.Token, User: toUserResponse(result.User)})
}

type registerRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Active   *bool    `json:"active"`
	Roles    []string `json:"roles"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email and password are required: %w", common.ErrorUnprocessable))
		return
	}

	// accounts start active unless explicitly disabled
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user, err := s.service.Register(r.Context(), models.NewUser{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Active:   active,
		Roles:    req.Roles,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "user registered", "user_id", user.ID)
	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email and password are required: %w", common.ErrorUnprocessable))
		return
	}

	payload := tokenPayload(r)
	if payload.Email != req.Email && !hasRole(payload, adminRole) {
		s.writeError(w, r, common.ErrorForbidden)
		return
	}

	user, err := s.service.ResetPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "password reset", "user_id", user.ID)
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateUserRequest struct {
	Email  *string `json:"email"`
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payload := tokenPayload(r)
	if payload.UserID != id && !hasRole(payload, adminRole) {
		s.writeError(w, r, common.ErrorForbidden)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// only admins may toggle the active flag
	if req.Active != nil && !hasRole(payload, adminRole) {
		s.writeError(w, r, common.ErrorForbidden)
		return
	}

	user, err := s.service.Update(r.Context(), id, models.UserUpdate{
		Email:  req.Email,
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

type listUsersResponse struct {
	Users   []userResponse `json:"users"`
	HasNext bool           `json:"has_next"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	users, hasNext, err := s.service.ListUsers(r.Context(), limit, offset,
		r.URL.Query().Get("email"), r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := listUsersResponse{Users: make([]userResponse, 0, len(users)), HasNext: hasNext}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payload := tokenPayload(r)
	if payload.UserID != id && !hasRole(payload, adminRole) {
		s.writeError(w, r, common.ErrorForbidden)
		return
	}

	withRoles := r.URL.Query().Get("with_roles") == "true"

	user, err := s.service.GetUserInformation(r.Context(), id, withRoles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

type meResponse struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
	Roles  []string `json:"roles,omitempty"`
}

// handleMe answers from the token alone, no store round-trip.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	payload := tokenPayload(r)

	s.writeJSON(w, http.StatusOK, meResponse{
		ID:     payload.UserID,
		Email:  payload.Email,
		Name:   payload.Name,
		Active: payload.Active,
		Roles:  payload.Roles,
	})
}

type roleResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type listRolesResponse struct {
	Roles   []roleResponse `json:"roles"`
	HasNext bool           `json:"has_next"`
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	roles, hasNext, err := s.service.ListRoles(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := listRolesResponse{Roles: make([]roleResponse, 0, len(roles)), HasNext: hasNext}
	for _, role := range roles {
		resp.Roles = append(resp.Roles, roleResponse{
			ID:          role.ID,
			Code:        role.Code,
			Name:        role.Name,
			Description: role.Description,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	limit, err = intQueryParam(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err = intQueryParam(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intQueryParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %w", name, common.ErrorUnprocessable)
	}
	return v, nil
}
