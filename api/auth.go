package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type AuthHandler struct {
	userRepo      repository.UserRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(ur repository.UserRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{userRepo: ur, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signinRequest struct {
	// Login is an email or a username.
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		badRequest(w, "email, username and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		badRequest(w, "invalid email")
		return
	}
	if len(req.Password) < minPasswordLen {
		badRequest(w, fmt.Sprintf("password must have at least %d characters", minPasswordLen))
		return
	}
	role, err := models.ParseUserRole(req.Role)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if role == models.RoleAdmin {
		// admins are provisioned by operators, never self-registered
		writeErrorCode(w, http.StatusForbidden, "not_authorized", "the admin role cannot be self-assigned", nil)
		return
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	ctx := r.Context()
	u := &models.User{
		Email:          req.Email,
		Username:       req.Username,
		FullName:       strings.TrimSpace(req.FullName),
		Role:           role,
		HashedPassword: string(hash),
	}
	id, err := h.userRepo.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeErrorCode(w, http.StatusConflict, "duplicate", "email or username already registered", nil)
			return
		}
		writeError(w, r, err)
		return
	}
	u.ID = id

	h.respondWithToken(w, r, u, http.StatusCreated)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" || req.Password == "" {
		badRequest(w, "login and password are required")
		return
	}

	ctx := r.Context()
	var (
		u   *models.User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = h.userRepo.GetUserByEmail(ctx, strings.ToLower(login))
	} else {
		u, err = h.userRepo.GetUserByUsername(ctx, login)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(req.Password)) != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "credentials not found", nil)
		return
	}

	h.respondWithToken(w, r, u, http.StatusOK)
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	// For stateless JWT, signout is client-side (just delete token)
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	u, err := h.userRepo.GetUserByID(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "user not found", nil)
		return
	}
	writeJSON(w, u, http.StatusOK)
}

// DeleteUser soft deletes a user account. Admin only; admins cannot remove
// themselves. The user's approvals and stakeholder rows are kept.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeErrorCode(w, http.StatusForbidden, "not_authorized", "deleting users requires the admin role", nil)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}
	if id == actor.UserID {
		badRequest(w, "admins cannot delete their own account")
		return
	}

	u, err := h.userRepo.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "user not found", nil)
		return
	}
	if err := h.userRepo.SoftDeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("actor_id", actor.UserID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, u *models.User, status int) {
	tokenStr, err := IssueToken(h.jwtSecret, h.tokenDuration, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, authResponse{Token: tokenStr, User: u}, status)
}

// IssueToken signs a token carrying the user id and role.
func IssueToken(secret string, d time.Duration, u *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"role":    string(u.Role),
		"email":   u.Email,
		"exp":     time.Now().Add(d).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
