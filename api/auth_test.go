package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garnizeh/taosdlc/api"
	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository/mock"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func storedUser(t *testing.T, id int64, email, username, pw string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &models.User{ID: id, Email: email, Username: username, Role: models.RoleDeveloper, HashedPassword: string(hash)}
}

func TestAuthHandlers(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		prepare    func(m *mock.Mocks)
		wantStatus int
		checkBody  func(t *testing.T, body []byte)
	}{
		{
			name:       "Signup_InvalidRequest",
			method:     http.MethodPost,
			path:       "/signup",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_MissingFields_Username",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"email": "alice@example.com", "password": "s3cret"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_MissingFields_Email",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "password": "s3cret"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_InvalidEmail",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "email": "not-an-email", "password": "s3cret"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_ShortPassword",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "email": "alice@example.com", "password": "pw"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_UnknownRole",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret", "role": "wizard"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_AdminRefused",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret", "role": "admin"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "Signup_Success",
			method:     http.MethodPost,
			path:       "/signup",
			body:       map[string]string{"username": "alice", "email": "Alice@Example.com", "password": "s3cret", "role": "tech_lead"},
			wantStatus: http.StatusCreated,
			checkBody: func(t *testing.T, b []byte) {
				var ar struct {
					Token string      `json:"token"`
					User  models.User `json:"user"`
				}
				if err := json.Unmarshal(b, &ar); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if ar.Token == "" {
					t.Fatalf("empty token")
				}
				if ar.User.Email != "alice@example.com" || ar.User.Role != models.RoleTechLead {
					t.Fatalf("unexpected user %+v", ar.User)
				}
				if bytes.Contains(b, []byte("hashed_password")) {
					t.Fatalf("password hash leaked: %s", b)
				}
			},
		},
		{
			name:   "Signup_Duplicate",
			method: http.MethodPost,
			path:   "/signup",
			body:   map[string]string{"username": "dup", "email": "dup@example.com", "password": "s3cret"},
			prepare: func(m *mock.Mocks) {
				m.Users.Stored = &models.User{ID: 1, Email: "dup@example.com", Username: "other"}
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "Signup_StoreFailure",
			method: http.MethodPost,
			path:   "/signup",
			body:   map[string]string{"username": "bob", "email": "bob@example.com", "password": "s3cret"},
			prepare: func(m *mock.Mocks) {
				m.Users.CreateErr = fmt.Errorf("disk full")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "Signin_InvalidRequest",
			method:     http.MethodPost,
			path:       "/signin",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingFields_Login",
			method:     http.MethodPost,
			path:       "/signin",
			body:       map[string]string{"password": "nop"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingFields_Password",
			method:     http.MethodPost,
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingUser",
			method:     http.MethodPost,
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com", "password": "nop"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "Signin_SuccessByEmail",
			method: http.MethodPost,
			path:   "/signin",
			body:   map[string]string{"email": "bob@example.com", "password": "hunter2"},
			prepare: func(m *mock.Mocks) {
				m.Users.Stored = storedUser(t, 2, "bob@example.com", "bob", "hunter2")
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "Signin_SuccessByUsername",
			method: http.MethodPost,
			path:   "/signin",
			body:   map[string]string{"login": "bob", "password": "hunter2"},
			prepare: func(m *mock.Mocks) {
				m.Users.Stored = storedUser(t, 2, "bob@example.com", "bob", "hunter2")
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "Signin_WrongPassword",
			method: http.MethodPost,
			path:   "/signin",
			body:   map[string]string{"email": "c@example.com", "password": "wrongpw"},
			prepare: func(m *mock.Mocks) {
				m.Users.Stored = storedUser(t, 3, "c@example.com", "c", "rightpw")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Signout_OK",
			method:     http.MethodPost,
			path:       "/signout",
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, b []byte) {
				if !bytes.Contains(b, []byte("signed out")) {
					t.Fatalf("unexpected body: %s", string(b))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := mock.NewMocks()
			if tt.prepare != nil {
				tt.prepare(mocks)
			}
			handler := api.NewAuthHandler(mocks.Users, secret, tokenDur)

			var bodyReader io.Reader
			if tt.body != nil {
				b, _ := json.Marshal(tt.body)
				bodyReader = bytes.NewReader(b)
			}
			req := httptest.NewRequest(tt.method, tt.path, bodyReader)
			w := httptest.NewRecorder()

			switch tt.path {
			case "/signup":
				handler.Signup(w, req)
			case "/signin":
				handler.Signin(w, req)
			case "/signout":
				handler.Signout(w, req)
			default:
				t.Fatalf("unknown path %s", tt.path)
			}

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("%s: expected status %d got %d body=%s", tt.name, tt.wantStatus, res.StatusCode, string(data))
			}
			if tt.checkBody != nil {
				tt.checkBody(t, data)
			}
			// If token present, validate user_id, role and exp claims
			if tt.wantStatus == http.StatusOK || tt.wantStatus == http.StatusCreated {
				var ar struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(data, &ar); err == nil && ar.Token != "" {
					tok, err := jwt.Parse(ar.Token, func(token *jwt.Token) (any, error) { return []byte(secret), nil })
					if err != nil {
						t.Fatalf("parse token: %v", err)
					}
					claims, ok := tok.Claims.(jwt.MapClaims)
					if !ok {
						t.Fatalf("unexpected claims type %T", tok.Claims)
					}
					if _, ok := claims["user_id"].(float64); !ok {
						t.Fatalf("missing user_id claim")
					}
					if _, ok := claims["role"].(string); !ok {
						t.Fatalf("missing role claim")
					}
					if expF, ok := claims["exp"].(float64); !ok || int64(expF) < time.Now().Unix() {
						t.Fatalf("invalid exp claim")
					}
				}
			}
		})
	}
}

func TestAuthMe(t *testing.T) {
	mocks := mock.NewMocks()
	mocks.Users.Stored = storedUser(t, 7, "me@example.com", "me", "s3cret")
	mocks.Users.Stored.ID = 7
	handler := api.NewAuthHandler(mocks.Users, "secret", time.Hour)

	// no actor in context
	w := httptest.NewRecorder()
	handler.Me(w, httptest.NewRequest(http.MethodGet, "/v1/users/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401 got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), api.CtxUserID, int64(7)))
	w = httptest.NewRecorder()
	handler.Me(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var u models.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.Username != "me" {
		t.Fatalf("unexpected user %+v", u)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), api.CtxUserID, int64(99)))
	w = httptest.NewRecorder()
	handler.Me(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404 got %d", w.Code)
	}
}
