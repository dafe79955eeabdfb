package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-dispatch/internal/auth"
	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/logging"
	"github.com/ukydev/fleet-dispatch/internal/middleware"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ db.UserCollection = (*MockUserCollection)(nil)

func newAuthService() *auth.Service {
	return auth.NewService("handler-test-secret", time.Hour)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func withClaims(req *http.Request, userID string, role models.Role) *http.Request {
	claims := &models.Claims{UserID: userID, Username: "testuser", Role: role}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
}

func TestAuthHandler_Login(t *testing.T) {
	authService := newAuthService()
	passwordHash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	t.Run("successful login", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{
			ID:           "user-1",
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         models.RoleDispatcher,
			IsActive:     true,
		}
		users.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, "user-1").Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "testuser", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.NotEmpty(t, response.RefreshToken)
		assert.Equal(t, user.Username, response.User.Username)
		assert.NotContains(t, w.Body.String(), passwordHash)

		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		users.AssertExpectations(t)
	})

	t.Run("last login failure does not fail the login", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{ID: "user-1", Username: "testuser", PasswordHash: passwordHash, Role: models.RoleAdmin, IsActive: true}
		users.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, "user-1").Return(assert.AnError)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "testuser", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByUsername", mock.Anything, "testuser").Return(nil, db.ErrNotFound)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "testuser", Password: "wrongpassword"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{ID: "user-1", Username: "testuser", PasswordHash: passwordHash, Role: models.RoleAdmin, IsActive: true}
		users.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "testuser", Password: "wrongpassword"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{ID: "user-1", Username: "testuser", PasswordHash: passwordHash, Role: models.RoleAdmin, IsActive: false}
		users.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "testuser", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection), logging.Discard())
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "testuser"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Register(t *testing.T) {
	authService := newAuthService()

	t.Run("successful registration", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByUsername", mock.Anything, "newuser").Return(nil, db.ErrNotFound)
		users.On("FindUserByEmail", mock.Anything, "newuser@example.com").Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.AnythingOfType("*models.User")).
			Run(func(args mock.Arguments) {
				u := args.Get(1).(*models.User)
				u.ID = "new-id"
				u.IsActive = true
			}).
			Return(nil)

		registerReq := models.RegisterRequest{
			Username:  "newuser",
			Email:     "newuser@example.com",
			Password:  "password123",
			FirstName: "New",
			LastName:  "User",
			Role:      models.RoleDispatcher,
		}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, registerReq))
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.NotEmpty(t, response.RefreshToken)
		assert.Equal(t, "newuser", response.User.Username)
		assert.Equal(t, "new-id", response.User.ID)

		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, "new-id", claims.UserID)
		assert.Equal(t, models.RoleDispatcher, claims.Role)
		users.AssertExpectations(t)
	})

	t.Run("username already exists", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByUsername", mock.Anything, "existinguser").Return(&models.User{ID: "x"}, nil)

		registerReq := models.RegisterRequest{
			Username: "existinguser",
			Email:    "existing@example.com",
			Password: "password123",
			Role:     models.RoleDispatcher,
		}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, registerReq))
		w := httptest.NewRecorder()
		handler.Register(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"invalid role", models.RegisterRequest{Username: "newuser", Email: "a@example.com", Password: "password123", Role: "viewer"}},
		{"short username", models.RegisterRequest{Username: "ab", Email: "a@example.com", Password: "password123", Role: models.RoleDispatcher}},
		{"bad email", models.RegisterRequest{Username: "newuser", Email: "not-an-email", Password: "password123", Role: models.RoleDispatcher}},
		{"short password", models.RegisterRequest{Username: "newuser", Email: "a@example.com", Password: "short", Role: models.RoleDispatcher}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(authService, new(MockUserCollection), logging.Discard())
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tt.req))
			w := httptest.NewRecorder()
			handler.Register(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_GetProfile(t *testing.T) {
	authService := newAuthService()

	t.Run("successful profile retrieval", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{ID: "user-1", Username: "testuser", Email: "test@example.com", Role: models.RoleSafetyOfficer, IsActive: true}
		users.On("FindUserByID", mock.Anything, "user-1").Return(user, nil)

		req := withClaims(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), "user-1", models.RoleSafetyOfficer)
		w := httptest.NewRecorder()
		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, user.Username, response.Username)
		assert.Equal(t, user.Email, response.Email)
	})

	t.Run("user not found", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByID", mock.Anything, "gone").Return(nil, db.ErrNotFound)

		req := withClaims(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), "gone", models.RoleAdmin)
		w := httptest.NewRecorder()
		handler.GetProfile(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection), logging.Discard())
		w := httptest.NewRecorder()
		handler.GetProfile(w, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	authService := newAuthService()

	t.Run("successful profile update", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		user := &models.User{ID: "user-1", Username: "testuser", Email: "old@example.com", FirstName: "Old", Role: models.RoleFleetManager}
		users.On("FindUserByID", mock.Anything, "user-1").Return(user, nil)
		users.On("FindUserByEmail", mock.Anything, "new@example.com").Return(nil, db.ErrNotFound)
		users.On("UpdateUser", mock.Anything, "user-1", mock.MatchedBy(func(u models.User) bool {
			return u.FirstName == "New" && u.Email == "new@example.com"
		})).Return(nil)

		body := jsonBody(t, map[string]string{"first_name": "New", "email": "new@example.com"})
		req := withClaims(httptest.NewRequest(http.MethodPut, "/api/auth/profile", body), "user-1", models.RoleFleetManager)
		w := httptest.NewRecorder()
		handler.UpdateProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("email taken by another user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByID", mock.Anything, "user-1").Return(&models.User{ID: "user-1"}, nil)
		users.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(&models.User{ID: "user-2"}, nil)

		body := jsonBody(t, map[string]string{"email": "taken@example.com"})
		req := withClaims(httptest.NewRequest(http.MethodPut, "/api/auth/profile", body), "user-1", models.RoleFleetManager)
		w := httptest.NewRecorder()
		handler.UpdateProfile(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
		users.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	authService := newAuthService()
	currentHash, err := authService.HashPassword("oldpassword")
	require.NoError(t, err)

	t.Run("successful password change", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByID", mock.Anything, "user-1").Return(&models.User{ID: "user-1", PasswordHash: currentHash}, nil)
		users.On("UpdateUser", mock.Anything, "user-1", mock.MatchedBy(func(u models.User) bool {
			return authService.CheckPassword("newpassword123", u.PasswordHash)
		})).Return(nil)

		body := jsonBody(t, map[string]string{"current_password": "oldpassword", "new_password": "newpassword123"})
		req := withClaims(httptest.NewRequest(http.MethodPost, "/api/auth/password", body), "user-1", models.RoleDispatcher)
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("incorrect current password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, logging.Discard())
		users.On("FindUserByID", mock.Anything, "user-1").Return(&models.User{ID: "user-1", PasswordHash: currentHash}, nil)

		body := jsonBody(t, map[string]string{"current_password": "wrongpassword", "new_password": "newpassword123"})
		req := withClaims(httptest.NewRequest(http.MethodPost, "/api/auth/password", body), "user-1", models.RoleDispatcher)
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_ListUsers(t *testing.T) {
	users := new(MockUserCollection)
	handler := NewAuthHandler(newAuthService(), users, logging.Discard())
	users.On("ListUsers", mock.Anything).Return([]models.User{{ID: "a", Username: "alice"}}, nil)

	w := httptest.NewRecorder()
	handler.ListUsers(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Username)
}
