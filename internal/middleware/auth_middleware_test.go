package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/nipeshtamang/ebus-sub002/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", "ebus-auth", time.Hour)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	userID := uuid.New()
	phone := "+977-9841234567"
	token, err := jwtService.GenerateAccessToken(userID, phone, []string{models.RoleUser})
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{
			"message": "success",
			"user_id": userCtx.UserID,
			"phone":   userCtx.Phone,
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), phone)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtService := setupTestJWTService()

	expiredService := jwt.NewService("test-access-secret-key-123456789", "ebus-auth", -time.Minute)
	expired, err := expiredService.GenerateAccessToken(uuid.New(), "", []string{models.RoleUser})
	require.NoError(t, err)

	wrongService := jwt.NewService("wrong-secret-key", "ebus-auth", time.Hour)
	wrongSecret, err := wrongService.GenerateAccessToken(uuid.New(), "", []string{models.RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"missing bearer", "some-token", "INVALID_AUTH_FORMAT"},
		{"wrong prefix", "Basic some-token", "INVALID_AUTH_FORMAT"},
		{"empty bearer", "Bearer ", "INVALID_AUTH_FORMAT"},
		{"no token", "Bearer", "INVALID_AUTH_FORMAT"},
		{"short header", "x", "INVALID_AUTH_FORMAT"},
		{"malformed token", "Bearer invalid.token.here", "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + wrongSecret, "INVALID_TOKEN"},
		{"expired", "Bearer " + expired, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
			assert.NotContains(t, w.Body.String(), "should not reach here")
		})
	}
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expected := UserContext{UserID: uuid.New(), Phone: "+977-9841234567", Roles: []string{"user"}}
		c.Set(UserContextKey, expected)

		userCtx, exists := GetUserContext(c)
		assert.True(t, exists)
		assert.Equal(t, expected, userCtx)
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, "wrong type")
		_, exists := GetUserContext(c)
		assert.False(t, exists)
	})
}

func TestUserContext_Role(t *testing.T) {
	assert.Equal(t, models.RoleUser, UserContext{}.Role())
	assert.Equal(t, models.RoleUser, UserContext{Roles: []string{"user"}}.Role())
	assert.Equal(t, models.RoleAdmin, UserContext{Roles: []string{"user", "admin"}}.Role())
	assert.Equal(t, models.RoleSuperAdmin, UserContext{Roles: []string{"admin", "super_admin"}}.Role())
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	userID := uuid.New()

	serve := func(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("User has required role", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(userID, "", []string{"user", "admin"})
		require.NoError(t, err)

		router := setupTestRouter()
		router.GET("/admin-only", AuthMiddleware(jwtService, testLogger()), RequireRole("admin", "super_admin"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		w := serve(router, "/admin-only", token)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("User doesn't have required role", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(userID, "", []string{"user"})
		require.NoError(t, err)

		router := setupTestRouter()
		router.GET("/admin-only", AuthMiddleware(jwtService, testLogger()), RequireRole("admin"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
		})

		w := serve(router, "/admin-only", token)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")
	})

	t.Run("No user context", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/no-auth", RequireRole("admin"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
		})

		w := serve(router, "/no-auth", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestID(), RequestLogger(testLogger()))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("assigns new id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "trace-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "trace-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "trace-42", w.Body.String())
	})
}
