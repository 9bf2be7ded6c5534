package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func protectedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api")
	group.Use(JWTMiddleware(secret))
	group.GET("/ping", func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claims missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": claims.Sub})
	})
	return router
}

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Sub: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddleware(t *testing.T) {
	router := protectedRouter(testSecret)

	request := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, request("").Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, request("Token abc").Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, request("Bearer not-a-token").Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", time.Now().Add(time.Hour))
		assert.Equal(t, http.StatusUnauthorized, request("Bearer "+token).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, testSecret, time.Now().Add(-time.Hour))
		assert.Equal(t, http.StatusUnauthorized, request("Bearer "+token).Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, testSecret, time.Now().Add(time.Hour))
		w := request("Bearer " + token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "admin")
	})
}
