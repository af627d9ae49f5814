package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct{}

func (stubParser) Parse(token string) (*models.PassClaims, error) {
	switch token {
	case "good":
		return &models.PassClaims{Email: "asha@example.com", ID: 7}, nil
	case "expired":
		return nil, models.NewUnauthorized("token expired")
	default:
		return nil, models.NewUnauthorized("invalid token")
	}
}

func authRouter() *gin.Engine {
	router := gin.New()
	router.POST("/protected", BearerAuth(stubParser{}), func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": claims.Email})
	})
	return router
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantError: "no token"},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized, wantError: "invalid authorization header"},
		{name: "no token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantError: "invalid authorization header"},
		{name: "expired", header: "Bearer expired", wantStatus: http.StatusUnauthorized, wantError: "token expired"},
		{name: "garbage", header: "Bearer abc.def", wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
	}

	router := authRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				var body models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body.Error)
			} else {
				assert.JSONEq(t, `{"email":"asha@example.com"}`, w.Body.String())
			}
		})
	}
}

func TestClaimsFromContext_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := ClaimsFromContext(c)
	assert.False(t, ok)
}
