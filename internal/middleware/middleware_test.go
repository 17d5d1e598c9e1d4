package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
	"exeat/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

const testSecret = "test-secret-that-is-long-enough-0123"

func newJWT() *JWT {
	return NewJWT(testSecret, "exeat-test", time.Hour, 24*time.Hour, false)
}

var porterUser = &model.User{ID: "porter-1", FullName: "Gate Porter", Role: model.RolePorter}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJWT_IssueAndParse(t *testing.T) {
	j := newJWT()

	token, expiresAt, err := j.Issue(porterUser)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := j.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "porter-1", claims.Subject)
	assert.Equal(t, model.RolePorter, claims.Role)
	assert.Equal(t, "Gate Porter", claims.Name)
}

func TestJWT_ParseRejects(t *testing.T) {
	j := newJWT()

	expired := NewJWT(testSecret, "exeat-test", -time.Minute, time.Hour, false)
	expiredToken, _, err := expired.Issue(porterUser)
	require.NoError(t, err)

	otherKey := NewJWT("another-secret-that-is-long-enough-99", "exeat-test", time.Hour, time.Hour, false)
	foreignToken, _, err := otherKey.Issue(porterUser)
	require.NoError(t, err)

	otherIssuer := NewJWT(testSecret, "someone-else", time.Hour, time.Hour, false)
	issuerToken, _, err := otherIssuer.Issue(porterUser)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             model.RolePorter,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "porter-1", Issuer: "exeat-test"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badRole, _, err := j.Issue(&model.User{ID: "x", FullName: "X", Role: model.Role("admin")})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"expired", expiredToken, "token expired"},
		{"wrong key", foreignToken, "invalid token"},
		{"wrong issuer", issuerToken, "invalid token"},
		{"alg none", noneToken, "invalid token"},
		{"garbage", "not-a-jwt", "invalid token"},
		{"unknown role", badRole, "invalid token claims"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Parse(tt.token)
			require.ErrorIs(t, err, apperrors.ErrUnauthorized)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func newAuthRouter(j *JWT, roles ...model.Role) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), ErrorHandler())
	router.GET("/protected", j.RequireRole(roles...), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": id, "role": UserRole(c)}))
	})
	return router
}

func TestRequireRole(t *testing.T) {
	j := newJWT()
	token, _, err := j.Issue(porterUser)
	require.NoError(t, err)

	tests := []struct {
		name   string
		roles  []model.Role
		setup  func(r *http.Request)
		status int
	}{
		{"missing", nil, func(r *http.Request) {}, http.StatusUnauthorized},
		{"malformed header", nil, func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, http.StatusUnauthorized},
		{"bearer header", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", nil, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: token}) }, http.StatusOK},
		{"allowed role", []model.Role{model.RolePorter, model.RoleHOD}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"forbidden role", []model.Role{model.RoleStudent}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthRouter(j, tt.roles...)
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			if tt.status == http.StatusOK {
				data := body.Data.(map[string]interface{})
				assert.Equal(t, "porter-1", data["id"])
				assert.Equal(t, "porter", data["role"])
			} else {
				assert.Equal(t, "error", body.Status)
				assert.NotEmpty(t, body.Code)
			}
		})
	}
}

func TestSetAndClearTokenCookies(t *testing.T) {
	j := NewJWT(testSecret, "exeat-test", time.Hour, 24*time.Hour, true)
	router := gin.New()
	router.GET("/set", func(c *gin.Context) { j.SetTokenCookies(c, "a", "r") })
	router.GET("/clear", func(c *gin.Context) { j.ClearTokenCookies(c) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/set", nil))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, ck := range cookies {
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
	}
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.Equal(t, 86400, cookies[1].MaxAge)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/clear", nil))
	for _, ck := range w.Result().Cookies() {
		assert.Equal(t, "", ck.Value)
		assert.Negative(t, ck.MaxAge)
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		details bool
	}{
		{"validation", apperrors.Validation(apperrors.FieldError{Field: "comment", Code: apperrors.CodeFieldRequired}), http.StatusBadRequest, apperrors.CodeValidationFailed, true},
		{"not found", apperrors.ExeatNotFound("EX-MTU-2025-00001", nil), http.StatusNotFound, apperrors.CodeExeatNotFound, true},
		{"transition", apperrors.InvalidTransition("already %s", "Approved"), http.StatusConflict, apperrors.CodeInvalidTransition, false},
		{"dependency", apperrors.DependencyFailure(nil), http.StatusServiceUnavailable, apperrors.CodeDependencyFailure, false},
		{"bare sentinel", fmt.Errorf("load: %w", apperrors.ErrNotFound), http.StatusNotFound, "", false},
		{"unknown", fmt.Errorf("something unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(RequestID(), ErrorHandler())
			router.GET("/fail", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.status, body.StatusCode)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.details, body.Details != nil)
		})
	}
}

func TestErrorHandler_NoErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, "ok"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), RequestLogger())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "trace-123", w.Body.String())
}
