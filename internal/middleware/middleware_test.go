package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gbinding "github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/pkg/auth"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(jwt auth.JWTService, handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	chain := append([]gin.HandlerFunc{NewAuthMiddleware(jwt).Authenticate()}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, string(actor.Role))
	})
	r.GET("/x", chain...)
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	jwt := auth.NewJWTService("secret", "")
	r := newEngine(jwt)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "garbage").Code)

	token, err := jwt.IssueToken(model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, time.Hour)
	require.NoError(t, err)
	w := get(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DOCTOR", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}

func TestRequireRole(t *testing.T) {
	jwt := auth.NewJWTService("secret", "")
	r := newEngine(jwt, RequireRole(model.RoleAdmin))

	token, err := jwt.IssueToken(model.Actor{ID: uuid.New(), Role: model.RolePatient}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, token).Code)

	token, err = jwt.IssueToken(model.Actor{ID: uuid.New(), Role: model.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, token).Code)
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.0001, Burst: 1})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

type bookingRequest struct {
	Pincode string `json:"pincode" binding:"required,pincode"`
	Slot    string `json:"slot" binding:"required,timeslot"`
	Date    string `json:"date" binding:"required,isodate"`
}

func TestCustomValidators(t *testing.T) {
	require.NoError(t, RegisterValidators())

	valid := bookingRequest{Pincode: "400058", Slot: "4:00 PM - 5:00 PM", Date: "2024-03-15"}
	assert.NoError(t, gbinding.Validator.ValidateStruct(valid))

	err := gbinding.Validator.ValidateStruct(bookingRequest{Pincode: "04005", Slot: "soon", Date: "15/03/2024"})
	require.Error(t, err)
	bad := BindingError(err)
	assert.True(t, apperrors.HasCode(bad, apperrors.ErrBadRequest))
	assert.Contains(t, bad.Error(), "pincode: Must be a 6 digit pincode")
	assert.Contains(t, bad.Error(), "slot:")
	assert.Contains(t, bad.Error(), "date:")
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(16))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	small := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, small)
	assert.Equal(t, http.StatusNoContent, w.Code)

	big := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("x", 64)))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
