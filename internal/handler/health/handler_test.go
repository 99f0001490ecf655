package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func probe(checks map[string]Pinger, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(checks).RegisterRoutes(&r.RouterGroup)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	w := probe(map[string]Pinger{"store": up}, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = probe(map[string]Pinger{"store": up, "broker": down}, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "broker")
	assert.NotContains(t, w.Body.String(), "store")
}

func TestLivenessIgnoresDependencies(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	w := probe(map[string]Pinger{"store": down}, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
}
