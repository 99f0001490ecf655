package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(err error) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondWithError(c, err)
	var body Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondWithErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{errors.NewCutoffExceeded("too late"), http.StatusUnprocessableEntity, "CUTOFF_EXCEEDED"},
		{errors.NewInvalidTransition("lab order", "ORDERED", "CLOSE"), http.StatusConflict, "INVALID_TRANSITION"},
		{fmt.Errorf("wrapped: %w", errors.NewConcurrentModification("lab order")), http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{errors.NewForbidden("no"), http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		w, body := respond(tc.err)
		assert.Equal(t, tc.status, w.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, tc.typ, body.Error.Type)
		assert.False(t, body.Success)
	}
}

func TestRespondWithErrorHidesInternalDetails(t *testing.T) {
	w, body := respond(fmt.Errorf("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", body.Error.Message)

	_, body = respond(errors.NewInternal(fmt.Errorf("secret dsn")))
	assert.Equal(t, "Internal server error", body.Error.Message)
}
