package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewNotFound("lab order", nil), http.StatusNotFound},
		{NewBadRequest("bad", nil), http.StatusBadRequest},
		{NewForbidden("nope"), http.StatusForbidden},
		{NewInvalidTransition("lab order", "CLOSED", "CANCEL"), http.StatusConflict},
		{NewConcurrentModification("lab order"), http.StatusConflict},
		{NewCutoffExceeded("too late"), http.StatusUnprocessableEntity},
		{NewPreconditionMissing("missing"), http.StatusUnprocessableEntity},
		{NewNoEligiblePartner("phlebotomist"), http.StatusAccepted},
		{NewInternal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("execute: %w", NewCutoffExceeded("too late"))

	assert.True(t, HasCode(err, ErrCutoffExceeded))
	assert.False(t, HasCode(err, ErrInvalidTransition))
	assert.Equal(t, ErrCutoffExceeded, CodeOf(err))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}
