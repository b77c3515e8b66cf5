package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeDataUnavailable, cause, "fetch table problems")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDataUnavailable, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "fetch table problems: connection reset", err.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(CodeInternal, nil, "ignored"))
}

func TestCodeOf_ThroughFmtWrap(t *testing.T) {
	inner := New(CodeMalformedTable, "duplicate id rec1")
	outer := fmt.Errorf("assemble: %w", inner)

	assert.Equal(t, CodeMalformedTable, CodeOf(outer))
	assert.True(t, Is(outer, CodeMalformedTable))
	assert.False(t, IsRetryable(outer))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeDataUnavailable, http.StatusServiceUnavailable},
		{CodeNotFound, http.StatusNotFound},
		{CodeNotConfirmed, http.StatusBadRequest},
		{CodeInvalidConfig, http.StatusBadRequest},
		{CodeMalformedTable, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}
