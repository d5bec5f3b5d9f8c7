package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", fmt.Errorf("build: %w", ErrInvalidArgument), http.StatusBadRequest},
		{"order out of range", fmt.Errorf("generate: %w", ErrOrderOutOfRange), http.StatusBadRequest},
		{"credentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"retry limit", ErrRetryLimit, http.StatusUnprocessableEntity},
		{"sink", fmt.Errorf("post: %w", ErrSinkFailed), http.StatusBadGateway},
		{"empty bucket", ErrEmptyBucket, http.StatusInternalServerError},
		{"app error wins", New(ErrEmptyBucket, http.StatusConflict, "x"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrOrderOutOfRange, http.StatusBadRequest, "order %d", 9)
	assert.True(t, Is(err, ErrOrderOutOfRange))
	assert.Equal(t, "order out of range: order 9", err.Error())
}
