package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{404, ErrorTypeNotFound},
		{403, ErrorTypeForbidden},
		{401, ErrorTypeAuth},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			err := FromStatus(tt.code, "boom")
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(FromStatus(404, "missing")))
	assert.True(t, IsSkippable(fmt.Errorf("get thing 7: %w", FromStatus(403, "private"))))
	assert.False(t, IsSkippable(FromStatus(500, "down")))
	assert.False(t, IsSkippable(errors.New("plain")))
	assert.False(t, IsSkippable(nil))
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(ErrorTypeParsing, 200, "bad json at %d", 12))
	assert.Equal(t, ErrorTypeParsing, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypeNotFound))
	assert.False(t, IsRetryable(ErrorTypeForbidden))
	assert.True(t, IsRetryableStatusCode(502))
	assert.False(t, IsRetryableStatusCode(404))
}
