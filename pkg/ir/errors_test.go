package ir

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPError(t *testing.T) {
	prov := Provenance{Backend: "openai"}

	cases := []struct {
		status  int
		wantErr func(error) bool
		retry   bool
	}{
		{401, func(e error) bool { var t *AuthenticationError; return errors.As(e, &t) }, false},
		{403, func(e error) bool { var t *AuthorizationError; return errors.As(e, &t) }, false},
		{404, func(e error) bool { var t *ValidationError; return errors.As(e, &t) }, false},
		{408, func(e error) bool { var t *TimeoutError; return errors.As(e, &t) }, true},
		{422, func(e error) bool { var t *ValidationError; return errors.As(e, &t) }, false},
		{429, func(e error) bool { var t *RateLimitError; return errors.As(e, &t) }, true},
		{500, func(e error) bool { var t *ProviderError; return errors.As(e, &t) }, true},
	}

	for _, c := range cases {
		err := ClassifyHTTPError(prov, c.status, "boom", nil, nil)
		assert.True(t, c.wantErr(err), "status %d", c.status)
		assert.Equal(t, c.retry, IsRetryable(err), "status %d", c.status)
	}
}

func TestClassifyHTTPErrorRetryAfter(t *testing.T) {
	d := 2 * time.Second
	err := ClassifyHTTPError(Provenance{Backend: "anthropic"}, 429, "slow down", &d, nil)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	require.NotNil(t, rl.RetryAfter)
	assert.Equal(t, d, *rl.RetryAfter)
}

func TestClassifyHTTPErrorTransportTimeout(t *testing.T) {
	err := ClassifyHTTPError(Provenance{Backend: "gemini"}, 0, "", nil, fakeTimeoutErr{})
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.True(t, IsRetryable(err))
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestCancelledErrorNotRetryable(t *testing.T) {
	err := &CancelledError{Message: "client gone"}
	assert.False(t, IsRetryable(err))
}
