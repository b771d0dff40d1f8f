package errorkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
	}{
		{CacheTransport, true},
		{DurableTransport, true},
		{Timeout, true},
		{IO, true},
		{InvalidRequest, false},
		{RateLimitExceeded, false},
		{Model, false},
		{Config, false},
		{CacheSerialization, false},
		{ResponseSerialization, false},
		{Internal, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "op", "boom")
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestSurfaceStatus(t *testing.T) {
	assert.Equal(t, 400, SurfaceStatus(New(InvalidRequest, "op", "")))
	assert.Equal(t, 429, SurfaceStatus(New(RateLimitExceeded, "op", "")))
	assert.Equal(t, 504, SurfaceStatus(New(Timeout, "op", "")))
	assert.Equal(t, 503, SurfaceStatus(New(CacheTransport, "op", "")))
	assert.Equal(t, 503, SurfaceStatus(New(DurableTransport, "op", "")))
	assert.Equal(t, 500, SurfaceStatus(New(Model, "op", "")))
	assert.Equal(t, 500, SurfaceStatus(errors.New("unclassified")))
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(cause, CacheTransport, "cache.get")
	require.Error(t, wrapped)
	assert.Equal(t, CacheTransport, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CacheTransport, "op"))
}

func TestWrapReclassifiesExisting(t *testing.T) {
	inner := New(IO, "redis.dial", "dial tcp: timeout")
	outer := Wrap(inner, CacheTransport, "cache.get")
	assert.Equal(t, CacheTransport, outer.Kind)
	assert.Equal(t, "dial tcp: timeout", outer.Message)
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}
