package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

func TestTokenBucket_AllowsUpToBurst(t *testing.T) {
	tb := NewTokenBucket(1000, 3)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_SetRate(t *testing.T) {
	tb := NewTokenBucket(10, 5)
	tb.SetRate(5)
	assert.Equal(t, 5.0, tb.CurrentRate())
}

func TestSlidingWindow_RespectsLimit(t *testing.T) {
	sw := NewSlidingWindow(2, 50*time.Millisecond)
	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, sw.Allow())
}

func TestFixedWindow_ResetsAtBoundary(t *testing.T) {
	fw := NewFixedWindow(1, 30*time.Millisecond)
	assert.True(t, fw.Allow())
	assert.False(t, fw.Allow())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, fw.Allow())
}

func TestLeakyBucket_DropsOnOverflow(t *testing.T) {
	lb := NewLeakyBucket(1, 1, OverflowDrop)
	assert.True(t, lb.Allow())
	assert.False(t, lb.Allow())

	err := lb.Wait(context.Background())
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestLeakyBucket_QueuesOnOverflow(t *testing.T) {
	lb := NewLeakyBucket(1, 50, OverflowQueue)
	require.NoError(t, lb.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, lb.Wait(context.Background()))
	assert.Greater(t, time.Since(start), time.Duration(0))
}

func TestAdaptive_HalvesRateOn429(t *testing.T) {
	a := NewAdaptive(AdaptiveConfig{RequestsPerSecond: 10, BucketCapacity: 10, MinRate: 1})
	a.Notify429()
	assert.Equal(t, 5.0, a.CurrentRate())
}

func TestAdaptive_FloorsAtMinRate(t *testing.T) {
	a := NewAdaptive(AdaptiveConfig{RequestsPerSecond: 1, BucketCapacity: 10, MinRate: 1})
	a.Notify429()
	assert.Equal(t, 1.0, a.CurrentRate())
}

func TestAdaptive_RecoversAfterSuccessWindow(t *testing.T) {
	a := NewAdaptive(AdaptiveConfig{
		RequestsPerSecond: 10,
		BucketCapacity:    10,
		MinRate:           1,
		AdaptationWindow:  10 * time.Millisecond,
		SuccessThreshold:  0.5,
		AdaptationFactor:  2,
	})
	a.Notify429()
	require.Equal(t, 5.0, a.CurrentRate())

	time.Sleep(15 * time.Millisecond)
	a.NotifyResult(true)
	time.Sleep(15 * time.Millisecond)
	a.NotifyResult(true)

	assert.Greater(t, a.CurrentRate(), 5.0)
}

func TestFactory_BuildsConfiguredAlgorithm(t *testing.T) {
	l := New(config.RateLimitConfig{
		Algorithm:         config.AlgorithmSlidingWindow,
		RequestsPerSecond: 10,
		WindowSizeMs:      1000,
	})
	_, ok := l.(*SlidingWindow)
	assert.True(t, ok)
}

func TestFactory_DefaultsToTokenBucket(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerSecond: 10, BucketCapacity: 20})
	_, ok := l.(*TokenBucket)
	assert.True(t, ok)
}
