package ratelimit

import (
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

// New builds the Limiter named by cfg.Algorithm. The ADAPTIVE algorithm
// returns an *Adaptive; callers that want to react to HTTP 429 should
// type-assert for it and call Notify429/NotifyResult.
func New(cfg config.RateLimitConfig) Limiter {
	switch cfg.Algorithm {
	case config.AlgorithmSlidingWindow:
		window := time.Duration(cfg.WindowSizeMs) * time.Millisecond
		limit := int(cfg.RequestsPerSecond * window.Seconds())
		if limit < 1 {
			limit = 1
		}
		return NewSlidingWindow(limit, window)
	case config.AlgorithmFixedWindow:
		window := time.Duration(cfg.WindowSizeMs) * time.Millisecond
		limit := int(cfg.RequestsPerSecond * window.Seconds())
		if limit < 1 {
			limit = 1
		}
		return NewFixedWindow(limit, window)
	case config.AlgorithmLeakyBucket:
		overflow := OverflowDrop
		if cfg.OverflowStrategy == config.OverflowQueue {
			overflow = OverflowQueue
		}
		return NewLeakyBucket(float64(cfg.BucketCapacity), cfg.LeakRate, overflow)
	case config.AlgorithmAdaptive:
		return NewAdaptive(AdaptiveConfig{
			RequestsPerSecond: cfg.RequestsPerSecond,
			BucketCapacity:    cfg.BucketCapacity,
			MinRate:           cfg.MinRate,
			AdaptationWindow:  time.Duration(cfg.AdaptationWindowSeconds) * time.Second,
			SuccessThreshold:  cfg.SuccessThreshold,
			AdaptationFactor:  cfg.AdaptationFactor,
		})
	default: // AlgorithmTokenBucket and unset
		return NewTokenBucket(cfg.RequestsPerSecond, cfg.BucketCapacity)
	}
}
