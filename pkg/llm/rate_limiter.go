// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a RateLimitedClient.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate. Default: 2
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed. Default: 4
	BurstCapacity int

	// MaxRetries is the maximum number of retries for throttled requests.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff before a retry (doubles each retry).
	// Default: 1s
	RetryBackoff time.Duration

	// QueueTimeout bounds how long a request waits for a token.
	// Default: 2 minutes
	QueueTimeout time.Duration

	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns conservative defaults for prompt scoring.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2,
		BurstCapacity:     4,
		MaxRetries:        3,
		RetryBackoff:      time.Second,
		QueueTimeout:      2 * time.Minute,
		Logger:            zap.NewNop(),
	}
}

// RateLimiterMetrics counts limiter activity.
type RateLimiterMetrics struct {
	TotalRequests     int64
	ThrottledRequests int64
	DroppedRequests   int64
}

// RateLimitedClient paces calls to an inner ChatClient with a token bucket and
// retries throttled calls with exponential backoff.
type RateLimitedClient struct {
	inner   ChatClient
	limiter *rate.Limiter
	config  RateLimiterConfig

	total     atomic.Int64
	throttled atomic.Int64
	dropped   atomic.Int64
}

// NewRateLimitedClient wraps inner. Zero config fields take their defaults.
func NewRateLimitedClient(inner ChatClient, config RateLimiterConfig) *RateLimitedClient {
	defaults := DefaultRateLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = defaults.BurstCapacity
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaults.RetryBackoff
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = defaults.QueueTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstCapacity),
		config:  config,
	}
}

// Name reports the inner client's provider.
func (c *RateLimitedClient) Name() string {
	name, _ := nameOf(c.inner)
	return name
}

// Model reports the inner client's model.
func (c *RateLimitedClient) Model() string {
	_, model := nameOf(c.inner)
	return model
}

// Complete waits for a token and forwards req, retrying throttled attempts.
func (c *RateLimitedClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	backoff := c.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			c.dropped.Add(1)
			return nil, err
		}
		c.total.Add(1)

		resp, err := c.inner.Complete(ctx, req)
		if err == nil || !isThrottlingError(err) {
			return resp, err
		}

		c.throttled.Add(1)
		if attempt >= c.config.MaxRetries {
			return nil, fmt.Errorf("llm request failed after %d attempts: %w", attempt+1, err)
		}
		c.config.Logger.Warn("LLM request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.config.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
			backoff *= 2
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.config.QueueTimeout)
	defer cancel()
	if err := c.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("llm rate limiter queue timeout after %s: %w", c.config.QueueTimeout, err)
	}
	return nil
}

// Metrics returns a snapshot of the counters.
func (c *RateLimitedClient) Metrics() RateLimiterMetrics {
	return RateLimiterMetrics{
		TotalRequests:     c.total.Load(),
		ThrottledRequests: c.throttled.Load(),
		DroppedRequests:   c.dropped.Load(),
	}
}

// isThrottlingError recognizes ErrThrottled and provider messages that
// predate it.
func isThrottlingError(err error) bool {
	if errors.Is(err, ErrThrottled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

var _ ChatClient = (*RateLimitedClient)(nil)
