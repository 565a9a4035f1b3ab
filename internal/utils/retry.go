package utils

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	retryWaitDuration = 2 * time.Second
	maxRetryCount     = 3
)

// RetryHandler bounds the retries of a single operation. The wait between
// attempts is multiplied by multiplier after each retry.
type RetryHandler struct {
	retryCount    int
	maxRetries    int
	initialDelay  time.Duration
	retryDuration time.Duration
	multiplier    float64
}

func NewRetryHandler(delay time.Duration, maxRetries int, multiplier float64) *RetryHandler {
	if delay <= 0 {
		delay = retryWaitDuration
	}
	if maxRetries <= 0 {
		maxRetries = maxRetryCount
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &RetryHandler{
		maxRetries:    maxRetries,
		initialDelay:  delay,
		retryDuration: delay,
		multiplier:    multiplier,
	}
}

// ShouldRetry waits before the next attempt and returns false once the
// retries are exhausted, the error is not retriable or ctx is done.
func (h *RetryHandler) ShouldRetry(ctx context.Context, err error) bool {
	if ok, _ := ShouldReconnect(err); !ok {
		return false
	}
	if h.retryCount >= h.maxRetries {
		return false
	}
	log.WithError(err).Debugf("attempt %d failed, retrying in %s", h.retryCount+1, h.retryDuration)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(h.retryDuration):
	}
	h.retryCount++
	h.retryDuration = time.Duration(float64(h.retryDuration) * h.multiplier)
	return true
}

func (h *RetryHandler) Reset() {
	h.retryCount = 0
	h.retryDuration = h.initialDelay
}

// Retry runs fn until it succeeds or the handler gives up, returning the
// last error.
func Retry[T any](ctx context.Context, h *RetryHandler, fn func(context.Context) (T, error)) (T, error) {
	for {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if !h.ShouldRetry(ctx, err) {
			return res, err
		}
	}
}
