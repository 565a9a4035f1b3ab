package utils

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var ReconnectConfig = struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}{
	InitialDelay: 1 * time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

const (
	cloudflare524Error = "524"
	rateLimitedError   = "429"
)

// ShouldReconnect tells whether a failed ledger, relayer or subscription
// call is worth retrying and how long to wait before doing so.
func ShouldReconnect(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, time.Second
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
		return false, 0
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true, time.Second
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true, 5 * time.Second
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, time.Second
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, cloudflare524Error), strings.Contains(msg, rateLimitedError):
		return true, 5 * time.Second
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "unauthorized"):
		return false, 0
	default:
		return true, time.Second
	}
}

// NextDelay grows delay by the reconnect multiplier, capped at MaxDelay.
func NextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * ReconnectConfig.Multiplier)
	return min(max(next, ReconnectConfig.InitialDelay), ReconnectConfig.MaxDelay)
}
