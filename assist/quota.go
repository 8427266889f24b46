package assist

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned when the provider's quota is exhausted and
// retries are spent. The orchestrator treats it as a degraded-but-successful
// scan signal.
var ErrQuotaExceeded = errors.New("ai provider quota exceeded")

// quotaCooldown is how long the adapter stays silent after a quota trip.
const quotaCooldown = 3600 * time.Second

// maxRetryDelay caps a provider-supplied retry delay.
const maxRetryDelay = 300 * time.Second

// quotaGate tracks whether the provider quota is exhausted. Updated from any
// scan task; protected by a mutex.
type quotaGate struct {
	mu       sync.Mutex
	exceeded bool
	since    time.Time
	now      func() time.Time
}

func newQuotaGate() *quotaGate {
	return &quotaGate{now: time.Now}
}

// allow reports whether calls may proceed, clearing the flag once the
// cool-down has elapsed.
func (g *quotaGate) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.exceeded {
		return true
	}
	if g.now().Sub(g.since) >= quotaCooldown {
		g.exceeded = false
		return true
	}
	return false
}

// trip marks the quota as exhausted starting now.
func (g *quotaGate) trip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exceeded = true
	g.since = g.now()
}

// quotaSignals are substrings that identify a quota/exhaustion failure in a
// provider error.
var quotaSignals = []string{
	"quota",
	"429",
	"resource_exhausted",
	"resource has been exhausted",
	"rate limit",
	"too many requests",
}

// isQuotaError reports whether the error looks like a quota/exceeded signal.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range quotaSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Retry-delay shapes observed in provider errors: the protobuf-style
// "retry_delay { seconds: 40 }" and textual "retry after 40s" variants.
var (
	retryDelayProtoRe = regexp.MustCompile(`retry_delay\s*{\s*seconds:\s*(\d+)`)
	retryAfterRe      = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+(?:\.\d+)?)`)
)

// parseRetryDelay extracts the provider-suggested retry delay from an error,
// capped at maxRetryDelay. The boolean reports whether a delay was found.
func parseRetryDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()

	var seconds float64
	if m := retryDelayProtoRe.FindStringSubmatch(msg); m != nil {
		seconds, _ = strconv.ParseFloat(m[1], 64)
	} else if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
		seconds, _ = strconv.ParseFloat(m[1], 64)
	} else {
		return 0, false
	}

	d := time.Duration(seconds * float64(time.Second))
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d, true
}
