package assist

import (
	"errors"
	"testing"
	"time"
)

func TestQuotaGateCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &quotaGate{now: func() time.Time { return now }}

	if !g.allow() {
		t.Fatal("fresh gate should allow")
	}

	g.trip()
	if g.allow() {
		t.Error("tripped gate should block")
	}

	now = now.Add(quotaCooldown - time.Second)
	if g.allow() {
		t.Error("gate should still block within the cooldown")
	}

	now = now.Add(2 * time.Second)
	if !g.allow() {
		t.Error("gate should clear after the cooldown")
	}
	// Cleared flag stays cleared.
	if !g.allow() {
		t.Error("gate should remain open once cleared")
	}
}

func TestIsQuotaError(t *testing.T) {
	quotaErrs := []error{
		errors.New("429 Too Many Requests"),
		errors.New("RESOURCE_EXHAUSTED: quota exceeded for model"),
		errors.New("Resource has been exhausted (e.g. check quota)"),
		errors.New("rate limit reached"),
	}
	for _, err := range quotaErrs {
		if !isQuotaError(err) {
			t.Errorf("isQuotaError(%v) = false, want true", err)
		}
	}

	if isQuotaError(nil) {
		t.Error("nil is not a quota error")
	}
	if isQuotaError(errors.New("connection refused")) {
		t.Error("transport errors are not quota errors")
	}
}

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		wantOK bool
	}{
		{
			"proto style",
			errors.New("RESOURCE_EXHAUSTED retry_delay { seconds: 40 }"),
			40 * time.Second, true,
		},
		{
			"retry after",
			errors.New("429: retry after 12 seconds"),
			12 * time.Second, true,
		},
		{
			"capped at maximum",
			errors.New("retry_delay { seconds: 900 }"),
			maxRetryDelay, true,
		},
		{
			"no delay present",
			errors.New("quota exceeded"),
			0, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryDelay(tt.err)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseRetryDelay = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
