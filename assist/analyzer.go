package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// maxAttempts bounds the retry loop around a quota-limited provider call.
const maxAttempts = 3

// defaultRequestsPerMinute paces provider calls across concurrent scan tasks.
const defaultRequestsPerMinute = 15

// Analyzer adapts an LLM Provider into the scan pipeline: contextual code
// analysis, fix suggestions, and AI-origin classification. A disabled
// Analyzer (nil provider) is valid and returns empty results.
type Analyzer struct {
	provider Provider
	limiter  *rate.Limiter
	gate     *quotaGate

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRequestsPerMinute overrides the provider call pacing.
func WithRequestsPerMinute(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
		}
	}
}

// NewAnalyzer wraps the provider. A nil provider yields a disabled Analyzer.
func NewAnalyzer(provider Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(float64(defaultRequestsPerMinute)/60.0), 1),
		gate:     newQuotaGate(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Enabled reports whether a provider is configured.
func (a *Analyzer) Enabled() bool {
	return a != nil && a.provider != nil
}

// AnalyzeCode runs contextual analysis over a file. It returns (nil, nil)
// when the analyzer is disabled or the quota cool-down is active, so a scan
// degrades instead of failing. ErrQuotaExceeded is returned only when the
// quota trips during this call and retries are spent.
func (a *Analyzer) AnalyzeCode(ctx context.Context, filePath, content string, isCopilot bool) ([]violations.Violation, error) {
	if !a.Enabled() || !a.gate.allow() {
		return nil, nil
	}

	prompt := analysisPrompt(filePath, content, isCopilot)
	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseViolations(raw, filePath, isCopilot), nil
}

// SuggestFix asks the provider for a concrete fix. Empty string means no
// usable suggestion.
func (a *Analyzer) SuggestFix(ctx context.Context, v violations.Violation, codeContext string) (string, error) {
	if !a.Enabled() || !a.gate.allow() {
		return "", nil
	}

	raw, err := a.complete(ctx, fixPrompt(v, codeContext))
	if err != nil {
		return "", err
	}
	return cleanFixResponse(raw), nil
}

// DetectCopilotCode asks the provider to classify AI authorship. Disabled or
// quota-limited analyzers report false without error.
func (a *Analyzer) DetectCopilotCode(ctx context.Context, content string) (bool, error) {
	if !a.Enabled() || !a.gate.allow() {
		return false, nil
	}

	raw, err := a.complete(ctx, detectPrompt(content))
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(raw), "true"), nil
}

// complete runs the rate-limited, quota-aware call loop. Non-quota provider
// errors surface immediately; quota errors are retried with the provider's
// suggested delay when present, exponential backoff otherwise, and trip the
// gate once attempts are exhausted.
func (a *Analyzer) complete(ctx context.Context, prompt string) (string, error) {
	msgs := []Message{{Role: RoleUser, Content: prompt}}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := a.provider.Complete(ctx, msgs)
		if err == nil {
			return resp.Content, nil
		}
		if !isQuotaError(err) {
			return "", err
		}
		if attempt == maxAttempts {
			a.gate.trip()
			slog.Warn("ai quota exhausted, pausing analysis", "cooldown", quotaCooldown)
			return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}

		delay, ok := parseRetryDelay(err)
		if !ok {
			delay = time.Duration(1<<attempt) * time.Second
		}
		slog.Debug("ai quota hit, retrying", "attempt", attempt, "delay", delay)
		if err := a.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: retries exhausted", ErrQuotaExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
