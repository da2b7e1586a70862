// Package invoke drives one reasoning request through the retry budget until it
// yields non-empty text or the budget runs out.
package invoke

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shpitdev/docdiff-reasoner/internal/metrics"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/redact"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/retry"
)

type Options struct {
	Policy retry.Policy

	// RequestTimeout bounds a single attempt. Zero leaves it to the transport.
	RequestTimeout time.Duration

	// RateLimitRPS spaces attempts apart. Set to <=0 to disable.
	RateLimitRPS float64

	// Sleep waits out backoff delays. Defaults to retry.Sleep.
	Sleep retry.Sleeper

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// OnStep observes every failed attempt after the budget has been charged.
	OnStep func(retry.Step)
}

func (o Options) withDefaults() Options {
	if o.Policy.Budget <= 0 || o.Policy.Rules == nil {
		o.Policy = retry.DefaultPolicy()
	}
	if o.Sleep == nil {
		o.Sleep = retry.Sleep
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Result is a successful invocation.
type Result struct {
	Text      string
	Attempts  int
	Remaining int
	Steps     []retry.Step
}

// Client wraps a Completer with the retry budget.
type Client struct {
	completer core.Completer
	opts      Options
	limiter   *rate.Limiter
}

func New(completer core.Completer, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{completer: completer, opts: opts}
	if opts.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return c
}

// Invoke returns the first non-empty completion for req. It never returns empty
// text with a nil error: once the budget is spent it returns a
// *retry.ExhaustedError carrying the last request failure.
func (c *Client) Invoke(ctx context.Context, req core.Request) (Result, error) {
	started := time.Now()
	m := retry.NewMachine(c.opts.Policy)
	var steps []retry.Step

	finish := func() {
		c.opts.Metrics.ObserveInvocation(time.Since(started), m.Remaining())
	}

	for {
		attempt := m.Begin()
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				finish()
				return Result{Attempts: attempt, Remaining: m.Remaining(), Steps: steps}, err
			}
		}

		text, err := c.attempt(ctx, req)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			finish()
			return Result{Attempts: attempt, Remaining: m.Remaining(), Steps: steps}, err
		}
		if err == nil && text != "" {
			m.Succeed()
			c.opts.Metrics.ObserveAttempt("success")
			c.opts.Logger.Debug("reasoning response received",
				zap.Int("attempt", attempt),
				zap.Int("remaining", m.Remaining()),
				zap.Int("chars", len(text)),
			)
			finish()
			return Result{Text: text, Attempts: attempt, Remaining: m.Remaining(), Steps: steps}, nil
		}

		class := retry.Classify(err)
		step := m.Fail(class, err)
		steps = append(steps, step)
		c.opts.Metrics.ObserveAttempt(class.String())
		c.logStep(step)
		if c.opts.OnStep != nil {
			c.opts.OnStep(step)
		}

		if step.Next == retry.Exhausted {
			finish()
			return Result{Attempts: attempt, Remaining: m.Remaining(), Steps: steps}, m.Err()
		}
		if err := c.opts.Sleep(ctx, step.Delay); err != nil {
			finish()
			return Result{Attempts: attempt, Remaining: m.Remaining(), Steps: steps}, err
		}
		m.Resume()
	}
}

func (c *Client) attempt(ctx context.Context, req core.Request) (string, error) {
	reqCtx := ctx
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}
	return c.completer.Complete(reqCtx, req)
}

func (c *Client) logStep(s retry.Step) {
	fields := []zap.Field{
		zap.Int("attempt", s.Attempt),
		zap.Stringer("class", s.Class),
		zap.Int("remaining", s.Remaining),
		zap.Duration("delay", s.Delay),
	}
	if s.Err != nil {
		fields = append(fields, zap.String("error", redact.Truncate(s.Err.Error(), 512)))
	}
	switch {
	case s.Next == retry.Exhausted:
		c.opts.Logger.Error("retry budget exhausted", fields...)
	case s.Class == retry.ClassEmpty:
		c.opts.Logger.Warn("empty response, retrying", fields...)
	case s.Class == retry.ClassRateLimited:
		c.opts.Logger.Warn("rate limited, backing off", fields...)
	default:
		c.opts.Logger.Warn("request failed, backing off", fields...)
	}
}
