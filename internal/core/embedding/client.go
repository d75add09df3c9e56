// Package embedding adapts an EmbeddingProvider into a batched, rate limited
// and retrying client that reports one result per input text.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
)

// Result is the outcome for one input text: a vector or an error.
type Result struct {
	Vector []float32
	Err    error
}

// Config tunes request shaping.
//
// BatchSize:     texts per provider request.
// MaxInputChars: per-text limit checked before any call (0 disables the check).
// CallTimeout:   deadline of a single provider request.
type Config struct {
	BatchSize     int
	MaxInputChars int
	CallTimeout   time.Duration
}

// Client embeds texts through a provider. A Client is safe for concurrent use;
// WithBudget derives a per-job view sharing the provider and limiter.
type Client struct {
	provider core.EmbeddingProvider
	cfg      Config
	policy   retry.Policy
	limiter  *rate.Limiter
	budget   *semaphore.Weighted
	logger   *zap.Logger
}

// NewClient wires the provider with the retry policy and an optional process-wide limiter.
func NewClient(provider core.EmbeddingProvider, cfg Config, policy retry.Policy, limiter *rate.Limiter, logger *zap.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{provider: provider, cfg: cfg, limiter: limiter, logger: logger}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("embedding request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
		}
	}
	c.policy = policy
	return c
}

// WithBudget returns a copy of c whose provider requests each hold one slot of sem.
func (c *Client) WithBudget(sem *semaphore.Weighted) *Client {
	cp := *c
	cp.budget = sem
	return &cp
}

// ForQueries returns a copy of c embedding through the provider's query-side
// model when it has one, and c itself otherwise.
func (c *Client) ForQueries() *Client {
	qp, ok := c.provider.(core.QueryEmbeddingProvider)
	if !ok {
		return c
	}
	cp := *c
	cp.provider = qp.ForQueries()
	return &cp
}

// Embed returns exactly len(texts) results in input order. Failures are
// reported per item and never abort sibling batches.
func (c *Client) Embed(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if c.cfg.MaxInputChars > 0 && utf8.RuneCountInString(t) > c.cfg.MaxInputChars {
			results[i].Err = fmt.Errorf("%w: %d characters exceeds limit of %d",
				core.ErrInputTooLarge, utf8.RuneCountInString(t), c.cfg.MaxInputChars)
			continue
		}
		pending = append(pending, i)
	}

	var g errgroup.Group
	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(pending))
		batch := pending[start:end]
		g.Go(func() error {
			c.embedBatch(ctx, texts, batch, results)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// embedBatch fills results for the given input positions. Each goroutine owns
// a disjoint set of positions.
func (c *Client) embedBatch(ctx context.Context, texts []string, positions []int, results []Result) {
	batch := make([]string, len(positions))
	for i, p := range positions {
		batch[i] = texts[p]
	}

	vecs, err := c.request(ctx, batch)
	switch {
	case err == nil:
		for i, p := range positions {
			results[p].Vector = vecs[i]
		}
	case errors.Is(err, core.ErrInputTooLarge) && len(positions) > 1:
		// isolate the offending input(s)
		c.logger.Debug("embedding batch rejected, re-issuing item by item", zap.Int("batch_size", len(positions)))
		for _, p := range positions {
			c.embedBatch(ctx, texts, []int{p}, results)
		}
	case errors.Is(err, core.ErrInputTooLarge):
		results[positions[0]].Err = err
	default:
		c.logger.Error("embedding batch failed", zap.Int("batch_size", len(positions)), zap.Error(err))
		failed := fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
		for _, p := range positions {
			results[p].Err = failed
		}
	}
}

// request performs one provider call under the budget, limiter and retry policy.
func (c *Client) request(ctx context.Context, batch []string) ([][]float32, error) {
	if c.budget != nil {
		if err := c.budget.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.budget.Release(1)
	}

	var vecs [][]float32
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		out, err := c.provider.EmbedTexts(callCtx, batch)
		if err != nil {
			return err
		}
		if len(out) != len(batch) {
			return fmt.Errorf("provider returned %d vectors for %d inputs", len(out), len(batch))
		}
		vecs = out
		return nil
	})
	return vecs, err
}
