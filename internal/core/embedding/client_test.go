package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
)

// fakeProvider embeds each text as [len(text)] unless fn overrides it.
type fakeProvider struct {
	mu    sync.Mutex
	calls [][]string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	fn func(call int, texts []string) ([][]float32, error)
}

func (f *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	call := len(f.calls)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(call, texts)
	}
	time.Sleep(5 * time.Millisecond)
	return lengthVectors(texts), nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func lengthVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		Sleep:          func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat("x", i+1)
	}
	return out
}

func TestEmbed_PositionalResultsAcrossBatches(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, Config{BatchSize: 3}, fastPolicy(1), nil, nil)

	texts := inputs(10)
	results := c.Embed(context.Background(), texts)

	require.Len(t, results, len(texts))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, []float32{float32(i + 1)}, r.Vector)
	}
	assert.Equal(t, 4, p.callCount())
}

func TestEmbed_EmptyInput(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, Config{}, fastPolicy(1), nil, nil)

	assert.Empty(t, c.Embed(context.Background(), nil))
	assert.Zero(t, p.callCount())
}

func TestEmbed_OversizedInputFailsWithoutCall(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, Config{BatchSize: 10, MaxInputChars: 5}, fastPolicy(1), nil, nil)

	texts := []string{"ok", strings.Repeat("y", 6), "fine"}
	results := c.Embed(context.Background(), texts)

	assert.ErrorIs(t, results[1].Err, core.ErrInputTooLarge)
	assert.Nil(t, results[1].Vector)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[2].Err)

	require.Equal(t, 1, p.callCount())
	assert.Equal(t, []string{"ok", "fine"}, p.calls[0])
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	p := &fakeProvider{fn: func(call int, texts []string) ([][]float32, error) {
		if call == 1 {
			return nil, retry.MarkTransient(errors.New("429 too many requests"))
		}
		return lengthVectors(texts), nil
	}}
	c := NewClient(p, Config{BatchSize: 4}, fastPolicy(3), nil, nil)

	results := c.Embed(context.Background(), inputs(2))

	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, 2, p.callCount())
}

func TestEmbed_ExhaustedBatchFailsOnlyItsItems(t *testing.T) {
	p := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		if texts[0] == "a" {
			return nil, retry.MarkTransient(errors.New("503 service unavailable"))
		}
		return lengthVectors(texts), nil
	}}
	c := NewClient(p, Config{BatchSize: 2}, fastPolicy(3), nil, nil)

	results := c.Embed(context.Background(), []string{"a", "b", "cc", "dd"})

	assert.ErrorIs(t, results[0].Err, core.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, results[1].Err, core.ErrEmbeddingUnavailable)
	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)
	// 3 attempts for the failing batch, 1 for the healthy one
	assert.Equal(t, 4, p.callCount())
}

func TestEmbed_PermanentErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{fn: func(int, []string) ([][]float32, error) {
		return nil, errors.New("401 unauthorized")
	}}
	c := NewClient(p, Config{BatchSize: 8}, fastPolicy(5), nil, nil)

	results := c.Embed(context.Background(), inputs(3))

	for _, r := range results {
		assert.ErrorIs(t, r.Err, core.ErrEmbeddingUnavailable)
	}
	assert.Equal(t, 1, p.callCount())
}

func TestEmbed_RejectedBatchIsReissuedItemByItem(t *testing.T) {
	p := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		for _, t := range texts {
			if t == "poison" {
				return nil, core.ErrInputTooLarge
			}
		}
		return lengthVectors(texts), nil
	}}
	c := NewClient(p, Config{BatchSize: 3}, fastPolicy(2), nil, nil)

	results := c.Embed(context.Background(), []string{"a", "poison", "ccc"})

	assert.NoError(t, results[0].Err)
	assert.Equal(t, []float32{1}, results[0].Vector)
	assert.ErrorIs(t, results[1].Err, core.ErrInputTooLarge)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, []float32{3}, results[2].Vector)
	assert.Equal(t, 4, p.callCount())
}

func TestEmbed_VectorCountMismatchFailsBatch(t *testing.T) {
	p := &fakeProvider{fn: func(int, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}}
	c := NewClient(p, Config{BatchSize: 2}, fastPolicy(1), nil, nil)

	results := c.Embed(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, results[0].Err, core.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, results[1].Err, core.ErrEmbeddingUnavailable)
}

func TestEmbed_BudgetBoundsInFlightRequests(t *testing.T) {
	p := &fakeProvider{}
	c := NewClient(p, Config{BatchSize: 1}, fastPolicy(1), nil, nil).WithBudget(semaphore.NewWeighted(2))

	results := c.Embed(context.Background(), inputs(12))

	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, p.maxInFlight.Load(), int32(2))
	assert.Equal(t, 12, p.callCount())
}

// queryAwareProvider tags vectors with 1 for documents and 2 for queries.
type queryAwareProvider struct{ tag float32 }

func (p queryAwareProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{p.tag}
	}
	return out, nil
}

func (p queryAwareProvider) ForQueries() core.EmbeddingProvider { return queryAwareProvider{tag: 2} }

func TestForQueries_UsesQueryModel(t *testing.T) {
	c := NewClient(queryAwareProvider{tag: 1}, Config{}, fastPolicy(1), nil, nil)

	assert.Equal(t, []float32{1}, c.Embed(context.Background(), []string{"doc"})[0].Vector)
	assert.Equal(t, []float32{2}, c.ForQueries().Embed(context.Background(), []string{"query"})[0].Vector)
}

func TestForQueries_PlainProviderIsUnchanged(t *testing.T) {
	c := NewClient(&fakeProvider{}, Config{}, fastPolicy(1), nil, nil)
	assert.Same(t, c, c.ForQueries())
}
