// Package testutil provides shared fixtures for EmbedDB tests: a
// manually advanceable clock for retry-backoff scenarios and embedder
// doubles with scripted failure behavior.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarveshkapre/embeddb/pkg/embedding"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Clock is a manual wall clock in milliseconds. Job retry scheduling
// takes now_ms as a parameter, so tests drive time explicitly instead
// of sleeping.
type Clock struct {
	mu sync.Mutex
	ms int64
}

// NewClock starts a clock at start milliseconds.
func NewClock(start int64) *Clock {
	return &Clock{ms: start}
}

// NowMS returns the current instant.
func (c *Clock) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d milliseconds and returns the
// new instant.
func (c *Clock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d
	return c.ms
}

// FlakyEmbedder fails its first FailuresBeforeSuccess calls, then
// delegates to Inner. Used by the retry-backoff scenarios.
type FlakyEmbedder struct {
	Inner                 embedding.Embedder
	FailuresBeforeSuccess int

	mu    sync.Mutex
	calls int
}

// Embed fails until the scripted failures are exhausted.
func (f *FlakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n <= f.FailuresBeforeSuccess {
		return nil, fmt.Errorf("scripted failure %d of %d", n, f.FailuresBeforeSuccess)
	}
	return f.Inner.Embed(ctx, text)
}

// Dimension returns the inner embedder's dimension.
func (f *FlakyEmbedder) Dimension() int { return f.Inner.Dimension() }

// Calls returns how many times Embed has been invoked.
func (f *FlakyEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FailingEmbedder always fails. Used to exercise the Failed terminal
// state.
type FailingEmbedder struct {
	Dim int
}

func (f *FailingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedder permanently unavailable")
}

func (f *FailingEmbedder) Dimension() int { return f.Dim }

// VectorTable returns an embedder that looks rendered source text up
// in a fixed map, so tests can pin exact vectors per row. Unknown
// text embeds to the zero vector.
func VectorTable(vectors map[string][]float32, dim int) embedding.Embedder {
	return embedding.FuncEmbedder{
		Fn: func(_ context.Context, text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				out := make([]float32, len(v))
				copy(out, v)
				return out, nil
			}
			return make([]float32, dim), nil
		},
		Dim: dim,
	}
}

// NotesSchema is the two-string-column schema used across end-to-end
// scenarios.
func NotesSchema() types.Schema {
	return types.Schema{Columns: []types.Column{
		{Name: "title", Type: types.ColumnString},
		{Name: "body", Type: types.ColumnString},
	}}
}

// NotesSpec embeds title and body under cosine distance.
func NotesSpec() *types.EmbeddingSpec {
	return &types.EmbeddingSpec{
		SourceColumns: []string{"title", "body"},
		DefaultMetric: types.MetricCosine,
	}
}

// Note builds a notes-table payload.
func Note(title, body string) types.Payload {
	return types.Payload{
		"title": types.StringValue(title),
		"body":  types.StringValue(body),
	}
}
