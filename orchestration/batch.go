// Batch coordinator.
//
// Information Hiding:
// - Bounded fan-out over a worker pool
// - Per-item failure isolation
// - Result ordering by input index

package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/kotoba/lang"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Batch defaults.
const (
	DefaultBatchMaxItems    = 50
	DefaultBatchConcurrency = 5
)

// BatchItem is one independent text to translate. ID is echoed back
// verbatim and may be any JSON value.
type BatchItem struct {
	ID   json.RawMessage `json:"id"`
	Text string          `json:"text"`
}

// BatchResult is the outcome for one item: a translation or an error.
type BatchResult struct {
	ID          json.RawMessage `json:"id"`
	Original    string          `json:"original,omitempty"`
	Translation string          `json:"translation,omitempty"`
	SourceLang  lang.Language   `json:"source_lang,omitempty"`
	TargetLang  lang.Language   `json:"target_lang,omitempty"`
	Error       string          `json:"error,omitempty"`

	Err error `json:"-"` // operator-facing cause
}

// Failed reports whether the item failed.
func (r BatchResult) Failed() bool {
	return r.Err != nil
}

// BatchOption configures a BatchCoordinator.
type BatchOption func(*BatchCoordinator)

// WithMaxItems sets the largest accepted batch.
func WithMaxItems(n int) BatchOption {
	return func(b *BatchCoordinator) {
		if n > 0 {
			b.maxItems = n
		}
	}
}

// WithConcurrency bounds how many items are in flight at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchCoordinator) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// BatchCoordinator translates many independent texts without context or tools.
type BatchCoordinator struct {
	completer   Completer
	maxItems    int
	concurrency int
}

// NewBatchCoordinator creates a coordinator over completer.
func NewBatchCoordinator(completer Completer, opts ...BatchOption) *BatchCoordinator {
	b := &BatchCoordinator{
		completer:   completer,
		maxItems:    DefaultBatchMaxItems,
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxItems returns the batch size limit.
func (b *BatchCoordinator) MaxItems() int {
	return b.maxItems
}

// Translate processes items and returns one result per item, in input
// order. Oversized batches fail with ErrBatchTooLarge before any work.
// Individual failures never fail the batch.
func (b *BatchCoordinator) Translate(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	if len(items) > b.maxItems {
		return nil, fmt.Errorf("%w: %d items, limit is %d", ErrBatchTooLarge, len(items), b.maxItems)
	}

	start := time.Now()
	results := make([]BatchResult, len(items))

	p := pool.New().WithMaxGoroutines(b.concurrency)
	for i, item := range items {
		p.Go(func() {
			results[i] = b.translateItem(ctx, item)
		})
	}
	p.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			zerolog.Ctx(ctx).Warn().
				Err(r.Err).
				RawJSON("item_id", idOrNull(r.ID)).
				Msg("batch item failed")
		}
	}
	zerolog.Ctx(ctx).Debug().
		Int("items", len(items)).
		Int("failed", failed).
		Dur("latency", time.Since(start)).
		Msg("batch complete")

	return results, nil
}

func (b *BatchCoordinator) translateItem(ctx context.Context, item BatchItem) BatchResult {
	result := BatchResult{ID: item.ID}

	if err := ValidateMessage(item.Text); err != nil {
		return withError(result, err)
	}
	safe := Sanitize(item.Text)
	result.Original = safe

	source := lang.Classify(safe)
	target := lang.Complement(source)

	completion, err := b.completer.Complete(ctx, batchMessages(source, target, safe), nil)
	if err != nil {
		return withError(result, err)
	}
	if completion.Text == "" {
		return withError(result, errEmptyReply)
	}

	result.Translation = completion.Text
	result.SourceLang = source
	result.TargetLang = target
	return result
}

func withError(r BatchResult, err error) BatchResult {
	r.Original = ""
	r.Err = err
	r.Error = Classify(err).Message()
	return r
}

func idOrNull(id json.RawMessage) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}
