package tts

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/voxkit/voxkit/metrics/prometheus"
)

// BatchResult is one positional outcome of a batch synthesis. Exactly one
// of Result and Err is set.
type BatchResult struct {
	Result *SynthesisResult
	Err    error
}

// BatchOrchestrator fans out independent synthesis requests against one
// adapter, preserving input order in the results and isolating per-item
// failure: one item's error never aborts or reclassifies its siblings.
type BatchOrchestrator struct {
	adapter     Adapter
	policy      RetryPolicy
	concurrency int64
}

// NewBatchOrchestrator creates an orchestrator. A concurrency of 0 or 1
// runs items sequentially; larger values bound how many adapter calls are
// in flight at once.
func NewBatchOrchestrator(adapter Adapter, policy RetryPolicy, concurrency int) *BatchOrchestrator {
	return &BatchOrchestrator{
		adapter:     adapter,
		policy:      policy,
		concurrency: int64(concurrency),
	}
}

// SynthesizeBatch dispatches every request through the resilience engine
// with a fresh attempt budget per item. results[i] always corresponds to
// requests[i] regardless of completion order.
func (b *BatchOrchestrator) SynthesizeBatch(ctx context.Context, requests []SynthesisRequest) []BatchResult {
	results := make([]BatchResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	if b.concurrency <= 1 {
		for i, req := range requests {
			results[i] = b.synthesizeOne(ctx, req)
		}
		return results
	}

	sem := semaphore.NewWeighted(b.concurrency)
	for i, req := range requests {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = BatchResult{Err: Normalize(b.adapter.Name(), err)}
			continue
		}
		go func(i int, req SynthesisRequest) {
			defer sem.Release(1)
			results[i] = b.synthesizeOne(ctx, req)
		}(i, req)
	}

	// Draining the full weight waits for every in-flight item.
	if err := sem.Acquire(context.Background(), b.concurrency); err == nil {
		sem.Release(b.concurrency)
	}
	return results
}

func (b *BatchOrchestrator) synthesizeOne(ctx context.Context, req SynthesisRequest) BatchResult {
	res, err := Execute(ctx, b.adapter.Name(), "synthesize", b.policy,
		func(ctx context.Context) (*SynthesisResult, error) {
			return b.adapter.Synthesize(ctx, req)
		})
	prometheus.RecordBatchItem(b.adapter.Name(), err == nil)
	if err != nil {
		return BatchResult{Err: err}
	}
	return BatchResult{Result: res}
}
