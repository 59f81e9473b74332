package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/epiwatch/epiwatch/internal/domain"
)

// fetchResult pairs a fetched series (or its error) with the index of the
// request that produced it, so callers can re-establish request order.
type fetchResult struct {
	index  int
	series *domain.SignalSeries
	err    error
}

// fetchPool runs a batch of signal fetches concurrently with a bounded
// number of workers and a per-fetch timeout. A slow or failing fetch never
// blocks its siblings.
type fetchPool struct {
	numWorkers int
	timeout    time.Duration
}

func newFetchPool(numWorkers int, timeout time.Duration) *fetchPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &fetchPool{numWorkers: numWorkers, timeout: timeout}
}

// FetchBatch fetches all requests and returns results in request order.
func (p *fetchPool) FetchBatch(ctx context.Context, source domain.SignalSource, requests []domain.SignalRequest) []fetchResult {
	n := len(requests)
	if n == 0 {
		return nil
	}

	jobs := make(chan int, n)
	results := make(chan fetchResult, n)

	workers := p.numWorkers
	if n < workers {
		workers = n
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- p.fetchOne(ctx, source, idx, requests[idx])
			}
		}()
	}

	for idx := range requests {
		jobs <- idx
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]fetchResult, n)
	for r := range results {
		ordered[r.index] = r
	}
	return ordered
}

func (p *fetchPool) fetchOne(ctx context.Context, source domain.SignalSource, idx int, req domain.SignalRequest) fetchResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	series, err := source.FetchSignal(ctx, req)
	return fetchResult{index: idx, series: series, err: err}
}
