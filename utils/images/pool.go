package images

import (
	"context"
	"sync"
)

// ResolveAll resolves all references concurrently through a fixed pool of
// workers and returns results in input order. Once ctx is cancelled the
// remaining references come back as cancellation placeholders instead of
// aborting the whole document.
func (r *Resolver) ResolveAll(ctx context.Context, sources []string) []Resolved {
	if len(sources) == 0 {
		return nil
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	results := make([]Resolved, len(sources))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					results[i] = Resolved{Source: sources[i], Reason: FailCancelled}
					continue
				}
				results[i] = r.Resolve(ctx, sources[i])
			}
		}()
	}

	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
