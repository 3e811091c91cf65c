package optimize

import (
	"runtime"
	"sync"
)

// RandomSearch evaluates random points in concurrent batches. It serves as
// the fallback strategy when the Gaussian process search is disabled.
type RandomSearch struct {
	// BatchSize caps concurrent evaluations per batch; zero means
	// min(8, NumCPU).
	BatchSize int
	// Seed fixes the sampling sequence for tests; zero seeds from the clock.
	Seed int64
}

func (r *RandomSearch) Name() string { return "random" }

func (r *RandomSearch) Minimize(eval func([]float64) float64, lower, upper []float64, nCalls, _ int) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = runtime.NumCPU()
		if batch > 8 {
			batch = 8
		}
	}
	rng := newRNG(r.Seed)

	for remaining := nCalls; remaining > 0; {
		k := batch
		if k > remaining {
			k = remaining
		}
		pts := make([][]float64, k)
		for i := range pts {
			pts[i] = samplePoint(rng, lower, upper)
		}
		var wg sync.WaitGroup
		for _, pt := range pts {
			wg.Add(1)
			go func(p []float64) {
				defer wg.Done()
				eval(p)
			}(pt)
		}
		wg.Wait()
		remaining -= k
	}
}
