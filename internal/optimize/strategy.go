package optimize

import (
	"math"
	"math/rand"
	"time"
)

// Strategy minimizes eval over the box [lower, upper] using at most nCalls
// evaluations, the first randomStarts of which are random probes. eval never
// panics; failed evaluations surface as +Inf.
type Strategy interface {
	Name() string
	Minimize(eval func([]float64) float64, lower, upper []float64, nCalls, randomStarts int)
}

// logUniformRatio is the bounds ratio beyond which a positive dimension is
// sampled log-uniformly instead of uniformly.
const logUniformRatio = 50.0

func logScale(low, high float64) bool {
	return low > 0 && high/low > logUniformRatio
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// samplePoint draws one point from the box, log-uniform on wide positive
// dimensions. rng is not safe for concurrent use; callers sample serially.
func samplePoint(rng *rand.Rand, lower, upper []float64) []float64 {
	pt := make([]float64, len(lower))
	for i := range pt {
		lo, hi := lower[i], upper[i]
		if logScale(lo, hi) {
			pt[i] = lo * math.Exp(rng.Float64()*math.Log(hi/lo))
		} else {
			pt[i] = lo + rng.Float64()*(hi-lo)
		}
	}
	return pt
}
