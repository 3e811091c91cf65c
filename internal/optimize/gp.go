package optimize

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GPSearch is a sequential Gaussian process search: after a block of random
// probes it fits an RBF-kernel GP to the observed objectives and picks the
// next point by expected improvement over a random candidate set. All model
// math happens on the unit cube; wide positive dimensions are warped through
// log space so the kernel sees them evenly.
type GPSearch struct {
	// Candidates is the size of the random acquisition set per step; zero
	// means 256.
	Candidates int
	// LengthScale of the RBF kernel on the unit cube; zero means 0.25.
	LengthScale float64
	// Xi is the exploration margin in the expected improvement; zero means
	// 0.01.
	Xi float64
	// Seed fixes the sampling sequence for tests; zero seeds from the clock.
	Seed int64
}

const gpNoise = 1e-8

func (g *GPSearch) Name() string { return "gp" }

func (g *GPSearch) Minimize(eval func([]float64) float64, lower, upper []float64, nCalls, randomStarts int) {
	if randomStarts < 1 {
		randomStarts = 1
	}
	if randomStarts > nCalls {
		randomStarts = nCalls
	}
	rng := newRNG(g.Seed)

	var (
		obsX [][]float64 // unit-cube coordinates
		obsY []float64
	)
	observe := func(pt []float64) {
		v := eval(pt)
		obsX = append(obsX, toUnit(pt, lower, upper))
		obsY = append(obsY, v)
	}

	for i := 0; i < randomStarts; i++ {
		observe(samplePoint(rng, lower, upper))
	}
	for len(obsX) < nCalls {
		next := g.suggest(rng, obsX, obsY, lower, upper)
		observe(next)
	}
}

// suggest fits the GP to the observations and returns the candidate with the
// highest expected improvement. On a degenerate model it falls back to a
// random point.
func (g *GPSearch) suggest(rng *rand.Rand, obsX [][]float64, obsY []float64, lower, upper []float64) []float64 {
	n := len(obsX)
	y, yBest := clampObjectives(obsY)

	// Center observations around zero to match the GP's zero-mean prior.
	mean := stat.Mean(y, nil)
	for i := range y {
		y[i] -= mean
	}
	yBest -= mean

	scale := g.LengthScale
	if scale <= 0 {
		scale = 0.25
	}
	kern := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k := rbf(obsX[i], obsX[j], scale)
			if i == j {
				k += gpNoise
			}
			kern.SetSym(i, j, k)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(kern) {
		return samplePoint(rng, lower, upper)
	}
	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, mat.NewVecDense(n, y)); err != nil {
		return samplePoint(rng, lower, upper)
	}

	candidates := g.Candidates
	if candidates <= 0 {
		candidates = 256
	}
	xi := g.Xi
	if xi <= 0 {
		xi = 0.01
	}

	dim := len(lower)
	bestEI := math.Inf(-1)
	best := samplePoint(rng, lower, upper)
	kvec := mat.NewVecDense(n, nil)
	for c := 0; c < candidates; c++ {
		u := make([]float64, dim)
		for i := range u {
			u[i] = rng.Float64()
		}
		for i := 0; i < n; i++ {
			kvec.SetVec(i, rbf(u, obsX[i], scale))
		}
		mu := mat.Dot(kvec, &alpha)
		var v mat.VecDense
		if err := chol.SolveVecTo(&v, kvec); err != nil {
			continue
		}
		variance := 1.0 + gpNoise - mat.Dot(kvec, &v)
		sigma := math.Sqrt(math.Max(variance, 1e-12))

		imp := yBest - mu - xi
		z := imp / sigma
		ei := imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
		if ei > bestEI {
			bestEI = ei
			best = fromUnit(u, lower, upper)
		}
	}
	return best
}

// clampObjectives replaces non-finite observations with the worst finite one
// so a failed evaluation repels the model without poisoning the fit. It also
// returns the best (lowest) clamped value.
func clampObjectives(obsY []float64) ([]float64, float64) {
	worst := math.Inf(-1)
	for _, v := range obsY {
		if !math.IsInf(v, 0) && !math.IsNaN(v) && v > worst {
			worst = v
		}
	}
	if math.IsInf(worst, -1) {
		worst = 1.0
	}
	out := make([]float64, len(obsY))
	best := math.Inf(1)
	for i, v := range obsY {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			v = worst
		}
		out[i] = v
		if v < best {
			best = v
		}
	}
	return out, best
}

func rbf(a, b []float64, scale float64) float64 {
	var d2 float64
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2 * scale * scale))
}

func toUnit(pt, lower, upper []float64) []float64 {
	u := make([]float64, len(pt))
	for i := range pt {
		lo, hi := lower[i], upper[i]
		if logScale(lo, hi) {
			u[i] = math.Log(pt[i]/lo) / math.Log(hi/lo)
		} else {
			u[i] = (pt[i] - lo) / (hi - lo)
		}
	}
	return u
}

func fromUnit(u, lower, upper []float64) []float64 {
	pt := make([]float64, len(u))
	for i := range u {
		lo, hi := lower[i], upper[i]
		if logScale(lo, hi) {
			pt[i] = lo * math.Exp(u[i]*math.Log(hi/lo))
		} else {
			pt[i] = lo + u[i]*(hi-lo)
		}
	}
	return pt
}
