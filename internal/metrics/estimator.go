package metrics

import "math"

// Outcome is one attempted chart for the skill estimators: the chart's
// difficulty value (or comparable index), an optional per-item
// discrimination, and whether the attempt succeeded.
type Outcome struct {
	Difficulty     float64
	Discrimination float64 // consulted only by EstimateIndex
	Success        bool
}

// fixedDiscrimination is the logistic scale used when the data carries no
// per-item discrimination.
const fixedDiscrimination = 0.75

// EstimateSkill fits a latent ability against pass/fail outcomes with a
// fixed discrimination, via maximum likelihood. Zero outcomes yields 0,
// the display value for "no estimate".
func EstimateSkill(items []Outcome) float64 {
	return estimate(items, func(Outcome) float64 { return fixedDiscrimination })
}

// EstimateIndex is the variant with per-item discrimination supplied by the
// data. Items with a non-positive discrimination fall back to the fixed one.
func EstimateIndex(items []Outcome) float64 {
	return estimate(items, func(o Outcome) float64 {
		if o.Discrimination > 0 {
			return o.Discrimination
		}
		return fixedDiscrimination
	})
}

// PassProbability is the logistic success probability of an ability theta
// on one item. Exposed for rank displays.
func PassProbability(theta, difficulty, discrimination float64) float64 {
	if discrimination <= 0 {
		discrimination = fixedDiscrimination
	}
	return 1 / (1 + math.Exp(-(theta-difficulty)/discrimination))
}

// estimate maximizes the Bernoulli log-likelihood over theta with a
// coarse-then-fine grid search: step 1.0 across the data's difficulty range
// (padded), then 0.01 within ±2 of the coarse maximizer.
func estimate(items []Outcome, disc func(Outcome) float64) float64 {
	if len(items) == 0 {
		return 0
	}

	lo, hi := items[0].Difficulty, items[0].Difficulty
	for _, it := range items[1:] {
		lo = math.Min(lo, it.Difficulty)
		hi = math.Max(hi, it.Difficulty)
	}
	lo -= 5
	hi += 5

	ll := func(theta float64) float64 {
		sum := 0.0
		for _, it := range items {
			p := PassProbability(theta, it.Difficulty, disc(it))
			// Clamp away from 0 and 1; exp overflow can saturate p exactly.
			p = math.Min(math.Max(p, 1e-12), 1-1e-12)
			if it.Success {
				sum += math.Log(p)
			} else {
				sum += math.Log(1 - p)
			}
		}
		return sum
	}

	coarse := maximize(ll, lo, hi, 1.0)
	return maximize(ll, coarse-2, coarse+2, 0.01)
}

func maximize(ll func(float64) float64, lo, hi, step float64) float64 {
	best := lo
	bestLL := math.Inf(-1)
	for theta := lo; theta <= hi; theta += step {
		if v := ll(theta); v > bestLL {
			bestLL = v
			best = theta
		}
	}
	return best
}
