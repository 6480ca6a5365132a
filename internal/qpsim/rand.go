package qpsim

import "math/rand/v2"

// newCellRNG derives a per-cell deterministic random source from a single
// run seed so that reproducibility of a run depends only on that seed, not
// on mesh build order. Each Asic gets its own stream for random clock-phase
// seeding and Poisson background-hit generation.
func newCellRNG(seed uint64, row, col int) *rand.Rand {
	mix := seed
	mix ^= uint64(row)*0x9E3779B97F4A7C15 + 0x9E3779B97F4A7C15
	mix ^= uint64(col)*0xBF58476D1CE4E5B9 + 0xBF58476D1CE4E5B9
	return rand.New(rand.NewPCG(mix, seed))
}

// randomPhase draws the initial relative-time phase for an Asic's clock,
// uniform in [-tOsc/2, +tOsc/2).
func randomPhase(rng *rand.Rand, tOsc float64) float64 {
	return (rng.Float64() - 0.5) * tOsc
}
