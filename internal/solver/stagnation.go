package solver

// StagnationTracker counts consecutive generations that produced no new
// code coverage, triggering a population reset once the run has gone
// Max generations without progress, mirroring the
// original engine's symbolic-execution-driven restart heuristic (spec.md
// 4.8: "reset the population after MAX_SYMBOLIC_EXECUTION stagnant
// generations").
type StagnationTracker struct {
	Max int

	lastCoverage int
	streak       int
}

// NewStagnationTracker creates a tracker that signals reset after max
// consecutive no-progress generations.
func NewStagnationTracker(max int) *StagnationTracker {
	return &StagnationTracker{Max: max}
}

// Observe records this generation's cumulative code coverage size,
// returning true once the stagnation streak reaches Max (and resetting the
// streak so the caller gets one reset signal per stagnation period).
func (s *StagnationTracker) Observe(coverage int) bool {
	if coverage > s.lastCoverage {
		s.lastCoverage = coverage
		s.streak = 0
		return false
	}

	s.streak++
	if s.Max > 0 && s.streak >= s.Max {
		s.streak = 0
		return true
	}

	return false
}
