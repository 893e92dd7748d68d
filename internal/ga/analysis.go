package ga

// AnalysisHook observes the evolutionary run at a configurable interval,
// mirroring `OnTheFlyAnalysis`'s setup/register_step/finalize contract.
type AnalysisHook interface {
	// Interval is the generation stride between Step calls; Step(-1) is
	// always called once before the loop starts regardless of Interval.
	Interval() int
	Setup(engine *Engine)
	Step(generation int, engine *Engine)
	Finalize(engine *Engine)
}
