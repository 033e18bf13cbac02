package criteria

// Scorer converts rule and group outcomes into a score. Implementations
// are registered per scoring method on the Engine, so alternate algorithms
// can be substituted without touching the orchestrator.
//
// ruleResults are the ungrouped rule outcomes; each group contributes as a
// single unit of its own weight, its member rules having already been
// folded into the group verdict.
type Scorer interface {
	Score(ruleResults []RuleResult, groupResults []GroupResult) float64
}

func builtinScorers() map[ScoringMethod]Scorer {
	avg := averageScorer{}
	return map[ScoringMethod]Scorer{
		MethodWeighted: weightedScorer{},
		MethodPassFail: passFailScorer{},
		MethodSum:      sumScorer{},
		MethodAverage:  avg,
		// Same algorithm as average; the name survives for API compatibility.
		MethodPercentage: avg,
	}
}

// weightedScorer computes 100 * passed weight / total weight. Groups
// receive partial credit proportional to their member pass ratio.
type weightedScorer struct{}

func (weightedScorer) Score(ruleResults []RuleResult, groupResults []GroupResult) float64 {
	var total, earned float64
	for _, r := range ruleResults {
		total += float64(r.Weight)
		if r.Passed {
			earned += float64(r.Weight)
		}
	}
	for _, g := range groupResults {
		total += g.Weight
		earned += g.Weight * g.Score
	}
	if total == 0 {
		// Division-by-zero guard: all-zero weights score 0 by definition.
		return 0
	}
	return 100 * earned / total
}

// passFailScorer grants no partial credit: 100 only when every rule and
// every group passes.
type passFailScorer struct{}

func (passFailScorer) Score(ruleResults []RuleResult, groupResults []GroupResult) float64 {
	if allPassed(ruleResults, groupResults) {
		return 100
	}
	return 0
}

func allPassed(ruleResults []RuleResult, groupResults []GroupResult) bool {
	for _, r := range ruleResults {
		if !r.Passed {
			return false
		}
	}
	for _, g := range groupResults {
		if !g.Passed {
			return false
		}
	}
	return true
}

// sumScorer is the raw sum of passed weights. It intentionally deviates
// from the 0-100 contract; callers interpret the scale themselves.
type sumScorer struct{}

func (sumScorer) Score(ruleResults []RuleResult, groupResults []GroupResult) float64 {
	var sum float64
	for _, r := range ruleResults {
		if r.Passed {
			sum += float64(r.Weight)
		}
	}
	for _, g := range groupResults {
		if g.Passed {
			sum += g.Weight
		}
	}
	return sum
}

// averageScorer is the passed fraction of active units scaled to 0-100,
// ignoring weights entirely. A group counts as one unit.
type averageScorer struct{}

func (averageScorer) Score(ruleResults []RuleResult, groupResults []GroupResult) float64 {
	total := len(ruleResults) + len(groupResults)
	if total == 0 {
		return 0
	}
	passed := 0
	for _, r := range ruleResults {
		if r.Passed {
			passed++
		}
	}
	for _, g := range groupResults {
		if g.Passed {
			passed++
		}
	}
	return 100 * float64(passed) / float64(total)
}
