package criteria

// evaluateGroup folds member rule results into a group outcome under the
// group's combinator. ruleResults are the results of the group's active
// members, in member order; index maps member position to its result index,
// with -1 for members that were skipped as inactive.
func evaluateGroup(group RuleGroup, ruleResults []RuleResult, index []int) GroupResult {
	result := GroupResult{
		GroupID:    group.ID,
		Combinator: group.Combinator,
		Results:    ruleResults,
		Weight:     group.Weight,
	}

	passed := 0
	for _, r := range ruleResults {
		if r.Passed {
			passed++
		}
	}

	// Group score is the passed fraction of evaluated members regardless of
	// combinator, so weighted scoring can grant partial credit even when
	// the binary verdict below fails.
	if len(ruleResults) > 0 {
		result.Score = float64(passed) / float64(len(ruleResults))
	}

	switch group.Combinator {
	case CombinatorAll:
		result.Passed = passed == len(ruleResults)
	case CombinatorAny:
		result.Passed = passed > 0
	case CombinatorMinN:
		result.Passed = passed >= group.MinRequired
	case CombinatorMajority:
		// Strict majority: a tie with even membership fails.
		result.Passed = passed*2 > len(ruleResults)
	case CombinatorExpression:
		ok, err := evaluateGroupExpression(group, ruleResults, index)
		if err != nil {
			result.Passed = false
			result.Err = err
			return result
		}
		result.Passed = ok
	default:
		// Unknown combinators are rejected by validation; reaching here
		// means the group was never validated.
		result.Passed = false
		result.Err = &ExpressionError{GroupID: group.ID, Reason: "unknown combinator " + string(group.Combinator)}
	}

	return result
}

// evaluateGroupExpression parses the group's boolean expression and
// substitutes each rule reference with its outcome. Parse failures are
// caught earlier by validation; a runtime reference that resolves to a
// member with no result (an inactive rule) is an ExpressionError that fails
// this group only.
func evaluateGroupExpression(group RuleGroup, ruleResults []RuleResult, index []int) (bool, error) {
	node, err := parseExpression(group.Expression)
	if err != nil {
		return false, &ExpressionError{GroupID: group.ID, Expression: group.Expression, Reason: err.Error()}
	}

	outcomes := make(map[string]bool)
	for _, ref := range node.refs(nil) {
		pos := resolveReference(ref, group.Rules)
		if pos < 0 {
			return false, &ExpressionError{GroupID: group.ID, Expression: group.Expression, Reason: "unknown rule reference " + ref}
		}
		if index[pos] < 0 {
			return false, &ExpressionError{GroupID: group.ID, Expression: group.Expression, Reason: "reference " + ref + " targets an inactive rule"}
		}
		outcomes[ref] = ruleResults[index[pos]].Passed
	}

	ok, err := node.eval(outcomes)
	if err != nil {
		return false, &ExpressionError{GroupID: group.ID, Expression: group.Expression, Reason: err.Error()}
	}
	return ok, nil
}
