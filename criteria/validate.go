package criteria

import (
	"fmt"
	"regexp"
)

// Validate checks a criteria definition against the configuration rules.
// All failures are fatal ConfigurationErrors detected before any data is
// touched: an invalid definition never produces a partial result.
func (e *Engine) Validate(c *Criteria) error {
	if c == nil {
		return configErrf("", "criteria is nil")
	}

	if c.Threshold < 0 || c.Threshold > 100 {
		return configErrf(c.ID, "threshold %v out of range [0,100]", c.Threshold)
	}

	e.mu.RLock()
	_, methodKnown := e.scorers[c.Method]
	e.mu.RUnlock()
	if !methodKnown {
		return configErrf(c.ID, "unknown scoring method %q", c.Method)
	}

	// A criteria with nothing to evaluate would trivially pass; require at
	// least one active rule or one group instead of defaulting to pass.
	activeRules := 0
	for _, r := range c.Rules {
		if r.Active {
			activeRules++
		}
	}
	if activeRules == 0 && len(c.Groups) == 0 {
		return configErrf(c.ID, "criteria has no active rules and no groups")
	}

	for i, r := range c.Rules {
		if err := e.validateRule(c.ID, fmt.Sprintf("rule %d", i+1), r); err != nil {
			return err
		}
	}

	for i, g := range c.Groups {
		if err := e.validateGroup(c.ID, i, g); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) validateRule(criteriaID, label string, r Rule) error {
	if r.Field == "" {
		return configErrf(criteriaID, "%s has an empty field", label)
	}
	if r.Weight < 0 {
		return configErrf(criteriaID, "%s has negative weight %d", label, r.Weight)
	}
	if r.Alias != "" {
		if err := validateAlias(r.Alias); err != nil {
			return configErrf(criteriaID, "%s has invalid alias: %v", label, err)
		}
	}

	e.mu.RLock()
	_, known := e.operators[r.Op]
	e.mu.RUnlock()
	if !known {
		return configErrf(criteriaID, "%s uses unknown operator %q", label, r.Op)
	}

	switch r.Op {
	case OpBetween, OpNotBetween:
		list, err := coerceList(r.Field, r.Value, "")
		if err != nil || len(list.List) != 2 {
			return configErrf(criteriaID, "%s operator %s requires a two-element array value", label, r.Op)
		}
	case OpIn, OpNotIn:
		if _, err := coerceList(r.Field, r.Value, ""); err != nil {
			return configErrf(criteriaID, "%s operator %s requires an array value", label, r.Op)
		}
	case OpRegex:
		pattern, ok := r.Value.(string)
		if !ok {
			return configErrf(criteriaID, "%s operator regex requires a string pattern", label)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return configErrf(criteriaID, "%s has invalid regex pattern: %v", label, err)
		}
	}

	return nil
}

func (e *Engine) validateGroup(criteriaID string, idx int, g RuleGroup) error {
	label := fmt.Sprintf("group %d", idx+1)
	if g.ID != "" {
		label = fmt.Sprintf("group %s", g.ID)
	}

	if len(g.Rules) == 0 {
		// An empty group would be vacuously true under all; reject it.
		return configErrf(criteriaID, "%s has no member rules", label)
	}
	active := 0
	for _, r := range g.Rules {
		if r.Active {
			active++
		}
	}
	if active == 0 {
		// Same vacuous-truth problem as an empty group: with every member
		// inactive there are no results to combine.
		return configErrf(criteriaID, "%s has no active member rules", label)
	}
	if g.Weight < 0 {
		return configErrf(criteriaID, "%s has negative weight %v", label, g.Weight)
	}
	if err := validateGroupAliases(g.Rules); err != nil {
		return configErrf(criteriaID, "%s has ambiguous aliases: %v", label, err)
	}

	switch g.Combinator {
	case CombinatorAll, CombinatorAny, CombinatorMajority:
	case CombinatorMinN:
		if g.MinRequired < 1 || g.MinRequired > len(g.Rules) {
			return configErrf(criteriaID, "%s min_required %d out of range [1,%d]", label, g.MinRequired, len(g.Rules))
		}
	case CombinatorExpression:
		node, err := parseExpression(g.Expression)
		if err != nil {
			return configErrf(criteriaID, "%s has malformed expression %q: %v", label, g.Expression, err)
		}
		for _, ref := range node.refs(nil) {
			if resolveReference(ref, g.Rules) < 0 {
				return configErrf(criteriaID, "%s expression references unknown rule %q", label, ref)
			}
		}
	default:
		return configErrf(criteriaID, "%s uses unknown combinator %q", label, g.Combinator)
	}

	for i, r := range g.Rules {
		memberLabel := fmt.Sprintf("%s rule %d", label, i+1)
		if err := e.validateRule(criteriaID, memberLabel, r); err != nil {
			return err
		}
	}

	return nil
}
