package criteria

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// expressionKeywords are the boolean expression operators. An alias equal
// to one of them could never be referenced, so it is rejected up front.
var expressionKeywords = map[string]bool{
	"and": true,
	"or":  true,
	"not": true,
}

// validateAlias checks that a rule alias is usable as an expression
// reference: identifier-shaped, within length limits, and not an operator
// keyword. Keywords are matched case-insensitively, the way the expression
// lexer reads them.
func validateAlias(alias string) error {
	if len(alias) > 100 {
		return fmt.Errorf("alias length %d exceeds maximum of 100 characters", len(alias))
	}
	if !identifierPattern.MatchString(alias) {
		return fmt.Errorf("alias must start with a letter or underscore, followed by letters, digits, or underscores")
	}
	if expressionKeywords[strings.ToLower(alias)] {
		return fmt.Errorf("alias %q is a boolean expression keyword", alias)
	}
	return nil
}

// validateGroupAliases rejects duplicate aliases within a group, which
// would make expression references ambiguous.
func validateGroupAliases(rules []Rule) error {
	seen := make(map[string]int)
	for i, r := range rules {
		if r.Alias == "" {
			continue
		}
		if prev, dup := seen[r.Alias]; dup {
			return fmt.Errorf("alias %q is used by both rule %d and rule %d", r.Alias, prev+1, i+1)
		}
		seen[r.Alias] = i
	}
	return nil
}
