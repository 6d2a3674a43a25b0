package rules

import (
	"log/slog"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// CompiledRule pairs a rule with its parsed predicate.
type CompiledRule struct {
	Predicate  *Predicate
	Name       string
	Expression string
}

// RuleError reports one rule that failed to compile.
type RuleError struct {
	Err  error
	Rule string
}

// Matcher evaluates a rule set against joined rows. Rules are combined with
// OR: the first enabled rule that matches decides the row.
type Matcher struct {
	logger *slog.Logger
	rules  []CompiledRule
}

// NewMatcher compiles the enabled rules. Invalid rules are returned as
// RuleErrors and skipped; one broken rule never blocks the rest.
func NewMatcher(ruleSet []model.FilterRule, logger *slog.Logger) (*Matcher, []RuleError) {
	if logger == nil {
		logger = slog.Default()
	}

	var compiled []CompiledRule
	var failures []RuleError
	for _, rule := range ruleSet {
		if !rule.Enabled {
			logger.Debug("skipping disabled rule", "rule", rule.Name)
			continue
		}
		pred, err := Parse(rule.Expression)
		if err != nil {
			failures = append(failures, RuleError{Rule: rule.Name, Err: err})
			logger.Warn("skipping invalid filter rule",
				"rule", rule.Name,
				"expression", rule.Expression,
				"error", err)
			continue
		}
		compiled = append(compiled, CompiledRule{
			Name:       rule.Name,
			Expression: rule.Expression,
			Predicate:  pred,
		})
	}

	return &Matcher{rules: compiled, logger: logger}, failures
}

// Len returns the number of usable rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match returns the name of the first rule matching the row. Rule order is
// the sheet order, so the reported rule is stable across runs.
func (m *Matcher) Match(row model.JoinedRow) (string, bool) {
	for _, rule := range m.rules {
		if rule.Predicate.Eval(row) {
			return rule.Name, true
		}
	}
	return "", false
}
