// Package xp decides and records experience point awards.
package xp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/leafline/internal/models"
)

// Cooldown names a repeat-award restriction.
type Cooldown string

// Cooldown policies.
const (
	CooldownNone Cooldown = ""
	// CooldownPerReferenceDaily allows one award per (action, reference) per day.
	CooldownPerReferenceDaily Cooldown = "per_reference_daily"
)

// Rule describes how an action earns XP. A nil Base means the caller supplies the amount,
// a nil DailyCap means unlimited occurrences per day.
type Rule struct {
	Base     *int     `yaml:"base" json:"base"`
	DailyCap *int     `yaml:"daily_cap" json:"daily_cap"`
	Cooldown Cooldown `yaml:"cooldown" json:"cooldown,omitempty"`
}

// RuleTable maps every action to its rule. It is read-only once built.
type RuleTable struct {
	rules map[models.XPAction]Rule
}

func intPtr(v int) *int { return &v }

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleTable {
	t, err := NewRuleTable(map[models.XPAction]Rule{
		models.XPActionPostCreate:      {Base: intPtr(3), DailyCap: intPtr(5)},
		models.XPActionCommentCreate:   {Base: intPtr(1), DailyCap: intPtr(10)},
		models.XPActionArticleRead:     {Base: intPtr(2), DailyCap: intPtr(5), Cooldown: CooldownPerReferenceDaily},
		models.XPActionGameBlockPlay:   {Base: intPtr(1), DailyCap: intPtr(20)},
		models.XPActionPotLink:         {Base: intPtr(25)},
		models.XPActionAdminAdjustment: {},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// NewRuleTable copies rules into a table after checking that every known action has a
// well-formed rule and that no unknown action is present.
func NewRuleTable(rules map[models.XPAction]Rule) (*RuleTable, error) {
	copied := make(map[models.XPAction]Rule, len(rules))
	for action, rule := range rules {
		if !action.Valid() {
			return nil, fmt.Errorf("unknown action %q", action)
		}
		if err := validateRule(action, rule); err != nil {
			return nil, err
		}
		copied[action] = Rule{
			Base:     copyInt(rule.Base),
			DailyCap: copyInt(rule.DailyCap),
			Cooldown: rule.Cooldown,
		}
	}

	for _, action := range models.AllXPActions() {
		if _, ok := copied[action]; !ok {
			return nil, fmt.Errorf("missing rule for action %q", action)
		}
	}

	return &RuleTable{rules: copied}, nil
}

func validateRule(action models.XPAction, rule Rule) error {
	if action == models.XPActionAdminAdjustment {
		if rule.Base != nil {
			return fmt.Errorf("action %q takes a caller-supplied amount and cannot have a base", action)
		}
	} else if rule.Base == nil || *rule.Base <= 0 {
		return fmt.Errorf("action %q needs a positive base amount", action)
	}

	if rule.DailyCap != nil && *rule.DailyCap <= 0 {
		return fmt.Errorf("action %q has a non-positive daily cap", action)
	}

	switch rule.Cooldown {
	case CooldownNone, CooldownPerReferenceDaily:
	default:
		return fmt.Errorf("action %q has unknown cooldown %q", action, rule.Cooldown)
	}
	return nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Lookup returns the rule for an action.
func (t *RuleTable) Lookup(action models.XPAction) (Rule, bool) {
	rule, ok := t.rules[action]
	return rule, ok
}

// All returns a copy of the table keyed by action.
func (t *RuleTable) All() map[models.XPAction]Rule {
	out := make(map[models.XPAction]Rule, len(t.rules))
	for action, rule := range t.rules {
		out[action] = Rule{Base: copyInt(rule.Base), DailyCap: copyInt(rule.DailyCap), Cooldown: rule.Cooldown}
	}
	return out
}

type rulesFile struct {
	Rules map[models.XPAction]Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file. Actions missing from the file keep their default rule.
//
//	rules:
//	  post_create:
//	    base: 3
//	    daily_cap: 5
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	merged := DefaultRules().All()
	for action, rule := range file.Rules {
		merged[action] = rule
	}

	table, err := NewRuleTable(merged)
	if err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	return table, nil
}
