// Package permission implements the Permission Engine: compiling declarative
// rulesets into an ordered decision list, resolving each tool call to a
// verdict, and persisting pending ask requests and their replies.
package permission

import (
	"strings"

	"github.com/codecoder/core/pkg/models"
	"gopkg.in/yaml.v3"
)

// KindRule is the decoded config shape for one permission kind: either a
// flat action applied to every scope ("*"), or a map from glob pattern to
// action for scoped kinds like read/edit/external_directory.
type KindRule struct {
	Action   models.PermissionAction
	Patterns map[string]models.PermissionAction
}

// UnmarshalYAML accepts either shape a config author writes: a flat
// "allow"/"ask"/"deny" scalar for kinds with no sub-scope, or a mapping of
// glob pattern to action for scoped kinds like read/edit/external_directory.
func (k *KindRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var action models.PermissionAction
		if err := value.Decode(&action); err != nil {
			return err
		}
		k.Action = action
		return nil
	}
	var patterns map[string]models.PermissionAction
	if err := value.Decode(&patterns); err != nil {
		return err
	}
	k.Patterns = patterns
	return nil
}

// RawRuleSet is a kind-keyed configuration layer, as decoded from built-in
// defaults, an agent's overrides, or a project's config file.
type RawRuleSet map[models.PermissionKind]KindRule

// reservedTruncationGlob is the truncated-output directory that stays
// readable/writable unless a layer explicitly overrides it.
const reservedTruncationGlob = ".ccode/truncated/**"

// BuiltinDefaults returns the built-in ruleset layer: a conservative
// baseline that callers compile agent and project overrides on top of.
func BuiltinDefaults() RawRuleSet {
	return RawRuleSet{
		models.KindRead: {
			Patterns: map[string]models.PermissionAction{
				"*":                    models.PermissionAllow,
				"*.env":                models.PermissionAsk,
				"*.env.example":        models.PermissionAllow,
				reservedTruncationGlob: models.PermissionAllow,
			},
		},
		models.KindEdit: {
			Patterns: map[string]models.PermissionAction{
				"*":                    models.PermissionAsk,
				"*.env":                models.PermissionAsk,
				reservedTruncationGlob: models.PermissionAllow,
			},
		},
		models.KindBash:              {Action: models.PermissionAsk},
		models.KindWebFetch:          {Action: models.PermissionAsk},
		models.KindWebSearch:         {Action: models.PermissionAllow},
		models.KindCodeSearch:        {Action: models.PermissionAllow},
		models.KindGlob:              {Action: models.PermissionAllow},
		models.KindGrep:              {Action: models.PermissionAllow},
		models.KindList:              {Action: models.PermissionAllow},
		models.KindTodoRead:          {Action: models.PermissionAllow},
		models.KindTodoWrite:         {Action: models.PermissionAllow},
		models.KindQuestion:          {Action: models.PermissionAllow},
		models.KindPlanEnter:         {Action: models.PermissionAllow},
		models.KindPlanExit:          {Action: models.PermissionAllow},
		models.KindDoomLoop:          {Action: models.PermissionAsk},
		models.KindExternalDirectory: {Action: models.PermissionAsk},
	}
}

// planModeEditAllow is the narrow set of plan-markdown patterns that stay
// editable while the turn is inside plan mode; every other edit is denied.
var planModeEditAllow = []string{"*.plan.md", "plans/*.md"}

// Compile merges layers in ascending precedence (defaults, then agent,
// then project — latest wins at equal specificity) into an ordered
// decision list sorted by descending specificity. planMode narrows edit
// to the plan-markdown allowlist regardless of what the layers say.
func Compile(planMode bool, layers ...RawRuleSet) []models.PermissionRule {
	merged := make(map[models.PermissionKind]map[string]models.PermissionAction)

	for _, layer := range layers {
		for kind, rule := range layer {
			scopes := merged[kind]
			if scopes == nil {
				scopes = make(map[string]models.PermissionAction)
				merged[kind] = scopes
			}
			if rule.Action != "" {
				scopes["*"] = rule.Action
			}
			for pattern, action := range rule.Patterns {
				scopes[pattern] = action
			}
		}
	}

	rules := make([]models.PermissionRule, 0)
	for kind, scopes := range merged {
		for pattern, action := range scopes {
			rules = append(rules, models.PermissionRule{
				Kind:        kind,
				Pattern:     pattern,
				Action:      action,
				Specificity: specificity(pattern),
			})
		}
	}

	if planMode {
		rules = append(rules, planModeRules()...)
	}

	sortRules(rules)
	return rules
}

func planModeRules() []models.PermissionRule {
	rules := make([]models.PermissionRule, 0, len(planModeEditAllow)+1)
	for _, pattern := range planModeEditAllow {
		rules = append(rules, models.PermissionRule{
			Kind:        models.KindEdit,
			Pattern:     pattern,
			Action:      models.PermissionAllow,
			Specificity: specificity(pattern) + planModeSpecificityBoost,
		})
	}
	rules = append(rules, models.PermissionRule{
		Kind:        models.KindEdit,
		Pattern:     "*",
		Action:      models.PermissionDeny,
		Specificity: specificity("*") + planModeSpecificityBoost,
	})
	return rules
}

// planModeSpecificityBoost keeps plan-mode rules ranked above any
// same-pattern rule from the compiled layers, since plan mode must win
// regardless of where in the merge order it would otherwise have landed.
const planModeSpecificityBoost = 1_000_000

func sortRules(rules []models.PermissionRule) {
	// Stable insertion sort on a small, already-mostly-distinct slice;
	// descending specificity, ties broken by declaration order.
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Specificity > rules[j-1].Specificity; j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

// specificity ranks a pattern: an exact (wildcard-free) pattern always
// outranks a glob, a longer glob outranks a shorter one, and the bare "*"
// catch-all ranks lowest of all.
func specificity(pattern string) int {
	if pattern == "*" || pattern == "" {
		return 0
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return 100_000 + len(pattern)
	}
	wildcards := strings.Count(pattern, "*") + strings.Count(pattern, "?")
	return 1_000 + len(pattern) - wildcards*10
}

// MatchPattern reports whether scope matches a glob-style pattern
// supporting "*" (any run of characters), "?" (single character), and
// literal segments — the same matcher used across kinds so external
// directory rules, file globs, and tool-name patterns all compile to one
// engine.
func MatchPattern(pattern, scope string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	return globMatch(pattern, scope)
}

// globMatch is a small, allocation-free glob matcher (no regexp
// compilation per call) supporting '*' and '?'.
func globMatch(pattern, name string) bool {
	return globMatchRunes([]rune(pattern), []rune(name))
}

func globMatchRunes(pattern, name []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Trailing '*' matches the rest unconditionally.
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if globMatchRunes(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		default:
			if len(name) == 0 || pattern[0] != name[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}
