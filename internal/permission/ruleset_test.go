package permission

import (
	"testing"

	"github.com/codecoder/core/pkg/models"
)

func TestCompileDefaultsAllowRead(t *testing.T) {
	rules := Compile(false, BuiltinDefaults())
	action, _ := firstMatch(rules, models.KindRead, "main.go")
	if action != models.PermissionAllow {
		t.Fatalf("expected read to be allowed by default, got %s", action)
	}
}

func TestCompileEnvFileAsksByDefault(t *testing.T) {
	rules := Compile(false, BuiltinDefaults())

	action, _ := firstMatch(rules, models.KindRead, ".env")
	if action != models.PermissionAsk {
		t.Fatalf(".env read = %s, want ask", action)
	}

	action, _ = firstMatch(rules, models.KindRead, "production.env")
	if action != models.PermissionAsk {
		t.Fatalf("*.env read = %s, want ask", action)
	}

	action, _ = firstMatch(rules, models.KindRead, ".env.example")
	if action != models.PermissionAllow {
		t.Fatalf(".env.example read = %s, want allow", action)
	}
}

func TestCompileProjectLayerOverridesDefaults(t *testing.T) {
	project := RawRuleSet{
		models.KindBash: {Action: models.PermissionAllow},
	}
	rules := Compile(false, BuiltinDefaults(), project)

	action, _ := firstMatch(rules, models.KindBash, "")
	if action != models.PermissionAllow {
		t.Fatalf("project override bash = %s, want allow", action)
	}
}

func TestCompilePlanModeRestrictsEdit(t *testing.T) {
	project := RawRuleSet{
		models.KindEdit: {Action: models.PermissionAllow},
	}
	rules := Compile(true, BuiltinDefaults(), project)

	action, _ := firstMatch(rules, models.KindEdit, "src/main.go")
	if action != models.PermissionDeny {
		t.Fatalf("plan mode edit of main.go = %s, want deny", action)
	}

	action, _ = firstMatch(rules, models.KindEdit, "notes.plan.md")
	if action != models.PermissionAllow {
		t.Fatalf("plan mode edit of *.plan.md = %s, want allow", action)
	}

	action, _ = firstMatch(rules, models.KindEdit, "plans/roadmap.md")
	if action != models.PermissionAllow {
		t.Fatalf("plan mode edit of plans/*.md = %s, want allow", action)
	}
}

func TestSpecificityOrdersExactOverGlobOverWildcard(t *testing.T) {
	if specificity("*.env") <= specificity("*") {
		t.Fatal("glob should outrank bare wildcard")
	}
	if specificity(".env") <= specificity("*.env") {
		t.Fatal("exact match should outrank glob")
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, scope string
		want           bool
	}{
		{"*", "anything", true},
		{"*.env", ".env", true},
		{"*.env", "foo.env", true},
		{"*.env", "foo.env.bak", false},
		{"plans/*.md", "plans/a.md", true},
		{"plans/*.md", "plans/sub/a.md", true}, // '*' matches any run, including '/'
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.scope); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.scope, got, c.want)
		}
	}
}

func firstMatch(rules []models.PermissionRule, kind models.PermissionKind, scope string) (models.PermissionAction, *models.PermissionRule) {
	for _, rule := range rules {
		if rule.Kind != kind {
			continue
		}
		if MatchPattern(rule.Pattern, scope) {
			r := rule
			return rule.Action, &r
		}
	}
	return models.PermissionAsk, nil
}
