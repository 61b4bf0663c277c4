// Package assign implements the task→role mapping. The rule is a pure
// function of (title, description, assigned_role): explicit hints win,
// otherwise keyword heuristics evaluated in a fixed order. Role stays a
// closed enum with a single central mapping function instead of scattered
// string comparisons.
package assign

import (
	"strings"

	"github.com/frankbria/codeframe/pkg/models"
)

// Decision is the assigner's output: the chosen role and a human-readable
// explanation, surfaced to clients for transparency.
type Decision struct {
	Role        models.Role
	Explanation string
}

type keywordRule struct {
	role     models.Role
	keywords []string
}

// rules are evaluated in order; the first match wins: test, then review,
// then frontend, then backend.
var rules = []keywordRule{
	{models.RoleTest, []string{"test", "tests", "testing"}},
	{models.RoleReview, []string{"review", "audit"}},
	{models.RoleFrontend, []string{"frontend", "ui", "component", "css", "react"}},
	{models.RoleBackend, []string{"api", "endpoint", "database", "schema", "backend"}},
}

// Assign maps a task to a role. An explicit assignedRole (non-empty) always
// overrides the heuristic.
func Assign(title, description string, assignedRole models.Role) Decision {
	if assignedRole != "" {
		return Decision{
			Role:        assignedRole,
			Explanation: "explicit assigned_role override",
		}
	}

	haystack := strings.ToLower(title + " " + description)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(haystack, kw) {
				return Decision{
					Role:        r.role,
					Explanation: "matched keyword \"" + kw + "\"",
				}
			}
		}
	}

	return Decision{Role: models.RoleBackend, Explanation: "no keyword match, default backend"}
}
