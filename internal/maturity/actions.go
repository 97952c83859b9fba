package maturity

import "fmt"

// ActionSpec is the governance metadata for one action type.
type ActionSpec struct {
	// MinLevel is the baseline maturity required at complexity 1.
	MinLevel Level
	// ReadOnly marks actions with no side effects. Read-only checks may
	// degrade open when the agent registry or store is unreachable;
	// everything else fails closed.
	ReadOnly bool
}

// Actions is the static action-type → minimum-level table. Unknown
// action types are denied outright, so additions here are deliberate.
var Actions = map[string]ActionSpec{
	"read_memory":      {MinLevel: Student, ReadOnly: true},
	"list_files":       {MinLevel: Student, ReadOnly: true},
	"directory_access": {MinLevel: Student},
	"semantic_search":  {MinLevel: Intern, ReadOnly: true},
	"enable_auto_sync": {MinLevel: Intern},
	"write_memory":     {MinLevel: Supervised},
	"integration_sync": {MinLevel: Supervised},
	"social_post":      {MinLevel: Supervised},
	"shell_execute":    {MinLevel: Autonomous},
}

// Lookup returns the spec for an action type.
func Lookup(actionType string) (ActionSpec, bool) {
	spec, ok := Actions[actionType]
	return spec, ok
}

// RequiredLevel raises an action's baseline by complexity band.
// Complexity 1-2 keeps the baseline, 3-4 raises it one rung, 5 and
// above raises it two, capped at the top of the ladder.
func RequiredLevel(base Level, complexity int) Level {
	raised := base
	switch {
	case complexity >= 5:
		raised = base + 2
	case complexity >= 3:
		raised = base + 1
	}
	if raised > Autonomous {
		return Autonomous
	}
	return raised
}

// ValidateActions checks the action table at startup: every entry must
// carry a defined ladder rung.
func ValidateActions() error {
	for action, spec := range Actions {
		if !spec.MinLevel.Valid() {
			return fmt.Errorf("action %q has invalid minimum level %d", action, int(spec.MinLevel))
		}
	}
	return nil
}
