// Package maturity defines the agent trust ladder and the static
// capability table mapping action types to the minimum level required
// to perform them autonomously.
package maturity

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Level is a rung on the earned-trust ladder. Higher level = more
// unsupervised action permitted. The ladder is totally ordered.
type Level int

const (
	Student Level = iota
	Intern
	Supervised
	Autonomous
)

// Levels lists every ladder rung in ascending trust order.
var Levels = []Level{Student, Intern, Supervised, Autonomous}

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case Student:
		return "student"
	case Intern:
		return "intern"
	case Supervised:
		return "supervised"
	case Autonomous:
		return "autonomous"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Valid reports whether l is a defined ladder rung.
func (l Level) Valid() bool {
	return l >= Student && l <= Autonomous
}

// Satisfies reports whether an agent at level l meets the required level.
func (l Level) Satisfies(required Level) bool {
	return l >= required
}

// MarshalText serializes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid maturity level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML serializes the level by name.
func (l Level) MarshalYAML() (any, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid maturity level %d", int(l))
	}
	return l.String(), nil
}

// UnmarshalYAML parses a level name.
func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := Parse(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse converts a level name to a Level.
func Parse(s string) (Level, error) {
	switch s {
	case "student":
		return Student, nil
	case "intern":
		return Intern, nil
	case "supervised":
		return Supervised, nil
	case "autonomous":
		return Autonomous, nil
	default:
		return Student, fmt.Errorf("unknown maturity level %q", s)
	}
}
