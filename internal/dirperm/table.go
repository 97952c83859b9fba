package dirperm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avoronkov/warden/internal/maturity"
	"gopkg.in/yaml.v3"
)

// BlockedPrefixes are system roots no agent may touch at any maturity.
// Checked against the canonicalized path before the per-maturity table.
var BlockedPrefixes = []string{
	"/etc", "/usr", "/bin", "/sbin", "/boot",
	"/dev", "/proc", "/sys", "/root",
	"/var", "/lib", "/lib64", "/opt",
}

// Table maps each maturity level to its allowed path prefixes.
// Entries may be home-relative ("~/agent").
//
// The mid-ladder sets deliberately do not nest: intern reaches all of
// /tmp but not the project tree, supervised reaches the project tree
// but only the curated /tmp sandbox. Flagged for product review;
// preserved as observed rather than normalized into a strict ladder.
type Table map[maturity.Level][]string

// DefaultTable is the built-in per-maturity prefix table.
var DefaultTable = Table{
	maturity.Student:    {"/tmp/work", "~/agent/sandbox"},
	maturity.Intern:     {"/tmp", "~/agent"},
	maturity.Supervised: {"/tmp/work", "~/agent", "~/projects"},
	maturity.Autonomous: {"/tmp", "~", "/srv", "/data"},
}

// LoadTable reads a prefix table from a YAML file keyed by level name,
// falling back to DefaultTable if the file does not exist.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTable, nil
		}
		return nil, err
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	t := make(Table, len(raw))
	for name, prefixes := range raw {
		level, err := maturity.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("directory table: %w", err)
		}
		t[level] = prefixes
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the table at startup: every ladder rung must have an
// explicit, non-empty entry. A missing rung would otherwise silently
// under-specify permissions at lookup time.
func (t Table) Validate() error {
	for _, level := range maturity.Levels {
		prefixes, ok := t[level]
		if !ok {
			return fmt.Errorf("directory table missing entry for level %s", level)
		}
		if len(prefixes) == 0 {
			return fmt.Errorf("directory table entry for level %s is empty", level)
		}
	}
	return nil
}

// expand resolves home-relative table entries against the user's home
// directory and cleans the result.
func (t Table) expand(home string) Table {
	out := make(Table, len(t))
	for level, prefixes := range t {
		expanded := make([]string, 0, len(prefixes))
		for _, p := range prefixes {
			expanded = append(expanded, filepath.Clean(expandHome(p, home)))
		}
		out[level] = expanded
	}
	return out
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// hasPathPrefix reports whether path is prefix or lives under it,
// honoring path boundaries so /tmpfoo does not match /tmp.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}
