// Package cmdcheck classifies shell command strings against a
// whitelist/blacklist of base commands. Validation is pure: it never
// executes anything and is safe on arbitrary untrusted input.
package cmdcheck

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules holds the raw base-command lists.
type Rules struct {
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
}

// Validator answers whether a command's base token may ever run.
// Immutable after construction; swap the whole validator to change
// rules.
type Validator struct {
	whitelist map[string]bool
	blacklist map[string]bool
	raw       Rules
}

// Result is the classification of one command string.
type Result struct {
	Valid       bool   `json:"valid"`
	Whitelisted bool   `json:"whitelisted"`
	Blocked     bool   `json:"blocked"`
	Reason      string `json:"reason,omitempty"`
}

// New compiles a Validator from raw rules. Entries are lowercased so
// matching is case-insensitive.
func New(r Rules) *Validator {
	v := &Validator{
		whitelist: make(map[string]bool, len(r.Whitelist)),
		blacklist: make(map[string]bool, len(r.Blacklist)),
		raw:       r,
	}
	for _, c := range r.Whitelist {
		v.whitelist[strings.ToLower(c)] = true
	}
	for _, c := range r.Blacklist {
		v.blacklist[strings.ToLower(c)] = true
	}
	return v
}

// NewDefault compiles the built-in rules.
func NewDefault() *Validator {
	return New(DefaultRules)
}

// Load reads rules from a YAML file, falling back to defaults if the
// file does not exist.
func Load(path string) (*Validator, error) {
	if path == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return New(r), nil
}

// Validate classifies a command string. Order is fixed: blacklist
// first (never overridden by whitelist membership), then whitelist,
// then deny-by-default.
func (v *Validator) Validate(command string) Result {
	base := BaseCommand(command)
	if base == "" {
		return Result{Reason: "empty command"}
	}

	if v.blacklist[base] {
		return Result{Blocked: true, Reason: "command " + base + " is blacklisted"}
	}
	if v.whitelist[base] {
		return Result{Valid: true, Whitelisted: true}
	}
	return Result{Reason: "command " + base + " not in whitelist"}
}

// Rules returns the raw rule lists, for serialization and diagnostics.
func (v *Validator) Rules() Rules {
	return v.raw
}

// BaseCommand extracts the lowercased base token of a command string,
// stripping any path prefix so /usr/bin/ls and ls classify identically.
func BaseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(filepath.Base(fields[0]))
}
