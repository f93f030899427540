package bootstrap

import (
	"fmt"
	"time"

	"github.com/yuku/schemapool/internal/pgconst"
)

// SchemaSpec describes one schema to provision. A slice of specs is applied
// strictly in order; later schemas may depend on earlier ones.
type SchemaSpec struct {
	// Name is the schema name as written in the scripts, e.g. USER_SCHEMA.
	Name string `yaml:"name"`

	// Scripts are script paths relative to the loader root, executed in order.
	Scripts []string `yaml:"scripts"`

	// Privileged routes the schema through the administrative connection
	// when one is configured.
	Privileged bool `yaml:"privileged"`
}

// Status is the lifecycle of a single schema's bootstrap.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s is Succeeded or Failed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Result is the outcome of one schema. Err is set only when Status is Failed.
type Result struct {
	Schema      string
	Status      Status
	Err         error
	AttemptedAt time.Time
	CompletedAt time.Time
}

// Names returns the schema names of specs in order.
func Names(specs []SchemaSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

func validateSpecs(specs []SchemaSpec, requireScripts bool) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: no schemas configured", ErrInvalidSpec)
	}

	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if !pgconst.IsValidIdentifier(s.Name) {
			return fmt.Errorf("%w: schema %d: invalid name %q", ErrInvalidSpec, i, s.Name)
		}
		folded := pgconst.FoldIdentifier(s.Name)
		if seen[folded] {
			return fmt.Errorf("%w: duplicate schema %s", ErrInvalidSpec, s.Name)
		}
		seen[folded] = true

		if requireScripts && len(s.Scripts) == 0 {
			return fmt.Errorf("%w: schema %s has no scripts", ErrInvalidSpec, s.Name)
		}
		for _, script := range s.Scripts {
			if script == "" {
				return fmt.Errorf("%w: schema %s has an empty script path", ErrInvalidSpec, s.Name)
			}
		}
	}
	return nil
}
