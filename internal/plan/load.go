package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Registry is the read-only lookup of KPI targets by period key. Targets
// are seeded from plan documents and never mutated by the engine.
type Registry struct {
	targets map[PeriodKey]Target
}

// NewRegistry builds a registry from a target list, rejecting duplicates.
func NewRegistry(targets []Target) (*Registry, error) {
	reg := &Registry{targets: make(map[PeriodKey]Target, len(targets))}
	for _, t := range targets {
		key := t.Key.Canonical()
		if existing, ok := reg.targets[key]; ok {
			return nil, fmt.Errorf("duplicate target for %s (defined in %s and %s)", key, existing.Source, t.Source)
		}
		t.Key = key
		reg.targets[key] = t
	}
	return reg, nil
}

// LoadFromDir loads and validates all target plan YAML files from the
// provided directory.
func LoadFromDir(targetsDir string) (*Registry, error) {
	if targetsDir == "" {
		targetsDir = "targets"
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(targetsDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan targets dir: %w", err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no target plan files found in %s", targetsDir)
	}
	sort.Strings(files)

	var all []Target
	var vErrs ValidationErrors

	for _, path := range files {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", path, readErr)
		}
		targets, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			if ve, ok := parseErr.(ValidationErrors); ok {
				vErrs = append(vErrs, ve...)
				continue
			}
			return nil, parseErr
		}
		all = append(all, targets...)
	}

	if len(vErrs) > 0 {
		return nil, vErrs
	}

	return NewRegistry(all)
}

// Lookup returns the target for a key. The key's KRA id is canonicalized
// before the lookup. A missing target yields NotFoundError.
func (r *Registry) Lookup(key PeriodKey) (Target, error) {
	key = key.Canonical()
	t, ok := r.targets[key]
	if !ok {
		return Target{}, NotFoundError{Key: key}
	}
	return t, nil
}

// Keys returns every registered period key in deterministic order.
func (r *Registry) Keys() []PeriodKey {
	keys := make([]PeriodKey, 0, len(r.targets))
	for k := range r.targets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})
	return keys
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.targets)
}
