package up

import (
	"errors"
	"sort"

	"omni/internal/errs"
)

// CheckManifest validates every step in manifestData against its backend's
// Configure, accumulating config errors rather than stopping at the first
// one (spec.md §7: "Config errors are accumulated ... so that `omni config
// check` can report every issue in one pass" — SPEC_FULL.md §4 item 5).
// A manifest that fails to parse at all returns that single error.
func CheckManifest(manifestData []byte) []*errs.ConfigError {
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		var ce *errs.ConfigError
		if errors.As(err, &ce) {
			return []*errs.ConfigError{ce}
		}
		return []*errs.ConfigError{{Err: err}}
	}

	var problems []*errs.ConfigError
	for _, step := range manifest.Steps {
		b := NewBackend(step.Kind)
		if err := b.Configure(step); err != nil {
			var ce *errs.ConfigError
			if errors.As(err, &ce) {
				problems = append(problems, ce)
				continue
			}
			problems = append(problems, &errs.ConfigError{Line: step.Line, Key: step.Kind, Err: err})
		}
	}

	sort.Slice(problems, func(i, j int) bool {
		if problems[i].File != problems[j].File {
			return problems[i].File < problems[j].File
		}
		return problems[i].Line < problems[j].Line
	})
	return problems
}
