package up

import (
	"context"
	"strings"

	"omni/internal/envcache"
)

// EnvStepBackend implements the `{ env: [ env_operation, … ] }` step kind:
// each list entry is one line of the same grammar spec.md §6 defines for a
// custom step's env-file output (e.g. "NAME=value", "NAME>>=value"), so a
// manifest author uses identical syntax whether the operations come from a
// literal list or a script's side-effect file.
type EnvStepBackend struct {
	lines []string

	upped bool
	ops   []envcache.EnvOperation
}

func NewEnvStepBackend() *EnvStepBackend { return &EnvStepBackend{} }

func (b *EnvStepBackend) Configure(step StepNode) error {
	var lines []string
	if err := step.Decode(&lines); err != nil {
		return err
	}
	b.lines = lines
	return nil
}

func (b *EnvStepBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	ops, err := ParseEnvFile([]byte(strings.Join(b.lines, "\n")))
	if err != nil {
		return err
	}
	for _, op := range ops {
		builder.AddEnvOp(op)
	}
	b.ops = ops
	b.upped = true
	return nil
}

func (b *EnvStepBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	return nil
}

func (b *EnvStepBackend) Down(ctx context.Context, progress Progress) error { return nil }

func (b *EnvStepBackend) WasUpped() bool { return b.upped }

func (b *EnvStepBackend) DataPaths() []string { return nil }
