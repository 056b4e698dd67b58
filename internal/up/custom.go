package up

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"omni/internal/envcache"
	"omni/internal/errs"
	"omni/internal/procexec"
)

// CustomStepConfig is the manifest node shape for a `{ custom: {...} }`
// step.
type CustomStepConfig struct {
	Run     string            `yaml:"run"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout int               `yaml:"timeout,omitempty"` // seconds, 0 means no timeout
}

// CustomStepBackend implements Backend for spec.md §4.2(4): an arbitrary
// shell snippet that may contribute env operations by writing a dotenv-
// style file, parsed by ParseEnvFile (spec.md §6). Contributes nothing to
// PATH on its own.
type CustomStepBackend struct {
	cfg CustomStepConfig

	upped bool
	ops   []envcache.EnvOperation
}

func NewCustomStepBackend() *CustomStepBackend { return &CustomStepBackend{} }

func (b *CustomStepBackend) Configure(step StepNode) error {
	if err := step.Decode(&b.cfg); err != nil {
		return err
	}
	if b.cfg.Run == "" {
		return &errs.ConfigError{Code: "C130", Line: step.Line, Key: "run", Err: fmt.Errorf("custom step requires a run command")}
	}
	return nil
}

// Up runs the step's shell snippet with OMNI_ENV_FILE pointing at a fresh
// temp file the child may write dotenv-style output to, then parses it.
func (b *CustomStepBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	handler := NewProgressHandler("custom", progress)
	handler.SetTotal(1)
	handler.Step("running " + b.cfg.Run)

	envFile, err := os.CreateTemp("", "omni-envfile-*")
	if err != nil {
		return &errs.IOError{Code: "U120", Path: os.TempDir(), Op: "create", Err: err}
	}
	envFile.Close()
	defer os.Remove(envFile.Name())

	env := os.Environ()
	env = append(env, "OMNI_ENV_FILE="+envFile.Name(), "OMNI_SUBCOMMAND=up")
	for k, v := range b.cfg.Env {
		env = append(env, k+"="+v)
	}

	dir := opts.WorkdirPath
	if b.cfg.Dir != "" {
		dir = filepath.Join(opts.WorkdirPath, b.cfg.Dir)
	}

	runOpts := procexec.Options{
		Command: "sh",
		Args:    []string{"-c", b.cfg.Run},
		Dir:     dir,
		Env:     env,
	}
	if b.cfg.Timeout > 0 {
		runOpts.Timeout = time.Duration(b.cfg.Timeout) * time.Second
	}
	result, err := procexec.Run(ctx, runOpts)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &errs.InstallError{Code: "M423", Backend: "custom", Target: b.cfg.Run, Op: "exec", Err: fmt.Errorf("exit code %d", result.ExitCode)}
	}

	data, err := os.ReadFile(envFile.Name())
	if err != nil {
		return &errs.IOError{Code: "U121", Path: envFile.Name(), Op: "read", Err: err}
	}
	if len(data) == 0 {
		b.upped = true
		return nil
	}

	ops, err := ParseEnvFile(data)
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

func (b *CustomStepBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	return nil
}

func (b *CustomStepBackend) Down(ctx context.Context, progress Progress) error { return nil }

func (b *CustomStepBackend) WasUpped() bool { return b.upped }

func (b *CustomStepBackend) DataPaths() []string { return nil }
