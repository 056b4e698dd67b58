package up

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"omni/internal/envcache"
	"omni/internal/errs"
	"omni/internal/procexec"
)

// HomebrewConfig is the manifest node shape for a `{ homebrew: {...} }` step,
// or a bare scalar formula name (version defaults to "latest", no tap).
type HomebrewConfig struct {
	Formula string `yaml:"formula"`
	Tap     string `yaml:"tap,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// HomebrewBackend is the supplemented fifth backend variant (not in
// spec.md's 4-backend enumeration, present in the original Rust source):
// a tap-and-formula install, structurally identical to the release-archive
// backend — it installs into a version-keyed directory and contributes a
// bin path to PATH.
type HomebrewBackend struct {
	cfg HomebrewConfig

	upped    bool
	resolved string
	cellar   string
	binDir   string
}

func NewHomebrewBackend() *HomebrewBackend { return &HomebrewBackend{} }

func (b *HomebrewBackend) Configure(step StepNode) error {
	if step.Node != nil && step.Node.Kind == yaml.ScalarNode {
		b.cfg = HomebrewConfig{Formula: step.Node.Value, Version: "latest"}
		return nil
	}
	if err := step.Decode(&b.cfg); err != nil {
		return err
	}
	if b.cfg.Formula == "" {
		return &errs.ConfigError{Code: "C140", Line: step.Line, Key: "formula", Err: fmt.Errorf("homebrew step requires a formula")}
	}
	if b.cfg.Version == "" {
		b.cfg.Version = "latest"
	}
	return nil
}

func (b *HomebrewBackend) formulaRef() string {
	if b.cfg.Tap != "" {
		return b.cfg.Tap + "/" + b.cfg.Formula
	}
	return b.cfg.Formula
}

func (b *HomebrewBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	handler := NewProgressHandler("homebrew:"+b.formulaRef(), progress)
	handler.SetTotal(1)
	handler.Step("installing " + b.formulaRef())

	cellar := filepath.Join(opts.DataHome, "homebrew", b.cfg.Formula, b.cfg.Version)
	if err := os.MkdirAll(cellar, 0o755); err != nil {
		return &errs.IOError{Code: "U130", Path: cellar, Op: "mkdir", Err: err}
	}

	ref := b.formulaRef()
	if b.cfg.Version != "latest" && b.cfg.Version != "" {
		ref = fmt.Sprintf("%s@%s", ref, b.cfg.Version)
	}

	env := append(os.Environ(), "HOMEBREW_CELLAR="+cellar, "HOMEBREW_NO_AUTO_UPDATE=1")
	if b.cfg.Tap != "" {
		tapResult, err := procexec.Run(ctx, procexec.Options{Command: "brew", Args: []string{"tap", b.cfg.Tap}, Env: env})
		if err != nil {
			return err
		}
		if tapResult.ExitCode != 0 {
			return &errs.InstallError{Code: "M427", Backend: "homebrew", Target: b.cfg.Tap, Op: "exec", Err: fmt.Errorf("brew tap exited %d", tapResult.ExitCode)}
		}
	}
	installResult, err := procexec.Run(ctx, procexec.Options{Command: "brew", Args: []string{"install", ref}, Env: env})
	if err != nil {
		return err
	}
	if installResult.ExitCode != 0 {
		return &errs.InstallError{Code: "M428", Backend: "homebrew", Target: ref, Op: "exec", Err: fmt.Errorf("brew install exited %d", installResult.ExitCode)}
	}

	b.resolved = b.cfg.Version
	b.cellar = cellar
	b.binDir = filepath.Join(cellar, b.cfg.Formula, "bin")
	if _, err := os.Stat(b.binDir); err != nil {
		b.binDir = cellar
	}

	builder.AddVersion(envcache.UpVersion{
		NormalizedName: b.cfg.Formula,
		Backend:        "homebrew",
		Version:        b.resolved,
		BinPath:        b.binDir,
		Dir:            opts.WorkdirPath,
	})
	builder.PrependPath(b.binDir)

	b.upped = true
	return nil
}

func (b *HomebrewBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	if !b.upped {
		return nil
	}
	if _, err := db.AddInstalled(ctx, "homebrew", b.cfg.Formula, b.resolved); err != nil {
		return err
	}
	_, err := db.AddRequiredBy(ctx, envVersionID, "homebrew", b.cfg.Formula, b.resolved)
	return err
}

func (b *HomebrewBackend) Down(ctx context.Context, progress Progress) error { return nil }

func (b *HomebrewBackend) WasUpped() bool { return b.upped }

func (b *HomebrewBackend) DataPaths() []string {
	if b.cellar == "" {
		return nil
	}
	return []string{b.cellar}
}
