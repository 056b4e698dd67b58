package up

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"omni/internal/envcache"
	"omni/internal/errs"
	"omni/internal/procexec"
	"omni/internal/up/version"
)

// ToolVersionManager is the external collaborator spec.md §4.2(1) says the
// version-managed backend "wraps": something that knows how to list a
// tool's available versions and install one. AsdfManager below is the
// production implementation, shelling out to asdf (the plugin-based
// tool-version manager omni's original design is itself modeled on);
// backend tests inject a fake.
type ToolVersionManager interface {
	ListVersions(ctx context.Context, tool string) ([]string, error)
	Install(ctx context.Context, tool, version, destDir string) error
	BinDir(tool, version, destDir string) string
}

// AsdfManager drives the real `asdf` CLI through procexec. Each call is a
// single short-lived subprocess; no state is cached across calls beyond the
// install destination directory asdf itself tracks.
type AsdfManager struct {
	// Command overrides the executable name/path; defaults to "asdf".
	Command string
}

func (m *AsdfManager) command() string {
	if m.Command != "" {
		return m.Command
	}
	return "asdf"
}

func (m *AsdfManager) ListVersions(ctx context.Context, tool string) ([]string, error) {
	var lines []string
	_, err := procexec.Run(ctx, procexec.Options{
		Command: m.command(),
		Args:    []string{"list-all", tool},
		OnStdout: func(line string) {
			if l := procexec.StripANSI(line); l != "" {
				lines = append(lines, l)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (m *AsdfManager) Install(ctx context.Context, tool, ver, destDir string) error {
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return &errs.IOError{Code: "U110", Path: destDir, Op: "mkdir", Err: err}
	}
	result, err := procexec.Run(ctx, procexec.Options{
		Command: m.command(),
		Args:    []string{"install", tool, ver},
		Env:     append(os.Environ(), "ASDF_DATA_DIR="+filepath.Dir(filepath.Dir(destDir))),
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &errs.InstallError{Code: "M424", Backend: "version-managed", Target: tool, Version: ver, Op: "exec", Err: fmt.Errorf("asdf install exited %d", result.ExitCode)}
	}
	return nil
}

func (m *AsdfManager) BinDir(tool, ver, destDir string) string {
	return filepath.Join(destDir, "bin")
}

// VersionManagedBackend implements Backend for spec.md §4.2(1): a tool
// resolved and installed through a ToolVersionManager, with a per-tool
// post-install hook contributing extra env vars and a private data path.
type VersionManagedBackend struct {
	Manager ToolVersionManager

	tool string
	spec string

	upped           bool
	resolvedVersion string
	binDir          string
	dataPath        string
}

// NewVersionManagedBackend returns a backend for one manifest step using
// mgr as its tool-version manager; mgr defaults to &AsdfManager{} when nil.
func NewVersionManagedBackend(mgr ToolVersionManager) *VersionManagedBackend {
	if mgr == nil {
		mgr = &AsdfManager{}
	}
	return &VersionManagedBackend{Manager: mgr}
}

func (b *VersionManagedBackend) Configure(step StepNode) error {
	b.tool = step.Kind
	spec, err := step.VersionSpec()
	if err != nil {
		return err
	}
	b.spec = spec
	return nil
}

func (b *VersionManagedBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	handler := NewProgressHandler(b.tool, progress)

	spec := b.spec
	if spec == "latest" {
		if discovered, ok, err := version.Discover(opts.WorkdirPath); err != nil {
			return &errs.ResolveError{Code: "C204", Backend: b.tool, Target: b.tool, Spec: spec, Err: err}
		} else if ok {
			spec = discovered
		}
	}

	payload, err := cachedPayload(ctx, opts.Cache, time.Duration(opts.VersionCacheTTL)*time.Second, "version-managed", b.tool, func(ctx context.Context) (string, error) {
		versions, err := b.Manager.ListVersions(ctx, b.tool)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(versions)
		return string(data), err
	})
	if err != nil {
		return &errs.ResolveError{Code: "C203", Backend: b.tool, Target: b.tool, Spec: spec, Err: err}
	}
	var candidates []string
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return &errs.ResolveError{Code: "C203", Backend: b.tool, Target: b.tool, Spec: spec, Err: err}
	}

	matcher := version.NewMatcher(spec, version.Options{
		Prerelease: opts.AllowPrerelease,
		Build:      opts.AllowBuild,
		Prefix:     opts.AllowPrefix,
	})
	best, ok := matcher.BestMatch(candidates)
	if !ok {
		return &errs.ResolveError{Code: "C201", Backend: b.tool, Target: b.tool, Spec: spec, Err: errs.ErrNoMatchingVersion}
	}
	b.resolvedVersion = best

	destDir := filepath.Join(opts.DataHome, b.tool, best)
	handler.SetTotal(2)
	handler.Step(fmt.Sprintf("installing %s %s", b.tool, best))
	if err := b.Manager.Install(ctx, b.tool, best, destDir); err != nil {
		return err
	}
	b.binDir = b.Manager.BinDir(b.tool, best, destDir)

	var hookOps []envcache.EnvOperation
	if hook, ok := hooks[b.tool]; ok {
		workdirData := opts.WorkdirDataDir
		handler.Step(fmt.Sprintf("configuring %s %s", b.tool, best))
		result, err := hook(workdirData, b.tool, best, b.binDir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(result.DataPath, 0o755); err != nil {
			return &errs.IOError{Code: "U111", Path: result.DataPath, Op: "mkdir", Err: err}
		}
		if b.tool == "python" {
			venvResult, err := procexec.Run(ctx, procexec.Options{
				Command: filepath.Join(b.binDir, "python3"),
				Args:    []string{"-m", "venv", result.DataPath},
			})
			if err != nil {
				return err
			}
			if venvResult.ExitCode != 0 {
				return &errs.InstallError{Code: "M425", Backend: "version-managed", Target: "python", Version: best, Op: "exec", Err: fmt.Errorf("python -m venv exited %d", venvResult.ExitCode)}
			}
		}
		b.dataPath = result.DataPath
		hookOps = result.EnvOps
	}

	builder.AddVersion(envcache.UpVersion{
		Tool:           b.tool,
		PluginName:     b.tool,
		NormalizedName: b.tool,
		Backend:        "version-managed",
		Version:        best,
		BinPath:        b.binDir,
		Dir:            opts.WorkdirPath,
		DataPath:       b.dataPath,
	})
	builder.PrependPath(b.binDir)
	for _, op := range hookOps {
		builder.AddEnvOp(op)
	}

	b.upped = true
	return nil
}

func (b *VersionManagedBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	if !b.upped {
		return nil
	}
	if _, err := db.AddInstalled(ctx, "version-managed", b.tool, b.resolvedVersion); err != nil {
		return err
	}
	_, err := db.AddRequiredBy(ctx, envVersionID, "version-managed", b.tool, b.resolvedVersion)
	return err
}

func (b *VersionManagedBackend) Down(ctx context.Context, progress Progress) error {
	if b.dataPath == "" {
		return nil
	}
	if err := os.RemoveAll(b.dataPath); err != nil {
		return &errs.IOError{Code: "U112", Path: b.dataPath, Op: "remove", Err: err}
	}
	return nil
}

func (b *VersionManagedBackend) WasUpped() bool { return b.upped }

func (b *VersionManagedBackend) DataPaths() []string {
	if b.dataPath == "" {
		return nil
	}
	return []string{b.dataPath}
}
