package up

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"omni/internal/envcache"
	"omni/internal/errs"
	"omni/internal/procexec"
	"omni/internal/up/version"
)

// RegistryClient is the external collaborator spec.md §4.2(3) calls "a
// remote registry's versions endpoint": one implementation per language
// package manager. GoProxyClient and CratesIOClient are the production
// implementations; backend tests inject a fake.
type RegistryClient interface {
	ListVersions(ctx context.Context, target string) ([]string, error)
}

// GoProxyClient lists a Go module's published versions via the module proxy
// protocol (GET <proxy>/<module>/@v/list, newline-separated).
type GoProxyClient struct {
	ProxyURL string // defaults to https://proxy.golang.org
	Client   *http.Client
}

func (c *GoProxyClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *GoProxyClient) ListVersions(ctx context.Context, target string) ([]string, error) {
	base := c.ProxyURL
	if base == "" {
		base = "https://proxy.golang.org"
	}
	module := target
	if idx := strings.LastIndex(target, "/cmd/"); idx >= 0 {
		// go-install targets are often a command subpackage; the module
		// proxy's @v/list endpoint wants the module root. Best-effort: try
		// the full path first, falling back to its parent on a 404 is left
		// to the caller (ListVersions returning an empty list is treated as
		// "no match" upstream, not a hard error).
		module = target
	}
	url := fmt.Sprintf("%s/%s/@v/list", base, strings.ToLower(module))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("go proxy: list versions for %s: HTTP %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if l := strings.TrimSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

// CratesIOClient lists a Rust crate's published versions via crates.io's
// JSON API.
type CratesIOClient struct {
	Client *http.Client
}

type cratesIOResponse struct {
	Versions []struct {
		Num   string `json:"num"`
		Yanked bool  `json:"yanked"`
	} `json:"versions"`
}

func (c *CratesIOClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *CratesIOClient) ListVersions(ctx context.Context, target string) ([]string, error) {
	url := fmt.Sprintf("https://crates.io/api/v1/crates/%s", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "omni (https://github.com/)")
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crates.io: list versions for %s: HTTP %d", target, resp.StatusCode)
	}
	var out cratesIOResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	var versions []string
	for _, v := range out.Versions {
		if !v.Yanked {
			versions = append(versions, v.Num)
		}
	}
	return versions, nil
}

// LanguagePackageBackend implements Backend for spec.md §4.2(3): cargo
// install / go install, each targeting a private per-version root.
type LanguagePackageBackend struct {
	Registry RegistryClient

	kind       string // "cargo-install" | "go-install"
	target     string // module path or crate name
	versionSpec string

	upped    bool
	resolved string
	binDir   string
	root     string
}

// NewLanguagePackageBackend returns a backend for one manifest step. When
// registry is nil, one is chosen from kind at Configure time.
func NewLanguagePackageBackend(registry RegistryClient) *LanguagePackageBackend {
	return &LanguagePackageBackend{Registry: registry}
}

func (b *LanguagePackageBackend) Configure(step StepNode) error {
	b.kind = step.Kind
	spec, err := step.VersionSpec()
	if err != nil {
		return err
	}
	target, versionSpec := spec, "latest"
	if idx := strings.LastIndex(spec, "@"); idx > 0 {
		target, versionSpec = spec[:idx], spec[idx+1:]
	}
	if target == "" {
		return &errs.ConfigError{Code: "C121", Line: step.Line, Key: b.kind, Err: fmt.Errorf("%s step requires a target", b.kind)}
	}
	b.target = target
	b.versionSpec = versionSpec

	if b.Registry == nil {
		switch b.kind {
		case "go-install":
			b.Registry = &GoProxyClient{}
		case "cargo-install":
			b.Registry = &CratesIOClient{}
		default:
			return &errs.ConfigError{Code: "C122", Line: step.Line, Key: b.kind, Err: fmt.Errorf("unknown language-package kind %q", b.kind)}
		}
	}
	return nil
}

func (b *LanguagePackageBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	handler := NewProgressHandler(b.kind+":"+b.target, progress)

	payload, err := cachedPayload(ctx, opts.Cache, time.Duration(opts.VersionCacheTTL)*time.Second, b.kind, b.target, func(ctx context.Context) (string, error) {
		versions, err := b.Registry.ListVersions(ctx, b.target)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(versions)
		return string(data), err
	})
	if err != nil {
		return &errs.ResolveError{Code: "C203", Backend: b.kind, Target: b.target, Spec: b.versionSpec, Err: err}
	}
	var candidates []string
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return &errs.ResolveError{Code: "C203", Backend: b.kind, Target: b.target, Spec: b.versionSpec, Err: err}
	}
	matcher := version.NewMatcher(b.versionSpec, version.Options{
		Prerelease: opts.AllowPrerelease, Build: opts.AllowBuild, Prefix: opts.AllowPrefix,
	})
	best, ok := matcher.BestMatch(candidates)
	if !ok {
		return &errs.ResolveError{Code: "C201", Backend: b.kind, Target: b.target, Spec: b.versionSpec, Err: errs.ErrNoMatchingVersion}
	}
	b.resolved = best

	root := filepath.Join(opts.DataHome, b.kind, sanitizeRepo(b.target), best)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return &errs.IOError{Code: "U113", Path: root, Op: "mkdir", Err: err}
	}
	b.root = root
	b.binDir = filepath.Join(root, "bin")

	handler.SetTotal(1)
	handler.Step(fmt.Sprintf("installing %s@%s", b.target, best))

	var result *procexec.Result
	switch b.kind {
	case "go-install":
		result, err = procexec.Run(ctx, procexec.Options{
			Command: "go",
			Args:    []string{"install", fmt.Sprintf("%s@%s", b.target, best)},
			Env:     append(os.Environ(), "GOBIN="+b.binDir),
		})
	case "cargo-install":
		result, err = procexec.Run(ctx, procexec.Options{
			Command: "cargo",
			Args:    []string{"install", "--root", root, "--version", best, b.target},
		})
	default:
		err = fmt.Errorf("unknown language-package kind %q", b.kind)
	}
	if err != nil {
		return err
	}
	if result != nil && result.ExitCode != 0 {
		return &errs.InstallError{Code: "M426", Backend: b.kind, Target: b.target, Version: best, Op: "exec", Err: fmt.Errorf("%s exited %d", b.kind, result.ExitCode)}
	}

	builder.AddVersion(envcache.UpVersion{
		NormalizedName: b.target,
		Backend:        b.kind,
		Version:        b.resolved,
		BinPath:        b.binDir,
		Dir:            opts.WorkdirPath,
	})
	builder.PrependPath(b.binDir)

	b.upped = true
	return nil
}

func (b *LanguagePackageBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	if !b.upped {
		return nil
	}
	if _, err := db.AddInstalled(ctx, b.kind, b.target, b.resolved); err != nil {
		return err
	}
	_, err := db.AddRequiredBy(ctx, envVersionID, b.kind, b.target, b.resolved)
	return err
}

func (b *LanguagePackageBackend) Down(ctx context.Context, progress Progress) error { return nil }

func (b *LanguagePackageBackend) WasUpped() bool { return b.upped }

func (b *LanguagePackageBackend) DataPaths() []string {
	if b.root == "" {
		return nil
	}
	return []string{b.root}
}
