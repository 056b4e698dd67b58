package up

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	"omni/internal/up/version"
)

// ReleaseAsset is one downloadable file attached to a forge release.
type ReleaseAsset struct {
	Name     string
	URL      string
	Checksum string // expected sha256 hex, empty if the forge didn't supply one
}

// Release is one version of a project hosted on a remote forge.
type Release struct {
	Tag    string
	Yanked bool
	Assets []ReleaseAsset
}

// ReleaseLister is the external collaborator spec.md §4.2(2) delegates
// "list releases from a remote forge" to. GitHubReleaseLister is the
// production implementation; backend tests inject a fake.
type ReleaseLister interface {
	ListReleases(ctx context.Context, repository string) ([]Release, error)
}

// GitHubReleaseLister lists releases via the GitHub REST API. repository is
// "owner/name"; no authentication is attempted, so unauthenticated rate
// limits apply (acceptable for the CLI's own interactive use).
type GitHubReleaseLister struct {
	Client *http.Client
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	Draft   bool   `json:"draft"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

func (g *GitHubReleaseLister) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *GitHubReleaseLister) ListReleases(ctx context.Context, repository string) ([]Release, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases", repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: list releases for %s: HTTP %d", repository, resp.StatusCode)
	}

	var raw []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(raw))
	for _, r := range raw {
		rel := Release{Tag: r.TagName, Yanked: r.Draft}
		for _, a := range r.Assets {
			rel.Assets = append(rel.Assets, ReleaseAsset{Name: a.Name, URL: a.BrowserDownloadURL})
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

// ReleaseArchiveConfig is the manifest node shape for a `{ github-release:
// {...} }` step.
type ReleaseArchiveConfig struct {
	Repository string `yaml:"repository"`
	Version    string `yaml:"version"`
	Asset      string `yaml:"asset"` // substring/exact selector against asset name
	Checksum   string `yaml:"checksum,omitempty"`
}

// ReleaseArchiveBackend implements Backend for spec.md §4.2(2).
type ReleaseArchiveBackend struct {
	Lister ReleaseLister

	cfg ReleaseArchiveConfig

	upped      bool
	resolved   string
	installDir string
	binPath    string
}

func NewReleaseArchiveBackend(lister ReleaseLister) *ReleaseArchiveBackend {
	if lister == nil {
		lister = &GitHubReleaseLister{}
	}
	return &ReleaseArchiveBackend{Lister: lister}
}

func (b *ReleaseArchiveBackend) Configure(step StepNode) error {
	if err := step.Decode(&b.cfg); err != nil {
		return err
	}
	if b.cfg.Repository == "" {
		return &errs.ConfigError{Code: "C120", Line: step.Line, Key: "repository", Err: fmt.Errorf("github-release step requires a repository")}
	}
	if b.cfg.Version == "" {
		b.cfg.Version = "latest"
	}
	return nil
}

func (b *ReleaseArchiveBackend) Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error {
	handler := NewProgressHandler("github-release:"+b.cfg.Repository, progress)

	payload, err := cachedPayload(ctx, opts.Cache, time.Duration(opts.VersionCacheTTL)*time.Second, "release-archive", b.cfg.Repository, func(ctx context.Context) (string, error) {
		releases, err := b.Lister.ListReleases(ctx, b.cfg.Repository)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(releases)
		return string(data), err
	})
	if err != nil {
		return &errs.ResolveError{Code: "C203", Backend: "release-archive", Target: b.cfg.Repository, Spec: b.cfg.Version, Err: err}
	}
	var releases []Release
	if err := json.Unmarshal([]byte(payload), &releases); err != nil {
		return &errs.ResolveError{Code: "C203", Backend: "release-archive", Target: b.cfg.Repository, Spec: b.cfg.Version, Err: err}
	}

	matcher := version.NewMatcher(b.cfg.Version, version.Options{
		Prerelease: opts.AllowPrerelease, Build: opts.AllowBuild, Prefix: opts.AllowPrefix,
	})

	var chosen *Release
	for i := range releases {
		r := &releases[i]
		if r.Yanked {
			continue
		}
		if matcher.Matches(r.Tag) {
			chosen = r
			break
		}
	}
	if chosen == nil {
		return &errs.ResolveError{Code: "C201", Backend: "release-archive", Target: b.cfg.Repository, Spec: b.cfg.Version, Err: errs.ErrNoMatchingVersion}
	}

	asset := selectAsset(chosen.Assets, b.cfg.Asset)
	if asset == nil {
		return &errs.ResolveError{Code: "C202", Backend: "release-archive", Target: b.cfg.Repository, Spec: b.cfg.Asset, Err: fmt.Errorf("no asset matches selector %q", b.cfg.Asset)}
	}

	destDir := filepath.Join(opts.DataHome, "release-archive", sanitizeRepo(b.cfg.Repository), chosen.Tag)
	handler.SetTotal(3)
	handler.Step("downloading " + asset.Name)

	archivePath := filepath.Join(os.TempDir(), "omni-dl-"+sanitizeRepo(b.cfg.Repository)+"-"+asset.Name)
	if err := downloadFile(ctx, asset.URL, archivePath); err != nil {
		return &errs.InstallError{Code: "M420", Backend: "release-archive", Target: b.cfg.Repository, Version: chosen.Tag, Op: "download", Err: err}
	}
	defer os.Remove(archivePath)

	checksum := b.cfg.Checksum
	if checksum == "" {
		checksum = asset.Checksum
	}
	if checksum != "" {
		handler.Step("verifying checksum")
		if err := verifyChecksum(archivePath, checksum); err != nil {
			return &errs.InstallError{Code: "M421", Backend: "release-archive", Target: b.cfg.Repository, Version: chosen.Tag, Op: "checksum", Err: err}
		}
	} else {
		handler.Step("extracting")
	}

	if err := extractArchive(archivePath, asset.Name, destDir); err != nil {
		return &errs.InstallError{Code: "M422", Backend: "release-archive", Target: b.cfg.Repository, Version: chosen.Tag, Op: "extract", Err: err}
	}

	b.resolved = chosen.Tag
	b.installDir = destDir
	b.binPath = destDir
	if fi, err := os.Stat(filepath.Join(destDir, "bin")); err == nil && fi.IsDir() {
		b.binPath = filepath.Join(destDir, "bin")
	}

	builder.AddVersion(envcache.UpVersion{
		Tool:           "",
		NormalizedName: b.cfg.Repository,
		Backend:        "release-archive",
		Version:        b.resolved,
		BinPath:        b.binPath,
		Dir:            opts.WorkdirPath,
	})
	builder.PrependPath(b.binPath)

	b.upped = true
	return nil
}

func (b *ReleaseArchiveBackend) Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error {
	if !b.upped {
		return nil
	}
	if _, err := db.AddInstalled(ctx, "release-archive", b.cfg.Repository, b.resolved); err != nil {
		return err
	}
	_, err := db.AddRequiredBy(ctx, envVersionID, "release-archive", b.cfg.Repository, b.resolved)
	return err
}

func (b *ReleaseArchiveBackend) Down(ctx context.Context, progress Progress) error { return nil }

func (b *ReleaseArchiveBackend) WasUpped() bool { return b.upped }

func (b *ReleaseArchiveBackend) DataPaths() []string {
	if b.installDir == "" {
		return nil
	}
	return []string{b.installDir}
}

func selectAsset(assets []ReleaseAsset, selector string) *ReleaseAsset {
	if selector == "" && len(assets) == 1 {
		return &assets[0]
	}
	for i := range assets {
		if assets[i].Name == selector {
			return &assets[i]
		}
	}
	for i := range assets {
		if strings.Contains(assets[i].Name, selector) {
			return &assets[i]
		}
	}
	return nil
}

func sanitizeRepo(repo string) string {
	return strings.ReplaceAll(repo, "/", "_")
}

func downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func verifyChecksum(path, expectedHex string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, expectedHex) {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, expectedHex)
	}
	return nil
}

// extractArchive extracts a .tar.gz, .tgz, or .zip archive into destDir,
// inferring format from assetName's extension (stdlib archive/tar,
// compress/gzip, archive/zip: no third-party library in the example pack
// provides general-purpose archive extraction, so this is the one place
// this package reaches for the standard library over an ecosystem choice).
func extractArchive(archivePath, assetName, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	switch {
	case strings.HasSuffix(assetName, ".tar.gz"), strings.HasSuffix(assetName, ".tgz"):
		return extractTarGz(archivePath, destDir)
	case strings.HasSuffix(assetName, ".zip"):
		return extractZip(archivePath, destDir)
	default:
		// Treat as a single bare binary: copy it in place as the asset's
		// own name under destDir/bin.
		return copyAsBinary(archivePath, assetName, destDir)
	}
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func copyAsBinary(archivePath, assetName, destDir string) error {
	binDir := filepath.Join(destDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	src, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(binDir, assetName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
