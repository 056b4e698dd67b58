package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"omni/internal/envcache"
)

// Cleanup runs ENVCACHE's reference-counted retention pass (spec.md §4.1,
// §3.5): every installed_tools row idle longer than CleanupAfter with no
// remaining RequiredBy reference is physically removed from disk, then
// dropped from the database.
//
// envcache.InstalledArtifact carries only (backend, install_key, version),
// not the directory a backend actually wrote to — each backend's Up chose
// that path independently (internal/up's version-managed, language-package,
// release-archive, and homebrew backends each join DataHome with their own
// layout). artifactPath mirrors those exact layouts in reverse so Cleanup
// can find what to delete without instantiating a backend.
func (s *Service) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	cleanupAfter := opts.CleanupAfter
	if cleanupAfter <= 0 {
		cleanupAfter = s.cfg.CleanupAfter
	}

	result := &CleanupResult{}
	err := s.db.Cleanup(ctx, cleanupAfter, func(a envcache.InstalledArtifact) error {
		path := artifactPath(s.cfg.DataHome, a)
		if path == "" {
			s.logger.Info("cleanup: no known path layout for backend %q, leaving install_key %q@%s in place", a.Backend, a.InstallKey, a.Version)
			return nil
		}
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, err)
			return err
		}
		result.Removed = append(result.Removed, a)
		s.logger.Info("cleanup: removed %s %s@%s (%s)", a.Backend, a.InstallKey, a.Version, path)
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// artifactPath reconstructs the directory one backend's Up call wrote an
// artifact to, given only the (backend, install_key, version) triple
// Cleanup has to work with.
func artifactPath(dataHome string, a envcache.InstalledArtifact) string {
	switch a.Backend {
	case "version-managed":
		return filepath.Join(dataHome, a.InstallKey, a.Version)
	case "go-install", "cargo-install":
		return filepath.Join(dataHome, a.Backend, sanitizeRepo(a.InstallKey), a.Version)
	case "release-archive":
		return filepath.Join(dataHome, "release-archive", sanitizeRepo(a.InstallKey), a.Version)
	case "homebrew":
		return filepath.Join(dataHome, "homebrew", a.InstallKey, a.Version)
	default:
		return ""
	}
}

// sanitizeRepo mirrors internal/up's unexported helper of the same name:
// that package doesn't export it, so Cleanup's reverse path derivation
// keeps its own copy of the one-line transform rather than growing a new
// export just for this.
func sanitizeRepo(repo string) string {
	return strings.ReplaceAll(repo, "/", "_")
}
