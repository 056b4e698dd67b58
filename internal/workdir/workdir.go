// Package workdir resolves the stable identifier ENVCACHE and SYNCOP key
// all of their per-project state on: spec.md §3's "workdir_id", derived from
// the canonicalized absolute path of a user's project root.
package workdir

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ID is a stable identifier for a work directory: "{host}:{org}/{repo}" when
// the path is part of a Git worktree with a recognizable remote, or a
// path-derived opaque id otherwise.
type ID string

// Resolve canonicalizes dir (resolving symlinks, making it absolute) and
// derives its ID. The VCS lookup (`git remote get-url origin` and friends)
// is the only external collaborator this package touches; its parsing is
// explicitly out of scope per spec.md §1 ("Git organization resolution"),
// so Resolve only needs a remote URL string in a recognizable form, not a
// full implementation.
func Resolve(dir string) (ID, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. a `down` on a removed workdir); fall
		// back to the non-symlink-resolved absolute path.
		real = abs
	}

	if host, org, repo, ok := gitWorktreeIdentity(real); ok {
		return ID(host + ":" + org + "/" + repo), nil
	}

	return ID(pathDerivedID(real)), nil
}

// gitWorktreeIdentity asks git for the worktree's toplevel and origin remote
// and derives "{host}:{org}/{repo}" from it. ok is false when dir is not
// inside a Git worktree or has no parseable origin remote — callers fall
// back to a path-derived id.
func gitWorktreeIdentity(dir string) (host, org, repo string, ok bool) {
	top, err := runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil || top == "" {
		return "", "", "", false
	}

	remote, err := runGit(dir, "remote", "get-url", "origin")
	if err != nil || remote == "" {
		return "", "", "", false
	}

	h, o, r, ok := parseRemoteURL(remote)
	return h, o, r, ok
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// parseRemoteURL extracts host/org/repo from the common SSH and HTTPS
// remote URL shapes. Host URL parsing beyond this minimal extraction is the
// VCS collaborator's job (spec.md §1), not this package's.
func parseRemoteURL(remote string) (host, org, repo string, ok bool) {
	remote = strings.TrimSuffix(remote, ".git")

	// git@host:org/repo
	if i := strings.Index(remote, "@"); i >= 0 && strings.Contains(remote, ":") && !strings.Contains(remote, "://") {
		rest := remote[i+1:]
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) == 2 {
			return splitHostPath(parts[0], parts[1])
		}
	}

	// scheme://host/org/repo
	if i := strings.Index(remote, "://"); i >= 0 {
		rest := remote[i+3:]
		if at := strings.Index(rest, "@"); at >= 0 {
			rest = rest[at+1:]
		}
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 {
			return splitHostPath(parts[0], parts[1])
		}
	}

	return "", "", "", false
}

func splitHostPath(host, path string) (string, string, string, bool) {
	path = strings.Trim(path, "/")
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return "", "", "", false
	}
	repo := segs[len(segs)-1]
	org := strings.Join(segs[:len(segs)-1], "/")
	if host == "" || org == "" || repo == "" {
		return "", "", "", false
	}
	return host, org, repo, true
}

// pathDerivedID builds an opaque id from an absolute path: the last path
// component (for readability when debugging) plus a content hash of the
// full path (for uniqueness). Two distinct directories sharing a basename
// never collide; the same directory always derives the same id.
func pathDerivedID(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	base := filepath.Base(abs)
	if base == "" || base == string(filepath.Separator) {
		base = "root"
	}
	return "path:" + base + "-" + hex.EncodeToString(sum[:])[:16]
}

// CurrentDir resolves the ID for the process's current working directory.
func CurrentDir() (ID, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return Resolve(dir)
}

// HeadSHA returns dir's current Git HEAD commit, or ok=false when dir isn't
// inside a Git worktree. EnvHistory's head_sha column (spec.md §3) uses
// this to notice when `up` ran against a different commit than last time.
func HeadSHA(dir string) (sha string, ok bool) {
	out, err := runGit(dir, "rev-parse", "HEAD")
	if err != nil || out == "" {
		return "", false
	}
	return out, true
}
