package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"omni/internal/envcache"
)

func TestArtifactPathMirrorsEachBackendsLayout(t *testing.T) {
	dataHome := "/data"

	cases := []struct {
		name string
		a    envcache.InstalledArtifact
		want string
	}{
		{
			name: "version-managed",
			a:    envcache.InstalledArtifact{Backend: "version-managed", InstallKey: "python", Version: "3.12.1"},
			want: filepath.Join(dataHome, "python", "3.12.1"),
		},
		{
			name: "go-install",
			a:    envcache.InstalledArtifact{Backend: "go-install", InstallKey: "golang.org/x/tools/cmd/stringer", Version: "v0.20.0"},
			want: filepath.Join(dataHome, "go-install", "golang.org_x_tools_cmd_stringer", "v0.20.0"),
		},
		{
			name: "release-archive",
			a:    envcache.InstalledArtifact{Backend: "release-archive", InstallKey: "acme/widget", Version: "v1.2.3"},
			want: filepath.Join(dataHome, "release-archive", "acme_widget", "v1.2.3"),
		},
		{
			name: "homebrew",
			a:    envcache.InstalledArtifact{Backend: "homebrew", InstallKey: "jq", Version: "1.7"},
			want: filepath.Join(dataHome, "homebrew", "jq", "1.7"),
		},
		{
			name: "unknown backend",
			a:    envcache.InstalledArtifact{Backend: "mystery", InstallKey: "x", Version: "1"},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, artifactPath(dataHome, tc.a))
		})
	}
}
