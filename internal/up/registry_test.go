package up

import "testing"

func TestNewBackendDispatchesSpecialKinds(t *testing.T) {
	cases := map[string]any{
		"cargo-install":  &LanguagePackageBackend{},
		"go-install":     &LanguagePackageBackend{},
		"github-release": &ReleaseArchiveBackend{},
		"homebrew":       &HomebrewBackend{},
		"custom":         &CustomStepBackend{},
		"env":            &EnvStepBackend{},
	}
	for kind, want := range cases {
		got := NewBackend(kind)
		if got == nil {
			t.Fatalf("NewBackend(%q) returned nil", kind)
		}
		switch want.(type) {
		case *LanguagePackageBackend:
			if _, ok := got.(*LanguagePackageBackend); !ok {
				t.Errorf("NewBackend(%q) = %T, want *LanguagePackageBackend", kind, got)
			}
		case *ReleaseArchiveBackend:
			if _, ok := got.(*ReleaseArchiveBackend); !ok {
				t.Errorf("NewBackend(%q) = %T, want *ReleaseArchiveBackend", kind, got)
			}
		case *HomebrewBackend:
			if _, ok := got.(*HomebrewBackend); !ok {
				t.Errorf("NewBackend(%q) = %T, want *HomebrewBackend", kind, got)
			}
		case *CustomStepBackend:
			if _, ok := got.(*CustomStepBackend); !ok {
				t.Errorf("NewBackend(%q) = %T, want *CustomStepBackend", kind, got)
			}
		case *EnvStepBackend:
			if _, ok := got.(*EnvStepBackend); !ok {
				t.Errorf("NewBackend(%q) = %T, want *EnvStepBackend", kind, got)
			}
		}
	}
}

func TestNewBackendFallsBackToVersionManaged(t *testing.T) {
	for _, kind := range []string{"python", "go", "terraform", "some-asdf-plugin"} {
		got := NewBackend(kind)
		if _, ok := got.(*VersionManagedBackend); !ok {
			t.Errorf("NewBackend(%q) = %T, want *VersionManagedBackend", kind, got)
		}
	}
}
