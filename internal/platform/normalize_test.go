package platform

import "testing"

func TestNormalizeArch(t *testing.T) {
	tests := map[string]string{
		"amd64":   "amd64",
		"x86_64":  "amd64",
		"arm64":   "arm64",
		"aarch64": "arm64",
		"riscv64": "riscv64",
	}
	for in, want := range tests {
		if got := normalizeArch(in); got != want {
			t.Errorf("normalizeArch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapFamily(t *testing.T) {
	tests := map[string]string{
		"debian":    FamilyDebian,
		" Ubuntu ":  FamilyDebian,
		"centos":    FamilyRHEL,
		"fedora":    FamilyFedora,
		"opensuse":  FamilySUSE,
		"manjaro":   FamilyArch,
		"alpine":    FamilyAlpine,
		"slackware": FamilyUnknown,
		"":          FamilyUnknown,
	}
	for in, want := range tests {
		if got := mapFamily(in); got != want {
			t.Errorf("mapFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
