// Package platform detects the host operating system so the right RabbitMQ
// artifact can be chosen, and exposes the result to Lua configuration files.
//
// Detection uses runtime.GOOS/GOARCH and gopsutil for host details. Failures
// to read distribution details degrade gracefully; only an unrecognized OS
// family is reported to callers, who turn it into a configuration error.
package platform

import (
	"context"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
)

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // "amd64", "arm64" when recognized, otherwise GOARCH
	Platform string // distro ID (Linux only, e.g., "ubuntu")
	Family   string // canonical distro family (Linux only)
	Version  string // distro or kernel version
}

// OperatingSystem returns the artifact OS family for this platform.
func (i *Info) OperatingSystem() artifact.OperatingSystem {
	if i == nil {
		return artifact.OSUnknown
	}
	return artifact.OperatingSystemFromGOOS(i.OS)
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It lets callers pin the OS family
// (for example to fetch a Windows artifact from a Linux host).
type StaticDetector struct {
	Info Info
}

// Detect returns a copy of the configured Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := s.Info
	return &info, nil
}
