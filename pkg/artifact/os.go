package artifact

import "strings"

// OperatingSystem is the OS family used to select an artifact variant.
type OperatingSystem int

const (
	// OSUnknown means the family could not be determined.
	OSUnknown OperatingSystem = iota
	// OSWindows selects the windows zip distribution.
	OSWindows
	// OSUnix selects the generic-unix distribution (Linux, BSDs).
	OSUnix
	// OSMac selects the macOS distribution.
	OSMac
)

// String returns the string representation of the OS family
func (o OperatingSystem) String() string {
	switch o {
	case OSWindows:
		return "windows"
	case OSUnix:
		return "unix"
	case OSMac:
		return "mac"
	default:
		return "unknown"
	}
}

// OperatingSystemFromGOOS maps a GOOS value to its OS family.
func OperatingSystemFromGOOS(goos string) OperatingSystem {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "windows":
		return OSWindows
	case "darwin", "macos", "mac":
		return OSMac
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos", "aix", "unix":
		return OSUnix
	default:
		return OSUnknown
	}
}
