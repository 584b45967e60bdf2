package artifact

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionKind identifies which variant of Version is in use.
type VersionKind int

const (
	// KindPredefined is a known release shipped in the catalog below.
	KindPredefined VersionKind = iota + 1
	// KindBase is an arbitrary release that follows the official naming convention.
	KindBase
	// KindUnknown is an artifact whose extraction folder is supplied by the caller.
	KindUnknown
)

// String returns the string representation of the version kind
func (k VersionKind) String() string {
	switch k {
	case KindPredefined:
		return "predefined"
	case KindBase:
		return "base"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// extractionFolderPrefix is the top-level folder every official artifact unpacks into.
const extractionFolderPrefix = "rabbitmq_server-"

// Version identifies a RabbitMQ release. The zero value is invalid; use one of
// the predefined values, BaseVersion, UnknownVersion or ParseVersion.
type Version struct {
	kind             VersionKind
	number           string
	extractionFolder string
	minimumErlang    string
	macStandalone    bool
}

// Predefined releases. Minimum Erlang/OTP releases follow the RabbitMQ
// compatibility matrix.
var (
	V3_8_19 = predefined("3.8.19", "23.2", false)
	V3_8_9  = predefined("3.8.9", "22.3", false)
	V3_8_1  = predefined("3.8.1", "21.3", false)
	V3_7_28 = predefined("3.7.28", "21.3", false)
	V3_7_18 = predefined("3.7.18", "20.3", false)
	V3_7_7  = predefined("3.7.7", "19.3", false)
	V3_6_16 = predefined("3.6.16", "19.3", true)
	V3_6_9  = predefined("3.6.9", "16", true)
	V3_6_5  = predefined("3.6.5", "16", true)

	// Latest is the version used when none is configured.
	Latest = V3_8_19
)

var predefinedVersions = []Version{
	V3_8_19, V3_8_9, V3_8_1,
	V3_7_28, V3_7_18, V3_7_7,
	V3_6_16, V3_6_9, V3_6_5,
}

func predefined(number, minimumErlang string, macStandalone bool) Version {
	return Version{
		kind:             KindPredefined,
		number:           number,
		extractionFolder: extractionFolderPrefix + number,
		minimumErlang:    minimumErlang,
		macStandalone:    macStandalone,
	}
}

// PredefinedVersions returns the catalog of known releases, newest first.
func PredefinedVersions() []Version {
	out := make([]Version, len(predefinedVersions))
	copy(out, predefinedVersions)
	return out
}

// BaseVersion returns a Version for an arbitrary release number following the
// official naming convention (e.g. "3.9.13").
func BaseVersion(number string) (Version, error) {
	number = strings.TrimPrefix(strings.TrimSpace(number), "v")
	if !semver.IsValid("v" + number) {
		return Version{}, fmt.Errorf("invalid RabbitMQ version %q", number)
	}
	return Version{
		kind:             KindBase,
		number:           number,
		extractionFolder: extractionFolderPrefix + number,
	}, nil
}

// UnknownVersion returns a Version for an artifact that does not follow the
// naming convention. folder is the directory the archive unpacks into.
func UnknownVersion(folder string) (Version, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return Version{}, fmt.Errorf("extraction folder name is required for unknown versions")
	}
	if strings.ContainsAny(folder, `/\`) || folder == "." || folder == ".." {
		return Version{}, fmt.Errorf("extraction folder name must be a single path element: %q", folder)
	}
	return Version{
		kind:             KindUnknown,
		extractionFolder: folder,
	}, nil
}

// ParseVersion returns the predefined release matching s, or a Base version.
func ParseVersion(s string) (Version, error) {
	number := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if strings.EqualFold(number, "latest") {
		return Latest, nil
	}
	for _, v := range predefinedVersions {
		if v.number == number {
			return v, nil
		}
	}
	return BaseVersion(number)
}

// Kind reports which variant this version is.
func (v Version) Kind() VersionKind {
	return v.kind
}

// IsZero reports whether v was never initialized.
func (v Version) IsZero() bool {
	return v.kind == 0
}

// Number returns the release number, or "" for unknown versions.
func (v Version) Number() string {
	return v.number
}

// ExtractionFolder returns the directory name the artifact unpacks into.
func (v Version) ExtractionFolder() string {
	return v.extractionFolder
}

// MinimumErlang returns the minimum Erlang/OTP release, or "" when unknown.
func (v Version) MinimumErlang() string {
	return v.minimumErlang
}

// String returns the string representation of the version
func (v Version) String() string {
	switch v.kind {
	case KindUnknown:
		return "unknown(" + v.extractionFolder + ")"
	case 0:
		return "<invalid>"
	default:
		return v.number
	}
}

// artifactFileName returns the official file name for this version on os.
func (v Version) artifactFileName(os OperatingSystem) (string, error) {
	if v.kind == KindUnknown || v.number == "" {
		return "", fmt.Errorf("version %s does not follow the official naming convention", v)
	}
	switch os {
	case OSWindows:
		return fmt.Sprintf("rabbitmq-server-windows-%s.zip", v.number), nil
	case OSMac:
		if v.macStandalone {
			return fmt.Sprintf("rabbitmq-server-mac-standalone-%s.tar.xz", v.number), nil
		}
		return fmt.Sprintf("rabbitmq-server-generic-unix-%s.tar.xz", v.number), nil
	case OSUnix:
		return fmt.Sprintf("rabbitmq-server-generic-unix-%s.tar.xz", v.number), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", os)
	}
}

// gitHubTag returns the release tag used on GitHub. Releases before 3.7.0
// were tagged rabbitmq_vX_Y_Z.
func (v Version) gitHubTag() string {
	if semver.Compare("v"+v.number, "v3.7.0") < 0 {
		return "rabbitmq_v" + strings.ReplaceAll(v.number, ".", "_")
	}
	return "v" + v.number
}
