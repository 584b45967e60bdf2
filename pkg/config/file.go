package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/platform"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
)

// FileConfig is the serializable form of the builder settings shared by
// config files and environment variables. Durations are Go duration strings
// and unset fields leave the builder untouched.
type FileConfig struct {
	Version          string `toml:"version"`
	Repository       string `toml:"repository"`
	DownloadURL      string `toml:"download_url"`
	AppFolder        string `toml:"app_folder"`
	DownloadFolder   string `toml:"download_folder"`
	DownloadTarget   string `toml:"download_target"`
	ExtractionFolder string `toml:"extraction_folder"`

	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	CtlTimeout         string `toml:"ctl_timeout"`
	ServerInitTimeout  string `toml:"server_init_timeout"`
	ErlangCheckTimeout string `toml:"erlang_check_timeout"`
	StopGracePeriod    string `toml:"stop_grace_period"`
	PollInterval       string `toml:"poll_interval"`

	UseCache       *bool `toml:"use_cache"`
	DeleteOnError  *bool `toml:"delete_on_error"`
	LockDownloads  *bool `toml:"lock_downloads"`
	UniqueNodeName *bool `toml:"unique_node_name"`
	Port           *int  `toml:"port"`

	Proxy    string `toml:"proxy"`
	Keyring  string `toml:"keyring"`
	Checksum string `toml:"checksum"`
	Erlang   string `toml:"erlang"`

	Env map[string]string `toml:"env"`
}

// Apply copies every set field onto b. Parse failures are returned
// immediately as a ConfigurationError; setter validation surfaces from Build.
func (fc FileConfig) Apply(b *Builder) error {
	if fc.DownloadURL != "" {
		b.DownloadFromURL(fc.DownloadURL, fc.AppFolder)
	} else if fc.AppFolder != "" {
		return &ConfigurationError{Field: "app_folder", Reason: "requires download_url"}
	}
	if fc.Repository != "" {
		repo, err := artifact.RepositoryByName(fc.Repository)
		if err != nil {
			return &ConfigurationError{Field: "repository", Reason: "unknown repository", Err: err}
		}
		b.DownloadFrom(repo)
	}
	if fc.Version != "" {
		v, err := artifact.ParseVersion(fc.Version)
		if err != nil {
			return &ConfigurationError{Field: "version", Reason: "cannot parse version", Err: err}
		}
		b.Version(v)
	}

	if fc.DownloadFolder != "" {
		b.DownloadFolder(fc.DownloadFolder)
	}
	if fc.DownloadTarget != "" {
		b.DownloadTarget(fc.DownloadTarget)
	}
	if fc.ExtractionFolder != "" {
		b.ExtractionFolder(fc.ExtractionFolder)
	}

	durations := []struct {
		field string
		value string
		set   func(time.Duration) *Builder
	}{
		{"connect_timeout", fc.ConnectTimeout, b.DownloadConnectTimeout},
		{"read_timeout", fc.ReadTimeout, b.DownloadReadTimeout},
		{"ctl_timeout", fc.CtlTimeout, b.CtlTimeout},
		{"server_init_timeout", fc.ServerInitTimeout, b.ServerInitTimeout},
		{"erlang_check_timeout", fc.ErlangCheckTimeout, b.ErlangCheckTimeout},
		{"stop_grace_period", fc.StopGracePeriod, b.StopGracePeriod},
		{"poll_interval", fc.PollInterval, b.PollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return &ConfigurationError{Field: d.field, Reason: "invalid duration", Err: err}
		}
		d.set(parsed)
	}

	if fc.UseCache != nil {
		b.UseCachedDownload(*fc.UseCache)
	}
	if fc.DeleteOnError != nil {
		b.DeleteDownloadedFileOnErrors(*fc.DeleteOnError)
	}
	if fc.LockDownloads != nil {
		b.LockDownloads(*fc.LockDownloads)
	}
	if fc.UniqueNodeName != nil && *fc.UniqueNodeName {
		b.UniqueNodeName()
	}
	if fc.Port != nil {
		b.Port(*fc.Port)
	}

	if fc.Proxy != "" {
		b.DownloadProxyURL(fc.Proxy)
	}
	if fc.Keyring != "" {
		b.VerifySignature(fc.Keyring)
	}
	if fc.Checksum != "" {
		b.ArtifactChecksum(fc.Checksum)
	}
	if fc.Erlang != "" {
		b.ErlangCommand(fc.Erlang)
	}
	if len(fc.Env) > 0 {
		b.EnvVars(fc.Env)
	}

	return b.Err()
}

// LoadFile reads a .lua or .toml config file. detector feeds the platform
// table of Lua files and may be nil to use host detection.
func LoadFile(ctx context.Context, path string, detector platform.Detector) (FileConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		if detector == nil {
			detector = platform.NewDetector()
		}
		return LoadLua(ctx, path, detector)
	case ".toml":
		return LoadTOML(path)
	default:
		return FileConfig{}, fmt.Errorf("unsupported config file type: %s", path)
	}
}

// LoadTOML reads and parses a TOML config file.
func LoadTOML(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.embeddedrabbitmq/config.toml, or "" when the
// home directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, DefaultDownloadFolderName, "config.toml")
	}
	return ""
}
