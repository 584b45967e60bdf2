package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/platform"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// Builder assembles a Config. Setters never panic: the first invalid value
// is remembered and returned by Build.
type Builder struct {
	err error

	version    artifact.Version
	repository artifact.Repository
	os         artifact.OperatingSystem

	downloadFolder   string
	downloadTarget   string
	extractionFolder string

	downloadConnectTimeout time.Duration
	downloadReadTimeout    time.Duration
	ctlTimeout             time.Duration
	serverInitTimeout      time.Duration
	erlangCheckTimeout     time.Duration
	stopGracePeriod        time.Duration
	pollInterval           time.Duration

	useCache      bool
	deleteOnError bool
	lockDownloads bool

	envVars        map[string]string
	port           int
	randomPort     bool
	uniqueNodeName bool

	executorFactory command.Factory
	proxy           *url.URL
	logger          log.Logger
	detector        platform.Detector

	signatureKeyring string
	checksum         string
	erlangCommand    string
}

// NewBuilder returns a Builder populated with defaults.
func NewBuilder() *Builder {
	return &Builder{
		downloadConnectTimeout: DefaultDownloadConnectTimeout,
		downloadReadTimeout:    DefaultDownloadReadTimeout,
		ctlTimeout:             DefaultCtlTimeout,
		serverInitTimeout:      DefaultServerInitTimeout,
		erlangCheckTimeout:     DefaultErlangCheckTimeout,
		stopGracePeriod:        DefaultStopGracePeriod,
		pollInterval:           DefaultPollInterval,
		useCache:               true,
		deleteOnError:          true,
		envVars:                make(map[string]string),
		executorFactory:        command.DefaultFactory,
		erlangCommand:          DefaultErlangCommand,
	}
}

func (b *Builder) fail(field, reason string, err error) *Builder {
	if b.err == nil {
		b.err = &ConfigurationError{Field: field, Reason: reason, Err: err}
	}
	return b
}

// Version selects the broker release.
func (b *Builder) Version(v artifact.Version) *Builder {
	if v.IsZero() {
		return b.fail("version", "version is required", nil)
	}
	b.version = v
	return b
}

// DownloadFrom selects the repository the artifact URL is resolved against.
func (b *Builder) DownloadFrom(repo artifact.Repository) *Builder {
	if repo == nil {
		return b.fail("repository", "repository is required", nil)
	}
	b.repository = repo
	return b
}

// DownloadFromURL downloads from a fixed location whose archive unpacks into
// appFolderName. The version becomes an unknown version.
func (b *Builder) DownloadFromURL(rawURL, appFolderName string) *Builder {
	repo, err := artifact.NewSingleURLRepository(rawURL)
	if err != nil {
		return b.fail("download_url", "invalid download URL", err)
	}
	v, err := artifact.UnknownVersion(appFolderName)
	if err != nil {
		return b.fail("app_folder", "invalid application folder", err)
	}
	b.repository = repo
	b.version = v
	return b
}

// DownloadFolder sets the directory the artifact is cached in. The file name
// is taken from the download URL.
func (b *Builder) DownloadFolder(dir string) *Builder {
	if dir == "" {
		return b.fail("download_folder", "must not be empty", nil)
	}
	if b.downloadTarget != "" {
		return b.fail("download_folder", "download target has already been set", ErrConflictingDownloadTarget)
	}
	b.downloadFolder = dir
	return b
}

// DownloadTarget sets the exact file the artifact is downloaded to.
func (b *Builder) DownloadTarget(file string) *Builder {
	if file == "" {
		return b.fail("download_target", "must not be empty", nil)
	}
	if b.downloadFolder != "" {
		return b.fail("download_target", "download folder has already been set", ErrConflictingDownloadTarget)
	}
	b.downloadTarget = file
	return b
}

// ExtractionFolder sets the directory archives are unpacked into.
func (b *Builder) ExtractionFolder(dir string) *Builder {
	if dir == "" {
		return b.fail("extraction_folder", "must not be empty", nil)
	}
	b.extractionFolder = dir
	return b
}

func (b *Builder) setDuration(field string, d time.Duration, dst *time.Duration) *Builder {
	if d < 0 {
		return b.fail(field, fmt.Sprintf("must not be negative, got %s", d), nil)
	}
	*dst = d
	return b
}

func (b *Builder) DownloadConnectTimeout(d time.Duration) *Builder {
	return b.setDuration("connect_timeout", d, &b.downloadConnectTimeout)
}

func (b *Builder) DownloadReadTimeout(d time.Duration) *Builder {
	return b.setDuration("read_timeout", d, &b.downloadReadTimeout)
}

// CtlTimeout sets the default timeout of administrative commands.
func (b *Builder) CtlTimeout(d time.Duration) *Builder {
	return b.setDuration("ctl_timeout", d, &b.ctlTimeout)
}

// ServerInitTimeout bounds how long Start waits for the node to report it is
// running. Zero makes Start fail immediately with a startup timeout.
func (b *Builder) ServerInitTimeout(d time.Duration) *Builder {
	return b.setDuration("server_init_timeout", d, &b.serverInitTimeout)
}

func (b *Builder) ErlangCheckTimeout(d time.Duration) *Builder {
	return b.setDuration("erlang_check_timeout", d, &b.erlangCheckTimeout)
}

func (b *Builder) StopGracePeriod(d time.Duration) *Builder {
	return b.setDuration("stop_grace_period", d, &b.stopGracePeriod)
}

func (b *Builder) PollInterval(d time.Duration) *Builder {
	if d == 0 {
		return b.fail("poll_interval", "must be positive", nil)
	}
	return b.setDuration("poll_interval", d, &b.pollInterval)
}

// UseCachedDownload reuses an existing non-empty download target.
func (b *Builder) UseCachedDownload(use bool) *Builder {
	b.useCache = use
	return b
}

// DeleteDownloadedFileOnErrors removes the download target when fetching or
// extracting it fails.
func (b *Builder) DeleteDownloadedFileOnErrors(del bool) *Builder {
	b.deleteOnError = del
	return b
}

// LockDownloads serializes fetches of the same target across processes.
func (b *Builder) LockDownloads(lock bool) *Builder {
	b.lockDownloads = lock
	return b
}

// EnvVar adds a variable to the environment of every broker command.
// Explicit variables always take precedence over Port and UniqueNodeName.
func (b *Builder) EnvVar(key, value string) *Builder {
	if key == "" || strings.Contains(key, "=") {
		return b.fail("env", fmt.Sprintf("invalid variable name %q", key), nil)
	}
	b.envVars[key] = value
	return b
}

// RabbitEnvVar adds a RABBITMQ_ prefixed variable.
func (b *Builder) RabbitEnvVar(key EnvVar, value string) *Builder {
	return b.EnvVar(key.Name(), value)
}

// EnvVars adds several variables at once.
func (b *Builder) EnvVars(vars map[string]string) *Builder {
	for k, v := range vars {
		b.EnvVar(k, v)
	}
	return b
}

// Port sets the node port. -1 selects a random free port at build time.
func (b *Builder) Port(port int) *Builder {
	if port == -1 {
		return b.RandomPort()
	}
	if port <= 0 || port > 65535 {
		return b.fail("port", fmt.Sprintf("must be between 1 and 65535 or -1, got %d", port), nil)
	}
	b.port = port
	b.randomPort = false
	return b
}

// RandomPort picks a free node port at build time.
func (b *Builder) RandomPort() *Builder {
	b.port = 0
	b.randomPort = true
	return b
}

// UniqueNodeName gives the node a random name so several brokers can run on
// one host.
func (b *Builder) UniqueNodeName() *Builder {
	b.uniqueNodeName = true
	return b
}

// ExecutorFactory replaces the process executor, typically with a test double.
func (b *Builder) ExecutorFactory(f command.Factory) *Builder {
	if f == nil {
		return b.fail("executor_factory", "factory is required", nil)
	}
	b.executorFactory = f
	return b
}

// DownloadProxy routes downloads through an HTTP proxy.
func (b *Builder) DownloadProxy(host string, port int) *Builder {
	if host == "" || port <= 0 || port > 65535 {
		return b.fail("proxy", fmt.Sprintf("invalid proxy address %s:%d", host, port), nil)
	}
	b.proxy = &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	return b
}

// DownloadProxyURL routes downloads through an http, https or socks5 proxy.
func (b *Builder) DownloadProxyURL(rawURL string) *Builder {
	u, err := url.Parse(rawURL)
	if err != nil {
		return b.fail("proxy", "invalid proxy URL", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return b.fail("proxy", fmt.Sprintf("unsupported proxy scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return b.fail("proxy", "proxy URL has no host", nil)
	}
	b.proxy = u
	return b
}

// Logger sets the logger used by every component.
func (b *Builder) Logger(l log.Logger) *Builder {
	b.logger = l
	return b
}

// OperatingSystem overrides host detection when choosing the artifact.
func (b *Builder) OperatingSystem(os artifact.OperatingSystem) *Builder {
	b.os = os
	return b
}

func (b *Builder) withDetector(d platform.Detector) *Builder {
	b.detector = d
	return b
}

// VerifySignature checks the artifact against <url>.asc using the OpenPGP
// keys in keyringPath.
func (b *Builder) VerifySignature(keyringPath string) *Builder {
	if keyringPath == "" {
		return b.fail("keyring", "must not be empty", nil)
	}
	b.signatureKeyring = keyringPath
	return b
}

// ArtifactChecksum checks the artifact's SHA256 against sha256Hex.
func (b *Builder) ArtifactChecksum(sha256Hex string) *Builder {
	sha256Hex = strings.TrimSpace(sha256Hex)
	if len(sha256Hex) != 64 {
		return b.fail("checksum", "expected a hex encoded SHA256", nil)
	}
	b.checksum = sha256Hex
	return b
}

// ErlangCommand sets the runtime executable used by the dependency check.
func (b *Builder) ErlangCommand(path string) *Builder {
	if path == "" {
		return b.fail("erlang", "must not be empty", nil)
	}
	b.erlangCommand = path
	return b
}

// Build resolves defaults and derived fields and returns the Config.
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}

	repo := b.repository
	if repo == nil {
		repo = artifact.GitHub
	}
	version := b.version
	if version.IsZero() {
		version = artifact.Latest
	}

	osFamily, err := b.resolveOS()
	if err != nil {
		return nil, err
	}

	source, err := repo.URL(version, osFamily)
	if err != nil {
		return nil, &ConfigurationError{Field: "repository", Reason: "cannot resolve download URL", Err: err}
	}

	target, err := b.resolveTarget(source)
	if err != nil {
		return nil, err
	}

	extraction := b.extractionFolder
	if extraction == "" {
		extraction = os.TempDir()
	}

	env, err := b.resolveEnv()
	if err != nil {
		return nil, err
	}

	return &Config{
		version:                version,
		repository:             repo,
		os:                     osFamily,
		downloadSource:         source,
		downloadTarget:         target,
		extractionFolder:       extraction,
		appFolder:              filepath.Join(extraction, version.ExtractionFolder()),
		downloadConnectTimeout: b.downloadConnectTimeout,
		downloadReadTimeout:    b.downloadReadTimeout,
		ctlTimeout:             b.ctlTimeout,
		serverInitTimeout:      b.serverInitTimeout,
		erlangCheckTimeout:     b.erlangCheckTimeout,
		stopGracePeriod:        b.stopGracePeriod,
		pollInterval:           b.pollInterval,
		useCache:               b.useCache,
		deleteOnError:          b.deleteOnError,
		lockDownloads:          b.lockDownloads,
		envVars:                env,
		executorFactory:        b.executorFactory,
		proxy:                  b.proxy,
		logger:                 log.OrNoop(b.logger),
		signatureKeyring:       b.signatureKeyring,
		checksum:               b.checksum,
		erlangCommand:          b.erlangCommand,
	}, nil
}

func (b *Builder) resolveOS() (artifact.OperatingSystem, error) {
	if b.os != artifact.OSUnknown {
		return b.os, nil
	}

	detector := b.detector
	if detector == nil {
		detector = platform.NewDetector()
	}
	info, err := detector.Detect(context.Background())
	if err != nil {
		return artifact.OSUnknown, &ConfigurationError{Field: "os", Reason: "cannot detect operating system", Err: err}
	}
	osFamily := info.OperatingSystem()
	if osFamily == artifact.OSUnknown {
		return artifact.OSUnknown, &ConfigurationError{Field: "os", Reason: fmt.Sprintf("unsupported operating system %q", info.OS)}
	}
	return osFamily, nil
}

func (b *Builder) resolveTarget(source string) (string, error) {
	if b.downloadTarget != "" {
		return b.downloadTarget, nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return "", &ConfigurationError{Field: "download_url", Reason: "cannot parse download URL", Err: err}
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", &ConfigurationError{Field: "download_target", Reason: fmt.Sprintf("cannot derive a file name from %s", source)}
	}

	folder := b.downloadFolder
	if folder == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", &ConfigurationError{Field: "download_folder", Reason: "cannot determine home directory", Err: err}
		}
		folder = filepath.Join(home, DefaultDownloadFolderName)
	}
	return filepath.Join(folder, name), nil
}

// resolveEnv copies the overlay and fills in the port and node name unless
// they were set explicitly.
func (b *Builder) resolveEnv() (map[string]string, error) {
	env := make(map[string]string, len(b.envVars)+2)
	for k, v := range b.envVars {
		env[k] = v
	}

	if v, ok := env[NodePort.Name()]; ok {
		if p, err := strconv.Atoi(v); err != nil || p <= 0 || p > 65535 {
			return nil, &ConfigurationError{Field: "env", Reason: fmt.Sprintf("%s is not a valid port: %q", NodePort.Name(), v)}
		}
	} else {
		switch {
		case b.randomPort:
			p, err := FreePort()
			if err != nil {
				return nil, &ConfigurationError{Field: "port", Reason: "cannot select a random port", Err: err}
			}
			env[NodePort.Name()] = strconv.Itoa(p)
		case b.port > 0:
			env[NodePort.Name()] = strconv.Itoa(b.port)
		}
	}

	if _, ok := env[NodeName.Name()]; !ok && b.uniqueNodeName {
		env[NodeName.Name()] = "rabbit-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "@localhost"
	}

	return env, nil
}

// Err returns the first error recorded by a setter, if any.
func (b *Builder) Err() error {
	return b.err
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
