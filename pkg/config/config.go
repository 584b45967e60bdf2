package config

import (
	"net/url"
	"strconv"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// Defaults applied by NewBuilder.
const (
	DefaultDownloadConnectTimeout = 2 * time.Second
	DefaultDownloadReadTimeout    = 3 * time.Second
	DefaultCtlTimeout             = 2 * time.Second
	DefaultServerInitTimeout      = 3 * time.Second
	DefaultErlangCheckTimeout     = 1 * time.Second
	DefaultStopGracePeriod        = 10 * time.Second
	DefaultPollInterval           = 250 * time.Millisecond

	// DefaultDownloadFolderName is created under the user's home directory.
	DefaultDownloadFolderName = ".embeddedrabbitmq"
	// DefaultErlangCommand is looked up on PATH for the runtime check.
	DefaultErlangCommand = "erl"
)

// Config is the resolved, immutable configuration of one embedded broker.
type Config struct {
	version    artifact.Version
	repository artifact.Repository
	os         artifact.OperatingSystem

	downloadSource   string
	downloadTarget   string
	extractionFolder string
	appFolder        string

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

	envVars         map[string]string
	executorFactory command.Factory
	proxy           *url.URL
	logger          log.Logger

	signatureKeyring string
	checksum         string
	erlangCommand    string
}

func (c *Config) Version() artifact.Version                 { return c.version }
func (c *Config) Repository() artifact.Repository           { return c.repository }
func (c *Config) OperatingSystem() artifact.OperatingSystem { return c.os }

// DownloadSource is the resolved artifact URL.
func (c *Config) DownloadSource() string { return c.downloadSource }

// DownloadTarget is the local file the artifact is downloaded to.
func (c *Config) DownloadTarget() string { return c.downloadTarget }

// ExtractionFolder is the directory archives are unpacked into.
func (c *Config) ExtractionFolder() string { return c.extractionFolder }

// AppFolder is the installed broker directory inside ExtractionFolder.
func (c *Config) AppFolder() string { return c.appFolder }

func (c *Config) DownloadConnectTimeout() time.Duration { return c.downloadConnectTimeout }
func (c *Config) DownloadReadTimeout() time.Duration    { return c.downloadReadTimeout }

// CtlTimeout is the default bound for administrative commands.
func (c *Config) CtlTimeout() time.Duration { return c.ctlTimeout }

func (c *Config) ServerInitTimeout() time.Duration  { return c.serverInitTimeout }
func (c *Config) ErlangCheckTimeout() time.Duration { return c.erlangCheckTimeout }

// StopGracePeriod is how long Stop waits for the process to exit before
// killing it.
func (c *Config) StopGracePeriod() time.Duration { return c.stopGracePeriod }

// PollInterval is the pause between readiness status checks.
func (c *Config) PollInterval() time.Duration { return c.pollInterval }

func (c *Config) UseCachedDownload() bool            { return c.useCache }
func (c *Config) DeleteDownloadedFileOnErrors() bool { return c.deleteOnError }
func (c *Config) LockDownloads() bool                { return c.lockDownloads }

// EnvVars returns a copy of the environment overlay passed to every broker
// command.
func (c *Config) EnvVars() map[string]string {
	out := make(map[string]string, len(c.envVars))
	for k, v := range c.envVars {
		out[k] = v
	}
	return out
}

// EnvVar returns the value of a RabbitMQ variable from the overlay.
func (c *Config) EnvVar(e EnvVar) (string, bool) {
	v, ok := c.envVars[e.Name()]
	return v, ok
}

// Port returns the node port from the environment overlay, including a
// randomly chosen one, or DefaultNodePort.
func (c *Config) Port() int {
	if v, ok := c.envVars[NodePort.Name()]; ok {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return DefaultNodePort
}

func (c *Config) ExecutorFactory() command.Factory { return c.executorFactory }

// DownloadProxy returns the proxy for artifact downloads, or nil.
func (c *Config) DownloadProxy() *url.URL {
	if c.proxy == nil {
		return nil
	}
	u := *c.proxy
	return &u
}

func (c *Config) Logger() log.Logger { return c.logger }

// SignatureKeyring is the OpenPGP keyring used to verify <url>.asc, or "".
func (c *Config) SignatureKeyring() string { return c.signatureKeyring }

// ArtifactChecksum is the expected SHA256 of the artifact, or "".
func (c *Config) ArtifactChecksum() string { return c.checksum }

// ErlangCommand is the runtime executable used by the dependency check.
func (c *Config) ErlangCommand() string { return c.erlangCommand }
