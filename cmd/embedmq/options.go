package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// cliOptions holds the global flags. Only flags the user changed override
// the config file and environment.
type cliOptions struct {
	configPath string
	logLevel   string

	version          string
	repository       string
	downloadURL      string
	appFolder        string
	downloadFolder   string
	downloadTarget   string
	extractionFolder string

	connectTimeout     time.Duration
	readTimeout        time.Duration
	ctlTimeout         time.Duration
	serverInitTimeout  time.Duration
	erlangCheckTimeout time.Duration
	stopGracePeriod    time.Duration
	pollInterval       time.Duration

	useCache       bool
	deleteOnError  bool
	lockDownloads  bool
	uniqueNodeName bool
	randomPort     bool
	port           int

	proxy    string
	keyring  string
	checksum string
	erlang   string
	env      map[string]string

	// lookupEnv is os.LookupEnv outside tests.
	lookupEnv config.LookupFunc
}

func newCLIOptions() *cliOptions {
	return &cliOptions{lookupEnv: os.LookupEnv}
}

func (o *cliOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to a .toml or .lua config file (default: $HOME/.embeddedrabbitmq/config.toml)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	fs.StringVar(&o.version, "rabbitmq-version", "", "RabbitMQ version, e.g. 3.8.19")
	fs.StringVar(&o.repository, "repository", "", "artifact repository (github or rabbitmq)")
	fs.StringVar(&o.downloadURL, "download-url", "", "download the artifact from this URL instead of a repository")
	fs.StringVar(&o.appFolder, "app-folder", "", "folder the --download-url archive extracts to")
	fs.StringVar(&o.downloadFolder, "download-folder", "", "folder for cached artifacts (default: $HOME/.embeddedrabbitmq)")
	fs.StringVar(&o.downloadTarget, "download-target", "", "exact file to download the artifact to")
	fs.StringVar(&o.extractionFolder, "extraction-folder", "", "folder to extract the artifact into (default: system temp dir)")

	fs.DurationVar(&o.connectTimeout, "connect-timeout", config.DefaultDownloadConnectTimeout, "download connect timeout")
	fs.DurationVar(&o.readTimeout, "read-timeout", config.DefaultDownloadReadTimeout, "download read stall timeout")
	fs.DurationVar(&o.ctlTimeout, "ctl-timeout", config.DefaultCtlTimeout, "timeout for rabbitmqctl and rabbitmq-plugins")
	fs.DurationVar(&o.serverInitTimeout, "init-timeout", config.DefaultServerInitTimeout, "time allowed for the broker to become ready")
	fs.DurationVar(&o.erlangCheckTimeout, "erlang-check-timeout", config.DefaultErlangCheckTimeout, "timeout of the Erlang pre-check (0 disables it)")
	fs.DurationVar(&o.stopGracePeriod, "stop-grace-period", config.DefaultStopGracePeriod, "time to wait for a graceful stop before killing")
	fs.DurationVar(&o.pollInterval, "poll-interval", config.DefaultPollInterval, "interval between readiness checks")

	fs.BoolVar(&o.useCache, "use-cache", true, "reuse a previously downloaded artifact")
	fs.BoolVar(&o.deleteOnError, "delete-on-error", true, "delete the cached artifact when download or extraction fails")
	fs.BoolVar(&o.lockDownloads, "lock-downloads", false, "serialize downloads of the same artifact across processes")
	fs.BoolVar(&o.uniqueNodeName, "unique-node-name", false, "give the node a random name")
	fs.BoolVar(&o.randomPort, "random-port", false, "pick a free node port")
	fs.IntVar(&o.port, "port", config.DefaultNodePort, "node port")

	fs.StringVar(&o.proxy, "proxy", "", "download proxy URL (http, https or socks5)")
	fs.StringVar(&o.keyring, "keyring", "", "OpenPGP keyring used to verify the artifact's .asc signature")
	fs.StringVar(&o.checksum, "checksum", "", "expected SHA-256 of the artifact")
	fs.StringVar(&o.erlang, "erlang", "", "erl executable used by the pre-check")
	fs.StringToStringVar(&o.env, "env", nil, "extra environment variables, e.g. RABBITMQ_NODENAME=rabbit@host")
}

// flagConfig turns the changed flags into a FileConfig so they go through
// the same validation as files and environment variables.
func (o *cliOptions) flagConfig(fs *pflag.FlagSet) (config.FileConfig, bool) {
	var fc config.FileConfig
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	str := func(name, value string, dst *string) {
		if changed[name] {
			*dst = value
		}
	}
	dur := func(name string, value time.Duration, dst *string) {
		if changed[name] {
			*dst = value.String()
		}
	}
	flag := func(name string, value bool) *bool {
		if !changed[name] {
			return nil
		}
		return &value
	}

	str("rabbitmq-version", o.version, &fc.Version)
	str("repository", o.repository, &fc.Repository)
	str("download-url", o.downloadURL, &fc.DownloadURL)
	str("app-folder", o.appFolder, &fc.AppFolder)
	str("download-folder", o.downloadFolder, &fc.DownloadFolder)
	str("download-target", o.downloadTarget, &fc.DownloadTarget)
	str("extraction-folder", o.extractionFolder, &fc.ExtractionFolder)

	dur("connect-timeout", o.connectTimeout, &fc.ConnectTimeout)
	dur("read-timeout", o.readTimeout, &fc.ReadTimeout)
	dur("ctl-timeout", o.ctlTimeout, &fc.CtlTimeout)
	dur("init-timeout", o.serverInitTimeout, &fc.ServerInitTimeout)
	dur("erlang-check-timeout", o.erlangCheckTimeout, &fc.ErlangCheckTimeout)
	dur("stop-grace-period", o.stopGracePeriod, &fc.StopGracePeriod)
	dur("poll-interval", o.pollInterval, &fc.PollInterval)

	fc.UseCache = flag("use-cache", o.useCache)
	fc.DeleteOnError = flag("delete-on-error", o.deleteOnError)
	fc.LockDownloads = flag("lock-downloads", o.lockDownloads)
	fc.UniqueNodeName = flag("unique-node-name", o.uniqueNodeName)
	if changed["port"] {
		p := o.port
		fc.Port = &p
	}

	str("proxy", o.proxy, &fc.Proxy)
	str("keyring", o.keyring, &fc.Keyring)
	str("checksum", o.checksum, &fc.Checksum)
	str("erlang", o.erlang, &fc.Erlang)
	if changed["env"] {
		fc.Env = o.env
	}

	return fc, changed["random-port"] && o.randomPort
}

func (o *cliOptions) logger(w io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	return log.NewConsoleLogger(w, level), nil
}

// buildConfig layers defaults, config file, environment and flags.
func (o *cliOptions) buildConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	logger, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	b := config.NewBuilder().Logger(logger)

	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultConfigPath()
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fc, err := config.LoadFile(ctx, path, nil)
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			if err := fc.Apply(b); err != nil {
				return nil, err
			}
			logger.Debug("loaded config file", "path", path)
		}
	}

	if err := config.ApplyEnv(b, o.lookupEnv); err != nil {
		return nil, err
	}

	fc, randomPort := o.flagConfig(cmd.Flags())
	if err := fc.Apply(b); err != nil {
		return nil, err
	}
	if randomPort {
		b.RandomPort()
	}

	return b.Build()
}
