package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Names of the environment variables read by ApplyEnv.
const (
	EnvVersion            = "EMBEDMQ_VERSION"
	EnvRepository         = "EMBEDMQ_REPOSITORY"
	EnvDownloadURL        = "EMBEDMQ_DOWNLOAD_URL"
	EnvAppFolder          = "EMBEDMQ_APP_FOLDER"
	EnvDownloadFolder     = "EMBEDMQ_DOWNLOAD_FOLDER"
	EnvDownloadTarget     = "EMBEDMQ_DOWNLOAD_TARGET"
	EnvExtractionFolder   = "EMBEDMQ_EXTRACTION_FOLDER"
	EnvConnectTimeout     = "EMBEDMQ_CONNECT_TIMEOUT"
	EnvReadTimeout        = "EMBEDMQ_READ_TIMEOUT"
	EnvCtlTimeout         = "EMBEDMQ_CTL_TIMEOUT"
	EnvServerInitTimeout  = "EMBEDMQ_SERVER_INIT_TIMEOUT"
	EnvErlangCheckTimeout = "EMBEDMQ_ERLANG_CHECK_TIMEOUT"
	EnvStopGracePeriod    = "EMBEDMQ_STOP_GRACE_PERIOD"
	EnvPollInterval       = "EMBEDMQ_POLL_INTERVAL"
	EnvUseCache           = "EMBEDMQ_USE_CACHE"
	EnvDeleteOnError      = "EMBEDMQ_DELETE_ON_ERROR"
	EnvLockDownloads      = "EMBEDMQ_LOCK_DOWNLOADS"
	EnvUniqueNodeName     = "EMBEDMQ_UNIQUE_NODE_NAME"
	EnvPort               = "EMBEDMQ_PORT"
	EnvProxy              = "EMBEDMQ_PROXY"
	EnvKeyring            = "EMBEDMQ_KEYRING"
	EnvChecksum           = "EMBEDMQ_CHECKSUM"
	EnvErlang             = "EMBEDMQ_ERLANG"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads EMBEDMQ_* variables into a FileConfig.
func FromEnv(lookup LookupFunc) (FileConfig, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	fc := FileConfig{
		Version:            get(EnvVersion),
		Repository:         get(EnvRepository),
		DownloadURL:        get(EnvDownloadURL),
		AppFolder:          get(EnvAppFolder),
		DownloadFolder:     get(EnvDownloadFolder),
		DownloadTarget:     get(EnvDownloadTarget),
		ExtractionFolder:   get(EnvExtractionFolder),
		ConnectTimeout:     get(EnvConnectTimeout),
		ReadTimeout:        get(EnvReadTimeout),
		CtlTimeout:         get(EnvCtlTimeout),
		ServerInitTimeout:  get(EnvServerInitTimeout),
		ErlangCheckTimeout: get(EnvErlangCheckTimeout),
		StopGracePeriod:    get(EnvStopGracePeriod),
		PollInterval:       get(EnvPollInterval),
		Proxy:              get(EnvProxy),
		Keyring:            get(EnvKeyring),
		Checksum:           get(EnvChecksum),
		Erlang:             get(EnvErlang),
	}

	bools := []struct {
		key string
		dst **bool
	}{
		{EnvUseCache, &fc.UseCache},
		{EnvDeleteOnError, &fc.DeleteOnError},
		{EnvLockDownloads, &fc.LockDownloads},
		{EnvUniqueNodeName, &fc.UniqueNodeName},
	}
	for _, bv := range bools {
		raw := get(bv.key)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return FileConfig{}, &ConfigurationError{Field: bv.key, Reason: fmt.Sprintf("invalid boolean %q", raw), Err: err}
		}
		*bv.dst = &parsed
	}

	if raw := get(EnvPort); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return FileConfig{}, &ConfigurationError{Field: EnvPort, Reason: fmt.Sprintf("invalid port %q", raw), Err: err}
		}
		fc.Port = &p
	}

	return fc, nil
}

// ApplyEnv applies EMBEDMQ_* variables to b.
func ApplyEnv(b *Builder, lookup LookupFunc) error {
	fc, err := FromEnv(lookup)
	if err != nil {
		return err
	}
	return fc.Apply(b)
}
