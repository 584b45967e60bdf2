package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
)

func parseOptions(t *testing.T, args []string, env map[string]string) (*cliOptions, *cobra.Command) {
	t.Helper()

	opts := newCLIOptions()
	opts.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.SetErr(&bytes.Buffer{})
	opts.register(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return opts, cmd
}

func TestBuildConfig_Defaults(t *testing.T) {
	testutil.SetupTestEnv(t)
	opts, cmd := parseOptions(t, nil, nil)

	cfg, err := opts.buildConfig(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, artifact.Latest, cfg.Version())
	assert.Equal(t, config.DefaultCtlTimeout, cfg.CtlTimeout())
	assert.Equal(t, config.DefaultNodePort, cfg.Port())
	assert.True(t, cfg.UseCachedDownload())
	assert.Empty(t, cfg.EnvVars())
}

func TestBuildConfig_Precedence(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	path := filepath.Join(env.Root, "embedmq.toml")
	content := `
version = "3.7.28"
ctl_timeout = "5s"
server_init_timeout = "30s"
use_cache = false

[env]
RABBITMQ_NODENAME = "rabbit@file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tests := []struct {
		name        string
		args        []string
		env         map[string]string
		wantVersion string
		wantCtl     time.Duration
		wantCache   bool
	}{
		{
			name:        "file only",
			args:        []string{"--config", path},
			wantVersion: "3.7.28",
			wantCtl:     5 * time.Second,
		},
		{
			name:        "environment beats file",
			args:        []string{"--config", path},
			env:         map[string]string{config.EnvCtlTimeout: "7s", config.EnvUseCache: "true"},
			wantVersion: "3.7.28",
			wantCtl:     7 * time.Second,
			wantCache:   true,
		},
		{
			name:        "flags beat environment",
			args:        []string{"--config", path, "--ctl-timeout", "9s", "--rabbitmq-version", "3.8.9"},
			env:         map[string]string{config.EnvCtlTimeout: "7s", config.EnvVersion: "3.8.1"},
			wantVersion: "3.8.9",
			wantCtl:     9 * time.Second,
		},
		{
			name:        "unchanged flags keep lower layers",
			args:        []string{"--config", path, "--port", "5680"},
			wantVersion: "3.7.28",
			wantCtl:     5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, cmd := parseOptions(t, tt.args, tt.env)

			cfg, err := opts.buildConfig(context.Background(), cmd)
			require.NoError(t, err)

			assert.Equal(t, tt.wantVersion, cfg.Version().Number())
			assert.Equal(t, tt.wantCtl, cfg.CtlTimeout())
			assert.Equal(t, 30*time.Second, cfg.ServerInitTimeout())
			assert.Equal(t, tt.wantCache, cfg.UseCachedDownload())
			assert.Equal(t, "rabbit@file", cfg.EnvVars()["RABBITMQ_NODENAME"])
		})
	}
}

func TestBuildConfig_LuaFile(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	path := filepath.Join(env.Root, "embedmq.lua")
	content := `
embedmq = {
  version = "3.8.1",
  stop_grace_period = "3s",
  unique_node_name = true,
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	opts, cmd := parseOptions(t, []string{"--config", path}, nil)
	cfg, err := opts.buildConfig(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "3.8.1", cfg.Version().Number())
	assert.Equal(t, 3*time.Second, cfg.StopGracePeriod())
	assert.True(t, strings.HasPrefix(cfg.EnvVars()["RABBITMQ_NODENAME"], "rabbit-"))
}

func TestBuildConfig_PortFlags(t *testing.T) {
	testutil.SetupTestEnv(t)

	t.Run("random port", func(t *testing.T) {
		opts, cmd := parseOptions(t, []string{"--random-port"}, nil)
		cfg, err := opts.buildConfig(context.Background(), cmd)
		require.NoError(t, err)

		port, err := strconv.Atoi(cfg.EnvVars()["RABBITMQ_NODE_PORT"])
		require.NoError(t, err)
		assert.Equal(t, port, cfg.Port())
	})

	t.Run("explicit env var wins over port flag", func(t *testing.T) {
		opts, cmd := parseOptions(t, []string{"--port", "5680", "--env", "RABBITMQ_NODE_PORT=5699"}, nil)
		cfg, err := opts.buildConfig(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, 5699, cfg.Port())
	})
}

func TestBuildConfig_Errors(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing explicit config file",
			args:    []string{"--config", filepath.Join(env.Root, "missing.toml")},
			wantErr: "load config",
		},
		{
			name:    "invalid log level",
			args:    []string{"--log-level", "chatty"},
			wantErr: "invalid log level",
		},
		{
			name:    "invalid environment duration",
			env:     map[string]string{config.EnvServerInitTimeout: "soon"},
			wantErr: "server_init_timeout",
		},
		{
			name:    "conflicting download options",
			args:    []string{"--download-folder", env.Cache, "--download-target", filepath.Join(env.Cache, "a.tar.xz")},
			wantErr: "download",
		},
		{
			name:    "unknown version",
			args:    []string{"--rabbitmq-version", "latest-and-greatest"},
			wantErr: "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, cmd := parseOptions(t, tt.args, tt.env)
			_, err := opts.buildConfig(context.Background(), cmd)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVersionsCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(&out, &bytes.Buffer{})
	root.SetArgs([]string{"versions"})

	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "3.8.19 (default)")
	assert.Contains(t, out.String(), "rabbitmq_server-3.6.5")
}
