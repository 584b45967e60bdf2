//go:build unix

package rabbitmq_test

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/rabbitmq"
)

func buildE2EConfig(t *testing.T, broker testutil.FakeBroker, configure func(*config.Builder)) (*config.Config, testutil.Env) {
	t.Helper()

	env := testutil.SetupTestEnv(t)
	archive := filepath.Join(env.Cache, "rabbitmq-server-generic-unix-3.8.19.tar.gz")
	broker.WriteTarGz(t, archive)
	erl := testutil.CreateFakeErlang(t, env.Bin, "24")

	b := config.NewBuilder().
		Version(artifact.V3_8_19).
		OperatingSystem(artifact.OSUnix).
		DownloadTarget(archive).
		ExtractionFolder(env.Extraction).
		RandomPort().
		UniqueNodeName().
		ErlangCommand(erl).
		ErlangCheckTimeout(5 * time.Second).
		CtlTimeout(5 * time.Second).
		ServerInitTimeout(10 * time.Second).
		PollInterval(50 * time.Millisecond).
		StopGracePeriod(5 * time.Second)
	if configure != nil {
		configure(b)
	}

	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg, env
}

func TestEndToEnd_StartStatusStop(t *testing.T) {
	cfg, _ := buildE2EConfig(t, testutil.FakeBroker{BootDelay: 300 * time.Millisecond}, nil)
	mq := rabbitmq.New(cfg)
	ctx := context.Background()

	port, err := strconv.Atoi(cfg.EnvVars()["RABBITMQ_NODE_PORT"])
	require.NoError(t, err)
	assert.Equal(t, port, cfg.Port())

	start := time.Now()
	require.NoError(t, mq.Start(ctx))
	assert.Less(t, time.Since(start), cfg.ServerInitTimeout())
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })

	res, err := mq.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, cfg.EnvVars()["RABBITMQ_NODENAME"])

	plugins, err := mq.Plugins()
	require.NoError(t, err)
	require.NoError(t, plugins.Enable(ctx, "rabbitmq_management"))
	list, err := plugins.List(ctx)
	require.NoError(t, err)
	mgmt, ok := list.Find("rabbitmq_management")
	require.True(t, ok)
	assert.True(t, mgmt.State.ExplicitlyEnabled)
	assert.True(t, mgmt.State.Running)

	pid := testutil.ServerPID(t, cfg.AppFolder())
	require.NotZero(t, pid)
	assert.Equal(t, mq.Pid(), pid)

	require.NoError(t, mq.Stop(ctx))

	assert.Eventually(t, func() bool { return !command.Alive(pid) }, 5*time.Second, 50*time.Millisecond)

	_, err = mq.Status(ctx)
	var failed *rabbitmq.CommandFailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, rabbitmq.IsNotStarted(err))
}

func TestEndToEnd_ReadyFromStartupLog(t *testing.T) {
	cfg, _ := buildE2EConfig(t, testutil.FakeBroker{LogStartupLine: true}, func(b *config.Builder) {
		b.PollInterval(time.Second)
	})
	mq := rabbitmq.New(cfg)

	require.NoError(t, mq.Start(context.Background()))
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })
	assert.True(t, mq.Running())
}

func TestEndToEnd_StartupTimeoutLeavesNoProcess(t *testing.T) {
	cfg, _ := buildE2EConfig(t, testutil.FakeBroker{BootDelay: 30 * time.Second}, func(b *config.Builder) {
		b.ServerInitTimeout(500 * time.Millisecond)
	})
	mq := rabbitmq.New(cfg)

	err := mq.Start(context.Background())

	var timeoutErr *rabbitmq.StartupTimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	pid := testutil.ServerPID(t, cfg.AppFolder())
	require.NotZero(t, pid)
	assert.Eventually(t, func() bool { return !command.Alive(pid) }, 5*time.Second, 50*time.Millisecond)
}

func TestEndToEnd_BrokerExitsDuringBoot(t *testing.T) {
	cfg, _ := buildE2EConfig(t, testutil.FakeBroker{ExitCode: 1}, nil)
	mq := rabbitmq.New(cfg)

	err := mq.Start(context.Background())

	var failedErr *rabbitmq.StartupFailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, 1, failedErr.ExitCode)
	assert.Contains(t, failedErr.Output, "BOOT FAILED")
}

func TestEndToEnd_StopKillsBrokerIgnoringTerm(t *testing.T) {
	cfg, _ := buildE2EConfig(t, testutil.FakeBroker{IgnoreTerm: true}, func(b *config.Builder) {
		b.StopGracePeriod(300 * time.Millisecond)
	})
	mq := rabbitmq.New(cfg)
	require.NoError(t, mq.Start(context.Background()))
	pid := mq.Pid()

	// Break the graceful path so Stop has to escalate.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, mq.Stop(ctx))

	assert.Eventually(t, func() bool { return !command.Alive(pid) }, 5*time.Second, 50*time.Millisecond)
	assert.False(t, mq.Running())
}
