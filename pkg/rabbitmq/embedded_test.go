package rabbitmq

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
)

// fakeNode simulates the broker behind a FakeExecutor.
type fakeNode struct {
	t *testing.T

	// readyAfter is the number of status calls that fail before the node
	// reports running. Negative never becomes ready.
	readyAfter  int32
	erlRelease  string
	stopWorks   bool
	exitOnStart int

	mu      sync.Mutex
	handle  *testutil.FakeHandle
	statusN atomic.Int32
	stopped atomic.Bool
	exec    *testutil.FakeExecutor
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{t: t, readyAfter: 2, erlRelease: "23", stopWorks: true}
	n.exec = &testutil.FakeExecutor{RunFunc: n.run, StartFunc: n.start}
	return n
}

func (n *fakeNode) start(ctx context.Context, c command.Command) (command.Handle, error) {
	h := testutil.NewFakeHandle(4242)
	h.ExitOnTerminate = true
	h.WriteStdout("  Starting broker...")
	if n.exitOnStart != 0 {
		h.WriteStderr("BOOT FAILED")
		h.Exit(n.exitOnStart)
	}
	n.mu.Lock()
	n.handle = h
	n.mu.Unlock()
	return h, nil
}

func (n *fakeNode) currentHandle() *testutil.FakeHandle {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handle
}

func (n *fakeNode) run(ctx context.Context, c command.Command) (*command.Result, error) {
	name := filepath.Base(c.Path)
	switch {
	case name == "erl":
		if n.erlRelease == "" {
			return nil, errors.New(`exec: "erl": executable file not found in $PATH`)
		}
		return &command.Result{Stdout: `"` + n.erlRelease + `"` + "\n"}, nil

	case name == "rabbitmqctl" && c.Args[0] == "status":
		h := n.currentHandle()
		up := h != nil && !h.Exited() && !n.stopped.Load() &&
			n.readyAfter >= 0 && n.statusN.Add(1) > n.readyAfter
		if !up {
			return &command.Result{ExitCode: 69}, &command.CommandFailedError{CommandLine: c.String(), ExitCode: 69, Stderr: "Error: unable to perform an operation on node"}
		}
		return &command.Result{Stdout: "Status of node rabbit@localhost ..."}, nil

	case name == "rabbitmqctl" && c.Args[0] == "stop":
		if !n.stopWorks {
			return nil, &command.CommandTimeoutError{CommandLine: c.String(), Timeout: c.Timeout}
		}
		n.stopped.Store(true)
		if h := n.currentHandle(); h != nil {
			h.Exit(0)
		}
		return &command.Result{}, nil

	case name == "rabbitmq-plugins":
		return &command.Result{Stdout: strings.Join(c.Args, " ")}, nil
	}

	n.t.Errorf("unexpected command %s", c.String())
	return nil, errors.New("unexpected command")
}

type testSetup struct {
	env     testutil.Env
	archive string
	builder *config.Builder
}

func newTestSetup(t *testing.T, node *fakeNode) testSetup {
	t.Helper()

	env := testutil.SetupTestEnv(t)
	archive := filepath.Join(env.Cache, "rabbitmq-server-generic-unix-3.8.19.tar.gz")
	testutil.FakeBroker{}.WriteTarGz(t, archive)

	b := config.NewBuilder().
		Version(artifact.V3_8_19).
		OperatingSystem(artifact.OSUnix).
		DownloadTarget(archive).
		ExtractionFolder(env.Extraction).
		ServerInitTimeout(5 * time.Second).
		PollInterval(10 * time.Millisecond).
		StopGracePeriod(200 * time.Millisecond).
		ExecutorFactory(node.exec.Factory())

	return testSetup{env: env, archive: archive, builder: b}
}

func (s testSetup) build(t *testing.T) *EmbeddedRabbitMQ {
	t.Helper()
	cfg, err := s.builder.Build()
	require.NoError(t, err)
	return New(cfg)
}

func TestEmbeddedRabbitMQ_Start(t *testing.T) {
	node := newFakeNode(t)
	setup := newTestSetup(t, node)
	setup.builder.EnvVar(config.NodePort.Name(), "5673").Port(5680)
	mq := setup.build(t)

	require.NoError(t, mq.Start(context.Background()))
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })

	assert.True(t, mq.Running())
	assert.Equal(t, 4242, mq.Pid())
	assert.Equal(t, int32(3), node.statusN.Load())

	starts := node.exec.Starts()
	require.Len(t, starts, 1)
	server := starts[0]
	appFolder := filepath.Join(setup.env.Extraction, "rabbitmq_server-3.8.19")
	assert.Equal(t, filepath.Join(appFolder, "sbin", "rabbitmq-server"), server.Path)
	assert.Equal(t, appFolder, server.Dir)
	assert.Equal(t, "5673", server.Env["RABBITMQ_NODE_PORT"], "explicit NODE_PORT must win over Port()")
	assert.True(t, server.StreamOutput)
	assert.NotNil(t, server.OnLine)

	info, err := os.Stat(filepath.Join(appFolder, "sbin", "rabbitmqctl"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "ctl script should be executable")

	runs := node.exec.Runs()
	require.NotEmpty(t, runs)
	assert.Equal(t, "erl", runs[0].Path, "erlang check runs before anything else")
	assert.Equal(t, config.DefaultErlangCheckTimeout, runs[0].Timeout)
}

func TestEmbeddedRabbitMQ_StartTwice(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)

	require.NoError(t, mq.Start(context.Background()))
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })

	err := mq.Start(context.Background())

	var stateErr *IllegalStateError
	require.ErrorAs(t, err, &stateErr)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, "running", stateErr.State)

	assert.True(t, mq.Running(), "first instance must be unaffected")
	assert.Len(t, node.exec.Starts(), 1)
	assert.Zero(t, node.currentHandle().Kills())
}

func TestEmbeddedRabbitMQ_StartTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "zero init timeout", timeout: 0},
		{name: "init timeout below poll interval", timeout: time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			node.readyAfter = -1
			setup := newTestSetup(t, node)
			setup.builder.ServerInitTimeout(tt.timeout).PollInterval(50 * time.Millisecond)
			mq := setup.build(t)

			err := mq.Start(context.Background())

			var timeoutErr *StartupTimeoutError
			require.ErrorAs(t, err, &timeoutErr)
			assert.Equal(t, tt.timeout, timeoutErr.Timeout)
			assert.False(t, mq.Running())
			assert.Zero(t, mq.Pid())

			h := node.currentHandle()
			require.NotNil(t, h)
			assert.True(t, h.Exited(), "half-started broker must be killed")
			assert.NotZero(t, h.Kills())
		})
	}
}

func TestEmbeddedRabbitMQ_StartFailsWhenProcessExits(t *testing.T) {
	node := newFakeNode(t)
	node.exitOnStart = 1
	node.readyAfter = -1
	mq := newTestSetup(t, node).build(t)

	err := mq.Start(context.Background())

	var failedErr *StartupFailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, 1, failedErr.ExitCode)
	assert.Contains(t, failedErr.Output, "BOOT FAILED")
	assert.False(t, mq.Running())
}

func TestEmbeddedRabbitMQ_ErlangCheck(t *testing.T) {
	tests := []struct {
		name      string
		release   string
		wantFound string
	}{
		{name: "missing runtime", release: ""},
		{name: "runtime too old", release: "21", wantFound: "21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			node.erlRelease = tt.release
			setup := newTestSetup(t, node)
			// Cache miss would hit the network if the check ran late.
			require.NoError(t, os.Remove(setup.archive))
			mq := setup.build(t)

			err := mq.Start(context.Background())

			var depErr *DependencyMissingError
			require.ErrorAs(t, err, &depErr)
			assert.Equal(t, "23.2", depErr.Required)
			assert.Equal(t, tt.wantFound, depErr.Found)
			assert.Empty(t, node.exec.Starts())
			assert.False(t, mq.Running())
		})
	}
}

func TestEmbeddedRabbitMQ_ErlangCheckDisabled(t *testing.T) {
	node := newFakeNode(t)
	node.erlRelease = ""
	setup := newTestSetup(t, node)
	setup.builder.ErlangCheckTimeout(0)
	mq := setup.build(t)

	require.NoError(t, mq.Start(context.Background()))
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })

	for _, c := range node.exec.Runs() {
		assert.NotEqual(t, "erl", c.Path)
	}
}

func TestEmbeddedRabbitMQ_DownloadError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	node := newFakeNode(t)
	env := testutil.SetupTestEnv(t)
	cfg, err := config.NewBuilder().
		DownloadFromURL(server.URL+"/rabbitmq-server-generic-unix-3.8.19.tar.gz", "rabbitmq_server-3.8.19").
		OperatingSystem(artifact.OSUnix).
		DownloadFolder(env.Cache).
		ExtractionFolder(env.Extraction).
		ExecutorFactory(node.exec.Factory()).
		Build()
	require.NoError(t, err)

	err = New(cfg).Start(context.Background())

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.URL, server.URL)
	assert.Equal(t, int32(1), requests.Load())
	assert.NoFileExists(t, cfg.DownloadTarget())
	assert.Empty(t, node.exec.Starts())
}

func TestEmbeddedRabbitMQ_CorruptCache(t *testing.T) {
	tests := []struct {
		name          string
		deleteOnError bool
	}{
		{name: "deleted on error", deleteOnError: true},
		{name: "kept when configured", deleteOnError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			setup := newTestSetup(t, node)
			require.NoError(t, os.WriteFile(setup.archive, []byte("not an archive"), 0o644))
			setup.builder.DeleteDownloadedFileOnErrors(tt.deleteOnError)
			mq := setup.build(t)

			err := mq.Start(context.Background())

			var extErr *ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, setup.archive, extErr.Archive)
			if tt.deleteOnError {
				assert.NoFileExists(t, setup.archive)
			} else {
				assert.FileExists(t, setup.archive)
			}
		})
	}
}

func TestEmbeddedRabbitMQ_ChecksumMismatch(t *testing.T) {
	node := newFakeNode(t)
	setup := newTestSetup(t, node)
	setup.builder.ArtifactChecksum(strings.Repeat("ab", 32))
	mq := setup.build(t)

	err := mq.Start(context.Background())

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.NoFileExists(t, setup.archive)
	assert.Empty(t, node.exec.Starts())
}

func TestEmbeddedRabbitMQ_StopWhenNotStarted(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)

	assert.NoError(t, mq.Stop(context.Background()))
	assert.NoError(t, mq.Stop(context.Background()))
	assert.Empty(t, node.exec.Runs())
}

func TestEmbeddedRabbitMQ_StopGraceful(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)
	require.NoError(t, mq.Start(context.Background()))
	h := node.currentHandle()

	require.NoError(t, mq.Stop(context.Background()))

	assert.False(t, mq.Running())
	assert.True(t, h.Exited())
	assert.Zero(t, h.Kills(), "graceful stop should not need a kill")
	assert.Zero(t, h.Terminates())

	// Stopping again is a no-op.
	require.NoError(t, mq.Stop(context.Background()))
}

func TestEmbeddedRabbitMQ_StopForceKill(t *testing.T) {
	node := newFakeNode(t)
	node.stopWorks = false
	mq := newTestSetup(t, node).build(t)
	require.NoError(t, mq.Start(context.Background()))
	h := node.currentHandle()
	h.ExitOnTerminate = false

	start := time.Now()
	require.NoError(t, mq.Stop(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond, "kill only after the grace period")
	assert.Equal(t, 1, h.Terminates())
	assert.Equal(t, 1, h.Kills())
	assert.True(t, h.Exited())
	assert.False(t, mq.Running())
}

func TestEmbeddedRabbitMQ_CtlBeforeStart(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)

	_, err := mq.Status(context.Background())
	assert.True(t, IsNotStarted(err))

	_, err = mq.Plugins()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestEmbeddedRabbitMQ_StatusAfterStop(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)
	require.NoError(t, mq.Start(context.Background()))

	_, err := mq.Status(context.Background())
	require.NoError(t, err)

	require.NoError(t, mq.Stop(context.Background()))

	_, err = mq.Status(context.Background())
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed, "a stopped node fails distinctly from a never-started one")
	assert.False(t, IsNotStarted(err))
	assert.Equal(t, 69, failed.ExitCode)
}

func TestEmbeddedRabbitMQ_RestartAfterStop(t *testing.T) {
	node := newFakeNode(t)
	mq := newTestSetup(t, node).build(t)

	require.NoError(t, mq.Start(context.Background()))
	require.NoError(t, mq.Stop(context.Background()))

	node.stopped.Store(false)
	require.NoError(t, mq.Start(context.Background()))
	t.Cleanup(func() { _ = mq.Stop(context.Background()) })

	assert.True(t, mq.Running())
	assert.Len(t, node.exec.Starts(), 2)
}
