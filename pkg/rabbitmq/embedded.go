package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/binary"
	"github.com/ZebulonRouseFrantzich/embedmq/internal/readiness"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// killWait bounds how long a force-killed broker may take to be reaped.
const killWait = 5 * time.Second

type lifecycle int

const (
	stateStopped lifecycle = iota
	stateStarting
	stateRunning
)

func (l lifecycle) String() string {
	switch l {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// EmbeddedRabbitMQ owns one broker process.
type EmbeddedRabbitMQ struct {
	cfg        *config.Config
	logger     log.Logger
	executor   command.Executor
	downloader *binary.Downloader
	extractor  *binary.Extractor
	clock      readiness.Clock

	mu        sync.Mutex
	state     lifecycle
	handle    command.Handle
	installed bool
	runID     string
}

// New returns a stopped orchestrator for cfg.
func New(cfg *config.Config) *EmbeddedRabbitMQ {
	logger := log.OrNoop(cfg.Logger())
	factory := cfg.ExecutorFactory()
	if factory == nil {
		factory = command.DefaultFactory
	}
	return &EmbeddedRabbitMQ{
		cfg:        cfg,
		logger:     logger,
		executor:   factory(logger),
		downloader: binary.NewDownloader(logger),
		extractor:  binary.NewExtractor(logger),
		clock:      readiness.RealClock{},
	}
}

// Config returns the configuration the instance was created with.
func (m *EmbeddedRabbitMQ) Config() *config.Config {
	return m.cfg
}

// Running reports whether Start succeeded and Stop has not been called.
func (m *EmbeddedRabbitMQ) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}

// Pid returns the broker process id, or 0 when not running.
func (m *EmbeddedRabbitMQ) Pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return 0
	}
	return m.handle.Pid()
}

// Start downloads and extracts the distribution if needed, launches the
// server and blocks until it is ready. On failure no broker process is left
// running.
func (m *EmbeddedRabbitMQ) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != stateStopped {
		state := m.state
		m.mu.Unlock()
		return &IllegalStateError{Op: "start", State: state.String(), Err: ErrAlreadyStarted}
	}
	m.state = stateStarting
	m.runID = uuid.NewString()
	m.mu.Unlock()

	h, err := m.start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = stateStopped
		m.logger.Error("broker start failed", "run_id", m.runID, "error", err)
		return err
	}
	m.handle = h
	m.state = stateRunning
	return nil
}

func (m *EmbeddedRabbitMQ) start(ctx context.Context) (command.Handle, error) {
	cfg := m.cfg
	started := time.Now()
	m.logger.Info("starting broker",
		"run_id", m.runID,
		"version", cfg.Version().String(),
		"port", cfg.Port(),
		"app_folder", cfg.AppFolder())

	if err := m.checkErlang(ctx); err != nil {
		return nil, err
	}

	if _, err := m.Install(ctx); err != nil {
		return nil, err
	}

	watcher := readiness.NewLogWatcher()
	h, err := m.executor.Start(ctx, command.Command{
		Path:         ServerScript.Path(cfg.AppFolder(), cfg.OperatingSystem()),
		Env:          cfg.EnvVars(),
		Dir:          cfg.AppFolder(),
		StreamOutput: true,
		OnLine:       watcher.Observe,
	})
	if err != nil {
		return nil, fmt.Errorf("launch broker: %w", err)
	}
	m.logger.Debug("broker launched", "run_id", m.runID, "pid", h.Pid())

	ctl := NewCtl(cfg, m.executor)
	probe := func(ctx context.Context) error {
		_, err := ctl.Status(ctx)
		return err
	}

	detector := readiness.NewDetector(readiness.Options{
		Timeout:  cfg.ServerInitTimeout(),
		Interval: cfg.PollInterval(),
		Clock:    m.clock,
		Logger:   m.logger,
		KillWait: killWait,
	})
	if err := detector.Await(ctx, h, probe, watcher.Ready()); err != nil {
		return nil, err
	}

	m.logger.Info("broker started", "run_id", m.runID, "pid", h.Pid(), "elapsed", time.Since(started))
	return h, nil
}

// checkErlang runs the runtime pre-check. A zero timeout disables it.
func (m *EmbeddedRabbitMQ) checkErlang(ctx context.Context) error {
	timeout := m.cfg.ErlangCheckTimeout()
	if timeout <= 0 {
		return nil
	}

	check := readiness.ErlangCheck{
		Executor: m.executor,
		Command:  m.cfg.ErlangCommand(),
		Minimum:  m.cfg.Version().MinimumErlang(),
		Timeout:  timeout,
		Env:      m.cfg.EnvVars(),
	}
	release, err := check.Run(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("erlang runtime found", "otp_release", release)
	return nil
}

func (m *EmbeddedRabbitMQ) download(ctx context.Context) (string, error) {
	cfg := m.cfg
	opts := binary.FetchOptions{
		URL:            cfg.DownloadSource(),
		Target:         cfg.DownloadTarget(),
		ConnectTimeout: cfg.DownloadConnectTimeout(),
		ReadTimeout:    cfg.DownloadReadTimeout(),
		Proxy:          cfg.DownloadProxy(),
		UseCache:       cfg.UseCachedDownload(),
		DeleteOnError:  cfg.DeleteDownloadedFileOnErrors(),
		Lock:           cfg.LockDownloads(),
	}

	archive, err := m.downloader.Fetch(ctx, opts)
	if err != nil {
		return "", err
	}

	if err := m.verify(ctx, opts, archive); err != nil {
		m.discardArchive(archive)
		return "", &DownloadError{URL: opts.URL, Path: archive, Err: err}
	}
	return archive, nil
}

func (m *EmbeddedRabbitMQ) verify(ctx context.Context, opts binary.FetchOptions, archive string) error {
	verifier := binary.NewVerifier(m.cfg.SignatureKeyring())

	if sum := m.cfg.ArtifactChecksum(); sum != "" {
		if err := verifier.VerifyChecksum(archive, sum); err != nil {
			return err
		}
	}

	if m.cfg.SignatureKeyring() == "" {
		return nil
	}

	sigOpts := opts
	sigOpts.URL = opts.URL + ".asc"
	sigOpts.Target = archive + ".asc"
	sigOpts.Lock = false
	signature, err := m.downloader.Fetch(ctx, sigOpts)
	if err != nil {
		return fmt.Errorf("fetch signature: %w", err)
	}
	if err := verifier.VerifySignature(archive, signature); err != nil {
		if opts.DeleteOnError {
			_ = os.Remove(signature)
		}
		return err
	}
	m.logger.Debug("artifact signature verified", "path", archive)
	return nil
}

// Install downloads the artifact unless cached and extracts it unless
// already extracted. It returns the application folder. Start calls it; use
// it directly to prepare an installation without launching the broker.
func (m *EmbeddedRabbitMQ) Install(ctx context.Context) (string, error) {
	archive, err := m.download(ctx)
	if err != nil {
		return "", err
	}
	if err := m.install(archive); err != nil {
		return "", err
	}
	return m.cfg.AppFolder(), nil
}

// install extracts archive and makes the bundled scripts executable.
func (m *EmbeddedRabbitMQ) install(archive string) error {
	cfg := m.cfg
	appFolder, err := m.extractor.Extract(archive, cfg.ExtractionFolder(), cfg.Version().ExtractionFolder())
	if err != nil {
		m.discardArchive(archive)
		return err
	}

	if cfg.OperatingSystem() != artifact.OSWindows {
		for _, s := range []Script{ServerScript, CtlScript, PluginsScript} {
			if err := binary.SetExecutable(s.Path(appFolder, cfg.OperatingSystem())); err != nil {
				return &ExtractionError{Archive: archive, Dest: cfg.ExtractionFolder(), Err: err}
			}
		}
	}

	m.mu.Lock()
	m.installed = true
	m.mu.Unlock()
	return nil
}

func (m *EmbeddedRabbitMQ) discardArchive(archive string) {
	if !m.cfg.DeleteDownloadedFileOnErrors() {
		return
	}
	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("remove cached artifact", "path", archive, "error", err)
		return
	}
	m.logger.Info("removed cached artifact after error", "path", archive)
}

// Stop shuts the broker down: "rabbitmqctl stop" first, then SIGTERM when
// that fails, then a forced kill once the grace period has passed. Stop on
// an instance that is not running does nothing.
func (m *EmbeddedRabbitMQ) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateRunning || m.handle == nil {
		return nil
	}
	h := m.handle
	defer func() {
		m.handle = nil
		m.state = stateStopped
	}()

	m.logger.Info("stopping broker", "run_id", m.runID, "pid", h.Pid())

	if _, err := NewCtl(m.cfg, m.executor).Stop(ctx); err != nil {
		m.logger.Warn("graceful stop failed, terminating", "pid", h.Pid(), "error", err)
		if err := h.Terminate(); err != nil {
			m.logger.Warn("terminate broker", "pid", h.Pid(), "error", err)
		}
	}

	grace := m.cfg.StopGracePeriod()
	select {
	case <-h.Done():
		m.logger.Info("broker stopped", "run_id", m.runID)
		return nil
	case <-m.clock.After(grace):
		m.logger.Warn("broker still running after grace period, killing", "pid", h.Pid(), "grace", grace)
	case <-ctx.Done():
		m.logger.Warn("stop cancelled, killing broker", "pid", h.Pid())
	}

	if err := h.Kill(); err != nil {
		m.logger.Warn("kill broker", "pid", h.Pid(), "error", err)
	}
	select {
	case <-h.Done():
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("broker pid %d did not exit within %s of being killed", h.Pid(), killWait)
	}
}

func (m *EmbeddedRabbitMQ) requireInstalled(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.installed {
		return &IllegalStateError{Op: op, State: m.state.String(), Err: ErrNotStarted}
	}
	return nil
}

// Ctl returns a rabbitmqctl runner for this instance. It fails with
// ErrNotStarted until Start has installed the distribution.
func (m *EmbeddedRabbitMQ) Ctl() (*Ctl, error) {
	if err := m.requireInstalled("ctl"); err != nil {
		return nil, err
	}
	return NewCtl(m.cfg, m.executor), nil
}

// Plugins returns a rabbitmq-plugins runner for this instance.
func (m *EmbeddedRabbitMQ) Plugins() (*Plugins, error) {
	if err := m.requireInstalled("plugins"); err != nil {
		return nil, err
	}
	return NewPlugins(m.cfg, m.executor), nil
}

// Status runs "rabbitmqctl status". It fails with a *CommandFailedError
// when the node is down and with ErrNotStarted before the first Start.
func (m *EmbeddedRabbitMQ) Status(ctx context.Context) (*command.Result, error) {
	ctl, err := m.Ctl()
	if err != nil {
		return nil, err
	}
	return ctl.Status(ctx)
}

// IsNotStarted reports whether err means the instance was never started.
func IsNotStarted(err error) bool {
	return errors.Is(err, ErrNotStarted)
}
