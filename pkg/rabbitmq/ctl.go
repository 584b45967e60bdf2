package rabbitmq

import (
	"context"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
)

// Ctl runs rabbitmqctl against an installed distribution.
type Ctl struct {
	executor command.Executor
	path     string
	dir      string
	env      map[string]string
	timeout  time.Duration
}

// NewCtl returns a Ctl for the installation described by cfg.
func NewCtl(cfg *config.Config, executor command.Executor) *Ctl {
	return &Ctl{
		executor: executor,
		path:     CtlScript.Path(cfg.AppFolder(), cfg.OperatingSystem()),
		dir:      cfg.AppFolder(),
		env:      cfg.EnvVars(),
		timeout:  cfg.CtlTimeout(),
	}
}

// Run executes rabbitmqctl with args, bounded by the configured timeout.
func (c *Ctl) Run(ctx context.Context, args ...string) (*command.Result, error) {
	return c.RunWithTimeout(ctx, c.timeout, args...)
}

// RunWithTimeout executes rabbitmqctl with args, bounded by timeout.
func (c *Ctl) RunWithTimeout(ctx context.Context, timeout time.Duration, args ...string) (*command.Result, error) {
	return c.executor.Run(ctx, command.Command{
		Path:    c.path,
		Args:    args,
		Env:     c.env,
		Dir:     c.dir,
		Timeout: timeout,
	})
}

// Status succeeds only when the node is running.
func (c *Ctl) Status(ctx context.Context) (*command.Result, error) {
	return c.Run(ctx, "status")
}

// Stop asks the node to shut down.
func (c *Ctl) Stop(ctx context.Context) (*command.Result, error) {
	return c.Run(ctx, "stop")
}
