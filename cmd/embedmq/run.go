package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/rabbitmq"
)

// stopSlack is added to the ctl timeout and grace period when bounding Stop.
const stopSlack = 10 * time.Second

func newRunCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the broker and keep it running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.buildConfig(ctx, cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()

			mq := rabbitmq.New(cfg)
			if err := mq.Start(ctx); err != nil {
				return fmt.Errorf("start broker: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "RabbitMQ %s running on port %d (pid %d)\n",
				cfg.Version().String(), cfg.Port(), mq.Pid())

			<-ctx.Done()
			logger.Info("received signal, stopping broker")

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.CtlTimeout()+cfg.StopGracePeriod()+stopSlack)
			defer cancel()
			if err := mq.Stop(stopCtx); err != nil {
				return fmt.Errorf("stop broker: %w", err)
			}
			return nil
		},
	}
}
