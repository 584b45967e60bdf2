package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/rabbitmq"
)

func executorFor(cfg *config.Config) command.Executor {
	return cfg.ExecutorFactory()(cfg.Logger())
}

func newStatusCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run rabbitmqctl status against an installed broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.buildConfig(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			res, err := rabbitmq.NewCtl(cfg, executorFor(cfg)).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("node is not running: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			return nil
		},
	}
}
