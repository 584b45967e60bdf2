package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/rabbitmq"
)

func newDownloadCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download and extract the broker without starting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.buildConfig(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			appFolder, err := rabbitmq.New(cfg).Install(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Artifact:  %s\n", cfg.DownloadTarget())
			fmt.Fprintf(out, "Installed: %s\n", appFolder)
			return nil
		},
	}
}
