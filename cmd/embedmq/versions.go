package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
)

func newVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the predefined RabbitMQ versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tMIN ERLANG/OTP\tFOLDER")
			for _, v := range artifact.PredefinedVersions() {
				marker := ""
				if v == artifact.Latest {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\n", v.Number(), marker, v.MinimumErlang(), v.ExtractionFolder())
			}
			return tw.Flush()
		},
	}
}
