package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/rabbitmq"
)

func newPluginsCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List, enable or disable broker plugins",
	}
	cmd.AddCommand(
		newPluginsListCommand(opts),
		newPluginsToggleCommand(opts, "enable"),
		newPluginsToggleCommand(opts, "disable"),
	)
	return cmd
}

func newPluginsListCommand(opts *cliOptions) *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.buildConfig(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			list, err := rabbitmq.NewPlugins(cfg, executorFor(cfg)).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list plugins: %w", err)
			}
			if enabledOnly {
				list = list.Enabled()
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tSTATE")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Version, describeState(p.State))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only show enabled plugins")
	return cmd
}

func describeState(s rabbitmq.PluginState) string {
	var parts []string
	switch {
	case s.ExplicitlyEnabled:
		parts = append(parts, "enabled")
	case s.ImplicitlyEnabled:
		parts = append(parts, "enabled (implicit)")
	default:
		parts = append(parts, "disabled")
	}
	if s.Running {
		parts = append(parts, "running")
	}
	return strings.Join(parts, ", ")
}

func newPluginsToggleCommand(opts *cliOptions, action string) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   action + " <plugin>...",
		Short: strings.ToUpper(action[:1]) + action[1:] + " plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.buildConfig(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			plugins := rabbitmq.NewPlugins(cfg, executorFor(cfg))
			switch {
			case action == "enable" && offline:
				err = plugins.EnableOffline(cmd.Context(), args...)
			case action == "enable":
				err = plugins.Enable(cmd.Context(), args...)
			case offline:
				err = plugins.DisableOffline(cmd.Context(), args...)
			default:
				err = plugins.Disable(cmd.Context(), args...)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%sd: %s\n", action, strings.Join(args, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "change the enabled plugins file without contacting the node")
	return cmd
}
