package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

const longHelp = `Download, start and control a RabbitMQ broker as a child process.

embedmq fetches the generic distribution for the selected version, unpacks it
into a private folder and runs it with the configured node port and node name.
Settings come from a config file (.toml or .lua), EMBEDMQ_* environment
variables and flags, in increasing order of precedence.`

var exampleUsage = strings.TrimSpace(`
  embedmq run --rabbitmq-version 3.8.19 --port 5673
  embedmq run --config ./embedmq.lua --random-port --unique-node-name
  embedmq download --rabbitmq-version 3.7.28 --download-folder /var/cache/rabbitmq
  embedmq plugins enable --offline rabbitmq_management
  embedmq status --ctl-timeout 5s
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := newCLIOptions()

	root := &cobra.Command{
		Use:           "embedmq",
		Short:         "Run an embedded RabbitMQ broker",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	opts.register(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(opts),
		newDownloadCommand(opts),
		newStatusCommand(opts),
		newPluginsCommand(opts),
		newVersionsCommand(),
	)
	return root
}

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
