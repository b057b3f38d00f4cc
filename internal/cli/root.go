package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
)

// version is overridden at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

// Execute builds the root command tree and runs the CLI. SIGINT and SIGTERM cancel the
// command context, which stops continuous scanning between passes.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	loader := &config.Loader{ConfigPath: config.DefaultConfigPath}
	rootOpts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "imagegate",
		Short:         "Container vulnerability scan gate for CI pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetVersionTemplate("imagegate version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&rootOpts.ConfigPath, "config", config.DefaultConfigPath, "Path to imagegate.yml (optional)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if rootOpts.ConfigPath != "" {
			loader.ConfigPath = rootOpts.ConfigPath
		}
	}

	rootCmd.AddCommand(
		newInitCmd(loader),
		newScanCmd(loader),
		newReportCmd(),
		newDoctorCmd(loader),
	)

	return rootCmd
}

type rootOptions struct {
	ConfigPath string
}
