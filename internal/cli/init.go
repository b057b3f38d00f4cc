package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
	"github.com/example/imagegate/internal/sink"
)

const starterConfig = `# imagegate configuration. Secrets belong in IMAGEGATE_* environment variables.
target: %s
output: scan_results.json
threshold: CRITICAL
timeout: 600
# interval: 300

scanner:
  binary: trivy

retry:
  attempts: 1
  baseDelay: 2
  maxDelay: 30

metrics:
  # pushURL: http://pushgateway:9091
  job: imagegate
  # listen: ":9102"

# chat webhook: IMAGEGATE_CHAT_WEBHOOK

# email:
#   host: smtp.example.com
#   port: 587
#   from: gate@example.com
#   to: [security@example.com]
# password: IMAGEGATE_SMTP_PASSWORD

# objectStore:
#   endpoint: minio:9000
#   bucket: scan-reports
#   prefix: ci
# keys: IMAGEGATE_S3_ACCESS_KEY / IMAGEGATE_S3_SECRET_KEY
`

func newInitCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var (
		skipScannerCheck bool
		writeConfig      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Validate the execution environment and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flags.toOverrides(cmd)
			if err != nil {
				return err
			}

			if writeConfig {
				path := loader.ConfigPath
				if path == "" {
					path = config.DefaultConfigPath
				}
				if err := writeStarterConfig(path, overrides.Target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote starter configuration to %s\n", path)
			}

			cfg, err := loader.Load(overrides)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := ensureParentDir(cfg.Output); err != nil {
				return err
			}

			if !skipScannerCheck {
				if _, err := newCommandScanner(cfg); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Environment looks good. Reports for %s will be stored in %s\n", cfg.Target, filepath.Dir(cfg.Output))
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().BoolVar(&skipScannerCheck, "skip-scanner-check", false, "Allow init to pass even if the scanner binary is missing")
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Write a starter imagegate.yml to the --config path if none exists")

	return cmd
}

func writeStarterConfig(path, target string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; remove it or pick another --config path", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if target == "" {
		target = "registry.example.com/app:latest"
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return sink.WriteFileAtomic(path, []byte(fmt.Sprintf(starterConfig, target)), 0o644)
}
