package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
)

// runtimeFlagSet tracks shared scan/doctor flags before they are converted into config overrides.
type runtimeFlagSet struct {
	target      string
	output      string
	interval    string
	threshold   string
	timeout     string
	retries     int
	listen      string
	scanner     string
	pushGateway string
}

func bindRuntimeFlags(cmd *cobra.Command, flags *runtimeFlagSet) {
	cmd.Flags().StringVar(&flags.target, "target", "", "Image reference to scan (overrides config)")
	cmd.Flags().StringVar(&flags.output, "output", "", "Report path; {timestamp} expands to the scan time")
	cmd.Flags().StringVar(&flags.interval, "interval", "", "Seconds between scans; enables continuous mode (e.g. 300 or 5m)")
	cmd.Flags().StringVar(&flags.threshold, "threshold", "", "Lowest severity that fails the gate: CRITICAL, HIGH, MEDIUM, LOW or UNKNOWN")
	cmd.Flags().StringVar(&flags.timeout, "timeout", "", "Scanner timeout in seconds (e.g. 600 or 10m)")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, fmt.Sprintf("Scan attempts on transient failures (1-%d)", config.MaxRetries))
	cmd.Flags().StringVar(&flags.listen, "listen", "", "Serve /metrics and /healthz on this address (e.g. :9102)")
	cmd.Flags().StringVar(&flags.scanner, "scanner", "", "Scanner binary name or path")
	cmd.Flags().StringVar(&flags.pushGateway, "pushgateway", "", "Prometheus Pushgateway URL")
}

func (f runtimeFlagSet) toOverrides(cmd *cobra.Command) (config.Overrides, error) {
	ov := config.Overrides{}
	if cmd.Flags().Changed("target") {
		ov.Target = f.target
	}

	if cmd.Flags().Changed("output") {
		ov.Output = f.output
	}

	if cmd.Flags().Changed("interval") {
		d, err := config.ParseSeconds(f.interval)
		if err != nil {
			return ov, &config.ConfigError{Setting: "--interval", Reason: err.Error()}
		}
		ov.Interval, ov.IntervalSet = d, true
	}

	if cmd.Flags().Changed("threshold") {
		ov.Threshold = f.threshold
	}

	if cmd.Flags().Changed("timeout") {
		d, err := config.ParseSeconds(f.timeout)
		if err != nil {
			return ov, &config.ConfigError{Setting: "--timeout", Reason: err.Error()}
		}
		ov.Timeout, ov.TimeoutSet = d, true
	}

	if cmd.Flags().Changed("retries") {
		ov.Retries, ov.RetriesSet = f.retries, true
	}

	if cmd.Flags().Changed("listen") {
		ov.Metrics.Listen = f.listen
	}

	if cmd.Flags().Changed("scanner") {
		ov.ScannerBinary = f.scanner
	}

	if cmd.Flags().Changed("pushgateway") {
		ov.Metrics.PushURL = f.pushGateway
	}

	return ov, nil
}
