package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
	"github.com/example/imagegate/internal/events"
	"github.com/example/imagegate/internal/pipeline"
	"github.com/example/imagegate/internal/scanner"
	"github.com/example/imagegate/internal/server"
)

func newCommandScanner(cfg config.RuntimeConfig) (*scanner.CommandScanner, error) {
	s := scanner.NewCommandScanner(cfg.Scanner.Binary, cfg.Timeout)
	s.ExtraArgs = cfg.Scanner.Args
	if err := s.EnsureBinary(); err != nil {
		return nil, err
	}
	return s, nil
}

func newScanCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a container image and fail when findings reach the threshold",
		Long: `Runs the vulnerability scanner against --target, classifies the findings,
delivers them to the configured sinks and exits 1 when any finding is at or
above --threshold. With --interval the scan repeats until a pass fails or the
process is interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flags.toOverrides(cmd)
			if err != nil {
				return err
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

			emitter := events.NewEmitter(cmd.OutOrStdout())

			cs, err := newCommandScanner(cfg)
			if err != nil {
				return err
			}
			scan := scanner.WithRetry(cs, scanner.RetryPolicy{
				Attempts:  cfg.Retry.Attempts,
				BaseDelay: cfg.Retry.BaseDelay,
				MaxDelay:  cfg.Retry.MaxDelay,
			})
			if r, ok := scan.(*scanner.Retrying); ok {
				r.OnRetry = func(attempt int, wait time.Duration, err error) {
					emitter.Warn(events.TypeScanRetry, cfg.Target, err.Error(), events.Fields{
						"attempt": attempt,
						"wait":    wait.String(),
					})
				}
			}

			sinks, metrics, err := buildSinks(cfg)
			if err != nil {
				return err
			}

			tracker := &server.Tracker{}
			ctrl := &pipeline.Controller{
				Scanner:   scan,
				Sinks:     sinks,
				Threshold: cfg.Threshold,
				Interval:  cfg.Interval,
				Emitter:   emitter,
				OnOutcome: tracker.Record,
			}

			ctx := cmd.Context()

			var stopServer func() error
			if cfg.Metrics.Listen != "" {
				var gatherer prometheus.Gatherer = prometheus.NewRegistry()
				if metrics != nil {
					gatherer = metrics.Registry()
				}
				stop, addr, err := startStatusServer(ctx, cfg.Metrics.Listen, server.NewRouter(gatherer, tracker))
				if err != nil {
					return err
				}
				stopServer = stop
				emitter.Info(events.TypeStatusServer, cfg.Target, "Serving /metrics and /healthz", events.Fields{"listen": addr})
			}

			outcome, runErr := ctrl.Run(ctx, cfg.Target)

			if stopServer != nil {
				if err := stopServer(); err != nil {
					emitter.Warn(events.TypeStatusServer, cfg.Target, err.Error(), nil)
				}
			}
			if err := emitter.Err(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: event stream write failed: %v\n", err)
			}
			if runErr != nil {
				return runErr
			}
			if code := outcome.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)

	return cmd
}

// startStatusServer binds addr and serves handler until the returned stop function is called
// or ctx ends. It returns the bound address.
func startStatusServer(ctx context.Context, addr string, handler http.Handler) (func() error, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("status server: %w", err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(srvCtx, ln, handler)
	}()

	stop := func() error {
		cancel()
		err := <-done
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return stop, ln.Addr().String(), nil
}
