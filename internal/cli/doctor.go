package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
	"github.com/example/imagegate/internal/scanner"
	"github.com/example/imagegate/internal/sink"
)

type doctorCheck struct {
	Name   string
	Status string // "✓", "✗" or "⊘"
	Detail string
	Error  error
}

func newDoctorCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var timeout int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the scanner binary, configuration, output path and sink endpoints",
		Long: `The doctor subcommand checks the imagegate environment:
- Go runtime version
- scanner binary presence and version
- configuration validity
- output directory is writable
- renderer command presence (when email attachments are configured)
- reachability of the Pushgateway and chat webhook hosts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flags.toOverrides(cmd)
			if err != nil {
				return err
			}
			cfg, err := loader.Load(overrides)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			defer cancel()

			checks := runDoctorChecks(ctx, &cfg)
			printDoctorReport(cmd, checks)

			for _, check := range checks {
				if check.Error != nil {
					return fmt.Errorf("doctor checks failed")
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\n✓ All checks passed. Ready to scan.")
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().IntVar(&timeout, "check-timeout", 30, "Timeout in seconds for network checks")

	return cmd
}

func runDoctorChecks(ctx context.Context, cfg *config.RuntimeConfig) []doctorCheck {
	checks := []doctorCheck{checkGoVersion()}

	checks = append(checks, checkScannerBinary(ctx, cfg.Scanner.Binary))
	checks = append(checks, checkConfiguration(cfg))
	checks = append(checks, checkOutputPath(cfg.Output))

	if cfg.Renderer.Command != "" {
		checks = append(checks, checkRenderer(cfg.Renderer.Command))
	}

	endpoints := map[string]string{}
	if cfg.Metrics.PushURL != "" {
		endpoints["Pushgateway"] = cfg.Metrics.PushURL
	}
	if cfg.Chat.WebhookURL != "" {
		endpoints["Chat webhook"] = cfg.Chat.WebhookURL
	}
	checks = append(checks, checkEndpoints(ctx, endpoints)...)

	return checks
}

func checkGoVersion() doctorCheck {
	return doctorCheck{
		Name:   "Go Runtime",
		Status: "✓",
		Detail: fmt.Sprintf("Version %s", runtime.Version()),
	}
}

func checkScannerBinary(ctx context.Context, binary string) doctorCheck {
	s := scanner.NewCommandScanner(binary, 0)
	name := fmt.Sprintf("Scanner (%s)", s.Binary)

	if err := s.EnsureBinary(); err != nil {
		return doctorCheck{Name: name, Status: "✗", Detail: "Not found in PATH", Error: err}
	}

	detail := "Available"
	if v, err := s.Version(ctx); err == nil {
		detail = firstLine(v)
	}
	return doctorCheck{Name: name, Status: "✓", Detail: detail}
}

func checkConfiguration(cfg *config.RuntimeConfig) doctorCheck {
	if err := cfg.Validate(); err != nil {
		return doctorCheck{Name: "Configuration", Status: "✗", Detail: "Invalid configuration", Error: err}
	}

	var enabled []string
	if cfg.Metrics.Enabled() {
		enabled = append(enabled, "metrics")
	}
	if cfg.Chat.WebhookURL != "" {
		enabled = append(enabled, "chat")
	}
	if cfg.Email.Enabled() {
		enabled = append(enabled, "email")
	}
	if cfg.ObjectStore.Enabled() {
		enabled = append(enabled, "objectstore")
	}
	sinks := "file"
	if len(enabled) > 0 {
		sinks += "," + strings.Join(enabled, ",")
	}

	return doctorCheck{
		Name:   "Configuration",
		Status: "✓",
		Detail: fmt.Sprintf("target=%s threshold=%s sinks=%s", cfg.Target, cfg.Threshold, sinks),
	}
}

// checkOutputPath creates the report directory and probes that it accepts atomic writes.
func checkOutputPath(output string) doctorCheck {
	dir := filepath.Dir(output)
	if err := ensureParentDir(output); err != nil {
		return doctorCheck{Name: "Output Directory", Status: "✗", Detail: dir, Error: err}
	}

	probe := filepath.Join(dir, ".imagegate-doctor")
	if err := sink.WriteFileAtomic(probe, []byte("ok\n"), 0o600); err != nil {
		return doctorCheck{Name: "Output Directory", Status: "✗", Detail: dir + " is not writable", Error: err}
	}
	_ = os.Remove(probe)

	return doctorCheck{Name: "Output Directory", Status: "✓", Detail: dir}
}

func checkRenderer(commandLine string) doctorCheck {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return doctorCheck{Name: "Renderer", Status: "⊘", Detail: "Not configured"}
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return doctorCheck{Name: "Renderer", Status: "✗", Detail: fields[0] + " not found", Error: err}
	}
	return doctorCheck{Name: "Renderer", Status: "✓", Detail: path}
}

// checkEndpoints only proves the host answers HTTP; it never posts a message or pushes samples.
func checkEndpoints(ctx context.Context, endpoints map[string]string) []doctorCheck {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var checks []doctorCheck
	for _, name := range []string{"Pushgateway", "Chat webhook"} {
		raw, ok := endpoints[name]
		if !ok {
			continue
		}
		check := doctorCheck{Name: "Network: " + name}

		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			check.Status, check.Detail, check.Error = "✗", "Invalid URL", fmt.Errorf("invalid URL %q", raw)
			checks = append(checks, check)
			continue
		}
		probe := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, probe, nil)
		if err != nil {
			check.Status, check.Detail, check.Error = "✗", "Invalid URL", err
			checks = append(checks, check)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			check.Status, check.Detail, check.Error = "✗", "Unreachable", err
		} else {
			resp.Body.Close()
			check.Status, check.Detail = "✓", fmt.Sprintf("%s answered HTTP %d", u.Host, resp.StatusCode)
		}
		checks = append(checks, check)
	}
	return checks
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func printDoctorReport(cmd *cobra.Command, checks []doctorCheck) {
	fmt.Fprintln(cmd.OutOrStdout(), "Running environment diagnostics...")

	for _, check := range checks {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-30s %s\n", check.Status, check.Name+":", check.Detail)
		if check.Error != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "   Error: %v\n", check.Error)
		}
	}
}
