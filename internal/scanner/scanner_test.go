package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/example/imagegate/internal/report"
)

const oneCriticalOneLow = `{"ArtifactName":"app:1.0","ArtifactType":"container_image","Results":[{"Target":"app:1.0 (alpine 3.19)","Vulnerabilities":[{"VulnerabilityID":"CVE-2024-1","Title":"bad","Severity":"CRITICAL"},{"VulnerabilityID":"CVE-2024-2","Title":"meh","Severity":"LOW"}]}]}`

// fakeBinary writes a shell script that stands in for the scanner executable.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-trivy")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake scanner: %v", err)
	}
	return path
}

func TestNewCommandScannerDefaults(t *testing.T) {
	s := NewCommandScanner("", 0)
	if s.Binary != DefaultBinary {
		t.Fatalf("expected default binary %q, got %q", DefaultBinary, s.Binary)
	}
}

func TestEnsureBinaryWhenMissing(t *testing.T) {
	s := NewCommandScanner("nonexistent-scanner-12345", 0)
	if err := s.EnsureBinary(); err == nil {
		t.Fatal("EnsureBinary should fail for nonexistent binary")
	}
}

func TestEnsureBinaryWhenPresent(t *testing.T) {
	s := NewCommandScanner(fakeBinary(t, "exit 0"), 0)
	if err := s.EnsureBinary(); err != nil {
		t.Fatalf("EnsureBinary should succeed for an absolute path: %v", err)
	}
}

func TestScanPassesExpectedArguments(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeBinary(t, `echo "$@" > `+argsFile+"\necho '"+oneCriticalOneLow+"'")

	s := NewCommandScanner(bin, 5*time.Second)
	if _, err := s.Scan(context.Background(), "app:1.0"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "image --format json app:1.0" {
		t.Fatalf("unexpected argv: %q", got)
	}
}

func TestScanParsesReport(t *testing.T) {
	bin := fakeBinary(t, "echo 'progress on stderr' >&2\necho '"+oneCriticalOneLow+"'")
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s := NewCommandScanner(bin, 5*time.Second)
	s.now = func() time.Time { return fixed }

	rep, err := s.Scan(context.Background(), "app:1.0")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if rep.ArtifactName() != "app:1.0" || rep.Len() != 2 {
		t.Fatalf("unexpected report: %s", rep)
	}
	if !rep.GeneratedAt().Equal(fixed) {
		t.Fatalf("expected generatedAt %v, got %v", fixed, rep.GeneratedAt())
	}

	var severities []report.Severity
	rep.Each(func(f report.Finding) { severities = append(severities, f.Severity) })
	if len(severities) != 2 || severities[0] != report.Critical || severities[1] != report.Low {
		t.Fatalf("unexpected severities: %v", severities)
	}
}

func TestScanProcessFailure(t *testing.T) {
	bin := fakeBinary(t, "echo 'unable to pull image' >&2\nexit 2")

	_, err := NewCommandScanner(bin, 5*time.Second).Scan(context.Background(), "app:1.0")
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessError, got %T: %v", err, err)
	}
	if pe.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", pe.ExitCode)
	}
	if pe.Stderr != "unable to pull image" {
		t.Fatalf("stderr should be captured separately, got %q", pe.Stderr)
	}
}

func TestScanMissingBinaryIsProcessFailure(t *testing.T) {
	_, err := NewCommandScanner("nonexistent-scanner-12345", 0).Scan(context.Background(), "app:1.0")
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.ExitCode != -1 {
		t.Fatalf("expected ProcessError with exit code -1, got %v", err)
	}
}

func TestScanParseFailure(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "plain text", output: "echo 'this is not json'"},
		{name: "empty output", output: "true"},
		{name: "json array", output: "echo '[]'"},
		{name: "schema mismatch", output: `echo '{"ArtifactName": "app:1.0", "Results": "nope"}'`},
		{name: "empty object", output: `echo '{}'`},
		{name: "error document", output: `echo '{"error": "db download failed"}'`},
		{name: "null results", output: `echo '{"Results": null}'`},
		{name: "numeric artifact name", output: `echo '{"ArtifactName": 7, "Results": []}'`},
		{name: "null results with artifact", output: `echo '{"ArtifactName": "app:1.0", "Results": null}'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := fakeBinary(t, tt.output)
			_, err := NewCommandScanner(bin, 5*time.Second).Scan(context.Background(), "app:1.0")
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %T: %v", err, err)
			}
			if pe.Cause == nil {
				t.Fatal("ParseError should carry a cause")
			}
		})
	}
}

func TestScanTimeout(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 5")

	start := time.Now()
	_, err := NewCommandScanner(bin, 100*time.Millisecond).Scan(context.Background(), "app:1.0")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %T: %v", err, err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.After != 100*time.Millisecond {
		t.Fatalf("unexpected timeout error: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("timeout should abort the child promptly")
	}
}

func TestScanHonoursCancelledContext(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCommandScanner(bin, time.Minute).Scan(ctx, "app:1.0")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		t.Fatal("cancellation must not surface as a ProcessError")
	}
}

func TestScanAcceptsReportWithoutResults(t *testing.T) {
	bin := fakeBinary(t, `echo '{"ArtifactName": "app:1.0", "ArtifactType": "container_image"}'`)
	rep, err := NewCommandScanner(bin, 5*time.Second).Scan(context.Background(), "app:1.0")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if rep.ArtifactName() != "app:1.0" || rep.Len() != 0 {
		t.Fatalf("unexpected report %s", rep)
	}
}
