package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/example/imagegate/internal/report"
	"github.com/tidwall/gjson"
)

// DefaultBinary is the scanner executable looked up on PATH when none is configured.
const DefaultBinary = "trivy"

// Scanner produces a ScanReport for an image reference.
type Scanner interface {
	Scan(ctx context.Context, target string) (*report.ScanReport, error)
}

// CommandScanner executes the real scanner binary present on the host.
type CommandScanner struct {
	Binary  string
	Timeout time.Duration
	// ExtraArgs are inserted between "image" and the target, e.g. "--skip-db-update".
	ExtraArgs []string

	now func() time.Time
}

// NewCommandScanner returns a scanner for binary bounded by timeout. Zero timeout means no bound.
func NewCommandScanner(binary string, timeout time.Duration) *CommandScanner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CommandScanner{Binary: binary, Timeout: timeout, now: time.Now}
}

// EnsureBinary verifies that the scanner binary is discoverable on PATH.
func (s *CommandScanner) EnsureBinary() error {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return fmt.Errorf("scanner binary not found: %w", err)
	}
	return nil
}

// Version returns whatever the binary prints for --version.
func (s *CommandScanner) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.Binary, "--version").CombinedOutput() // #nosec G204
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "unknown", nil
	}
	return version, nil
}

func (s *CommandScanner) args(target string) []string {
	args := []string{"image", "--format", "json"}
	args = append(args, s.ExtraArgs...)
	return append(args, target)
}

// Scan runs `<binary> image --format json <target>` and parses its stdout.
func (s *CommandScanner) Scan(ctx context.Context, target string) (*report.ScanReport, error) {
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	// Binary comes from operator configuration and the target is passed as a single argv
	// element, so no shell interpretation takes place.
	cmd := exec.CommandContext(runCtx, s.Binary, s.args(target)...) // #nosec G204
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{Target: target, After: s.Timeout}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProcessError{
				Target:   target,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return nil, &ProcessError{Target: target, ExitCode: -1, Stderr: err.Error()}
	}

	raw := stdout.Bytes()
	if !gjson.ValidBytes(raw) {
		return nil, &ParseError{Raw: string(raw), Cause: errors.New("output is not valid JSON")}
	}
	if err := checkSchema(gjson.ParseBytes(raw)); err != nil {
		return nil, &ParseError{Raw: string(raw), Cause: err}
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	rep, err := report.Decode(raw, now())
	if err != nil {
		return nil, &ParseError{Raw: string(raw), Cause: err}
	}
	return rep, nil
}

// checkSchema rejects documents that parse as JSON but are not a scanner report.
func checkSchema(doc gjson.Result) error {
	if !doc.IsObject() {
		return errors.New("output is not a JSON object")
	}
	if name := doc.Get("ArtifactName"); name.Type != gjson.String {
		return errors.New("ArtifactName is missing or not a string")
	}
	if results := doc.Get("Results"); results.Exists() && !results.IsArray() {
		return errors.New("Results is not an array")
	}
	return nil
}
