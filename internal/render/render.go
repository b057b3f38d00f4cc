// Package render hands a ScanReport to an external document renderer.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/imagegate/internal/report"
)

// Renderer turns a report into a document on disk and returns its path.
type Renderer interface {
	Render(ctx context.Context, rep *report.ScanReport) (string, error)
}

// CommandRenderer runs `<Command> <Args...> <report.json> <output>`. The command is expected
// to write the rendered document to <output>.
type CommandRenderer struct {
	Command string
	Args    []string
	// OutputDir receives the report JSON and the rendered document. Empty means os.TempDir().
	OutputDir string
	Extension string
}

// NewCommandRenderer parses a command line such as "report-pdf --theme dark".
func NewCommandRenderer(commandLine, outputDir string) (*CommandRenderer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("renderer command is empty")
	}
	return &CommandRenderer{
		Command:   fields[0],
		Args:      fields[1:],
		OutputDir: outputDir,
		Extension: ".pdf",
	}, nil
}

func (r *CommandRenderer) Render(ctx context.Context, rep *report.ScanReport) (string, error) {
	dir := r.OutputDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return "", err
	}
	input := filepath.Join(dir, fmt.Sprintf("report-%s.json", rep.ID()))
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return "", err
	}
	defer os.Remove(input)

	ext := r.Extension
	if ext == "" {
		ext = ".pdf"
	}
	output := filepath.Join(dir, fmt.Sprintf("report-%s%s", rep.ID(), ext))

	args := append(append([]string(nil), r.Args...), input, output)
	var stderr bytes.Buffer
	// Command comes from operator configuration; file paths are generated here.
	cmd := exec.CommandContext(ctx, r.Command, args...) // #nosec G204
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("renderer %s failed: %w: %s", r.Command, err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(output)
	if err != nil {
		return "", fmt.Errorf("renderer produced no output: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("renderer produced an empty document at %s", output)
	}
	return output, nil
}
