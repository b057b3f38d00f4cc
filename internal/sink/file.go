package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/imagegate/internal/report"
)

// TimestampPlaceholder in a FileSink path expands to the report's generation time.
const TimestampPlaceholder = "{timestamp}"

// FileSink persists the full ScanReport as JSON.
type FileSink struct {
	Path string
}

func NewFile(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Name() string { return "file" }

// ResolvePath expands TimestampPlaceholder for rep.
func (s *FileSink) ResolvePath(rep *report.ScanReport) string {
	stamp := rep.GeneratedAt().UTC().Format("20060102_150405")
	return strings.ReplaceAll(s.Path, TimestampPlaceholder, stamp)
}

// Deliver writes the report atomically: a temp file in the destination directory is
// synced and renamed over the final path. The directory must already exist.
func (s *FileSink) Deliver(ctx context.Context, d Delivery) error {
	path := s.ResolvePath(d.Report)

	data, err := json.MarshalIndent(d.Report, "", "  ")
	if err != nil {
		return &IOError{Path: path, Op: "encode", Err: err}
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// WriteFileAtomic replaces path with data without ever exposing a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return &IOError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &IOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// ReadReport loads a report previously written by FileSink.
func ReadReport(path string) (*report.ScanReport, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &IOError{Path: path, Op: "read", Err: err}
	}
	var rep report.ScanReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, &IOError{Path: path, Op: "decode", Err: err}
	}
	return &rep, nil
}
