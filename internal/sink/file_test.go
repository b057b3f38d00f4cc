package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/example/imagegate/internal/report"
)

func TestFileSinkRoundTrip(t *testing.T) {
	d := testDelivery(report.Critical, report.Low)
	path := filepath.Join(t.TempDir(), "scan_results.json")

	if err := NewFile(path).Deliver(context.Background(), d); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	back, err := ReadReport(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if back.ID() != d.Report.ID() || back.ArtifactName() != d.Report.ArtifactName() || back.ArtifactType() != d.Report.ArtifactType() {
		t.Fatalf("metadata mismatch: %s vs %s", back, d.Report)
	}
	if !back.GeneratedAt().Equal(d.Report.GeneratedAt()) {
		t.Fatalf("timestamp mismatch: %v vs %v", back.GeneratedAt(), d.Report.GeneratedAt())
	}
	if !reflect.DeepEqual(back.Results(), d.Report.Results()) {
		t.Fatalf("results mismatch:\n%#v\n%#v", back.Results(), d.Report.Results())
	}
}

func TestFileSinkLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	for i := 0; i < 2; i++ {
		if err := NewFile(path).Deliver(context.Background(), testDelivery(report.Critical)); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only out.json, got %v", names)
	}
}

func TestFileSinkExpandsTimestamp(t *testing.T) {
	dir := t.TempDir()
	s := NewFile(filepath.Join(dir, "scan_{timestamp}.json"))
	d := testDelivery()

	if err := s.Deliver(context.Background(), d); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scan_20240501_103000.json")); err != nil {
		t.Fatalf("expected timestamped file: %v", err)
	}
}

func TestFileSinkMissingDirectoryIsIOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")

	err := NewFile(path).Deliver(context.Background(), testDelivery())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %T: %v", err, err)
	}
	if ioErr.Path != path {
		t.Fatalf("expected path %s, got %s", path, ioErr.Path)
	}
}

func TestReadReportErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{garbage, filepath.Join(dir, "absent.json")} {
		var ioErr *IOError
		if _, err := ReadReport(path); !errors.As(err, &ioErr) {
			t.Fatalf("ReadReport(%s) should return IOError, got %v", path, err)
		}
	}
}
