// Package classify partitions scan findings into severity tiers.
package classify

import "github.com/example/imagegate/internal/report"

// DefaultThreshold gates on CRITICAL findings only.
const DefaultThreshold = report.Critical

// Summary is derived deterministically from a ScanReport.
type Summary struct {
	Target    string
	Threshold report.Severity
	Counts    map[report.Severity]int
	Total     int
	// Alerts holds findings at or above Threshold in report order.
	Alerts []report.Finding
}

// Classify walks every finding once, in report order. It performs no I/O and does not
// touch the report.
func Classify(rep *report.ScanReport, threshold report.Severity) Summary {
	sum := Summary{
		Target:    rep.ArtifactName(),
		Threshold: threshold,
		Counts:    make(map[report.Severity]int, len(report.Severities)),
	}
	for _, sev := range report.Severities {
		sum.Counts[sev] = 0
	}

	rep.Each(func(f report.Finding) {
		sum.Counts[f.Severity]++
		sum.Total++
		if f.Severity.AtLeast(threshold) {
			sum.Alerts = append(sum.Alerts, f)
		}
	})
	return sum
}

func (s Summary) Count(sev report.Severity) int { return s.Counts[sev] }
func (s Summary) Critical() int                 { return s.Counts[report.Critical] }
func (s Summary) High() int                     { return s.Counts[report.High] }

// Failed reports whether any finding met the alert threshold.
func (s Summary) Failed() bool { return len(s.Alerts) > 0 }
