package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Finding is one vulnerability reported by the scanner.
type Finding struct {
	ID               string   `json:"id"`
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description,omitempty"`
	Severity         Severity `json:"severity"`
	PkgName          string   `json:"pkgName,omitempty"`
	InstalledVersion string   `json:"installedVersion,omitempty"`
	FixedVersion     string   `json:"fixedVersion,omitempty"`
	Target           string   `json:"target"`
}

// Summary returns the text used when a finding is listed to a human.
func (f Finding) Summary() string {
	if f.Title != "" {
		return f.Title
	}
	if f.Description != "" {
		return f.Description
	}
	return "no description"
}

// TargetResult groups the findings of one scanned path (OS packages, a lockfile, ...).
type TargetResult struct {
	Target   string    `json:"target"`
	Class    string    `json:"class,omitempty"`
	Type     string    `json:"type,omitempty"`
	Findings []Finding `json:"findings"`
}

// ScanReport is the parsed outcome of one scanner invocation. It is never mutated after
// construction; accessors hand out copies.
type ScanReport struct {
	id           string
	artifactName string
	artifactType string
	generatedAt  time.Time
	results      []TargetResult
}

// New builds a report, taking a deep copy of results.
func New(artifactName, artifactType string, generatedAt time.Time, results []TargetResult) *ScanReport {
	return &ScanReport{
		id:           uuid.New().String(),
		artifactName: artifactName,
		artifactType: artifactType,
		generatedAt:  generatedAt.UTC(),
		results:      copyResults(results),
	}
}

func (r *ScanReport) ID() string             { return r.id }
func (r *ScanReport) ArtifactName() string   { return r.artifactName }
func (r *ScanReport) ArtifactType() string   { return r.artifactType }
func (r *ScanReport) GeneratedAt() time.Time { return r.generatedAt }

// Results returns a copy of the per-target results in report order.
func (r *ScanReport) Results() []TargetResult {
	return copyResults(r.results)
}

// Each calls fn for every finding in report order. Findings are passed by value.
func (r *ScanReport) Each(fn func(Finding)) {
	for _, res := range r.results {
		for _, f := range res.Findings {
			fn(f)
		}
	}
}

// Len is the total number of findings across all targets.
func (r *ScanReport) Len() int {
	n := 0
	for _, res := range r.results {
		n += len(res.Findings)
	}
	return n
}

func copyResults(in []TargetResult) []TargetResult {
	if in == nil {
		return nil
	}
	out := make([]TargetResult, len(in))
	for i, res := range in {
		out[i] = res
		if res.Findings != nil {
			out[i].Findings = append([]Finding(nil), res.Findings...)
		}
	}
	return out
}

type persisted struct {
	ID           string         `json:"id"`
	ArtifactName string         `json:"artifactName"`
	ArtifactType string         `json:"artifactType"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	Results      []TargetResult `json:"results"`
}

// MarshalJSON writes the report in the on-disk format read back by UnmarshalJSON.
func (r *ScanReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(persisted{
		ID:           r.id,
		ArtifactName: r.artifactName,
		ArtifactType: r.artifactType,
		GeneratedAt:  r.generatedAt,
		Results:      r.results,
	})
}

// UnmarshalJSON is only meant for loading a freshly allocated report.
func (r *ScanReport) UnmarshalJSON(data []byte) error {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("report id missing")
	}
	*r = ScanReport{
		id:           p.ID,
		artifactName: p.ArtifactName,
		artifactType: p.ArtifactType,
		generatedAt:  p.GeneratedAt.UTC(),
		results:      p.Results,
	}
	return nil
}

func (r *ScanReport) String() string {
	return fmt.Sprintf("%s (%s, %d findings)", r.artifactName, r.artifactType, r.Len())
}
