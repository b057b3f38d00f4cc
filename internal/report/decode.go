package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// scannerReport mirrors the subset of the scanner's JSON output that the gate consumes.
type scannerReport struct {
	ArtifactName string          `json:"ArtifactName"`
	ArtifactType string          `json:"ArtifactType"`
	Results      []scannerResult `json:"Results"`
}

type scannerResult struct {
	Target          string                 `json:"Target"`
	Class           string                 `json:"Class"`
	Type            string                 `json:"Type"`
	Vulnerabilities []scannerVulnerability `json:"Vulnerabilities"`
}

type scannerVulnerability struct {
	VulnerabilityID  string `json:"VulnerabilityID"`
	PkgName          string `json:"PkgName"`
	InstalledVersion string `json:"InstalledVersion"`
	FixedVersion     string `json:"FixedVersion"`
	Title            string `json:"Title"`
	Description      string `json:"Description"`
	Severity         string `json:"Severity"`
}

// Decode converts raw scanner output into a ScanReport stamped with generatedAt.
func Decode(raw []byte, generatedAt time.Time) (*ScanReport, error) {
	var doc scannerReport
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode scanner output: %w", err)
	}

	results := make([]TargetResult, 0, len(doc.Results))
	for i, res := range doc.Results {
		tr := TargetResult{
			Target: res.Target,
			Class:  res.Class,
			Type:   res.Type,
		}
		for j, v := range res.Vulnerabilities {
			if v.VulnerabilityID == "" {
				return nil, fmt.Errorf("decode scanner output: Results[%d].Vulnerabilities[%d]: %w", i, j, errMissingID)
			}
			tr.Findings = append(tr.Findings, Finding{
				ID:               v.VulnerabilityID,
				Title:            v.Title,
				Description:      v.Description,
				Severity:         ParseSeverity(v.Severity),
				PkgName:          v.PkgName,
				InstalledVersion: v.InstalledVersion,
				FixedVersion:     v.FixedVersion,
				Target:           res.Target,
			})
		}
		results = append(results, tr)
	}

	return New(doc.ArtifactName, doc.ArtifactType, generatedAt, results), nil
}

var errMissingID = errors.New("VulnerabilityID is required")
