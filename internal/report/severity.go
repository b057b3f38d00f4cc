package report

import (
	"fmt"
	"strings"
)

// Severity is the scanner-reported risk tier of a finding. The zero value is Unknown.
type Severity int

const (
	Unknown Severity = iota
	Low
	Medium
	High
	Critical
)

// Severities lists every tier from lowest to highest.
var Severities = []Severity{Unknown, Low, Medium, High, Critical}

var severityNames = map[Severity]string{
	Unknown:  "UNKNOWN",
	Low:      "LOW",
	Medium:   "MEDIUM",
	High:     "HIGH",
	Critical: "CRITICAL",
}

// ParseSeverity maps a scanner severity label onto a tier. Unrecognised labels map to Unknown.
func ParseSeverity(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "LOW":
		return Low
	case "MEDIUM":
		return Medium
	case "HIGH":
		return High
	case "CRITICAL":
		return Critical
	default:
		return Unknown
	}
}

// ParseThreshold is the strict variant of ParseSeverity used for operator input.
func ParseThreshold(label string) (Severity, error) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	for sev, name := range severityNames {
		if name == normalized {
			return sev, nil
		}
	}
	return Unknown, fmt.Errorf("unknown severity %q (want one of UNKNOWN, LOW, MEDIUM, HIGH, CRITICAL)", label)
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return severityNames[Unknown]
}

// AtLeast reports whether s meets or exceeds min.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}
