package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/classify"
	"github.com/example/imagegate/internal/events"
	"github.com/example/imagegate/internal/report"
	"github.com/example/imagegate/internal/sink"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	pink   = color.New(color.FgMagenta).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

const maxSummaryLen = 80

func newReportCmd() *cobra.Command {
	var (
		inputPath string
		threshold string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the severity breakdown of a saved scan report and re-apply the gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("--input is required")
			}

			sev := classify.DefaultThreshold
			if threshold != "" {
				parsed, err := report.ParseThreshold(threshold)
				if err != nil {
					return err
				}
				sev = parsed
			}

			rep, err := sink.ReadReport(inputPath)
			if err != nil {
				return err
			}
			sum := classify.Classify(rep, sev)

			if asJSON {
				emitter := events.NewEmitter(cmd.OutOrStdout())
				if err := emitter.Emit(events.Event{Type: events.TypeReport, Target: rep.ArtifactName(), Message: "Report summary", Fields: reportFields(inputPath, rep, sum)}); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), rep, sum)
			}

			if sum.Failed() {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to a report written by the file sink")
	cmd.Flags().StringVar(&threshold, "threshold", "", "Lowest severity that fails the gate (default CRITICAL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the summary as an NDJSON event instead of a table")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}

	return cmd
}

func reportFields(input string, rep *report.ScanReport, sum classify.Summary) events.Fields {
	counts := map[string]int{}
	for _, sev := range report.Severities {
		counts[sev.String()] = sum.Count(sev)
	}
	return events.Fields{
		"input":       input,
		"reportId":    rep.ID(),
		"generatedAt": rep.GeneratedAt().UTC(),
		"findings":    sum.Total,
		"counts":      counts,
		"threshold":   sum.Threshold.String(),
		"alerts":      len(sum.Alerts),
		"failed":      sum.Failed(),
	}
}

func paintSeverity(sev report.Severity) string {
	switch sev {
	case report.Critical:
		return red(sev.String())
	case report.High:
		return pink(sev.String())
	case report.Medium:
		return yellow(sev.String())
	case report.Low:
		return green(sev.String())
	default:
		return sev.String()
	}
}

func printReport(w io.Writer, rep *report.ScanReport, sum classify.Summary) {
	fmt.Fprintf(w, "Target: %s (%s)\nReport: %s, generated %s\n\n",
		rep.ArtifactName(), rep.ArtifactType(), rep.ID(), rep.GeneratedAt().UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Critical: %s, High: %s, Medium: %s, Low: %s, Unknown: %d\n\n",
		red(sum.Critical()),
		pink(sum.High()),
		yellow(sum.Count(report.Medium)),
		green(sum.Count(report.Low)),
		sum.Count(report.Unknown))

	if len(sum.Alerts) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"ID", "Vulnerability", "Package", "Installed / Fixed", "Severity", "Title"})
		table.SetRowLine(true)
		table.SetAutoMergeCellsByColumnIndex([]int{2})

		for i, f := range sum.Alerts {
			fixed := f.FixedVersion
			if fixed == "" {
				fixed = "-"
			}
			summary := truncateSummary(f.Summary())
			table.Append([]string{
				strconv.Itoa(i + 1), f.ID, f.PkgName,
				fmt.Sprintf("%s / %s", f.InstalledVersion, fixed),
				paintSeverity(f.Severity), summary,
			})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	if sum.Failed() {
		fmt.Fprintf(w, "%s %d finding(s) at or above %s\n", red("FAIL"), len(sum.Alerts), sum.Threshold)
		return
	}
	fmt.Fprintf(w, "%s no findings at or above %s\n", green("PASS"), sum.Threshold)
}

// truncateSummary caps s at maxSummaryLen runes.
func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen]) + " ..."
}
