// Package pipeline drives one target through scan, classification, sink dispatch and the
// gate decision, optionally repeating on an interval.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/imagegate/internal/classify"
	"github.com/example/imagegate/internal/events"
	"github.com/example/imagegate/internal/report"
	"github.com/example/imagegate/internal/scanner"
	"github.com/example/imagegate/internal/sink"
)

// Decision is the gate verdict of a pass.
type Decision string

const (
	Pass Decision = "pass"
	Fail Decision = "fail"
)

// Outcome describes the most recent completed pass.
type Outcome struct {
	Target   string
	Decision Decision
	Summary  classify.Summary
	Report   *report.ScanReport
	Results  []sink.Result
	// ScanErr is set when the scan itself failed; no sinks ran in that case.
	ScanErr    error
	Pass       int
	FinishedAt time.Time
}

// ExitCode maps the decision onto the CI contract: 0 passes, 1 fails.
func (o Outcome) ExitCode() int {
	if o.Decision == Pass {
		return 0
	}
	return 1
}

// Controller owns no state beyond its configuration.
type Controller struct {
	Scanner   scanner.Scanner
	Sinks     []sink.Sink
	Threshold report.Severity
	// Interval > 0 enables continuous mode.
	Interval time.Duration
	Emitter  *events.Emitter
	// OnOutcome, when set, observes every completed pass.
	OnOutcome func(Outcome)

	now func() time.Time
}

func (c *Controller) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Run executes one pass, or loops while passes succeed when Interval is set. The returned
// error is non-nil only when a scan failed; cancellation while waiting between passes
// returns the last outcome with a nil error.
func (c *Controller) Run(ctx context.Context, target string) (Outcome, error) {
	if c.Scanner == nil {
		return Outcome{Target: target, Decision: Fail}, errors.New("pipeline: no scanner configured")
	}

	for pass := 1; ; pass++ {
		out := c.runOnce(ctx, target, pass)
		if c.OnOutcome != nil {
			c.OnOutcome(out)
		}
		if out.ScanErr != nil {
			return out, out.ScanErr
		}
		if c.Interval <= 0 || out.Decision == Fail {
			return out, nil
		}

		c.Emitter.Info(events.TypeSleep, target, "Waiting for next scan", events.Fields{
			"pass":     pass,
			"interval": c.Interval.String(),
		})
		timer := time.NewTimer(c.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.Emitter.Info(events.TypeShutdown, target, "Stopping continuous scan", events.Fields{"passes": pass})
			return out, nil
		case <-timer.C:
		}
	}
}

func (c *Controller) runOnce(ctx context.Context, target string, pass int) Outcome {
	out := Outcome{Target: target, Decision: Fail, Pass: pass}

	c.Emitter.Info(events.TypeScanStart, target, "Starting scan", events.Fields{
		"pass":      pass,
		"threshold": c.Threshold.String(),
	})

	started := c.clock()
	rep, err := c.Scanner.Scan(ctx, target)
	if err != nil {
		out.ScanErr = fmt.Errorf("scan %s: %w", target, err)
		out.FinishedAt = c.clock()
		c.Emitter.Error(events.TypeScanError, target, err.Error(), scanErrorFields(err))
		return out
	}

	sum := classify.Classify(rep, c.Threshold)
	c.Emitter.Info(events.TypeScanFinished, target, "Scan complete", events.Fields{
		"reportId": rep.ID(),
		"findings": sum.Total,
		"critical": sum.Critical(),
		"high":     sum.High(),
		"duration": c.clock().Sub(started).String(),
	})

	results := sink.Dispatch(ctx, c.Sinks, sink.Delivery{Target: target, Summary: sum, Report: rep})
	for _, res := range results {
		c.logResult(target, res)
	}

	out.Summary = sum
	out.Report = rep
	out.Results = results
	if !sum.Failed() {
		out.Decision = Pass
	}
	out.FinishedAt = c.clock()

	c.Emitter.Info(events.TypeDecision, target, string(out.Decision), events.Fields{
		"alerts":    len(sum.Alerts),
		"threshold": sum.Threshold.String(),
		"exitCode":  out.ExitCode(),
	})
	return out
}

func (c *Controller) logResult(target string, res sink.Result) {
	fields := events.Fields{"sink": res.Sink, "status": string(res.Status)}
	switch res.Status {
	case sink.StatusFailed:
		fields["error"] = res.Err.Error()
		c.Emitter.Warn(events.TypeSinkResult, target, res.Sink+" delivery failed", fields)
	case sink.StatusSkipped:
		fields["reason"] = res.Err.Error()
		c.Emitter.Info(events.TypeSinkResult, target, res.Sink+" skipped", fields)
	default:
		c.Emitter.Info(events.TypeSinkResult, target, res.Sink+" delivered", fields)
	}
}

func scanErrorFields(err error) events.Fields {
	fields := events.Fields{}
	var (
		procErr  *scanner.ProcessError
		parseErr *scanner.ParseError
		timeout  *scanner.TimeoutError
	)
	switch {
	case errors.As(err, &procErr):
		fields["kind"] = "process"
		fields["exitCode"] = procErr.ExitCode
		if procErr.Stderr != "" {
			fields["stderr"] = procErr.Stderr
		}
	case errors.As(err, &parseErr):
		fields["kind"] = "parse"
	case errors.As(err, &timeout):
		fields["kind"] = "timeout"
		fields["after"] = timeout.After.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fields["kind"] = "cancelled"
	default:
		fields["kind"] = "unknown"
	}
	return fields
}
