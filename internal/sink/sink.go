// Package sink delivers classified scan results to files, metrics, chat, email and object storage.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/imagegate/internal/classify"
	"github.com/example/imagegate/internal/report"
)

// ErrSkipped is wrapped by sinks that decided not to attempt delivery.
var ErrSkipped = errors.New("skipped")

// Delivery is the read-only input handed to every sink.
type Delivery struct {
	Target  string
	Summary classify.Summary
	Report  *report.ScanReport
}

// Sink is implemented by every delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Status is the outcome of one sink.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result is the per-sink outcome collected by Dispatch.
type Result struct {
	Sink   string
	Status Status
	Err    error
}

// IOError reports a failure writing to local storage.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// DeliveryError reports a sink-specific transport or authentication failure.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func skipped(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Dispatch runs every sink concurrently and returns one Result per sink in the order given.
// A panicking sink is reported as failed; it never affects its siblings.
func Dispatch(ctx context.Context, sinks []Sink, d Delivery) []Result {
	results := make([]Result, len(sinks))

	var wg sync.WaitGroup
	for i, s := range sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			results[i] = deliver(ctx, s, d)
		}(i, s)
	}
	wg.Wait()

	return results
}

func deliver(ctx context.Context, s Sink, d Delivery) (res Result) {
	res.Sink = s.Name()
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	err := s.Deliver(ctx, d)
	switch {
	case err == nil:
		res.Status = StatusDelivered
	case errors.Is(err, ErrSkipped):
		res.Status = StatusSkipped
		res.Err = err
	default:
		res.Status = StatusFailed
		res.Err = err
	}
	return res
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
