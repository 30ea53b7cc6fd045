// Package bulk applies one action to many records with a bounded worker
// pool and reports per-record outcomes.
package bulk

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Operation represents a bulk operation configuration
type Operation struct {
	// Jobs is the number of workers; values below 1 mean 1.
	Jobs            int
	ContinueOnError bool
	// Progress receives one line per finished item when set.
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item
type ItemFunc func(ctx context.Context, item string) error

// Execute runs fn over items. Without ContinueOnError the first failure
// stops workers from picking up new items; items never started are
// counted as skipped. Cancelling ctx has the same effect.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}
	if len(items) == 0 {
		return result
	}

	workers := max(op.Jobs, 1)
	workers = min(workers, len(items))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan string)
	go func() {
		defer close(queue)
		for _, item := range items {
			select {
			case queue <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		succeeded atomic.Int32
		failed    atomic.Int32
		mu        sync.Mutex
		wg        sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if ctx.Err() != nil {
					continue
				}
				err := fn(ctx, item)

				mu.Lock()
				if err != nil {
					failed.Add(1)
					result.Errors = append(result.Errors, ItemError{Item: item, Error: err})
					op.report("%s: error: %v\n", item, err)
				} else {
					succeeded.Add(1)
					op.report("%s: ok\n", item)
				}
				mu.Unlock()

				if err != nil && !op.ContinueOnError {
					cancel()
				}
			}
		}()
	}
	wg.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.Skipped = result.TotalItems - result.Succeeded - result.Failed
	return result
}

func (op *Operation) report(format string, args ...any) {
	if op.Progress != nil {
		fmt.Fprintf(op.Progress, format, args...)
	}
}

// ExitCode returns the appropriate exit code for the result
func (r *Result) ExitCode() int {
	if r.Failed == 0 && r.Skipped == 0 {
		return 0 // All succeeded
	}
	if r.Succeeded > 0 {
		return 5 // Partial success
	}
	return 1 // All failed
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "✓ All %d operations succeeded\n", r.TotalItems)
	case r.Succeeded == 0:
		fmt.Fprintf(w, "✗ No operations succeeded (%d failed, %d skipped)\n", r.Failed, r.Skipped)
	default:
		fmt.Fprintf(w, "⚠ Partial success: %d succeeded, %d failed, %d skipped (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	errs := r.Errors
	if len(errs) > 10 {
		fmt.Fprintf(w, "Showing first 10 errors (of %d):\n", len(errs))
		errs = errs[:10]
	} else if len(errs) > 0 {
		fmt.Fprintf(w, "Errors:\n")
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}
