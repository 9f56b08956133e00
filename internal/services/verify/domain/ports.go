package domain

import "context"

// RunnerPort is the batch verification surface exposed to binaries
type RunnerPort interface {
	Run(ctx context.Context, opts RunOpts) (Summary, error)
	// MarkMissing flips pending badge rows with no usable link to invalid
	MarkMissing(ctx context.Context) (int64, error)
	// LastRun returns the most recent recorded run for the ops surface
	LastRun(ctx context.Context) (Summary, error)
}
