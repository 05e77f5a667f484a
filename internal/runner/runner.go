// Package runner defines the contract with the external model execution
// collaborators. The dispatcher hands a fully-resolved request to a Runner
// and records whatever comes back; everything model-specific lives behind
// this boundary.
package runner

import (
	"context"
	"fmt"

	"happysd/internal/domain"
)

// Request carries one job's inputs to a runner. Image payloads are raw bytes,
// already decoded from their data-URI form.
type Request struct {
	JobID     string
	Type      domain.JobType
	Prompt    string
	NegPrompt string
	RefImage  []byte
	MaskImage []byte

	Seed          int64 // already resolved, never zero
	Width         int
	Height        int
	GuidanceScale float64
	Steps         int
	Scheduler     string
	Strength      float64
}

// Result is what a successful run produces.
type Result struct {
	ImagePNG  []byte
	Seed      int64
	Width     int
	Height    int
	Steps     int
	ModelName string
}

// Runner executes one generation job. Implementations must honor context
// cancellation; a run aborted by the context returns ctx.Err().
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Registry maps job types to their runner.
type Registry map[domain.JobType]Runner

// Dispatch routes the request to the runner registered for its type.
func (r Registry) Dispatch(ctx context.Context, req Request) (*Result, error) {
	run, ok := r[req.Type]
	if !ok {
		return nil, fmt.Errorf("unrecognized job type %q", req.Type)
	}
	return run.Run(ctx, req)
}
