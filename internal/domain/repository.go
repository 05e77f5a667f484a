package domain

import "context"

// Filter narrows a JobStore read. Zero fields are ignored.
type Filter struct {
	ID       string
	OwnerKey string
	Status   JobStatus
	Types    []JobType
	Limit    int
}

// JobStore defines persistence for jobs. Mutating operations serialize
// against every other writer process before touching the backing store.
type JobStore interface {
	// Insert persists a new job as pending and returns its id, assigning one
	// when the job carries none.
	Insert(ctx context.Context, job *Job) (string, error)
	// Get returns jobs matching the filter, newest first.
	Get(ctx context.Context, f Filter) ([]Job, error)
	// NextPending returns the oldest pending job system-wide, or ErrNotFound.
	NextPending(ctx context.Context) (*Job, error)
	// Update merges the non-nil patch fields into the job and refreshes
	// updated_at. Returns ErrNotFound for an unknown id.
	Update(ctx context.Context, id string, p Patch) error
	// CountPending counts pending jobs owned by the key.
	CountPending(ctx context.Context, ownerKey string) (int, error)
	// Delete removes the job only when the optional ownerKey and
	// requiredStatus filters match; false means nothing matched.
	Delete(ctx context.Context, id, ownerKey string, requiredStatus JobStatus) (bool, error)
	// RandomSample returns a probabilistic sample of completed jobs with
	// owner identity stripped, for public display.
	RandomSample(ctx context.Context, limit int) ([]Job, error)
}

// UserDirectory resolves opaque access keys for request admission.
type UserDirectory interface {
	// Validate returns the account for the key, or ErrNotFound when the key
	// is unknown. Unknown keys must be treated as unauthenticated.
	Validate(ctx context.Context, apikey string) (*Account, error)
}
