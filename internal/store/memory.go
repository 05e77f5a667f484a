package store

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"happysd/internal/domain"
)

// Memory is a mutex-guarded in-process implementation of the store
// interfaces. It exists for unit tests; production always uses the durable
// SQLite store.
type Memory struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	accounts map[string]domain.Account
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]*domain.Job),
		accounts: make(map[string]domain.Account),
	}
}

// AddAccount provisions an account for tests.
func (m *Memory) AddAccount(a domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.APIKey] = a
}

func (m *Memory) Validate(_ context.Context, apikey string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[apikey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) Insert(_ context.Context, job *domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusPending
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	m.jobs[job.ID] = &clone
	return job.ID, nil
}

func (m *Memory) Get(_ context.Context, f domain.Filter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []domain.Job
	for _, j := range m.jobs {
		if matches(j, f) {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	if f.Limit > 0 && len(jobs) > f.Limit {
		jobs = jobs[:f.Limit]
	}
	return jobs, nil
}

func matches(j *domain.Job, f domain.Filter) bool {
	if f.ID != "" && j.ID != f.ID {
		return false
	}
	if f.OwnerKey != "" && j.OwnerKey != f.OwnerKey {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if j.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Memory) NextPending(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	clone := *oldest
	return &clone, nil
}

func (m *Memory) Update(_ context.Context, id string, p domain.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Prompt != nil {
		j.Prompt = *p.Prompt
	}
	if p.NegPrompt != nil {
		j.NegPrompt = *p.NegPrompt
	}
	if p.ResultImage != nil {
		j.ResultImage = *p.ResultImage
	}
	if p.BaseModel != nil {
		j.BaseModel = *p.BaseModel
	}
	if p.Seed != nil {
		j.Params.Seed = *p.Seed
	}
	if p.Width != nil {
		j.Params.Width = *p.Width
	}
	if p.Height != nil {
		j.Params.Height = *p.Height
	}
	if p.Steps != nil {
		j.Params.Steps = *p.Steps
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CountPending(_ context.Context, ownerKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.OwnerKey == ownerKey && j.Status == domain.JobStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Delete(_ context.Context, id, ownerKey string, requiredStatus domain.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if ownerKey != "" && j.OwnerKey != ownerKey {
		return false, nil
	}
	if requiredStatus != "" && j.Status != requiredStatus {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

func (m *Memory) RandomSample(_ context.Context, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusDone {
			continue
		}
		if rand.Intn(100) >= 30 {
			continue
		}
		clone := *j
		clone.OwnerKey = ""
		jobs = append(jobs, clone)
		if limit > 0 && len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

var (
	_ domain.JobStore      = (*Memory)(nil)
	_ domain.UserDirectory = (*Memory)(nil)
)
