package store

import (
	"context"
	"testing"
	"time"

	"happysd/internal/domain"
)

// The in-memory fake must honor the same contract the SQLite store does,
// since admission, dispatch and handler tests all run against it.

func TestMemoryFIFOAndFilters(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	first, err := mem.Insert(ctx, &domain.Job{OwnerKey: "k-1", Type: domain.JobTypeText2Img})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	second, err := mem.Insert(ctx, &domain.Job{OwnerKey: "k-2", Type: domain.JobTypeImg2Img})
	if err != nil {
		t.Fatal(err)
	}

	next, err := mem.NextPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != first {
		t.Fatalf("NextPending = %s, want %s", next.ID, first)
	}

	jobs, err := mem.Get(ctx, domain.Filter{OwnerKey: "k-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != second {
		t.Fatalf("owner filter broken: %v", jobs)
	}

	jobs, err = mem.Get(ctx, domain.Filter{Types: []domain.JobType{domain.JobTypeImg2Img}})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != second {
		t.Fatalf("type filter broken: %v", jobs)
	}
}

func TestMemoryDeleteFilters(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	id, err := mem.Insert(ctx, &domain.Job{OwnerKey: "k-1", Type: domain.JobTypeText2Img})
	if err != nil {
		t.Fatal(err)
	}

	removed, err := mem.Delete(ctx, id, "k-other", domain.JobStatusPending)
	if err != nil || removed {
		t.Fatalf("wrong owner must not match (removed=%v err=%v)", removed, err)
	}
	removed, err = mem.Delete(ctx, id, "k-1", domain.JobStatusDone)
	if err != nil || removed {
		t.Fatalf("wrong status must not match (removed=%v err=%v)", removed, err)
	}
	removed, err = mem.Delete(ctx, id, "k-1", domain.JobStatusPending)
	if err != nil || !removed {
		t.Fatalf("matching delete failed (removed=%v err=%v)", removed, err)
	}
	if _, err := mem.NextPending(ctx); err != domain.ErrNotFound {
		t.Fatalf("queue not empty after delete: %v", err)
	}
}

func TestMemoryValidate(t *testing.T) {
	mem := NewMemory()
	if _, err := mem.Validate(context.Background(), "nope"); err != domain.ErrNotFound {
		t.Fatalf("unknown key: %v", err)
	}
	mem.AddAccount(domain.Account{Username: "alice", APIKey: "k-1", Quota: 5})
	account, err := mem.Validate(context.Background(), "k-1")
	if err != nil {
		t.Fatal(err)
	}
	if account.Username != "alice" || account.PendingLimit(10) != 5 {
		t.Fatalf("account = %+v", account)
	}
}
