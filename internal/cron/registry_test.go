package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "overdue-snapshot"}
	jobB := &stubJob{name: "outbox-retention"}
	registry, err := NewRegistry(jobA, nil, jobB)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate job name to fail")
	}
	var registry Registry
	if err := registry.Register(&stubJob{name: "b"}); err != nil {
		t.Fatalf("zero registry should accept jobs: %v", err)
	}
}
