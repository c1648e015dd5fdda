package repositories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDependencyHealthRepositoryCheckSuccess(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name: "data_api",
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(10 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name: "cart_store",
			Check: func(context.Context) error {
				return nil
			},
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	if err := repo.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestDependencyHealthRepositoryCheckFailure(t *testing.T) {
	failure := errors.New("connection refused")
	checks := []DependencyCheck{
		{
			Name:  "data_api",
			Check: func(context.Context) error { return nil },
		},
		{
			Name:  "cart_store",
			Check: func(context.Context) error { return failure },
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	err = repo.Check(context.Background())
	if err == nil {
		t.Fatal("expected failure from dependency check")
	}
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "cart_store") {
		t.Fatalf("expected failing dependency name in error, got %v", err)
	}
}

func TestDependencyHealthRepositoryCheckTimeout(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name:    "data_api",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(time.Second):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	err = repo.Check(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDependencyHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check list")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " "}}); err == nil {
		t.Fatal("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "data_api"}}); err == nil {
		t.Fatal("expected error for check without function")
	}
}
