package utils

import (
	"context"
	"testing"
	"time"
)

func TestLeaseHelpers_ValidateArguments(t *testing.T) {
	ctx := context.Background()

	if _, err := AcquireLease(ctx, nil, "k", "h", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := RefreshLease(ctx, nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseLease(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
