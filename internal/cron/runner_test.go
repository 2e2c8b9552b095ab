package cronrunner

import (
	"context"
	"testing"
)

func TestSafeRunRecoversPanic(t *testing.T) {
	ran := false
	safeRun(context.Background(), nil, "expiry", func(ctx context.Context) {
		ran = true
		panic("boom")
	})
	if !ran {
		t.Fatalf("job did not run")
	}
	// Reaching here means the panic was contained.
}

func TestSafeRunPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	var got any
	safeRun(ctx, nil, "backfill", func(ctx context.Context) {
		got = ctx.Value(key{})
	})
	if got != "v" {
		t.Fatalf("context value = %v, want v", got)
	}
}
