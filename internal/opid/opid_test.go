package opid

import (
	"context"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("FromContext = (%d, %v), want (%d, true)", got, ok, id)
	}
}

func TestMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no operation ID on a fresh context")
	}
}
