package tag

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRegistry(client, "atg"), mr
}

func TestGetOrInitIsStable(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.GetOrInit(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetOrInit failed: %v", err)
	}
	if first == 0 {
		t.Fatal("expected non-zero seeded tag")
	}

	second, err := reg.GetOrInit(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetOrInit (second) failed: %v", err)
	}
	if second != first {
		t.Errorf("GetOrInit changed the tag: %d != %d", second, first)
	}
}

func TestRotateStrictlyIncreases(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	initial, err := reg.GetOrInit(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetOrInit failed: %v", err)
	}

	prev := initial
	for i := 0; i < 5; i++ {
		next, err := reg.Rotate(ctx, "acct-1")
		if err != nil {
			t.Fatalf("Rotate failed: %v", err)
		}
		if next <= prev {
			t.Fatalf("Rotate did not increase: %d -> %d", prev, next)
		}
		prev = next
	}
}

func TestStaleTagFailsIsCurrent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	atIssue, err := reg.GetOrInit(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetOrInit failed: %v", err)
	}

	ok, err := reg.IsCurrent(ctx, "acct-1", atIssue)
	if err != nil || !ok {
		t.Fatalf("IsCurrent before rotation = (%v, %v), want (true, nil)", ok, err)
	}

	if _, err := reg.Rotate(ctx, "acct-1"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	ok, err = reg.IsCurrent(ctx, "acct-1", atIssue)
	if err != nil {
		t.Fatalf("IsCurrent after rotation failed: %v", err)
	}
	if ok {
		t.Error("tag minted before rotation still reported current")
	}
}

func TestIsCurrentMissingTag(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	ok, err := reg.IsCurrent(ctx, "ghost", 42)
	if err != nil {
		t.Fatalf("IsCurrent failed: %v", err)
	}
	if ok {
		t.Error("missing tag reported current")
	}

	_, found, err := reg.Current(ctx, "ghost")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if found {
		t.Error("Current reported a tag for an unknown account")
	}
}

func TestRotateSeedsMissingTag(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	v, err := reg.Rotate(ctx, "acct-new")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if v == 0 {
		t.Fatal("expected seeded tag after rotate on missing key")
	}

	live, ok, err := reg.Current(ctx, "acct-new")
	if err != nil || !ok {
		t.Fatalf("Current = (%v, %v)", ok, err)
	}
	if live != v {
		t.Errorf("Current = %d, want %d", live, v)
	}

	if _, ok, err := reg.UpdatedAt(ctx, "acct-new"); err != nil || !ok {
		t.Fatalf("UpdatedAt = (%v, %v), want a timestamp", ok, err)
	}
}

func TestConcurrentRotateAdvancesOncePerCall(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	initial, err := reg.GetOrInit(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetOrInit failed: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Rotate(ctx, "acct-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Rotate failed: %v", err)
	}

	live, ok, err := reg.Current(ctx, "acct-1")
	if err != nil || !ok {
		t.Fatalf("Current = (%v, %v)", ok, err)
	}
	if live != initial+workers {
		t.Errorf("live tag = %d, want %d", live, initial+workers)
	}
}

func TestRegistryUnavailable(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.GetOrInit(ctx, "acct-1"); err != nil {
		t.Fatalf("GetOrInit failed: %v", err)
	}

	mr.Close()

	if _, _, err := reg.Current(ctx, "acct-1"); err == nil {
		t.Fatal("expected error after redis shutdown")
	}
}
