package redisclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/mtgscribe/gateway/redisclient"
)

func TestMemoryStoreIncrAndExpire(t *testing.T) {
	s := redisclient.NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != i {
			t.Fatalf("Incr call %d = %d, want %d", i, n, i)
		}
	}

	ttl, err := s.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL = %v, want (0, 1m]", ttl)
	}
}

func TestMemoryStoreSetNXOnlyOnce(t *testing.T) {
	s := redisclient.NewMemoryStore()
	ctx := context.Background()

	first, err := s.SetNX(ctx, "flag", "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("first SetNX = %v, %v; want true, nil", first, err)
	}
	second, err := s.SetNX(ctx, "flag", "1", time.Hour)
	if err != nil || second {
		t.Fatalf("second SetNX = %v, %v; want false, nil", second, err)
	}
}

func TestMemoryStoreGetDel(t *testing.T) {
	s := redisclient.NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "sess:tok", `{"user_id":"u1"}`, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.GetDel(ctx, "sess:tok")
	if err != nil || !ok || v != `{"user_id":"u1"}` {
		t.Fatalf("GetDel = %q, %v, %v", v, ok, err)
	}
	_, ok, _ = s.Get(ctx, "sess:tok")
	if ok {
		t.Fatal("expected key to be gone after GetDel")
	}
}

func TestMemoryStoreExpiryIsHonored(t *testing.T) {
	s := redisclient.NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, ok, _ := s.Get(ctx, "k")
	if ok {
		t.Fatal("expected key to have expired")
	}
}
