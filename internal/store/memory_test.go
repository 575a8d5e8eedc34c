package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SortedSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.ZAdd(ctx, "ready", 5, "task-a"); err != nil {
		t.Fatalf("ZAdd error = %v", err)
	}
	if err := s.ZAdd(ctx, "ready", 9, "task-b"); err != nil {
		t.Fatalf("ZAdd error = %v", err)
	}
	if err := s.ZAdd(ctx, "ready", 1, "task-c"); err != nil {
		t.Fatalf("ZAdd error = %v", err)
	}

	card, err := s.ZCard(ctx, "ready")
	if err != nil || card != 3 {
		t.Fatalf("ZCard = %d, %v, want 3, nil", card, err)
	}

	member, score, ok, err := s.ZPopMax(ctx, "ready")
	if err != nil || !ok {
		t.Fatalf("ZPopMax error = %v, ok = %v", err, ok)
	}
	if member != "task-b" || score != 9 {
		t.Errorf("ZPopMax = %q/%v, want task-b/9", member, score)
	}

	member, _, _, _ = s.ZPopMax(ctx, "ready")
	if member != "task-a" {
		t.Errorf("second ZPopMax = %q, want task-a", member)
	}
	member, _, _, _ = s.ZPopMax(ctx, "ready")
	if member != "task-c" {
		t.Errorf("third ZPopMax = %q, want task-c", member)
	}

	if _, _, ok, _ := s.ZPopMax(ctx, "ready"); ok {
		t.Error("ZPopMax on empty set reported a member")
	}
}

func TestMemoryStore_Set(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SAdd(ctx, "deps", "a", "b", "c"); err != nil {
		t.Fatalf("SAdd error = %v", err)
	}
	if card, _ := s.SCard(ctx, "deps"); card != 3 {
		t.Errorf("SCard = %d, want 3", card)
	}

	if err := s.SRem(ctx, "deps", "b"); err != nil {
		t.Fatalf("SRem error = %v", err)
	}
	members, err := s.SMembers(ctx, "deps")
	if err != nil {
		t.Fatalf("SMembers error = %v", err)
	}
	if len(members) != 2 || members[0] != "a" || members[1] != "c" {
		t.Errorf("SMembers = %v, want [a c]", members)
	}
}

func TestMemoryStore_KVExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, ResultKey("t1"), `{"success":true}`, time.Minute); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	val, ok, err := s.Get(ctx, ResultKey("t1"))
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if val != `{"success":true}` {
		t.Errorf("Get value = %q", val)
	}

	// Advance past the retention window.
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, ResultKey("t1")); ok {
		t.Error("Get returned a value past its expiry")
	}
}

func TestMemoryStore_DelAndMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("Get(missing) reported present")
	}

	s.Set(ctx, "k", "v", 0)
	s.Del(ctx, "k")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get after Del reported present")
	}
}

func TestKeyHelpers(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ResultKey("t1"), "colony:result:t1"},
		{HeartbeatKey("w1"), "colony:heartbeat:w1"},
		{ReadyKey("default"), "colony:queue:default:ready"},
		{DepsKey("t2"), "colony:deps:t2"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}
