package kv

import (
	"context"
	"testing"
)

func TestMemoryUpsertTieRule(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	written, err := b.Upsert(ctx, "k", []byte(`{"v":1,"time":5}`), 5)
	if err != nil || !written {
		t.Fatalf("first write: written=%v err=%v", written, err)
	}
	written, err = b.Upsert(ctx, "k", []byte(`{"v":2,"time":4}`), 4)
	if err != nil {
		t.Fatalf("stale write: %v", err)
	}
	if written {
		t.Fatalf("older event time must not overwrite")
	}
	written, err = b.Upsert(ctx, "k", []byte(`{"v":3,"time":5}`), 5)
	if err != nil || !written {
		t.Fatalf("equal event time must win: written=%v err=%v", written, err)
	}
	val, ok, err := b.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(val) != `{"v":3,"time":5}` {
		t.Fatalf("stored value: %s", val)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	b := NewMemory()
	_, ok, err := b.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("missing key reported present")
	}
}
