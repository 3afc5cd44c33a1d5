package consolidate

import (
	"context"
	"testing"

	"bleflow/internal/kv"
	"bleflow/internal/stats"
)

func newTestConsolidator() (*Consolidator, kv.Backend) {
	backend := kv.NewMemory()
	return New(backend, stats.NewStore(), nil), backend
}

func mustGet(t *testing.T, backend kv.Backend, key string) string {
	t.Helper()
	val, ok, err := backend.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	if !ok {
		t.Fatalf("key %s missing", key)
	}
	return string(val)
}

func TestDeriveKeysTelemetry(t *testing.T) {
	keys, err := DeriveKeys([]byte(`{"station_id":3,"beacon_id":7,"rssi":0.5,"time":100}`))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	want := []string{"station_id:3", "beacon_id:7", "station_id:3,beacon_id:7"}
	if len(keys) != len(want) {
		t.Fatalf("keys: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: %q want %q", i, keys[i], want[i])
		}
	}
}

func TestDeriveKeysAdvertisement(t *testing.T) {
	payload := []byte(`{"sniffer_addr":"11:22:33:44:55:66","datetime":"2026-08-28 12:34:56.789012","adv_constructor":"Acme Corp","adv_addr":"aa:bb:cc:dd:ee:ff","rssi":-45}`)
	keys, err := DeriveKeys(payload)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if keys[0] != "adv_addr:aa:bb:cc:dd:ee:ff" {
		t.Fatalf("device key: %q", keys[0])
	}
	if keys[1] != "sniffer_addr:11:22:33:44:55:66,adv_addr:aa:bb:cc:dd:ee:ff" {
		t.Fatalf("composite key: %q", keys[1])
	}
}

func TestDeriveKeysUnknownPayload(t *testing.T) {
	if _, err := DeriveKeys([]byte(`{"foo":"bar"}`)); err == nil {
		t.Fatalf("expected error for payload with no identifying fields")
	}
}

func TestOrderingRobustness(t *testing.T) {
	older := []byte(`{"station_id":1,"beacon_id":2,"rssi":0.1,"time":100}`)
	newer := []byte(`{"station_id":1,"beacon_id":2,"rssi":0.9,"time":200}`)

	for name, order := range map[string][2][]byte{
		"in_order":     {older, newer},
		"out_of_order": {newer, older},
	} {
		cons, backend := newTestConsolidator()
		for _, payload := range order {
			if err := cons.Apply(context.Background(), payload); err != nil {
				t.Fatalf("%s apply: %v", name, err)
			}
		}
		for _, key := range []string{"station_id:1", "beacon_id:2", "station_id:1,beacon_id:2"} {
			if got := mustGet(t, backend, key); got != string(newer) {
				t.Fatalf("%s key %s: got %s", name, key, got)
			}
		}
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	payload := []byte(`{"station_id":1,"beacon_id":2,"rssi":0.1,"time":100}`)
	cons, backend := newTestConsolidator()
	for i := 0; i < 2; i++ {
		if err := cons.Apply(context.Background(), payload); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := mustGet(t, backend, "station_id:1"); got != string(payload) {
		t.Fatalf("stored value changed on redelivery: %s", got)
	}
}

func TestPartialKeyOverlap(t *testing.T) {
	first := []byte(`{"station_id":3,"beacon_id":7,"rssi":0.5,"time":100}`)
	second := []byte(`{"station_id":3,"beacon_id":9,"rssi":0.2,"time":90}`)

	for name, order := range map[string][2][]byte{
		"forward":  {first, second},
		"reversed": {second, first},
	} {
		cons, backend := newTestConsolidator()
		for _, payload := range order {
			if err := cons.Apply(context.Background(), payload); err != nil {
				t.Fatalf("%s apply: %v", name, err)
			}
		}
		// station_id:3 is contested; time 100 beats time 90 in
		// either delivery order.
		for key, want := range map[string][]byte{
			"station_id:3":             first,
			"beacon_id:7":              first,
			"station_id:3,beacon_id:7": first,
			"beacon_id:9":              second,
			"station_id:3,beacon_id:9": second,
		} {
			if got := mustGet(t, backend, key); got != string(want) {
				t.Fatalf("%s key %s: got %s", name, key, got)
			}
		}
	}
}

func TestAdvertisementEventTimeComparison(t *testing.T) {
	older := []byte(`{"sniffer_addr":"11:22:33:44:55:66","datetime":"2026-08-28 12:00:00.000000","adv_constructor":"Acme","adv_addr":"aa:bb:cc:dd:ee:ff"}`)
	newer := []byte(`{"sniffer_addr":"11:22:33:44:55:66","datetime":"2026-08-28 13:00:00.000000","adv_constructor":"Acme","adv_addr":"aa:bb:cc:dd:ee:ff"}`)

	cons, backend := newTestConsolidator()
	if err := cons.Apply(context.Background(), newer); err != nil {
		t.Fatalf("apply newer: %v", err)
	}
	if err := cons.Apply(context.Background(), older); err != nil {
		t.Fatalf("apply older: %v", err)
	}
	if got := mustGet(t, backend, "adv_addr:aa:bb:cc:dd:ee:ff"); got != string(newer) {
		t.Fatalf("older datetime overwrote newer: %s", got)
	}
}

func TestMalformedPayloadNotRetryable(t *testing.T) {
	cons, _ := newTestConsolidator()
	if err := cons.Apply(context.Background(), []byte(`{"foo":1}`)); err != nil {
		t.Fatalf("undeliverable payload must not be retryable: %v", err)
	}
	if err := cons.Apply(context.Background(), []byte(`not json`)); err != nil {
		t.Fatalf("garbage payload must not be retryable: %v", err)
	}
}
