package parse

import (
	"testing"

	"bleflow/internal/frame"
)

func advBlock(lines ...string) frame.Block {
	header := "> HCI Event: LE Meta Event (0x3e) plen 42        2026-08-28 12:34:56.789012"
	all := append([]string{header, "      LE Advertising Report (0x02)"}, lines...)
	return frame.Block{Lines: all}
}

func TestParseAdvertisingReport(t *testing.T) {
	p := New("11:22:33:44:55:66")
	out := p.Parse(advBlock(
		"        Address: AA:BB:CC:DD:EE:FF (Static)",
		"        Company: Acme Corp (1234)",
		"        RSSI: -45 dBm (0xd3)",
	))
	if out.Kind != KindEvent {
		t.Fatalf("kind: %v err: %v", out.Kind, out.Err)
	}
	ev := out.Event
	if ev.SnifferAddr != "11:22:33:44:55:66" {
		t.Fatalf("sniffer addr: %q", ev.SnifferAddr)
	}
	if ev.Datetime != "2026-08-28 12:34:56.789012" {
		t.Fatalf("datetime: %q", ev.Datetime)
	}
	if ev.AdvAddr != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("adv addr: %q", ev.AdvAddr)
	}
	if ev.AdvConstructor != "Acme Corp" {
		t.Fatalf("constructor not replaced by company name: %q", ev.AdvConstructor)
	}
	if ev.RSSI == nil || *ev.RSSI != -45 {
		t.Fatalf("rssi: %v", ev.RSSI)
	}
}

func TestParseSkipsOtherEventTypes(t *testing.T) {
	p := New("11:22:33:44:55:66")
	block := frame.Block{Lines: []string{
		"> HCI Event: LE Meta Event (0x3e) plen 19        2026-08-28 12:34:56.789012",
		"      LE Connection Complete (0x01)",
		"        Address: AA:BB:CC:DD:EE:FF (Public)",
	}}
	if out := p.Parse(block); out.Kind != KindSkipped {
		t.Fatalf("connection event must be skipped, got %v", out.Kind)
	}
}

func TestParseHeaderOnlyBlockSkipped(t *testing.T) {
	p := New("11:22:33:44:55:66")
	block := frame.Block{Lines: []string{"> HCI Event: truncated"}}
	if out := p.Parse(block); out.Kind != KindSkipped {
		t.Fatalf("header-only block must be skipped, got %v", out.Kind)
	}
}

func TestParseBadRSSIAbsent(t *testing.T) {
	p := New("11:22:33:44:55:66")
	out := p.Parse(advBlock(
		"        Address: AA:BB:CC:DD:EE:FF (Public)",
		"        RSSI: garbage dBm (0xd3)",
	))
	if out.Kind != KindEvent {
		t.Fatalf("kind: %v", out.Kind)
	}
	if out.Event.RSSI != nil {
		t.Fatalf("unparseable rssi must stay absent, got %d", *out.Event.RSSI)
	}
}

func TestParseNonAnonymizingConstructorKept(t *testing.T) {
	p := New("11:22:33:44:55:66")
	out := p.Parse(advBlock(
		"        Address: AA:BB:CC:DD:EE:FF (Public)",
		"        Company: Acme Corp (1234)",
	))
	if out.Event.AdvConstructor != "Public" {
		t.Fatalf("non-anonymizing category must be kept, got %q", out.Event.AdvConstructor)
	}
}

func TestParseCompanyBeforeAddressIgnored(t *testing.T) {
	p := New("11:22:33:44:55:66")
	out := p.Parse(advBlock(
		"        Company: Acme Corp (1234)",
	))
	if out.Kind != KindEvent {
		t.Fatalf("kind: %v", out.Kind)
	}
	if out.Event.AdvConstructor != "" || out.Event.AdvAddr != "" {
		t.Fatalf("company without address must set nothing: %+v", out.Event)
	}
}

func TestParsePartialRecordStillValid(t *testing.T) {
	p := New("11:22:33:44:55:66")
	out := p.Parse(advBlock())
	if out.Kind != KindEvent {
		t.Fatalf("report without field lines must still be an event")
	}
	ev := out.Event
	if ev.Datetime == "" || ev.SnifferAddr == "" {
		t.Fatalf("timestamp and observer must always be present: %+v", ev)
	}
	if ev.AdvAddr != "" || ev.AdvConstructor != "" || ev.RSSI != nil {
		t.Fatalf("missing fields must not be fabricated: %+v", ev)
	}
}
