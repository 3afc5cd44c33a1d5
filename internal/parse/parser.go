package parse

import (
	"fmt"
	"strconv"
	"strings"

	"bleflow/internal/frame"
	"bleflow/internal/model"
)

// Marker on the second block line identifying an advertising report.
const advertisingReportMarker = "LE Advertising Report"

// Address-construction categories that carry less information than the
// resolved vendor name; a following Company line replaces them.
var replaceConstructors = map[string]struct{}{
	"Static":         {},
	"Resolvable":     {},
	"Non-Resolvable": {},
}

// Fixed-width conventions of btmon output. Load-bearing constants, not
// heuristics.
const (
	timestampWidth = 26 // trailing datetime on the block's first line
	rssiSuffixLen  = 6  // trailing hex group on the RSSI line, "(0x..)"
)

type Kind int

const (
	// KindEvent means the block parsed into an advertisement event.
	KindEvent Kind = iota
	// KindSkipped means the block describes some other message type.
	KindSkipped
	// KindMalformed means extraction failed; the block is dropped.
	KindMalformed
)

type Outcome struct {
	Kind  Kind
	Event model.AdvertisementEvent
	Err   error
}

// Parser extracts advertisement events from framed btmon blocks. The
// observer address is injected at construction so the parser stays pure.
type Parser struct {
	snifferAddr string
}

func New(snifferAddr string) *Parser {
	return &Parser{snifferAddr: strings.ToLower(strings.TrimSpace(snifferAddr))}
}

// Parse consumes one block. It never panics past this boundary; any
// extraction failure comes back as a Malformed outcome.
func (p *Parser) Parse(b frame.Block) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Kind: KindMalformed, Err: fmt.Errorf("block extraction: %v", r)}
		}
	}()

	if len(b.Lines) < 2 || !strings.HasPrefix(strings.TrimSpace(b.Lines[1]), advertisingReportMarker) {
		return Outcome{Kind: KindSkipped}
	}

	ev := model.AdvertisementEvent{
		SnifferAddr: p.snifferAddr,
		Datetime:    trailing(b.Lines[0], timestampWidth),
	}
	for _, line := range b.Lines[2:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Address:"):
			parseAddress(trimmed, &ev)
		case strings.HasPrefix(trimmed, "Company:"):
			parseCompany(trimmed, &ev)
		case strings.HasPrefix(trimmed, "RSSI:"):
			parseRSSI(trimmed, &ev)
		}
	}
	return Outcome{Kind: KindEvent, Event: ev}
}

// parseAddress pulls the device address and its construction category
// from a line like "Address: AA:BB:CC:DD:EE:FF (Static)". The address
// itself contains colons, so only the label colon is split.
func parseAddress(line string, ev *model.AdvertisementEvent) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	start := strings.Index(rest, "(")
	end := strings.LastIndex(rest, ")")
	if start < 0 || end < start {
		return
	}
	group := rest[start : end+1]
	ev.AdvConstructor = strings.TrimSpace(strings.Trim(group, "()"))
	ev.AdvAddr = strings.ToLower(strings.TrimSpace(strings.Replace(rest, group, "", 1)))
}

// parseCompany rewrites an anonymizing construction category with the
// vendor name, stripping the parenthesized numeric identifier from a
// line like "Company: Acme Corp (1234)". Only a category set by an
// earlier Address line is rewritten.
func parseCompany(line string, ev *model.AdvertisementEvent) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok || ev.AdvConstructor == "" {
		return
	}
	if _, replace := replaceConstructors[ev.AdvConstructor]; !replace {
		return
	}
	start := strings.Index(rest, "(")
	end := strings.Index(rest, ")")
	if start >= 0 && end >= start {
		rest = strings.Replace(rest, rest[start:end+1], "", 1)
	}
	ev.AdvConstructor = strings.TrimSpace(rest)
}

// parseRSSI reads the signal strength from a line like
// "RSSI: -45 dBm (0xd3)". An unparseable value leaves RSSI absent.
func parseRSSI(line string, ev *model.AdvertisementEvent) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	if len(rest) > rssiSuffixLen {
		rest = rest[:len(rest)-rssiSuffixLen]
	}
	rest = strings.TrimSpace(strings.ReplaceAll(rest, "dBm", ""))
	v, err := strconv.Atoi(rest)
	if err != nil {
		return
	}
	ev.RSSI = &v
}

func trailing(line string, width int) string {
	if len(line) <= width {
		return line
	}
	return line[len(line)-width:]
}
