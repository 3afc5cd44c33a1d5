package model

import (
	"encoding/json"
	"time"
)

// BtmonTimestampLayout matches the fixed-width 26-character timestamp
// btmon appends to the first line of every block.
const BtmonTimestampLayout = "2006-01-02 15:04:05.000000"

// AdvertisementEvent is one parsed LE Advertising Report. JSON field
// names and order are the wire format shared with every producer.
type AdvertisementEvent struct {
	SnifferAddr    string `json:"sniffer_addr"`
	Datetime       string `json:"datetime"`
	AdvConstructor string `json:"adv_constructor,omitempty"`
	AdvAddr        string `json:"adv_addr,omitempty"`
	RSSI           *int   `json:"rssi,omitempty"`
}

// TelemetryEvent is the simplified schema emitted by the synthetic
// producers. Same transport and consolidation mechanics, different keys.
type TelemetryEvent struct {
	StationID int     `json:"station_id"`
	BeaconID  int     `json:"beacon_id"`
	RSSI      float64 `json:"rssi"`
	Time      float64 `json:"time"`
}

func (e AdvertisementEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e TelemetryEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// EventTime extracts the embedded logical timestamp of a serialized
// event as epoch seconds. Telemetry carries a numeric "time"; sniffer
// events carry "datetime", either epoch seconds (simulated) or a btmon
// timestamp string. Returns false when no timestamp can be extracted.
func EventTime(payload []byte) (float64, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return 0, false
	}
	for _, name := range []string{"time", "datetime"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var num float64
		if err := json.Unmarshal(raw, &num); err == nil {
			return num, true
		}
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			continue
		}
		if ts, err := time.Parse(BtmonTimestampLayout, str); err == nil {
			return float64(ts.UnixNano()) / float64(time.Second), true
		}
	}
	return 0, false
}
