package consolidate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DeriveKeys returns every lookup key a payload consolidates under.
//
// Telemetry payloads project three keys: station, beacon, and their
// comma-joined composite; all three are always updated together.
// Advertisement payloads project the device address and the
// observer+device composite. Numbers keep their wire spelling so keys
// match across producers.
func DeriveKeys(payload []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	station, hasStation := fields["station_id"]
	beacon, hasBeacon := fields["beacon_id"]
	if hasStation && hasBeacon {
		stationKey := "station_id:" + fmt.Sprint(station)
		beaconKey := "beacon_id:" + fmt.Sprint(beacon)
		return []string{stationKey, beaconKey, stationKey + "," + beaconKey}, nil
	}

	if addr, ok := fields["adv_addr"].(string); ok && addr != "" {
		keys := []string{"adv_addr:" + addr}
		if sniffer, ok := fields["sniffer_addr"].(string); ok && sniffer != "" {
			keys = append(keys, "sniffer_addr:"+sniffer+",adv_addr:"+addr)
		}
		return keys, nil
	}

	return nil, errors.New("payload carries no identifying fields")
}
