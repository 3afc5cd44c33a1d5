package simulate

import (
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"bleflow/internal/config"
	"bleflow/internal/model"
)

// Generator produces synthetic events for load testing. Seeded, so a
// run is reproducible end to end.
type Generator struct {
	rand     *rand.Rand
	stations int
	beacons  int
}

func NewGenerator(cfg config.SimulatorConfig) *Generator {
	return &Generator{
		rand:     rand.New(rand.NewSource(cfg.Seed)),
		stations: cfg.Stations,
		beacons:  cfg.Beacons,
	}
}

func (g *Generator) Telemetry() model.TelemetryEvent {
	return model.TelemetryEvent{
		StationID: g.rand.Intn(g.stations),
		BeaconID:  g.rand.Intn(g.beacons),
		RSSI:      g.rand.Float64(),
		Time:      float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

func (g *Generator) Advertisement() model.AdvertisementEvent {
	advAddr := MACAddr(g.rand.Intn(g.stations), "adv")
	rssi := g.rand.Intn(160) - 80
	return model.AdvertisementEvent{
		SnifferAddr:    MACAddr(g.rand.Intn(g.beacons), "sniffer"),
		Datetime:       time.Now().UTC().Format(model.BtmonTimestampLayout),
		AdvConstructor: strings.ToUpper(strings.ReplaceAll(advAddr, ":", "")),
		AdvAddr:        advAddr,
		RSSI:           &rssi,
	}
}

// MACAddr derives a stable hardware address from an entity id, so the
// same simulated device always advertises the same address.
func MACAddr(k int, kind string) string {
	h := sha1.New()
	h.Write([]byte(kind))
	h.Write([]byte(strconv.Itoa(k)))
	digest := hex.EncodeToString(h.Sum(nil))
	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = digest[2*i : 2*(i+1)]
	}
	return strings.Join(parts, ":")
}
