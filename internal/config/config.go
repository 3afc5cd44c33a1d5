package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Stream      StreamConfig      `json:"stream" yaml:"stream"`
	Sniffer     SnifferConfig     `json:"sniffer" yaml:"sniffer"`
	Bus         BusConfig         `json:"bus" yaml:"bus"`
	Durable     DurableConfig     `json:"durable" yaml:"durable"`
	Consolidate ConsolidateConfig `json:"consolidate" yaml:"consolidate"`
	Simulator   SimulatorConfig   `json:"simulator" yaml:"simulator"`
	API         APIConfig         `json:"api" yaml:"api"`
}

type StreamConfig struct {
	Source        string   `json:"source" yaml:"source"`
	ChannelBuffer int      `json:"channel_buffer" yaml:"channel_buffer"`
	FlushTrailing bool     `json:"flush_trailing" yaml:"flush_trailing"`
	Files         []string `json:"files" yaml:"files"`
	StartAtEnd    bool     `json:"start_at_end" yaml:"start_at_end"`
	TCPAddr       string   `json:"tcp_addr" yaml:"tcp_addr"`
}

type SnifferConfig struct {
	Interface    string `json:"interface" yaml:"interface"`
	ObserverAddr string `json:"observer_addr" yaml:"observer_addr"`
}

type BusConfig struct {
	Driver string       `json:"driver" yaml:"driver"`
	Topic  string       `json:"topic" yaml:"topic"`
	Kafka  KafkaConfig  `json:"kafka" yaml:"kafka"`
	Rabbit RabbitConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

type KafkaConfig struct {
	Brokers           []string `json:"brokers" yaml:"brokers"`
	GroupID           string   `json:"group_id" yaml:"group_id"`
	Partitions        int      `json:"partitions" yaml:"partitions"`
	ReplicationFactor int      `json:"replication_factor" yaml:"replication_factor"`
}

type RabbitConfig struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Queue    string `json:"queue" yaml:"queue"`
}

type DurableConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	Path    string `json:"path" yaml:"path"`
}

type ConsolidateConfig struct {
	Backend  string         `json:"backend" yaml:"backend"`
	Workers  int            `json:"workers" yaml:"workers"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type SimulatorConfig struct {
	Schema   string        `json:"schema" yaml:"schema"`
	Stations int           `json:"stations" yaml:"stations"`
	Beacons  int           `json:"beacons" yaml:"beacons"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Seed     int64         `json:"seed" yaml:"seed"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Stream: StreamConfig{
			Source:        "stdin",
			ChannelBuffer: 10000,
			StartAtEnd:    true,
			TCPAddr:       ":9000",
		},
		Sniffer: SnifferConfig{Interface: "hci0"},
		Bus: BusConfig{
			Driver: "kafka",
			Topic:  "ble-events",
			Kafka: KafkaConfig{
				Brokers:           []string{"localhost:9092"},
				GroupID:           "bleflow-consolidator",
				Partitions:        3,
				ReplicationFactor: 1,
			},
			Rabbit: RabbitConfig{
				Exchange: "ble-events",
				Queue:    "ble-events-consolidate",
			},
		},
		Durable: DurableConfig{Enabled: false, Driver: "jsonl", Path: "events.jsonl"},
		Consolidate: ConsolidateConfig{
			Backend: "redis",
			Workers: 4,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Simulator: SimulatorConfig{
			Schema:   "telemetry",
			Stations: 10,
			Beacons:  100,
			Interval: 500 * time.Millisecond,
			Seed:     42,
		},
		API: APIConfig{Enabled: false, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.ChannelBuffer <= 0 {
		cfg.Stream.ChannelBuffer = 10000
	}
	if cfg.Stream.Source == "" {
		cfg.Stream.Source = "stdin"
	}
	if cfg.Sniffer.Interface == "" {
		cfg.Sniffer.Interface = "hci0"
	}
	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = "kafka"
	}
	if cfg.Bus.Kafka.Partitions <= 0 {
		cfg.Bus.Kafka.Partitions = 3
	}
	if cfg.Bus.Kafka.ReplicationFactor <= 0 {
		cfg.Bus.Kafka.ReplicationFactor = 1
	}
	if cfg.Durable.Driver == "" {
		cfg.Durable.Driver = "jsonl"
	}
	if cfg.Consolidate.Workers <= 0 {
		cfg.Consolidate.Workers = 4
	}
	if cfg.Simulator.Interval <= 0 {
		cfg.Simulator.Interval = 500 * time.Millisecond
	}
	if cfg.Simulator.Stations <= 0 {
		cfg.Simulator.Stations = 10
	}
	if cfg.Simulator.Beacons <= 0 {
		cfg.Simulator.Beacons = 100
	}
}

func Validate(cfg *Config) error {
	switch cfg.Stream.Source {
	case "stdin":
	case "file":
		if len(cfg.Stream.Files) == 0 {
			return errors.New("stream.files required when stream.source is file")
		}
	case "tcp":
		if cfg.Stream.TCPAddr == "" {
			return errors.New("stream.tcp_addr required when stream.source is tcp")
		}
	default:
		return fmt.Errorf("unknown stream.source: %s", cfg.Stream.Source)
	}
	if cfg.Bus.Topic == "" {
		return errors.New("bus.topic is required")
	}
	switch cfg.Bus.Driver {
	case "kafka":
		if len(cfg.Bus.Kafka.Brokers) == 0 {
			return errors.New("bus.kafka.brokers required when bus.driver is kafka")
		}
	case "rabbitmq":
		if cfg.Bus.Rabbit.URL == "" {
			return errors.New("bus.rabbitmq.url required when bus.driver is rabbitmq")
		}
	default:
		return fmt.Errorf("unknown bus.driver: %s", cfg.Bus.Driver)
	}
	if cfg.Durable.Enabled {
		switch cfg.Durable.Driver {
		case "jsonl", "sqlite":
		default:
			return fmt.Errorf("unknown durable.driver: %s", cfg.Durable.Driver)
		}
		if cfg.Durable.Path == "" {
			return errors.New("durable.path required when durable.enabled is true")
		}
	}
	switch cfg.Consolidate.Backend {
	case "redis":
		if cfg.Consolidate.Redis.Addr == "" {
			return errors.New("consolidate.redis.addr required when consolidate.backend is redis")
		}
	case "postgres", "postgresql":
		if cfg.Consolidate.Postgres.DSN == "" {
			return errors.New("consolidate.postgres.dsn required when consolidate.backend is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown consolidate.backend: %s", cfg.Consolidate.Backend)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
