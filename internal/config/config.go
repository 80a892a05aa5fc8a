package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid")

const (
	RoleHost   = "host"
	RoleDevice = "device"

	SerialUART  = "uart"
	SerialRS485 = "rs485"
)

type Config struct {
	Node    NodeConfig    `toml:"node" yaml:"node"`
	Network NetworkConfig `toml:"network" yaml:"network"`
	Serial  SerialConfig  `toml:"serial" yaml:"serial"`
	Admin   AdminConfig   `toml:"admin" yaml:"admin"`
	Capture CaptureConfig `toml:"capture" yaml:"capture"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

type NodeConfig struct {
	ID          string `toml:"id" yaml:"id"`
	Role        string `toml:"role" yaml:"role"`
	Listen      string `toml:"listen" yaml:"listen"`
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`
}

type NetworkConfig struct {
	Port       uint16 `toml:"port" yaml:"port"`
	MaxHops    int    `toml:"max_hops" yaml:"max_hops"`
	MaxPayload int    `toml:"max_payload" yaml:"max_payload"`
	// Timeouts are Go duration strings.
	DialTimeout string `toml:"dial_timeout" yaml:"dial_timeout"`
	IOTimeout   string `toml:"io_timeout" yaml:"io_timeout"`
}

// SerialConfig attaches a stream controller. An empty device disables it.
type SerialConfig struct {
	Device string `toml:"device" yaml:"device"`
	Kind   string `toml:"kind" yaml:"kind"`
	// Peer is the bus station frames on this line are attributed to.
	Peer string `toml:"peer" yaml:"peer"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr" yaml:"addr"`
	CorsOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

type CaptureConfig struct {
	Path string `toml:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads a TOML or YAML file (by extension, TOML otherwise), fills in
// defaults and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if err := decodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = toml.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Node.ID) == "" {
		cfg.Node.ID = uuid.NewString()
	}
	if cfg.Node.Role == "" {
		cfg.Node.Role = RoleHost
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = "syndesi-" + cfg.Node.Role
	}
	if cfg.Network.Port == 0 {
		cfg.Network.Port = DefaultPort
	}
	if cfg.Network.MaxHops == 0 {
		cfg.Network.MaxHops = DefaultMaxHops
	}
	if cfg.Network.MaxPayload == 0 {
		cfg.Network.MaxPayload = DefaultMaxPayload
	}
	if cfg.Network.DialTimeout == "" {
		cfg.Network.DialTimeout = "3s"
	}
	if cfg.Network.IOTimeout == "" {
		cfg.Network.IOTimeout = "5s"
	}
	if cfg.Serial.Kind == "" {
		cfg.Serial.Kind = SerialUART
	}
	if cfg.Serial.Peer == "" {
		cfg.Serial.Peer = "bus:0"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func Validate(cfg Config) error {
	switch cfg.Node.Role {
	case RoleHost, RoleDevice:
	default:
		return fmt.Errorf("%w: node.role %q (want host or device)", ErrInvalid, cfg.Node.Role)
	}
	if strings.TrimSpace(cfg.Node.ID) == "" {
		return fmt.Errorf("%w: node.id is required", ErrInvalid)
	}
	if cfg.Network.Port == 0 {
		return fmt.Errorf("%w: network.port must be non-zero", ErrInvalid)
	}
	if cfg.Network.MaxHops < 1 || cfg.Network.MaxHops > 255 {
		return fmt.Errorf("%w: network.max_hops %d out of range 1..255", ErrInvalid, cfg.Network.MaxHops)
	}
	if cfg.Network.MaxPayload < 1 || cfg.Network.MaxPayload > DefaultMaxPayload {
		return fmt.Errorf("%w: network.max_payload %d out of range 1..%d", ErrInvalid, cfg.Network.MaxPayload, DefaultMaxPayload)
	}
	if _, err := parseDuration("network.dial_timeout", cfg.Network.DialTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("network.io_timeout", cfg.Network.IOTimeout); err != nil {
		return err
	}
	switch cfg.Serial.Kind {
	case SerialUART, SerialRS485:
	default:
		return fmt.Errorf("%w: serial.kind %q (want uart or rs485)", ErrInvalid, cfg.Serial.Kind)
	}
	if cfg.Serial.Device != "" {
		if _, err := cfg.SerialPeer(); err != nil {
			return err
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, cfg.Log.Level)
	}
	return nil
}
