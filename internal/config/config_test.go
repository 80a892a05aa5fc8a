package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/syndesi/internal/testutil/testlog"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/google/uuid"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "node.toml", `
[node]
id = "dev-1"
role = "device"
listen = "127.0.0.1:4000"

[network]
port = 3000
max_hops = 4

[serial]
device = "/dev/ttyS1"
kind = "rs485"
peer = "bus:7"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.ID != "dev-1" || cfg.Node.Role != RoleDevice || cfg.ListenAddr() != "127.0.0.1:4000" {
		t.Fatalf("node = %+v", cfg.Node)
	}
	s := cfg.Settings()
	if s.DefaultPort != 3000 || s.MaxHops != 4 {
		t.Fatalf("settings = %+v", s)
	}
	if cfg.Limits().MaxLength != DefaultMaxPayload {
		t.Fatalf("limits = %+v", cfg.Limits())
	}
	if cfg.SerialKind() != transport.KindRS485 {
		t.Fatalf("serial kind = %s", cfg.SerialKind())
	}
	peer, err := cfg.SerialPeer()
	if err != nil || peer.String() != "bus:7" {
		t.Fatalf("serial peer = %s, %v", peer, err)
	}
}

func TestLoadYAML(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "node.yaml", `
node:
  role: host
network:
  io_timeout: 250ms
admin:
  addr: 127.0.0.1:9999
  cors_origins: ["http://example.test"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Admin.Addr != "127.0.0.1:9999" || len(cfg.Admin.CorsOrigins) != 1 {
		t.Fatalf("admin = %+v", cfg.Admin)
	}
	if got := cfg.IPOptions().IOTimeout; got != 250*time.Millisecond {
		t.Fatalf("io timeout = %s", got)
	}
	if cfg.ListenAddr() != ":2608" {
		t.Fatalf("listen = %q", cfg.ListenAddr())
	}
}

func TestDefaultsFillIdentity(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	if _, err := uuid.Parse(cfg.Node.ID); err != nil {
		t.Fatalf("default id %q is not a uuid: %v", cfg.Node.ID, err)
	}
	if cfg.Node.Role != RoleHost || cfg.Network.Port != DefaultPort || cfg.Network.MaxHops != DefaultMaxHops {
		t.Fatalf("defaults = %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"role", func(c *Config) { c.Node.Role = "router" }},
		{"port", func(c *Config) { c.Network.Port = 0 }},
		{"max hops zero", func(c *Config) { c.Network.MaxHops = 0 }},
		{"max hops large", func(c *Config) { c.Network.MaxHops = 256 }},
		{"max payload", func(c *Config) { c.Network.MaxPayload = DefaultMaxPayload + 1 }},
		{"dial timeout", func(c *Config) { c.Network.DialTimeout = "soon" }},
		{"serial kind", func(c *Config) { c.Serial.Kind = "usb" }},
		{"serial peer", func(c *Config) { c.Serial.Device = "/dev/null"; c.Serial.Peer = "bus:x" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := Load(writeFile(t, "bad.toml", "[node\nrole=")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeFile(t, "bad.toml", "[node]\nrole = \"router\"\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestTemplatesLoad(t *testing.T) {
	testlog.Start(t)
	for _, role := range []string{RoleHost, RoleDevice} {
		t.Run(role, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), role+".toml")
			if err := WriteTemplate(path, role, false); err != nil {
				t.Fatalf("write template: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load template: %v", err)
			}
			if cfg.Node.Role != role {
				t.Fatalf("role = %q", cfg.Node.Role)
			}
			if err := WriteTemplate(path, role, false); err == nil {
				t.Fatalf("expected refusal to overwrite")
			}
			if err := WriteTemplate(path, role, true); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
		})
	}
	if _, err := Template("gateway"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}
