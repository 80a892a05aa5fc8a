package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleHost:
		return hostTemplate, nil
	case RoleDevice:
		return deviceTemplate, nil
	default:
		return "", fmt.Errorf("unknown config role: %s", role)
	}
}

func WriteTemplate(path, role string, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `# syndesi host node
[node]
# id = ""            # empty: random UUID at startup
role = "host"
name = "syndesi-host"

[network]
port = 2608
max_hops = 8
max_payload = 65535
dial_timeout = "3s"
io_timeout = "5s"

[serial]
# device = "/dev/ttyUSB0"
kind = "uart"
peer = "bus:1"

[admin]
# addr = "127.0.0.1:9260"
cors_origins = ["http://localhost:3000"]

[capture]
# path = "syndesi.pcap"

[log]
level = "info"
`

const deviceTemplate = `# syndesi device node
[node]
# id = ""            # empty: random UUID at startup
role = "device"
listen = ":2608"
name = "syndesi-device"
description = "register bank with loopback SPI and I2C"

[network]
port = 2608
max_hops = 8
max_payload = 65535
dial_timeout = "3s"
io_timeout = "5s"

[serial]
# device = "/dev/ttyS0"
kind = "rs485"
peer = "bus:0"

[admin]
addr = "127.0.0.1:9260"
cors_origins = ["http://localhost:3000"]

[capture]
# path = "syndesi-device.pcap"

[log]
level = "info"
`
