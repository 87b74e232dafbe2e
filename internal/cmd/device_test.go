package cmd

import (
	"testing"

	"github.com/crestkit/crestctl/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Devices = []config.DeviceConfig{
		{Name: "lobby", Host: "10.0.1.20", Port: 22, User: "crestron"},
	}
	return cfg
}

func TestResolveDeviceFromAddressBook(t *testing.T) {
	dev, err := resolveDevice(testConfig(), "Lobby")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dev.Host != "10.0.1.20" {
		t.Fatalf("resolved wrong device: %+v", dev)
	}
}

func TestResolveDeviceLiteral(t *testing.T) {
	dev, err := resolveDevice(testConfig(), "admin@192.168.1.50:22022")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dev.User != "admin" || dev.Host != "192.168.1.50" || dev.Port != 22022 {
		t.Fatalf("literal parse wrong: %+v", dev)
	}
}

func TestResolveDeviceLiteralDefaultPort(t *testing.T) {
	dev, err := resolveDevice(testConfig(), "admin@mc4.example.net")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dev.Port != 22 {
		t.Fatalf("default port = %d, want 22", dev.Port)
	}
}

func TestResolveDeviceRejectsGarbage(t *testing.T) {
	for _, target := range []string{"atrium", "@host", "user@", "user@host:notaport"} {
		if _, err := resolveDevice(testConfig(), target); err == nil {
			t.Errorf("target %q should be rejected", target)
		}
	}
}

func TestExitCodes(t *testing.T) {
	base := errIs("boom")
	if exitCode(base) != 1 {
		t.Errorf("plain error exit code = %d, want 1", exitCode(base))
	}
	if exitCode(connErr(base)) != 2 {
		t.Errorf("connection error exit code = %d, want 2", exitCode(connErr(base)))
	}
	if exitCode(opErr(base)) != 3 {
		t.Errorf("operation error exit code = %d, want 3", exitCode(opErr(base)))
	}
}

type errIs string

func (e errIs) Error() string { return string(e) }
