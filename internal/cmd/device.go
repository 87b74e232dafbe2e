package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/crestkit/crestctl/internal/config"
	"github.com/crestkit/crestctl/internal/dialog"
	"github.com/crestkit/crestctl/internal/ports"
	"github.com/crestkit/crestctl/internal/security"
	"github.com/crestkit/crestctl/internal/transport"
)

// resolveDevice turns a command-line target into a device entry: an
// address-book name, or a literal user@host[:port].
func resolveDevice(cfg *config.Config, target string) (*config.DeviceConfig, error) {
	if dev, ok := cfg.FindDevice(target); ok {
		return dev, nil
	}

	if !strings.Contains(target, "@") {
		return nil, fmt.Errorf("unknown device %q (not in address book, and not user@host)", target)
	}

	user, hostPort, _ := strings.Cut(target, "@")
	if user == "" || hostPort == "" {
		return nil, fmt.Errorf("invalid target %q, want user@host[:port]", target)
	}

	host := hostPort
	port := 22
	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid port in %q", target)
		}
		host, port = h, n
	}

	return &config.DeviceConfig{
		Name: target,
		Host: host,
		Port: port,
		User: user,
	}, nil
}

// devicePassword resolves a password for dev: keyring first, then the
// environment variable the entry names, then an interactive prompt. An
// empty result with nil error means key-based auth should carry the load.
func devicePassword(dev *config.DeviceConfig, ks *security.KeyringStore, interactive bool) (string, error) {
	if pw, err := ks.GetDevicePassword(dev.Host, dev.User); err == nil && pw != nil {
		password := string(pw)
		security.WipeBytes(pw)
		return password, nil
	}

	if dev.PasswordEnv != "" {
		if pw := os.Getenv(dev.PasswordEnv); pw != "" {
			return pw, nil
		}
	}

	if dev.KeyPath != "" {
		return "", nil
	}

	if !interactive {
		return "", nil
	}
	return dialog.PromptPassword(fmt.Sprintf("%s@%s", dev.User, dev.Host))
}

// openTransport builds, pools, and connects the SSH transport for dev.
// The returned cleanup releases the pooled link.
func openTransport(ctx context.Context, dev *config.DeviceConfig, password string) (ports.Transport, func(), error) {
	methods, err := transport.BuildAuthMethods(transport.AuthConfig{
		Password: password,
		KeyPath:  dev.KeyPath,
		UseAgent: true,
	})
	if err != nil {
		return nil, nil, err
	}

	hostKeys, err := transport.BuildHostKeyCallback(knownHostsPath())
	if err != nil {
		return nil, nil, err
	}

	opts := transport.DefaultOptions()
	opts.Host = dev.Host
	opts.Port = dev.Port
	opts.User = dev.User
	opts.AuthMethods = methods
	opts.HostKeyCallback = hostKeys

	pool := transport.NewPool()
	tr, err := pool.Get(opts)
	if err != nil {
		return nil, nil, err
	}

	if err := tr.Connect(ctx); err != nil {
		pool.ReleaseAll()
		return nil, nil, err
	}
	return tr, pool.ReleaseAll, nil
}

func knownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}
