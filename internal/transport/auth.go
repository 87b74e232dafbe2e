package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthConfig holds authentication inputs for a device connection.
// Crestron processors ship with password authentication; key files and the
// SSH agent are supported for hardened installs.
type AuthConfig struct {
	Password      string
	KeyPath       string
	KeyPassphrase string
	UseAgent      bool
}

// BuildAuthMethods constructs SSH auth methods from config, in preference
// order: agent, explicit key, default key locations, password.
func BuildAuthMethods(cfg AuthConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.UseAgent {
		if agentAuth, err := sshAgentAuth(); err == nil {
			methods = append(methods, agentAuth)
		}
	}

	if cfg.KeyPath != "" {
		keyAuth, err := privateKeyAuth(cfg.KeyPath, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("private key auth: %w", err)
		}
		methods = append(methods, keyAuth)
	}

	if cfg.KeyPath == "" && cfg.Password == "" && len(methods) == 0 {
		for _, keyPath := range []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa", "~/.ssh/id_ecdsa"} {
			expanded := expandPath(keyPath)
			if _, err := os.Stat(expanded); err != nil {
				continue
			}
			if keyAuth, err := privateKeyAuth(expanded, cfg.KeyPassphrase); err == nil {
				methods = append(methods, keyAuth)
				break
			}
		}
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
		methods = append(methods, keyboardInteractiveAuth(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	return methods, nil
}

func sshAgentAuth() (ssh.AuthMethod, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}

	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func privateKeyAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(expandPath(keyPath))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// keyboardInteractiveAuth answers every challenge with the password.
// Older Crestron firmware only offers keyboard-interactive.
func keyboardInteractiveAuth(password string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	})
}

// BuildHostKeyCallback creates a host key callback from known_hosts.
// Devices on fresh installs are not in known_hosts, so a missing file
// yields an accept-any callback rather than an error.
func BuildHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	expanded := expandPath(knownHostsPath)

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
