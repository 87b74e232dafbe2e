package transport_test

import (
	"testing"

	"github.com/crestkit/crestctl/internal/transport"
)

func TestOptionsIdentity(t *testing.T) {
	opts := transport.DefaultOptions()
	opts.Host = "10.0.0.5"
	opts.User = "crestron"

	if got, want := opts.Identity(), "crestron@10.0.0.5:22"; got != want {
		t.Fatalf("Identity = %q, want %q", got, want)
	}
}

func TestNewSSHValidation(t *testing.T) {
	if _, err := transport.NewSSH(transport.Options{User: "u"}); err == nil {
		t.Error("missing host must be rejected")
	}
	if _, err := transport.NewSSH(transport.Options{Host: "h"}); err == nil {
		t.Error("missing user must be rejected")
	}
	if _, err := transport.NewSSH(transport.Options{Host: "h", User: "u"}); err == nil {
		t.Error("missing auth methods must be rejected")
	}
}
