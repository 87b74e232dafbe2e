package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestkit/crestctl/internal/config"
	"github.com/crestkit/crestctl/internal/console"
	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/security"
)

var connectCmd = &cobra.Command{
	Use:   "connect <device>",
	Short: "Open an interactive console session",
	Long: `Open an interactive pass-through session to a device console.

The device is an address-book name or a literal user@host[:port]. Typed
characters are buffered locally and sent on Enter; Tab asks the device to
complete the current line. Lines starting with the escape marker (default
":") run local sub-commands (kill, start, register, status, devices)
instead of going to the device. Type the exit command (default "bye") to
leave.

If the link drops, the session reconnects automatically while continuing
to accept input; press Ctrl+C to abandon it.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The watcher keeps the address book live for the ":devices" session
	// command, so edits made while this session runs are visible without
	// reconnecting.
	var watcher *config.Watcher
	if w, werr := config.NewWatcher(configPath(), nil); werr == nil {
		watcher = w
		defer watcher.Close()
	}
	currentConfig := func() *config.Config {
		if watcher != nil {
			return watcher.Config()
		}
		return cfg
	}

	dev, err := resolveDevice(cfg, args[0])
	if err != nil {
		return err
	}
	sess := cfg.SessionFor(dev)

	ks := security.NewKeyringStore()
	password, err := devicePassword(dev, ks, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tr, release, err := openTransport(ctx, dev, password)
	if err != nil {
		return connErr(fmt.Errorf("connect %s: %w", dev.Name, err))
	}
	defer release()

	term, err := console.NewTerminal(os.Stdin)
	if err != nil {
		return err
	}
	defer term.Restore()

	banner := console.NewStatusBanner(os.Stdout, dev.Name)
	banner.Notify(passthrough.StatusConnected)

	opts := passthrough.DefaultOptions()
	opts.ExitCommand = sess.ExitCommand
	opts.EscapeMarker = rune(sess.EscapeMarker[0])
	opts.CommandTimeout = sess.CommandTimeout
	opts.Policy = passthrough.Policy{
		MaxAttempts: sess.ReconnectAttempts,
		Delay:       sess.ReconnectDelay,
	}
	opts.OnStatus = banner.Notify
	commands := passthrough.DefaultCommands()
	commands.Register("devices", deviceListCommand(currentConfig))
	opts.Commands = commands
	// Raw mode disables SIGINT generation, so Ctrl+C arrives as a
	// keystroke and cancels the session context.
	opts.LocalKeys = map[rune]func() error{
		'c': func() error {
			cancel()
			return nil
		},
	}

	session := passthrough.NewSession(tr, term, os.Stdout, opts)
	err = session.Run(ctx)
	term.Restore()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, passthrough.ErrDisconnected):
		return connErr(err)
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stdout, "session cancelled")
		return nil
	default:
		return err
	}
}

// deviceListCommand is the ":devices" session command: it lists the
// address book as source sees it now, so a watcher-backed source reflects
// edits made while the session is running.
func deviceListCommand(source func() *config.Config) passthrough.CommandFunc {
	return func(ctx context.Context, env *passthrough.CommandEnv, args []string) error {
		devices := source().Devices
		if len(devices) == 0 {
			fmt.Fprintf(env.Out, "no devices configured\r\n")
			return nil
		}
		for _, d := range devices {
			fmt.Fprintf(env.Out, "%s  %s@%s:%d\r\n", d.Name, d.User, d.Host, d.Port)
		}
		return nil
	}
}
