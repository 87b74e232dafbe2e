package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestkit/crestctl/internal/adapters/realclock"
	"github.com/crestkit/crestctl/internal/iptable"
	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/ports"
	"github.com/crestkit/crestctl/internal/security"
)

var iptableCmd = &cobra.Command{
	Use:   "iptable",
	Short: "Inspect and rewrite a device IP table",
}

var iptableShowCmd = &cobra.Command{
	Use:   "show <device>",
	Short: "Print the device IP table",
	Args:  cobra.ExactArgs(1),
	RunE:  runIPTableShow,
}

var iptableClearCmd = &cobra.Command{
	Use:   "clear <device>",
	Short: "Remove every IP table entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runIPTableClear,
}

var iptableAddCmd = &cobra.Command{
	Use:   "add <device> <ipid> <address> [<ipid> <address>...]",
	Short: "Register master entries in the IP table",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runIPTableAdd,
}

func init() {
	iptableCmd.AddCommand(iptableShowCmd, iptableClearCmd, iptableAddCmd)
	rootCmd.AddCommand(iptableCmd)
}

// withIPTable connects to the device and hands a manager to fn.
func withIPTable(cmd *cobra.Command, target string, fn func(*iptable.Manager, ports.Transport) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := resolveDevice(cfg, target)
	if err != nil {
		return err
	}

	ks := security.NewKeyringStore()
	password, err := devicePassword(dev, ks, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tr, release, err := openTransport(ctx, dev, password)
	if err != nil {
		return connErr(fmt.Errorf("connect %s: %w", dev.Name, err))
	}
	defer release()

	mgr := iptable.NewManager(tr, passthrough.NewMatcher(realclock.New()), cfg.Session.CommandTimeout)
	return fn(mgr, tr)
}

func runIPTableShow(cmd *cobra.Command, args []string) error {
	return withIPTable(cmd, args[0], func(mgr *iptable.Manager, _ ports.Transport) error {
		if err := mgr.Show(cmd.Context(), os.Stdout); err != nil {
			return opErr(err)
		}
		return nil
	})
}

func runIPTableClear(cmd *cobra.Command, args []string) error {
	return withIPTable(cmd, args[0], func(mgr *iptable.Manager, _ ports.Transport) error {
		if err := mgr.Clear(cmd.Context(), os.Stdout); err != nil {
			return opErr(err)
		}
		fmt.Fprintln(os.Stdout, "ip table cleared")
		return nil
	})
}

func runIPTableAdd(cmd *cobra.Command, args []string) error {
	pairs := args[1:]
	if len(pairs)%2 != 0 {
		return fmt.Errorf("entries must be <ipid> <address> pairs")
	}

	var entries []iptable.Entry
	for i := 0; i < len(pairs); i += 2 {
		entries = append(entries, iptable.Entry{IPID: pairs[i], Address: pairs[i+1]})
	}

	return withIPTable(cmd, args[0], func(mgr *iptable.Manager, _ ports.Transport) error {
		for _, entry := range entries {
			if err := mgr.Add(cmd.Context(), entry, os.Stdout); err != nil {
				return opErr(err)
			}
		}
		fmt.Fprintf(os.Stdout, "%d entr%s added\n", len(entries), plural(len(entries), "y", "ies"))
		return nil
	})
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
