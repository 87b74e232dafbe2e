package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crestkit/crestctl/internal/config"
	"github.com/crestkit/crestctl/internal/dialog"
	"github.com/crestkit/crestctl/internal/security"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device address book",
	RunE:  runDevicesList,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List address-book entries",
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a device interactively",
	RunE:  runDevicesAdd,
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an address-book entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRemove,
}

func init() {
	devicesCmd.AddCommand(devicesListCmd, devicesAddCmd, devicesRemoveCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Devices) == 0 {
		fmt.Fprintln(os.Stdout, "no devices configured; run 'crestctl devices add'")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHOST\tPORT\tUSER\tAUTH")
	for _, dev := range cfg.Devices {
		auth := "password"
		if dev.KeyPath != "" {
			auth = "key"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", dev.Name, dev.Host, dev.Port, dev.User, auth)
	}
	return w.Flush()
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := dialog.RunDeviceForm(dialog.DeviceForm{Port: 22})
	if err != nil {
		return err
	}
	if !result.Confirmed {
		fmt.Fprintln(os.Stdout, "aborted")
		return nil
	}

	dev := result.ToDeviceConfig()
	if err := cfg.AddDevice(dev); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, configPath()); err != nil {
		return err
	}

	if result.Password != "" && result.SavePass {
		ks := security.NewKeyringStore()
		pw := []byte(result.Password)
		err := ks.StoreDevicePassword(dev.Host, dev.User, pw)
		security.WipeBytes(pw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: keyring unavailable, password not stored: %v\n", err)
		}
	}

	fmt.Fprintf(os.Stdout, "device %q saved\n", dev.Name)
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, ok := cfg.FindDevice(args[0])
	if !ok {
		return fmt.Errorf("unknown device %q", args[0])
	}

	removed := *dev
	kept := cfg.Devices[:0]
	for _, d := range cfg.Devices {
		if d.Name != removed.Name {
			kept = append(kept, d)
		}
	}
	cfg.Devices = kept

	if err := config.Save(cfg, configPath()); err != nil {
		return err
	}

	ks := security.NewKeyringStore()
	_ = ks.DeleteDevicePassword(removed.Host, removed.User)

	fmt.Fprintf(os.Stdout, "device %q removed\n", removed.Name)
	return nil
}
