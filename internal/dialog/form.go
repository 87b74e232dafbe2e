// Package dialog runs the interactive terminal forms for device setup and
// credential entry.
package dialog

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/crestkit/crestctl/internal/config"
)

// DeviceForm is the prefill and result of the add-device form.
type DeviceForm struct {
	Name      string
	Host      string
	Port      int
	User      string
	KeyPath   string
	AuthType  string
	Password  string
	SavePass  bool
	Confirmed bool
}

// RunDeviceForm shows the add-device form on the controlling terminal and
// returns the completed result. The password, if entered, is only held in
// memory; persisting it to the keyring is the caller's decision point.
func RunDeviceForm(prefill DeviceForm) (DeviceForm, error) {
	result := prefill
	if result.AuthType == "" {
		result.AuthType = "password"
	}
	portStr := strconv.Itoa(prefill.Port)
	if portStr == "0" {
		portStr = "22"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Device Name").
				Description("Short name for this processor (e.g., 'lobby', 'mc4-lab')").
				Value(&result.Name),

			huh.NewInput().
				Title("Host").
				Description("Hostname or IP address").
				Value(&result.Host),

			huh.NewInput().
				Title("Port").
				Description("SSH port").
				Value(&portStr),

			huh.NewInput().
				Title("User").
				Description("Console username").
				Value(&result.User),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Auth Type").
				Options(
					huh.NewOption("Password", "password"),
					huh.NewOption("SSH key", "key"),
				).
				Value(&result.AuthType),

			huh.NewInput().
				Title("SSH Key Path").
				Description("Private key path (leave empty for ssh-agent)").
				Value(&result.KeyPath),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				Description("Console password (leave empty to be prompted per connect)").
				EchoMode(huh.EchoModePassword).
				Value(&result.Password),

			huh.NewConfirm().
				Title("Store password in the system keyring?").
				Value(&result.SavePass),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this device?").
				Value(&result.Confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return prefill, fmt.Errorf("device form: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		port = 22
	}
	result.Port = port
	return result, nil
}

// PromptPassword asks for a password on the controlling terminal without
// echoing it.
func PromptPassword(target string) (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Password for %s", target)).
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return password, nil
}

// ToDeviceConfig converts a completed form into a config entry.
func (f DeviceForm) ToDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		Name:    f.Name,
		Host:    f.Host,
		Port:    f.Port,
		User:    f.User,
		KeyPath: f.KeyPath,
	}
}
