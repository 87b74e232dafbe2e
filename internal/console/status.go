package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/crestkit/crestctl/internal/passthrough"
)

var (
	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	reconnectingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	neutralStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// StatusBanner renders connection status transitions on their own line, in
// color when the terminal supports it.
type StatusBanner struct {
	out    io.Writer
	target string
}

// NewStatusBanner creates a banner writer for the named device.
func NewStatusBanner(out io.Writer, target string) *StatusBanner {
	return &StatusBanner{out: out, target: target}
}

// Notify prints one status transition. It is shaped to slot directly into
// session Options.OnStatus.
func (b *StatusBanner) Notify(status passthrough.Status) {
	var styled string
	switch status {
	case passthrough.StatusConnected:
		styled = connectedStyle.Render("connected")
	case passthrough.StatusReconnecting:
		styled = reconnectingStyle.Render("reconnecting")
	case passthrough.StatusDisconnected:
		styled = disconnectedStyle.Render("disconnected")
	case passthrough.StatusClosing:
		styled = neutralStyle.Render("closing")
	default:
		styled = status.String()
	}
	fmt.Fprintf(b.out, "\r\n%s %s\r\n", neutralStyle.Render("["+b.target+"]"), styled)
}
