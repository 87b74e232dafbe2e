package program

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"log/slog"

	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/ports"
)

// DeployOptions configures one program deployment.
type DeployOptions struct {
	Slot      int
	RemoteDir string
	Timeout   time.Duration
	Out       io.Writer
}

// Deployer sequences a full program load: stop the running program, push
// the archive, register it, and start it, confirming each console step
// against the device's replies.
type Deployer struct {
	tr       ports.Transport
	matcher  *passthrough.Matcher
	uploader *Uploader
}

// NewDeployer creates a deployer over a connected transport. uploader may
// share the transport's underlying SSH connection.
func NewDeployer(tr ports.Transport, matcher *passthrough.Matcher, uploader *Uploader) *Deployer {
	return &Deployer{tr: tr, matcher: matcher, uploader: uploader}
}

// Deploy runs the full sequence for localPath. Each console step waits for
// the device's confirmation line before the next one is issued; a failure
// reply or timeout aborts the remaining steps.
func (d *Deployer) Deploy(ctx context.Context, localPath string, opts DeployOptions) error {
	if opts.Slot < 1 {
		return fmt.Errorf("invalid program slot %d", opts.Slot)
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("program archive: %w", err)
	}

	if err := d.consoleStep(ctx, opts,
		fmt.Sprintf("stopprog -p:%d", opts.Slot),
		passthrough.ReplyProgramStopped,
		"stop"); err != nil {
		return err
	}

	remotePath, digest, err := d.uploader.Upload(localPath, opts.RemoteDir)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if size, err := d.uploader.RemoteSize(remotePath); err == nil && size != info.Size() {
		return fmt.Errorf("upload verification: remote %s is %d bytes, want %d", remotePath, size, info.Size())
	}
	slog.Info("archive verified", slog.String("remote", remotePath), slog.String("sha256", digest))

	if err := d.consoleStep(ctx, opts,
		fmt.Sprintf("progregister -p:%d", opts.Slot),
		passthrough.ReplyProgramRegistered(opts.Slot),
		"register"); err != nil {
		return err
	}

	return d.consoleStep(ctx, opts,
		fmt.Sprintf("progreset -p:%d", opts.Slot),
		passthrough.ReplyProgramStarted,
		"start")
}

func (d *Deployer) consoleStep(ctx context.Context, opts DeployOptions, command, success, label string) error {
	if err := d.tr.WriteLine(command); err != nil {
		return fmt.Errorf("%s: send %q: %w", label, command, err)
	}

	ok, err := d.matcher.Await(ctx, d.tr, passthrough.CompletionSpec{
		Success: []string{success},
		Failure: []string{passthrough.ReplyInvalidProgram},
		Timeout: opts.Timeout,
		Echo:    opts.Out != nil,
		EchoTo:  opts.Out,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if !ok {
		return fmt.Errorf("%s: device did not confirm %q", label, success)
	}
	return nil
}
