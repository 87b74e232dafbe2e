package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/crestkit/crestctl/internal/adapters/realclock"
	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/program"
	"github.com/crestkit/crestctl/internal/security"
)

var (
	uploadSlot      int
	uploadDir       string
	uploadRemoteDir string
	uploadTimeout   time.Duration
	uploadFile      string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <device> [pattern...]",
	Short: "Upload and load a program archive",
	Long: `Upload a compiled program archive to a device and load it.

Without --file, the newest archive matching the patterns (default
"**/*.lpz" and "**/*.cpz") under --dir is selected. The sequence is:
stop the program in the slot, transfer the archive over SFTP, verify the
transfer, register the program, and restart it. Each console step waits
for the device's confirmation before the next is issued.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().IntVar(&uploadSlot, "slot", 1, "program slot number")
	uploadCmd.Flags().StringVar(&uploadDir, "dir", ".", "directory to search for archives")
	uploadCmd.Flags().StringVar(&uploadRemoteDir, "remote-dir", "", "remote program directory (default from config)")
	uploadCmd.Flags().DurationVar(&uploadTimeout, "timeout", 0, "per-step confirmation timeout (default from config)")
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "exact archive to upload, skipping glob selection")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := resolveDevice(cfg, args[0])
	if err != nil {
		return err
	}

	localPath := uploadFile
	if localPath == "" {
		patterns := args[1:]
		if len(patterns) == 0 {
			patterns = cfg.Upload.Patterns
		}
		candidate, err := program.Newest(uploadDir, patterns)
		if err != nil {
			return err
		}
		localPath = candidate.Path
	}

	remoteDir := uploadRemoteDir
	if remoteDir == "" {
		remoteDir = cfg.Upload.RemoteDir
	}
	timeout := uploadTimeout
	if timeout <= 0 {
		timeout = cfg.Session.CommandTimeout
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

	clienter, ok := tr.(interface{ Client() *ssh.Client })
	if !ok {
		return fmt.Errorf("transport does not support file transfer")
	}
	uploader := program.NewUploader(clienter.Client())
	defer uploader.Close()

	fmt.Fprintf(os.Stdout, "uploading %s to %s (slot %d)\n", localPath, dev.Name, uploadSlot)

	deployer := program.NewDeployer(tr, passthrough.NewMatcher(realclock.New()), uploader)
	if err := deployer.Deploy(ctx, localPath, program.DeployOptions{
		Slot:      uploadSlot,
		RemoteDir: remoteDir,
		Timeout:   timeout,
		Out:       os.Stdout,
	}); err != nil {
		return opErr(err)
	}

	fmt.Fprintln(os.Stdout, "program loaded")
	return nil
}
