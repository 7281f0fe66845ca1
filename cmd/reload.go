package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/claude-code-open/internal/process"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Signal the running service to reload its configuration",
	Long:  `Send SIGHUP to a running service so it re-reads config.yaml without restarting. The service also watches the file directly, so this is rarely required — it exists for environments where fsnotify can't see the edit (e.g. some network filesystems).`,
	RunE:  runReload,
}

func runReload(_ *cobra.Command, _ []string) error {
	procMgr := process.NewManager(baseDir)

	pid := procMgr.ReadPID()
	if pid <= 0 || !procMgr.IsRunning() {
		return fmt.Errorf("service is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to locate process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	color.Green("Sent reload signal to PID %d", pid)

	return nil
}
