package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var errNotRunning = errors.New("server is not running")

// pidFile records the PID of a running `tickerchat serve` under the data
// directory.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "tickerchat.pid"))
}

func (p pidFile) write() error {
	if err := os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func (p pidFile) remove() {
	os.Remove(string(p))
}

// process returns the recorded server process. A missing file or a PID
// that no longer answers signal 0 yields errNotRunning.
func (p pidFile) process() (*os.Process, error) {
	data, err := os.ReadFile(string(p))
	if os.IsNotExist(err) {
		return nil, errNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file %s: %w", p, err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if !alive(proc) {
		return nil, fmt.Errorf("%w (stale PID %d)", errNotRunning, pid)
	}
	return proc, nil
}

func alive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// signalServer sends sig to the running server and returns its PID.
func signalServer(sig syscall.Signal) (*os.Process, error) {
	proc, err := pidFileIn(loadConfig().DataDir).process()
	if err != nil {
		return nil, err
	}
	if err := proc.Signal(sig); err != nil {
		return nil, fmt.Errorf("send %s to %d: %w", sig, proc.Pid, err)
	}
	return proc, nil
}

var stopWait time.Duration

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 0, "wait up to this long for in-flight turns to finish and the server to exit")
	rootCmd.AddCommand(stopCmd, restartCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalServer(syscall.SIGTERM)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Stopping server (PID %d).\n", proc.Pid)
		if stopWait <= 0 {
			return nil
		}

		deadline := time.Now().Add(stopWait)
		for alive(proc) {
			if time.Now().After(deadline) {
				return fmt.Errorf("server %d still running after %s", proc.Pid, stopWait)
			}
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprintln(out, "Server stopped.")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running server in place, reloading its config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalServer(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restarting server (PID %d).\n", proc.Pid)
		return nil
	},
}
