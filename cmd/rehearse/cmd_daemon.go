package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rehearse/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rehearse daemon in the background",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the rehearse daemon",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and sessions",
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent daemon logs",
	RunE:  runLogs,
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if isRunning(ctx) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup rehearse directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	proc := exec.Command(daemonPath)
	proc.Dir = dir
	configureDaemonProcess(proc)

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(ctx) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", flagAddr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'rehearse logs')")
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !isRunning(ctx) {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(ctx) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newClient()

	status, err := c.Status(ctx)
	if err != nil {
		fmt.Println("Status: stopped")
		return nil
	}

	providers := "none"
	if len(status.LLMProviders) > 0 {
		providers = strings.Join(status.LLMProviders, ", ")
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Printf("Evaluator: %s\n", status.Evaluator)
	fmt.Printf("Providers: %s\n", providers)
	fmt.Printf("Address:   %s\n", c.BaseURL())

	sessions, err := c.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	fmt.Println("\nSessions")
	fmt.Println("--------")
	for _, s := range sessions {
		state := "in progress"
		switch {
		case s.Finished:
			state = "finished"
		case s.Waiting:
			state = "waiting for answer"
		}
		fmt.Printf("%s  %-18s %-7s %d/%d answered  %s\n",
			s.ID, s.Role, s.Level, s.Answered, s.Questions, state)
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(dir, "logs", "rehearsed.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Last ~4KB
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// isRunning checks the daemon's health endpoint
func isRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return newClient().Health(ctx) == nil
}

// findDaemonBinary locates the rehearsed binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("rehearsed"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "rehearsed")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/rehearsed", "./rehearsed"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("rehearsed binary not found (build with 'go build ./cmd/rehearsed')")
}
