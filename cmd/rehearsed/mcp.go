package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rehearse/internal/daemon"
	mcpserver "github.com/felixgeelhaar/rehearse/internal/mcp"
)

var flagMCPHTTP string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve interview tools over MCP (stdio, or HTTP with --http)",
	Long: `Starts an MCP server exposing interview_start, interview_next,
interview_answer, interview_feedback, interview_end and interview_status.

Sessions live in this process only; they are not shared with a running
HTTP daemon.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&flagMCPHTTP, "http", "", "serve MCP over HTTP on this address instead of stdio")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	services, err := daemon.NewServices(ctx, daemon.ServicesConfig{Config: e.cfg})
	if err != nil {
		return fmt.Errorf("create services: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			slog.Warn("failed to close services", "error", err)
		}
	}()

	srv := mcpserver.NewServer(mcpserver.Config{
		Sessions: services.Sessions,
		Version:  Version,
	})

	if flagMCPHTTP != "" {
		slog.Info("starting MCP server", "transport", "http", "addr", flagMCPHTTP, "evaluator", services.Evaluator)
		return srv.ServeHTTP(ctx, flagMCPHTTP)
	}
	slog.Info("starting MCP server", "transport", "stdio", "evaluator", services.Evaluator)
	return srv.ServeStdio(ctx)
}
