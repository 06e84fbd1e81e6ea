package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rehearse/internal/config"
)

// keyedProviders are the providers init asks an API key for, in prompt order
var keyedProviders = []struct {
	name  string
	label string
}{
	{"claude", "Claude (Anthropic)"},
	{"openai", "OpenAI"},
	{"gemini", "Gemini"},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the rehearse home directory, config and API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(os.Stdin, cmd.OutOrStdout())
	},
}

// runInit sets rehearse up for first use. Existing config is left alone and
// providers that already have a key are skipped.
func runInit(in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Rehearse - First-Time Setup")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)

	fmt.Fprint(out, "Creating rehearse directory... ")
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Fprintln(out, "✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprint(out, "Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out, "✓")
	} else {
		fmt.Fprintln(out, "Configuration already exists ✓")
	}

	cfg, err := config.LoadLocalConfigFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "LLM Provider Setup")
	fmt.Fprintln(out, "------------------")
	fmt.Fprintln(out, "Without a key, interviews use scripted questions and no scoring.")

	reader := bufio.NewReader(in)
	keys := make(map[string]string)
	for _, p := range keyedProviders {
		if pc, ok := cfg.LLM.Providers[p.name]; ok && pc.APIKey != "" {
			fmt.Fprintf(out, "%s API key: already configured ✓\n", p.label)
			continue
		}
		fmt.Fprintf(out, "Enter %s API key (or press Enter to skip): ", p.label)
		line, err := reader.ReadString('\n')
		if key := strings.TrimSpace(line); key != "" {
			keys[p.name] = key
		}
		if err != nil {
			fmt.Fprintln(out)
			break
		}
	}

	if len(keys) > 0 {
		if err := config.SaveSecrets(keys); err != nil {
			return fmt.Errorf("save secrets: %w", err)
		}
		fmt.Fprintf(out, "Saved %d key(s) to %s ✓\n", len(keys), filepath.Join(dir, "secrets.yaml"))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. rehearse start      # Start the daemon")
	fmt.Fprintln(out, "  2. rehearse practice   # Run an interview")
	return nil
}
