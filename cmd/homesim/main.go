package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/evalgap/homesim/internal/config"
	"github.com/evalgap/homesim/internal/llm"
	"github.com/evalgap/homesim/internal/logging"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "homesim",
		Short: "Smart-home voice-assistant interaction simulator",
		Long: `homesim simulates a family's day-by-day interactions with a smart-home
voice assistant and measures the gap between how satisfied members are
and how satisfied a third-party observer believes they are.

Each 15-minute slot runs a 2x2 matrix: with/without situational context
in the command, against a generative and a rule-based assistant.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "homesim.yaml", "Config file path")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newEvaluateCmd(),
		newMemoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("homesim version %s\n", version)
			}
		},
	}
}

// loadConfig resolves the --config flag. A missing file falls back to the
// built-in defaults; an unreadable or invalid file is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func buildClient(cfg *config.Config) llm.Client {
	return llm.New(llm.ClientConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
		Local: llm.LocalConfig{
			LibPath:     cfg.LLM.LibPath,
			ModelPath:   cfg.LLM.ModelPath,
			GPULayers:   cfg.LLM.GPULayers,
			ContextSize: cfg.LLM.ContextSize,
		},
	})
}

func buildLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

func buildTrace(cfg *config.Config) *logging.RunTrace {
	return logging.NewRunTrace(cfg.Paths.LogDir, cfg.Logging.Level)
}
