package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evalgap/homesim/internal/engine"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation over the configured day range",
		Long: `Run the full simulation: expand every member's schedule into 15-minute
slots, generate per-slot context, execute the four-cell interaction
matrix, and self-evaluate each cell.

The interaction log is flushed after every event, so an interrupted run
can be resumed by running simulate again with the same config: already
logged slots are skipped.

Example:
  homesim simulate --config homesim.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client := buildClient(cfg)
			if !client.Available() {
				return fmt.Errorf("llm client %q is not configured; set llm.api_key or use provider \"mock\"", cfg.LLM.Provider)
			}

			log := buildLogger(cfg)
			trace := buildTrace(cfg)
			defer trace.Close()

			eng, err := engine.New(cfg, client, log, trace)
			if err != nil {
				return err
			}
			if err := eng.Run(cmd.Context()); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"run":     cfg.Run.Name,
					"records": eng.Store().Len(),
					"log":     cfg.SimulationLogPath(),
					"memory":  cfg.MemoryHistoryPath(),
				})
			}
			fmt.Printf("Run %s finished: %d records in %s\n", cfg.Run.Name, eng.Store().Len(), cfg.SimulationLogPath())
			return nil
		},
	}
	return cmd
}
