package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/evaluation"
	"github.com/evalgap/homesim/internal/simlog"
	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run observer evaluation over an existing simulation log",
		Long: `Rate every filled matrix cell of an existing run from a third-party
observer's perspective. The observer only sees observable device changes
and the dialogue text, never the member's latent intent.

The annotated log is written next to the input log as eval_result_*.json.
Re-running resumes: records already present in the output are skipped.

Example:
  homesim evaluate --config homesim.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client := buildClient(cfg)
			if !client.Available() {
				return fmt.Errorf("llm client %q is not configured; set llm.api_key or use provider \"mock\"", cfg.LLM.Provider)
			}

			in, err := simlog.Open(cfg.SimulationLogPath())
			if err != nil {
				return err
			}
			if in.Len() == 0 {
				return fmt.Errorf("no simulation log at %s; run simulate first", cfg.SimulationLogPath())
			}

			e, err := env.Load(cfg.Paths.Environment)
			if err != nil {
				return err
			}

			out, err := simlog.Open(cfg.EvalResultPath())
			if err != nil {
				return err
			}

			log := buildLogger(cfg)
			observer := evaluation.NewObserverEvaluator(client, cfg.Models.ObserverEval, cfg.LLM.MaxRetries, log)
			if err := evaluation.RunObserverPass(cmd.Context(), in.Entries(), out, e.ObservabilityIndex(), observer, log); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"run":     cfg.Run.Name,
					"records": out.Len(),
					"output":  cfg.EvalResultPath(),
				})
			}
			fmt.Printf("Observer evaluation finished: %d records in %s\n", out.Len(), cfg.EvalResultPath())
			return nil
		},
	}
	return cmd
}
