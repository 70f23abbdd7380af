package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evalgap/homesim/internal/memory"
	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the memory export of a finished run",
	}
	cmd.AddCommand(newMemoryHistoryCmd())
	return cmd
}

func newMemoryHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Dump the flattened memory history",
		Long: `Print the memory_history.json export of a finished run: one row per
remembered item with its member, timestamp, type and decayed weight.

Example:
  homesim memory history --member member_1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(cfg.MemoryHistoryPath())
			if err != nil {
				return fmt.Errorf("reading memory history (has simulate run?): %w", err)
			}

			var entries []memory.HistoryEntry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parsing %s: %w", cfg.MemoryHistoryPath(), err)
			}

			memberFilter, _ := cmd.Flags().GetString("member")
			if memberFilter != "" {
				filtered := entries[:0]
				for _, e := range entries {
					if e.MemberID == memberFilter {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(entries)
			}

			for _, e := range entries {
				fmt.Printf("%-10s  %s  %-12s  %.2f  %s\n", e.MemberID, e.Timestamp, e.LogType, e.Weight, e.Content)
			}
			fmt.Printf("\n%d items\n", len(entries))
			return nil
		},
	}
	cmd.Flags().String("member", "", "Only show items for this member id")
	return cmd
}
