package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/telemetry"
)

var statsLimit int

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 0, "only consider the last n turns (0 = all)")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise completed turns from the journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		records, err := telemetry.NewJournal(journalPath(cfg)).Tail(statsLimit)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No turns recorded.")
			return nil
		}

		s := telemetry.Summarize(records)
		fmt.Fprintf(os.Stdout, "Turns:        %d\n", s.Turns)
		fmt.Fprintf(os.Stdout, "Succeeded:    %d\n", s.Succeeded)
		fmt.Fprintf(os.Stdout, "Avg response: %dms\n\n", s.AvgResponseMS)

		keys := make([]string, 0, len(s.ByModel))
		for k := range s.ByModel {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tTURNS")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%d\n", k, s.ByModel[k])
		}
		return w.Flush()
	},
}
