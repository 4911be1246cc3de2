package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/models"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the agent accepts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tTIER\tAVAILABLE")
		for _, m := range models.Default().All() {
			key := m.Key
			if key == cfg.Agent.Model {
				key += " *"
			}
			avail := "yes"
			if !models.Allowed(m, cfg.User.Subscriber) {
				avail = "subscribers"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, m.Name, m.Tier, avail)
		}
		return w.Flush()
	},
}
