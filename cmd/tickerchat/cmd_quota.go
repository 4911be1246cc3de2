package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/types"
)

func init() {
	rootCmd.AddCommand(quotaCmd)
	quotaCmd.AddCommand(quotaShowCmd, quotaResetCmd)
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect the free-tier question counter",
}

func quotaUser(args []string, fallback string) types.UserID {
	if len(args) > 0 {
		return types.UserID(args[0])
	}
	return types.UserID(fallback)
}

var quotaShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show questions used and remaining this period",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		gate, closeStore, err := openGate(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		user := quotaUser(args, cfg.User.ID)
		used, err := gate.Count(ctx, user)
		if err != nil {
			return fmt.Errorf("read quota: %w", err)
		}
		left, resetAt, err := gate.Remaining(ctx, user)
		if err != nil {
			return fmt.Errorf("read quota: %w", err)
		}
		fmt.Fprintf(os.Stdout, "User:      %s\n", user)
		fmt.Fprintf(os.Stdout, "Used:      %d/%d\n", used, gate.Limit())
		fmt.Fprintf(os.Stdout, "Remaining: %d\n", left)
		fmt.Fprintf(os.Stdout, "Resets:    %s (%s)\n", resetAt.Local().Format("2006-01-02 15:04:05 MST"), cfg.Quota.ResetSchedule)
		if cfg.User.Subscriber && string(user) == cfg.User.ID {
			fmt.Fprintln(os.Stdout, "Subscriber: no limit applies")
		}
		return nil
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset [user]",
	Short: "Reset the counter for a user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		gate, closeStore, err := openGate(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		user := quotaUser(args, cfg.User.ID)
		if err := gate.Reset(context.Background(), user); err != nil {
			return fmt.Errorf("reset quota: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Quota reset for %s.\n", user)
		return nil
	},
}
