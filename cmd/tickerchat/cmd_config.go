package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/config"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration values; secrets are redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.ListValues(loadConfig(), true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, s := range settings {
			fmt.Fprintf(w, "%s\t%v\n", s.Key, s.Value)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.Redact(args[0], val))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one configuration value",
	Example: `  tickerchat config set agent.model claude-sonnet
  tickerchat config set quota.store sqlite
  tickerchat config set telegram.subscribers 1001,1002`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := validateSetting(key, value); err != nil {
			return err
		}
		if _, err := config.Load(cfgPath); err != nil {
			return err
		}
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, config.Redact(key, value))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	},
}

// validateSetting rejects values that would leave the config unusable.
func validateSetting(key, value string) error {
	switch key {
	case "agent.model":
		if _, ok := models.Default().Get(value); !ok {
			return fmt.Errorf("%w: %s", models.ErrUnknownModel, value)
		}
	case "quota.reset_schedule":
		if _, err := quota.NewWindow(value); err != nil {
			return fmt.Errorf("invalid reset schedule: %w", err)
		}
	case "quota.store":
		switch value {
		case "file", "sqlite", "memory":
		default:
			return fmt.Errorf("unknown store kind: %s (want file, sqlite or memory)", value)
		}
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log level: %s", value)
		}
	}
	return nil
}
