package main

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(anomaliesCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(intervalCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(setCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show simulator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "status"})
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "List streams with their enabled and running state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "list-streams"})
	},
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List configured anomaly scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "list-anomalies"})
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <stream>",
	Short: "Start a stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "enable", "stream": args[0]})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <stream>",
	Short: "Stop a stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "disable", "stream": args[0]})
	},
}

var intervalCmd = &cobra.Command{
	Use:   "interval <stream> <seconds>",
	Short: "Change a stream's publish interval",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return roundTrip(map[string]any{"action": "set-interval", "stream": args[0], "intervalSec": sec})
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <scenario>",
	Short: "Trigger an anomaly scenario immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(map[string]any{"action": "trigger-anomaly", "scenario": args[0]})
	},
	Args: cobra.ExactArgs(1),
}

var setCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a live-tunable config path, value is parsed as JSON",
	Long:  `Examples: set streams.equipment.intervalSec 2; set streams.equipment.energyRange '[40,95]'`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			// Bare strings are passed through as-is.
			value = args[1]
		}
		return roundTrip(map[string]any{"action": "set", "path": args[0], "value": value})
	},
}
