package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tg-digest",
		Short:         "Daily extract, report and load of a Telegram forum chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment overrides it)")

	root.AddCommand(runCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(loadCmd())
	root.AddCommand(topicsCmd())
	root.AddCommand(configCmd())

	return root
}

func runCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract yesterday (or --date), write the datasets and load them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "civil day to extract, YYYY-MM-DD in the report zone (default: yesterday)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily job on SCHEDULE until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context())
		},
	}
}

func loadCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the Parquet files of a day into the relational store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to load, YYYY-MM-DD (default: yesterday)")
	return cmd
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics [@chat]",
		Short: "List every topic of the forum chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat := ""
			if len(args) == 1 {
				chat = args[0]
			}
			return runTopics(cmd.Context(), chat)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [file.yaml...]",
		Short: "Validate YAML config files, or the effective configuration without arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCheck(cmd.OutOrStdout(), args)
		},
	})
	return cmd
}
