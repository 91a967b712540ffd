// Command uitrace-collector is a development collector for uitrace
// beacons. It stores every accepted batch in a local SQLite database and
// lists what it has stored.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Addr        string
	DBPath      string
	BeaconPath  string
	MaxBody     int64
	MetricsPath string
}

// ListFlags holds flags for the list command.
type ListFlags struct {
	DBPath string
	Limit  int
	Events bool
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "uitrace-collector",
		Short: "Development collector for uitrace beacons",
		Long: `uitrace-collector accepts beacon batches over HTTP and stores them in SQLite.

Examples:
  uitrace-collector serve --addr=:8080 --db=beacons.db
  uitrace-collector list --db=beacons.db --limit=20`,
		SilenceUsage: true,
	}

	root.AddCommand(
		createServeCommand(&ServeFlags{}),
		createListCommand(&ListFlags{}),
	)
	return root
}

func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept beacons until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&flags.DBPath, "db", "beacons.db", "SQLite database path")
	cmd.Flags().StringVar(&flags.BeaconPath, "path", "/beacon", "beacon endpoint path")
	cmd.Flags().Int64Var(&flags.MaxBody, "max-body", 1<<20, "largest accepted request body in bytes")
	cmd.Flags().StringVar(&flags.MetricsPath, "metrics-path", "/metrics", "Prometheus endpoint path; empty disables it")
	return cmd
}

func createListCommand(flags *ListFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print stored batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), *flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.DBPath, "db", "beacons.db", "SQLite database path")
	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "maximum batches to print; 0 prints all")
	cmd.Flags().BoolVar(&flags.Events, "events", false, "print the payload of each batch")
	return cmd
}
