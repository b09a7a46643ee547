package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"coldtrack-sync/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coldtrack-sync",
		Short: "Cold-chain sync from the live store into the warehouse",
		Long: `coldtrack-sync mirrors defrost and fault events, temperature readings and
user accounts from the realtime live store into the Postgres warehouse.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.SyncCmd())
	rootCmd.AddCommand(cli.BackfillCmd())
	rootCmd.AddCommand(cli.BackupCmd())
	rootCmd.AddCommand(cli.UsersCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
