package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations",
	RunE:  runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, logger, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ran, err := db.MigrateUp(ctx, st.DB())
	if err != nil {
		return err
	}
	for _, id := range ran {
		logger.Info("migration applied", "id", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(ran))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	statuses, err := db.MigrateStatus(ctx, st.DB())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		ms := ""
		if s.Applied {
			ms = strconv.FormatInt(s.ExecutionMs, 10)
		}
		rows = append(rows, []string{s.ID, applied, ms})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Migration", "Applied", "ms"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight}))
	return nil
}
