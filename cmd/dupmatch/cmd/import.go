package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <dataset.yaml>",
	Short: "Import categories, collections and records from a YAML dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, logger, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ds, err := store.LoadDataset(args[0])
	if err != nil {
		return err
	}
	sum, err := st.Import(ctx, ds)
	if err != nil {
		return err
	}

	logger.Info("dataset imported",
		"path", args[0],
		"categories", sum.Categories,
		"collections", sum.Collections,
		"records", sum.Records)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d categories, %d collections, %d records\n",
		sum.Categories, sum.Collections, sum.Records)
	return nil
}
