package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/store"
	"github.com/solatis/dupmatch/internal/types"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List categories with their fields, and collections",
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	return writeSchema(ctx, cmd.OutOrStdout(), st)
}

func writeSchema(ctx context.Context, w io.Writer, st *store.Store) error {
	categories, err := st.Categories(ctx)
	if err != nil {
		return err
	}
	counts, err := st.CategoryCounts(ctx)
	if err != nil {
		return err
	}
	records := make(map[string]int64, len(counts))
	for _, c := range counts {
		records[c.Name] = c.Records
	}

	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []string{c.Name, strings.Join(c.Fields, ", "), strconv.FormatInt(records[c.Name], 10)})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Category", "Fields", "Records"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight}))

	collections, err := st.Collections(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, renderTable([]string{"Collection"}, collectionRows(collections), nil))
	return nil
}

// collectionRows renders collections as full paths such as
// "Languages::French".
func collectionRows(collections []types.Collection) [][]string {
	byID := make(map[types.CollectionID]types.Collection, len(collections))
	for _, c := range collections {
		byID[c.ID] = c
	}

	rows := make([][]string, 0, len(collections))
	for _, c := range collections {
		path := []string{c.Name}
		seen := map[types.CollectionID]bool{c.ID: true}
		for p := c.Parent; p != "" && !seen[p]; {
			parent, ok := byID[p]
			if !ok {
				break
			}
			seen[p] = true
			path = append([]string{parent.Name}, path...)
			p = parent.Parent
		}
		rows = append(rows, []string{strings.Join(path, "::")})
	}
	return rows
}
