package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/expr"
)

var checkCmd = &cobra.Command{
	Use:   "check <condition>",
	Short: "Parse a condition and print its tree",
	Long: `Parse a condition without touching the store. Syntax errors are reported
the same way a scan would report them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	return writeCheck(cmd.OutOrStdout(), strings.Join(args, " "))
}

func writeCheck(w io.Writer, condition string) error {
	node, err := expr.Parse(condition)
	if err != nil {
		return err
	}
	fmt.Fprint(w, expr.Format(node))

	refs := expr.FieldRefs(node)
	if len(refs) == 0 {
		return nil
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	fmt.Fprintf(w, "fields: %s\n", strings.Join(names, ", "))
	return nil
}
