package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(rt *runtime) *cobra.Command {
	var showQuery bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question through a generated read-only graph query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, false)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			res := a.Session().Ask(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if showQuery {
				fmt.Fprintf(out, "查询: %s\n结果: %s\n", res.Query, res.Result)
			}
			fmt.Fprintln(out, res.Answer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showQuery, "show-query", false, "print the generated query and its raw result")
	return cmd
}
