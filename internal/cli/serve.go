package cli

import (
	"github.com/spf13/cobra"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and ask endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, false)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	bindFlag(cmd.Flags(), "addr", "http.addr")
	return cmd
}
