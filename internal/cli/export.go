package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/medgraph/internal/ingest"
)

func newExportCmd(rt *runtime) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write node and relationship CSV files for offline bulk import",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, true)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			acc, _, err := a.Importer(ingest.Options{DryRun: true}).Load(ctx, rt.cfg.Ingest.File)
			if err != nil {
				return err
			}
			files, err := ingest.Export(acc, out)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "export", "output directory")
	f.String("file", "", "corpus path (JSON lines)")
	bindFlag(f, "file", "ingest.file")
	return cmd
}
