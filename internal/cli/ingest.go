package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/medgraph/internal/app"
	"github.com/yungbote/medgraph/internal/ingest"
)

func newIngestCmd(rt *runtime) *cobra.Command {
	var dryRun, verify bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the JSON-lines corpus into the graph store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, dryRun)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			if !dryRun && !a.Graph.Connected() {
				return errors.New("graph store not connected; use --dry-run to only parse the corpus")
			}
			rep, err := a.Importer(ingest.Options{DryRun: dryRun, Verify: verify}).Run(ctx, rt.cfg.Ingest.File)
			if rep != nil {
				if werr := writeYAML(cmd, rep); werr != nil {
					return werr
				}
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if rep.Upsert != nil && rep.Upsert.FailedBatches > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d batches failed; re-run ingest to retry them\n", rep.Upsert.FailedBatches)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("file", "", "corpus path (JSON lines)")
	bindFlag(f, "file", "ingest.file")
	f.Int("batch-size", 0, "rows per write statement")
	bindFlag(f, "batch-size", "ingest.batch_size")
	f.Int("workers", 0, "labels written concurrently in the node phase")
	bindFlag(f, "workers", "ingest.node_workers")
	f.BoolVar(&dryRun, "dry-run", false, "parse and plan without touching the graph")
	f.BoolVar(&verify, "verify", false, "count nodes and relationships after writing")
	return cmd
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func closeApp(ctx context.Context, a *app.App) {
	a.Close(context.WithoutCancel(ctx))
}
